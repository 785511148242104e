package finance

import (
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/quant/fdm/payoff"
)

// BlackScholesCalculator 以 decimal 报价的 Black-Scholes 计算器.
type BlackScholesCalculator struct{}

// NewBlackScholesCalculator 创建 Black-Scholes 计算器。
func NewBlackScholesCalculator() *BlackScholesCalculator {
	return &BlackScholesCalculator{}
}

// BlackScholesResult 包含计算出的期权价格及其希腊字母。
// 按报价习惯，Theta 为每日值，Vega 与 Rho 对应 1% 的变化.
type BlackScholesResult struct {
	Price decimal.Decimal `json:"price"`
	Delta decimal.Decimal `json:"delta"`
	Gamma decimal.Decimal `json:"gamma"`
	Vega  decimal.Decimal `json:"vega"`
	Theta decimal.Decimal `json:"theta"`
	Rho   decimal.Decimal `json:"rho"`
}

// Calculate 一次性计算期权价格及所有希腊字母。
func (bsc *BlackScholesCalculator) Calculate(optionType string, spot, strike, expiry, rate, vol, div decimal.Decimal) (*BlackScholesResult, error) {
	t, err := payoff.ParseOptionType(optionType)
	if err != nil {
		return nil, err
	}
	g, err := BlackScholes(t, input(spot, strike, expiry, rate, vol, div))
	if err != nil {
		return nil, err
	}
	return &BlackScholesResult{
		Price: decimal.NewFromFloat(g.Price),
		Delta: decimal.NewFromFloat(g.Delta),
		Gamma: decimal.NewFromFloat(g.Gamma),
		Vega:  decimal.NewFromFloat(g.Vega / 100),
		Theta: decimal.NewFromFloat(g.Theta / 365),
		Rho:   decimal.NewFromFloat(g.Rho / 100),
	}, nil
}

// CalculateImpliedVolatility 计算隐含波动率。
func (bsc *BlackScholesCalculator) CalculateImpliedVolatility(optionType string, spot, strike, expiry, rate, div, marketPrice decimal.Decimal) (decimal.Decimal, error) {
	t, err := payoff.ParseOptionType(optionType)
	if err != nil {
		return decimal.Zero, err
	}
	vol, err := ImpliedVolatility(t, input(spot, strike, expiry, rate, decimal.Zero, div), marketPrice.InexactFloat64())
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(vol), nil
}

func input(spot, strike, expiry, rate, vol, div decimal.Decimal) BlackScholesInput {
	return BlackScholesInput{
		Spot:     spot.InexactFloat64(),
		Strike:   strike.InexactFloat64(),
		Rate:     rate.InexactFloat64(),
		Dividend: div.InexactFloat64(),
		Vol:      vol.InexactFloat64(),
		Expiry:   expiry.InexactFloat64(),
	}
}
