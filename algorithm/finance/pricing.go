// Package finance - 闭式定价公式（Black-Scholes 欧式期权、Hull-White 零息债券期权）。
package finance

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/wyfcoding/quant/fdm/payoff"
	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/xerrors"
)

// BlackScholesInput 连续复利的利率与股息率，Expiry 以年计.
type BlackScholesInput struct {
	Spot     float64 `json:"spot"`
	Strike   float64 `json:"strike"`
	Rate     float64 `json:"rate"`
	Dividend float64 `json:"dividend"`
	Vol      float64 `json:"vol"`
	Expiry   float64 `json:"expiry"`
}

func (in BlackScholesInput) validate() error {
	if !(in.Spot > 0) || !(in.Strike > 0) || !(in.Expiry > 0) || !(in.Vol > 0) {
		return xerrors.Derive(xerrors.ErrInvalidArgument,
			"spot, strike, expiry and vol must be positive, got %g, %g, %g, %g", in.Spot, in.Strike, in.Expiry, in.Vol)
	}
	return nil
}

// Greeks 以年为单位的希腊值，Vega 与 Rho 对应参数变化 1.0.
type Greeks struct {
	Price float64 `json:"price"`
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Theta float64 `json:"theta"`
	Rho   float64 `json:"rho"`
}

// BlackScholes 欧式期权价格与全部希腊值.
func BlackScholes(t payoff.OptionType, in BlackScholesInput) (Greeks, error) {
	if err := t.Validate(); err != nil {
		return Greeks{}, err
	}
	if err := in.validate(); err != nil {
		return Greeks{}, err
	}
	s, k, r, q, sigma, T := in.Spot, in.Strike, in.Rate, in.Dividend, in.Vol, in.Expiry
	sqrtT := math.Sqrt(T)
	d1 := (math.Log(s/k) + (r-q+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT
	dfR, dfQ := math.Exp(-r*T), math.Exp(-q*T)
	n := distuv.UnitNormal
	pdf := n.Prob(d1)

	g := Greeks{
		Gamma: dfQ * pdf / (s * sigma * sqrtT),
		Vega:  s * dfQ * pdf * sqrtT,
	}
	decay := -s * dfQ * pdf * sigma / (2 * sqrtT)
	if t == payoff.Call {
		g.Price = s*dfQ*n.CDF(d1) - k*dfR*n.CDF(d2)
		g.Delta = dfQ * n.CDF(d1)
		g.Theta = decay - r*k*dfR*n.CDF(d2) + q*s*dfQ*n.CDF(d1)
		g.Rho = k * T * dfR * n.CDF(d2)
	} else {
		g.Price = k*dfR*n.CDF(-d2) - s*dfQ*n.CDF(-d1)
		g.Delta = dfQ * (n.CDF(d1) - 1)
		g.Theta = decay + r*k*dfR*n.CDF(-d2) - q*s*dfQ*n.CDF(-d1)
		g.Rho = -k * T * dfR * n.CDF(-d2)
	}
	return g, nil
}

// ImpliedVolatility Newton 迭代求隐含波动率.
func ImpliedVolatility(t payoff.OptionType, in BlackScholesInput, price float64) (float64, error) {
	const (
		tolerance     = 1e-8
		maxIterations = 100
	)
	in.Vol = 0.3
	for range maxIterations {
		g, err := BlackScholes(t, in)
		if err != nil {
			return 0, err
		}
		diff := g.Price - price
		if math.Abs(diff) < tolerance {
			return in.Vol, nil
		}
		if g.Vega < 1e-12 {
			break
		}
		in.Vol -= diff / g.Vega
		if in.Vol <= 0 {
			in.Vol = 1e-3
		}
	}
	return 0, xerrors.Derive(xerrors.ErrSingularSystem, "implied volatility did not converge for price %g", price)
}

// HullWhiteZeroBondOption Jamshidian 公式: 在 expiry 行权、标的为 bondMaturity 到期的单位零息债券.
func HullWhiteZeroBondOption(t payoff.OptionType, curve process.YieldCurve, a, sigma, strike, expiry, bondMaturity float64) (float64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	if curve == nil || !(a > 0) || !(sigma > 0) || !(strike > 0) || !(expiry > 0) || !(bondMaturity > expiry) {
		return 0, xerrors.Derive(xerrors.ErrInvalidArgument,
			"invalid Hull-White bond option: a=%g sigma=%g strike=%g expiry=%g bond=%g", a, sigma, strike, expiry, bondMaturity)
	}
	pT, pS := curve.Discount(expiry), curve.Discount(bondMaturity)
	sigmaP := sigma / a * (1 - math.Exp(-a*(bondMaturity-expiry))) * math.Sqrt((1-math.Exp(-2*a*expiry))/(2*a))
	h := math.Log(pS/(strike*pT))/sigmaP + sigmaP/2
	n := distuv.UnitNormal
	if t == payoff.Call {
		return pS*n.CDF(h) - strike*pT*n.CDF(h-sigmaP), nil
	}
	return strike*pT*n.CDF(-h+sigmaP) - pS*n.CDF(-h), nil
}
