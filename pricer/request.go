package pricer

import (
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/quant/fdm/engine"
	"github.com/wyfcoding/quant/fdm/payoff"
	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/fdm/step"
	"github.com/wyfcoding/quant/xerrors"
)

// Model 定价模型.
type Model string

const (
	ModelBlackScholes    Model = "blackscholes"
	ModelBarrier         Model = "barrier"
	ModelHeston          Model = "heston"
	ModelBasket          Model = "basket"
	ModelHullWhite       Model = "hullwhite"
	ModelHestonHullWhite Model = "hestonhullwhite"
	ModelDensity         Model = "density"
	ModelAnalytic        Model = "analytic"
)

// Request 一次定价请求. 市场数据与合约条款用 decimal 表示，避免 JSON 往返的精度漂移;
// 模型参数 (相关系数、权重) 保持 float64.
type Request struct {
	Model      Model           `json:"model"       validate:"required,oneof=blackscholes barrier heston basket hullwhite hestonhullwhite density analytic"`
	OptionType string          `json:"option_type"`
	Exercise   string          `json:"exercise"`
	Strike     decimal.Decimal `json:"strike"`
	Maturity   decimal.Decimal `json:"maturity"`
	// ExerciseDates 百慕大行权日 (年)，最后一个为到期日.
	ExerciseDates []decimal.Decimal `json:"exercise_dates,omitempty"`
	Market        Market            `json:"market"`
	Dividends     []CashDividend    `json:"dividends,omitempty" validate:"dive"`

	Heston    *HestonParams    `json:"heston,omitempty"`
	HullWhite *HullWhiteParams `json:"hull_white,omitempty"`
	Barrier   *BarrierParams   `json:"barrier,omitempty"`
	Basket    *BasketParams    `json:"basket,omitempty"`
	Density   *DensityParams   `json:"density,omitempty"`

	// Engine 覆盖服务端默认的离散参数，零值字段沿用默认.
	Engine *EngineOverrides `json:"engine,omitempty"`
}

// Market 单资产市场数据，利率与股息率为连续复利.
type Market struct {
	Spot     decimal.Decimal `json:"spot"`
	Rate     decimal.Decimal `json:"rate"`
	Dividend decimal.Decimal `json:"dividend"`
	Vol      decimal.Decimal `json:"vol"`
	// Price 期权市场报价. analytic 模型在 Vol 为零时据此反解隐含波动率.
	Price decimal.Decimal `json:"price,omitempty"`
}

type CashDividend struct {
	Time   decimal.Decimal `json:"time"`
	Amount decimal.Decimal `json:"amount"`
}

type HestonParams struct {
	V0        float64 `json:"v0"`
	Kappa     float64 `json:"kappa"`
	Theta     float64 `json:"theta"`
	Sigma     float64 `json:"sigma"`
	Rho       float64 `json:"rho"       validate:"min=-1,max=1"`
	Transform string  `json:"transform" validate:"omitempty,oneof=plain log"`
}

// HullWhiteParams 短期利率 dr = (φ(t) - a r)dt + σ dW，初始曲线取 Market.Rate 的平坦曲线.
type HullWhiteParams struct {
	A            float64         `json:"a"`
	Sigma        float64         `json:"sigma"`
	BondMaturity decimal.Decimal `json:"bond_maturity"`
	// EquityCorrelation 仅 hestonhullwhite 使用.
	EquityCorrelation float64 `json:"equity_correlation" validate:"min=-1,max=1"`
}

type BarrierParams struct {
	Type       string            `json:"type"   validate:"required"`
	Level      decimal.Decimal   `json:"level"`
	Rebate     decimal.Decimal   `json:"rebate"`
	Monitoring []decimal.Decimal `json:"monitoring,omitempty"`
}

// BasketParams 多资产参数. Kind 与 Expression 二选一.
type BasketParams struct {
	Kind        string            `json:"kind"        validate:"omitempty,oneof=spread max min average"`
	Expression  string            `json:"expression,omitempty"`
	Spots       []decimal.Decimal `json:"spots"       validate:"min=2,max=3"`
	Vols        []decimal.Decimal `json:"vols"`
	Dividends   []decimal.Decimal `json:"dividends,omitempty"`
	Weights     []float64         `json:"weights,omitempty"`
	Correlation [][]float64       `json:"correlation"`
}

type DensityParams struct {
	Horizon   decimal.Decimal `json:"horizon"`
	Transform string          `json:"transform" validate:"omitempty,oneof=plain power log"`
	Initial   string          `json:"initial"   validate:"omitempty,oneof=dirac gaussian stationary"`
	Width     float64         `json:"width"`
}

// EngineOverrides 单次请求的离散参数.
type EngineOverrides struct {
	Scheme       string `json:"scheme,omitempty"`
	TimeSteps    int    `json:"time_steps,omitempty"    validate:"min=0,max=100000"`
	DampingSteps int    `json:"damping_steps,omitempty" validate:"min=0"`
	XGrid        int    `json:"x_grid,omitempty"        validate:"min=0,max=5000"`
	VGrid        int    `json:"v_grid,omitempty"        validate:"min=0,max=2000"`
	RGrid        int    `json:"r_grid,omitempty"        validate:"min=0,max=500"`
	BasketGrid   int    `json:"basket_grid,omitempty"   validate:"min=0,max=200"`
}

// Response 定价结果. Extra 携带模型特有的敏感度，Density 仅 density 模型返回.
type Response struct {
	RunID   string                     `json:"run_id"`
	Model   Model                      `json:"model"`
	Value   decimal.Decimal            `json:"value"`
	Delta   decimal.Decimal            `json:"delta"`
	Gamma   decimal.Decimal            `json:"gamma"`
	Theta   decimal.Decimal            `json:"theta"`
	Extra   map[string]decimal.Decimal `json:"extra,omitempty"`
	Density *engine.Density            `json:"density,omitempty"`
	Cached  bool                       `json:"cached"`
	TraceID string                     `json:"trace_id,omitempty"`
}

// resultPlaces 输出保留的小数位数.
const resultPlaces = 10

func fromResults(model Model, r *engine.Results) *Response {
	resp := &Response{
		Model: model,
		Value: round(r.Value),
		Delta: round(r.Delta),
		Gamma: round(r.Gamma),
		Theta: round(r.Theta),
	}
	if len(r.Extra) > 0 {
		resp.Extra = make(map[string]decimal.Decimal, len(r.Extra))
		for k, v := range r.Extra {
			resp.Extra[k] = round(v)
		}
	}
	return resp
}

// clone 深拷贝引用字段. 缓存与 singleflight 的调用方共享同一个结果.
func (r *Response) clone() *Response {
	out := *r
	out.Extra = maps.Clone(r.Extra)
	if r.Density != nil {
		d := *r.Density
		d.V, d.P = slices.Clone(d.V), slices.Clone(d.P)
		out.Density = &d
	}
	return &out
}

func round(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(resultPlaces)
}

func f64(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func (r *Request) optionType() (payoff.OptionType, error) {
	if r.OptionType == "" {
		return payoff.Call, nil
	}
	return payoff.ParseOptionType(r.OptionType)
}

// exercise 百慕大取 ExerciseDates，其余取 Maturity.
func (r *Request) exercise() (step.Exercise, error) {
	t := step.ExerciseEuropean
	if r.Exercise != "" {
		var err error
		if t, err = step.ParseExerciseType(r.Exercise); err != nil {
			return step.Exercise{}, err
		}
	}
	var ex step.Exercise
	switch t {
	case step.ExerciseBermudan:
		if len(r.ExerciseDates) == 0 {
			return step.Exercise{}, xerrors.Derive(xerrors.ErrInvalidArgument, "bermudan exercise needs exercise_dates")
		}
		times := make([]float64, len(r.ExerciseDates))
		for i, d := range r.ExerciseDates {
			times[i] = f64(d)
		}
		ex = step.NewBermudanExercise(times)
	case step.ExerciseAmerican:
		ex = step.NewAmericanExercise(f64(r.Maturity))
	default:
		ex = step.NewEuropeanExercise(f64(r.Maturity))
	}
	if !(ex.Maturity() > 0) {
		return step.Exercise{}, xerrors.Derive(xerrors.ErrInvalidArgument, "maturity must be positive, got %g", ex.Maturity())
	}
	return ex, ex.Validate()
}

func (r *Request) vanillaPayoff() (*payoff.PlainVanilla, error) {
	t, err := r.optionType()
	if err != nil {
		return nil, err
	}
	return payoff.NewPlainVanilla(t, f64(r.Strike))
}

func (r *Request) dividends() []process.Dividend {
	if len(r.Dividends) == 0 {
		return nil
	}
	out := make([]process.Dividend, len(r.Dividends))
	for i, d := range r.Dividends {
		out[i] = process.Dividend{Time: f64(d.Time), Amount: f64(d.Amount)}
	}
	return out
}

func (r *Request) vanillaOption() (engine.VanillaOption, error) {
	p, err := r.vanillaPayoff()
	if err != nil {
		return engine.VanillaOption{}, err
	}
	ex, err := r.exercise()
	if err != nil {
		return engine.VanillaOption{}, err
	}
	return engine.VanillaOption{Payoff: p, Exercise: ex, Dividends: r.dividends()}, nil
}

// needBlock 缺少模型参数块时的统一错误.
func needBlock(ok bool, model Model, block string) error {
	if ok {
		return nil
	}
	return xerrors.Derive(xerrors.ErrInvalidArgument, "model %s needs the %q block", model, block)
}
