package engine

import (
	"context"
	"math"

	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/fdm/operators"
	"github.com/wyfcoding/quant/fdm/payoff"
	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/fdm/solver"
	"github.com/wyfcoding/quant/fdm/step"
	"github.com/wyfcoding/quant/xerrors"
)

// VanillaOption 单资产期权.
type VanillaOption struct {
	Payoff    payoff.Striked     `json:"-"`
	Exercise  step.Exercise      `json:"exercise"`
	Dividends []process.Dividend `json:"dividends,omitempty"`
}

func (o VanillaOption) validate() error {
	if o.Payoff == nil {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "vanilla option needs a payoff")
	}
	return o.Payoff.Type().Validate()
}

// strikeDensity 执行价附近网格加密的密度参数.
const strikeDensity = 0.1

// BlackScholesVanilla Black-Scholes 过程下的欧式、美式与百慕大期权.
type BlackScholesVanilla struct {
	base
	process process.Process
}

func NewBlackScholesVanilla(p process.Process, cfg Config, opts ...Option) (*BlackScholesVanilla, error) {
	b, err := newBase(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &BlackScholesVanilla{base: b, process: p}, nil
}

func (e *BlackScholesVanilla) Calculate(ctx context.Context, opt VanillaOption) (*Results, error) {
	p, ok := e.process.(*process.BlackScholes)
	if !ok {
		return nil, processError("Black-Scholes", e.process)
	}
	if err := opt.validate(); err != nil {
		return nil, err
	}
	if err := checkExercise(opt.Exercise, step.ExerciseEuropean, step.ExerciseAmerican, step.ExerciseBermudan); err != nil {
		return nil, err
	}
	maturity, strike := opt.Exercise.Maturity(), opt.Payoff.Strike()

	grid, err := mesher.NewBlackScholes1d(e.cfg.XGrid, p, maturity, strike,
		mesher.WithSpotConcentration(strike, strikeDensity),
		mesher.WithDividends(opt.Dividends))
	if err != nil {
		return nil, err
	}
	m, err := mesher.NewComposite(grid)
	if err != nil {
		return nil, err
	}
	calc, err := payoff.NewLogInner(opt.Payoff, m, 0)
	if err != nil {
		return nil, err
	}
	conds, err := step.NewVanillaComposite(m, calc, opt.Exercise, opt.Dividends, 0)
	if err != nil {
		return nil, err
	}

	desc := e.desc()
	desc.Mesher, desc.Conditions, desc.Calculator, desc.Maturity = m, conds, calc, maturity
	s, err := solver.NewBlackScholesSolver(p, strike, desc, e.cfg.Scheme, e.solverOpts...)
	if err != nil {
		return nil, err
	}
	g, err := s.Calculate(ctx)
	if err != nil {
		return nil, err
	}
	e.logger.DebugContext(ctx, "black-scholes vanilla priced", "exercise", opt.Exercise.Type, "strike", strike, "value", g.Value)
	return &Results{Value: g.Value, Delta: g.Delta, Gamma: g.Gamma, Theta: g.Theta}, nil
}

// HestonVanilla Heston 模型下的欧式、美式与百慕大期权.
type HestonVanilla struct {
	base
	process process.Process
}

func NewHestonVanilla(p process.Process, cfg Config, opts ...Option) (*HestonVanilla, error) {
	b, err := newBase(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &HestonVanilla{base: b, process: p}, nil
}

func (e *HestonVanilla) Calculate(ctx context.Context, opt VanillaOption) (*Results, error) {
	p, ok := e.process.(*process.Heston)
	if !ok {
		return nil, processError("Heston", e.process)
	}
	if err := opt.validate(); err != nil {
		return nil, err
	}
	if err := checkExercise(opt.Exercise, step.ExerciseEuropean, step.ExerciseAmerican, step.ExerciseBermudan); err != nil {
		return nil, err
	}
	maturity, strike := opt.Exercise.Maturity(), opt.Payoff.Strike()

	m, err := hestonMesher(p, e.cfg, maturity, strike, opt.Dividends)
	if err != nil {
		return nil, err
	}
	calc, err := payoff.NewLogInner(opt.Payoff, m, 0)
	if err != nil {
		return nil, err
	}
	conds, err := step.NewVanillaComposite(m, calc, opt.Exercise, opt.Dividends, 0)
	if err != nil {
		return nil, err
	}

	desc := e.desc()
	desc.Mesher, desc.Conditions, desc.Calculator, desc.Maturity = m, conds, calc, maturity
	s, err := solver.NewHestonSolver(p, e.cfg.Transform, desc, e.cfg.Scheme, e.solverOpts...)
	if err != nil {
		return nil, err
	}
	g, err := s.Calculate(ctx)
	if err != nil {
		return nil, err
	}
	e.logger.DebugContext(ctx, "heston vanilla priced", "exercise", opt.Exercise.Type, "strike", strike, "transform", e.cfg.Transform.String(), "value", g.Value)
	return &Results{
		Value: g.Value,
		Delta: g.Delta,
		Gamma: g.Gamma,
		Theta: g.Theta,
		Extra: map[string]float64{"vega_v0": g.Vega},
	}, nil
}

// hestonMesher 对数价格维度按平均波动率 √max(v0, θ) 的 Black-Scholes 网格，方差维度按 Heston 分布.
func hestonMesher(p *process.Heston, cfg Config, maturity, strike float64, divs []process.Dividend) (*mesher.Composite, error) {
	vol := math.Sqrt(math.Max(p.V0(), p.Theta()))
	bs, err := process.NewBlackScholes(p.X0(), p.RiskFreeRate(), p.DividendYield(), process.NewConstantVol(vol))
	if err != nil {
		return nil, err
	}
	x, err := mesher.NewBlackScholes1d(cfg.XGrid, bs, maturity, strike,
		mesher.WithSpotConcentration(strike, strikeDensity),
		mesher.WithDividends(divs))
	if err != nil {
		return nil, err
	}
	var vopts []mesher.VarianceOption
	if cfg.Transform == operators.LogVariance {
		vopts = append(vopts, mesher.WithLogVariance())
	}
	v, err := mesher.NewHestonVariance1d(cfg.VGrid, p, maturity, vopts...)
	if err != nil {
		return nil, err
	}
	return mesher.NewComposite(x, v)
}
