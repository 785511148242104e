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

// BondOption 零息债券上的期权，债券面值为 1.
type BondOption struct {
	Type         payoff.OptionType `json:"type"`
	Strike       float64           `json:"strike"`
	BondMaturity float64           `json:"bond_maturity"`
	Exercise     step.Exercise     `json:"exercise"`
}

func (o BondOption) validate() error {
	if err := o.Type.Validate(); err != nil {
		return err
	}
	if !(o.Strike > 0) {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "bond option strike must be positive, got %g", o.Strike)
	}
	if !(o.BondMaturity > o.Exercise.Maturity()) {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "bond matures at %g, before the last exercise %g", o.BondMaturity, o.Exercise.Maturity())
	}
	return nil
}

// HullWhiteBondOption Hull-White 模型下的欧式与百慕大零息债券期权.
// 希腊值以状态变量 x = r - φ(t) 为自变量.
type HullWhiteBondOption struct {
	base
	process process.Process
}

func NewHullWhiteBondOption(p process.Process, cfg Config, opts ...Option) (*HullWhiteBondOption, error) {
	b, err := newBase(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &HullWhiteBondOption{base: b, process: p}, nil
}

func (e *HullWhiteBondOption) Calculate(ctx context.Context, opt BondOption) (*Results, error) {
	p, ok := e.process.(*process.HullWhite)
	if !ok {
		return nil, processError("Hull-White", e.process)
	}
	if err := checkExercise(opt.Exercise, step.ExerciseEuropean, step.ExerciseBermudan); err != nil {
		return nil, err
	}
	if err := opt.validate(); err != nil {
		return nil, err
	}
	maturity := opt.Exercise.Maturity()

	grid, err := mesher.NewOrnsteinUhlenbeck1d(e.cfg.RGrid, p, maturity)
	if err != nil {
		return nil, err
	}
	m, err := mesher.NewComposite(grid)
	if err != nil {
		return nil, err
	}
	op, err := operators.NewHullWhiteOp(m, p, 0)
	if err != nil {
		return nil, err
	}
	sign := 1.0
	if opt.Type == payoff.Put {
		sign = -1
	}
	calc, err := payoff.NewFuncInner(m, func(x []float64, t float64) float64 {
		bond := p.DiscountBond(t, opt.BondMaturity, p.ShortRate(t, x[0]))
		return math.Max(sign*(bond-opt.Strike), 0)
	})
	if err != nil {
		return nil, err
	}
	conds, err := step.NewVanillaComposite(m, calc, opt.Exercise, nil, 0)
	if err != nil {
		return nil, err
	}

	desc := e.desc()
	desc.Mesher, desc.Conditions, desc.Calculator, desc.Maturity = m, conds, calc, maturity
	s, err := solver.NewSolver1d(desc, op, e.cfg.Scheme, e.solverOpts...)
	if err != nil {
		return nil, err
	}
	sol, err := s.Solve(ctx)
	if err != nil {
		return nil, err
	}
	x0 := p.X0()
	res := &Results{}
	if res.Value, err = sol.Value(x0); err != nil {
		return nil, err
	}
	if res.Delta, err = sol.Derivative(x0); err != nil {
		return nil, err
	}
	if res.Gamma, err = sol.SecondDerivative(x0); err != nil {
		return nil, err
	}
	if res.Theta, err = sol.Theta(x0); err != nil {
		return nil, err
	}
	e.logger.DebugContext(ctx, "hull-white bond option priced", "exercise", opt.Exercise.Type, "strike", opt.Strike, "value", res.Value)
	return res, nil
}

// HestonHullWhiteVanilla 随机利率下的 Heston 欧式期权，网格维度依次为对数价格、方差与利率状态.
type HestonHullWhiteVanilla struct {
	base
	heston         process.Process
	hullWhite      process.Process
	equityRateCorr float64
}

func NewHestonHullWhiteVanilla(heston, hullWhite process.Process, equityRateCorr float64, cfg Config, opts ...Option) (*HestonHullWhiteVanilla, error) {
	b, err := newBase(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &HestonHullWhiteVanilla{base: b, heston: heston, hullWhite: hullWhite, equityRateCorr: equityRateCorr}, nil
}

func (e *HestonHullWhiteVanilla) Calculate(ctx context.Context, opt VanillaOption) (*Results, error) {
	h, ok := e.heston.(*process.Heston)
	if !ok {
		return nil, processError("Heston", e.heston)
	}
	hw, ok := e.hullWhite.(*process.HullWhite)
	if !ok {
		return nil, processError("Hull-White", e.hullWhite)
	}
	if err := opt.validate(); err != nil {
		return nil, err
	}
	if err := checkExercise(opt.Exercise, step.ExerciseEuropean); err != nil {
		return nil, err
	}
	if len(opt.Dividends) > 0 {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "cash dividends are not supported under stochastic rates")
	}
	maturity, strike := opt.Exercise.Maturity(), opt.Payoff.Strike()

	cfg := e.cfg
	cfg.Transform = operators.PlainVariance
	hm, err := hestonMesher(h, cfg, maturity, strike, nil)
	if err != nil {
		return nil, err
	}
	r, err := mesher.NewOrnsteinUhlenbeck1d(cfg.RGrid, hw, maturity)
	if err != nil {
		return nil, err
	}
	m, err := mesher.NewComposite(hm.Mesher(0), hm.Mesher(1), r)
	if err != nil {
		return nil, err
	}
	op, err := operators.NewHestonHullWhiteOp(m, h, hw, e.equityRateCorr)
	if err != nil {
		return nil, err
	}
	calc, err := payoff.NewLogInner(opt.Payoff, m, 0)
	if err != nil {
		return nil, err
	}

	desc := e.desc()
	desc.Mesher, desc.Calculator, desc.Maturity = m, calc, maturity
	s, err := solver.NewSolverNd(desc, op, cfg.Scheme, e.solverOpts...)
	if err != nil {
		return nil, err
	}
	sol, err := s.Solve(ctx)
	if err != nil {
		return nil, err
	}

	spot := h.X0()
	x := []float64{math.Log(spot), h.V0(), hw.X0()}
	value, err := sol.ValueAt(x)
	if err != nil {
		return nil, err
	}
	vx, err := sol.DerivativeAt(x, 0)
	if err != nil {
		return nil, err
	}
	vxx, err := sol.SecondDerivativeAt(x, 0)
	if err != nil {
		return nil, err
	}
	theta, err := sol.ThetaAt(x)
	if err != nil {
		return nil, err
	}
	rho, err := sol.DerivativeAt(x, 2)
	if err != nil {
		return nil, err
	}
	e.logger.DebugContext(ctx, "heston-hull-white vanilla priced", "strike", strike, "value", value)
	return &Results{
		Value: value,
		Delta: vx / spot,
		Gamma: (vxx - vx) / (spot * spot),
		Theta: theta,
		Extra: map[string]float64{"rate_sensitivity": rho},
	}, nil
}
