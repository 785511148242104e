package engine

import (
	"context"
	"math"
	"strconv"

	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/fdm/operators"
	"github.com/wyfcoding/quant/fdm/payoff"
	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/fdm/solver"
	"github.com/wyfcoding/quant/fdm/step"
	"github.com/wyfcoding/quant/xerrors"
)

// BasketOption 多资产期权. Strike 仅用于读取各资产的隐含波动率.
type BasketOption struct {
	Payoff   payoff.Basket `json:"-"`
	Strike   float64       `json:"strike"`
	Exercise step.Exercise `json:"exercise"`
}

// Basket 2 到 3 个相关 Black-Scholes 资产上的篮子期权.
type Basket struct {
	base
	processes   []process.Process
	correlation [][]float64
}

func NewBasket(processes []process.Process, correlation [][]float64, cfg Config, opts ...Option) (*Basket, error) {
	b, err := newBase(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &Basket{base: b, processes: processes, correlation: correlation}, nil
}

func (e *Basket) Calculate(ctx context.Context, opt BasketOption) (*Results, error) {
	n := len(e.processes)
	if n < 2 || n > 3 {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "basket engine supports 2 or 3 assets, got %d", n)
	}
	ps := make([]*process.BlackScholes, n)
	for i, p := range e.processes {
		bs, ok := p.(*process.BlackScholes)
		if !ok {
			return nil, processError("Black-Scholes", p)
		}
		ps[i] = bs
	}
	if opt.Payoff == nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "basket option needs a payoff")
	}
	if err := checkExercise(opt.Exercise, step.ExerciseEuropean, step.ExerciseAmerican, step.ExerciseBermudan); err != nil {
		return nil, err
	}
	maturity := opt.Exercise.Maturity()

	grids := make([]mesher.Mesher1d, n)
	strikes := make([]float64, n)
	for i, p := range ps {
		strikes[i] = opt.Strike
		if !(strikes[i] > 0) {
			strikes[i] = p.X0()
		}
		g, err := mesher.NewBlackScholes1d(e.cfg.BasketGrid, p, maturity, strikes[i],
			mesher.WithSpotConcentration(p.X0(), strikeDensity))
		if err != nil {
			return nil, err
		}
		grids[i] = g
	}
	m, err := mesher.NewComposite(grids...)
	if err != nil {
		return nil, err
	}
	op, err := operators.NewNdBlackScholesOp(m, ps, e.correlation, strikes)
	if err != nil {
		return nil, err
	}
	calc, err := payoff.NewLogBasketInner(opt.Payoff, m)
	if err != nil {
		return nil, err
	}
	conds, err := step.NewVanillaComposite(m, calc, opt.Exercise, nil, 0)
	if err != nil {
		return nil, err
	}

	desc := e.desc()
	desc.Mesher, desc.Conditions, desc.Calculator, desc.Maturity = m, conds, calc, maturity
	s, err := solver.NewSolverNd(desc, op, e.cfg.Scheme, e.solverOpts...)
	if err != nil {
		return nil, err
	}
	sol, err := s.Solve(ctx)
	if err != nil {
		return nil, err
	}

	x := make([]float64, n)
	for i, p := range ps {
		x[i] = math.Log(p.X0())
	}
	res := &Results{Extra: make(map[string]float64, 2*n)}
	if res.Value, err = sol.ValueAt(x); err != nil {
		return nil, err
	}
	if res.Theta, err = sol.ThetaAt(x); err != nil {
		return nil, err
	}
	for i, p := range ps {
		vx, err := sol.DerivativeAt(x, i)
		if err != nil {
			return nil, err
		}
		vxx, err := sol.SecondDerivativeAt(x, i)
		if err != nil {
			return nil, err
		}
		spot := p.X0()
		delta, gamma := vx/spot, (vxx-vx)/(spot*spot)
		suffix := strconv.Itoa(i + 1)
		res.Extra["delta"+suffix] = delta
		res.Extra["gamma"+suffix] = gamma
		if i == 0 {
			res.Delta, res.Gamma = delta, gamma
		}
	}
	e.logger.DebugContext(ctx, "basket priced", "assets", n, "payoff", opt.Payoff.Name(), "value", res.Value)
	return res, nil
}
