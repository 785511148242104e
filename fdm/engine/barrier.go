package engine

import (
	"context"
	"math"
	"strings"

	"github.com/wyfcoding/quant/fdm/boundary"
	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/fdm/payoff"
	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/fdm/solver"
	"github.com/wyfcoding/quant/fdm/step"
	"github.com/wyfcoding/quant/xerrors"
)

// BarrierType 障碍类型.
type BarrierType string

const (
	DownOut BarrierType = "down-out"
	UpOut   BarrierType = "up-out"
	DownIn  BarrierType = "down-in"
	UpIn    BarrierType = "up-in"
)

// ParseBarrierType 忽略大小写与分隔符，如 "DownAndOut"、"down_out".
func ParseBarrierType(s string) (BarrierType, error) {
	k := strings.NewReplacer("-", "", "_", "", " ", "", "and", "").Replace(strings.ToLower(s))
	switch k {
	case "downout":
		return DownOut, nil
	case "upout":
		return UpOut, nil
	case "downin":
		return DownIn, nil
	case "upin":
		return UpIn, nil
	}
	return "", xerrors.Derive(xerrors.ErrInvalidArgument, "unknown barrier type %q", s)
}

func (t BarrierType) down() bool    { return t == DownOut || t == DownIn }
func (t BarrierType) knockIn() bool { return t == DownIn || t == UpIn }

// BarrierOption 单障碍期权. Monitoring 为空表示连续观察.
type BarrierOption struct {
	VanillaOption
	Type       BarrierType `json:"type"`
	Barrier    float64     `json:"barrier"`
	Rebate     float64     `json:"rebate"`
	Monitoring []float64   `json:"monitoring,omitempty"`
}

func (o BarrierOption) validate(spot float64) error {
	if err := o.VanillaOption.validate(); err != nil {
		return err
	}
	if !(o.Barrier > 0) || math.IsInf(o.Barrier, 0) {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "barrier must be positive and finite, got %g", o.Barrier)
	}
	if o.Rebate < 0 {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "rebate must not be negative, got %g", o.Rebate)
	}
	if o.Type.knockIn() && o.Rebate != 0 {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "knock-in options are priced by parity and need a zero rebate")
	}
	if (o.Type.down() && spot <= o.Barrier) || (!o.Type.down() && spot >= o.Barrier) {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "spot %g has already touched the barrier %g", spot, o.Barrier)
	}
	return nil
}

// BlackScholesBarrier Black-Scholes 过程下的欧式障碍期权. 敲出期权在截断网格上回滚，
// 敲入期权由同参数欧式期权减去敲出期权得到.
type BlackScholesBarrier struct {
	base
	process process.Process
}

func NewBlackScholesBarrier(p process.Process, cfg Config, opts ...Option) (*BlackScholesBarrier, error) {
	b, err := newBase(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &BlackScholesBarrier{base: b, process: p}, nil
}

func (e *BlackScholesBarrier) Calculate(ctx context.Context, opt BarrierOption) (*Results, error) {
	p, ok := e.process.(*process.BlackScholes)
	if !ok {
		return nil, processError("Black-Scholes", e.process)
	}
	if err := checkExercise(opt.Exercise, step.ExerciseEuropean); err != nil {
		return nil, err
	}
	t, err := ParseBarrierType(string(opt.Type))
	if err != nil {
		return nil, err
	}
	opt.Type = t
	if err := opt.validate(p.X0()); err != nil {
		return nil, err
	}

	out, err := e.knockOut(ctx, p, opt)
	if err != nil {
		return nil, err
	}
	if !opt.Type.knockIn() {
		return out, nil
	}

	vanilla := BlackScholesVanilla{base: e.base, process: p}
	plain, err := vanilla.Calculate(ctx, opt.VanillaOption)
	if err != nil {
		return nil, err
	}
	return &Results{
		Value: plain.Value - out.Value,
		Delta: plain.Delta - out.Delta,
		Gamma: plain.Gamma - out.Gamma,
		Theta: plain.Theta - out.Theta,
	}, nil
}

func (e *BlackScholesBarrier) knockOut(ctx context.Context, p *process.BlackScholes, opt BarrierOption) (*Results, error) {
	maturity, strike := opt.Exercise.Maturity(), opt.Payoff.Strike()
	lnBarrier := math.Log(opt.Barrier)
	continuous := len(opt.Monitoring) == 0

	mopts := []mesher.BlackScholesOption{
		mesher.WithSpotConcentration(strike, strikeDensity),
		mesher.WithDividends(opt.Dividends),
	}
	if continuous {
		if opt.Type.down() {
			mopts = append(mopts, mesher.WithLogBounds(&lnBarrier, nil))
		} else {
			mopts = append(mopts, mesher.WithLogBounds(nil, &lnBarrier))
		}
	}
	grid, err := mesher.NewBlackScholes1d(e.cfg.XGrid, p, maturity, strike, mopts...)
	if err != nil {
		return nil, err
	}
	m, err := mesher.NewComposite(grid)
	if err != nil {
		return nil, err
	}

	koOpts := []step.KnockOutOption{step.WithRebate(opt.Rebate)}
	side := boundary.Upper
	if opt.Type.down() {
		koOpts = append(koOpts, step.WithLowerBarrier(lnBarrier))
		side = boundary.Lower
	} else {
		koOpts = append(koOpts, step.WithUpperBarrier(lnBarrier))
	}
	var bcs boundary.Set
	if continuous {
		bc, err := boundary.NewDirichlet(m, 0, side, opt.Rebate)
		if err != nil {
			return nil, err
		}
		bcs = boundary.Set{bc}
	} else {
		koOpts = append(koOpts, step.WithMonitoring(opt.Monitoring))
	}
	ko, err := step.NewKnockOut(m, 0, koOpts...)
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
	if conds, err = conds.Join(ko); err != nil {
		return nil, err
	}

	desc := e.desc()
	desc.Mesher, desc.BCs, desc.Conditions, desc.Calculator, desc.Maturity = m, bcs, conds, calc, maturity
	s, err := solver.NewBlackScholesSolver(p, strike, desc, e.cfg.Scheme, e.solverOpts...)
	if err != nil {
		return nil, err
	}
	g, err := s.Calculate(ctx)
	if err != nil {
		return nil, err
	}
	e.logger.DebugContext(ctx, "barrier knock-out priced", "type", opt.Type, "barrier", opt.Barrier, "continuous", continuous, "value", g.Value)
	return &Results{Value: g.Value, Delta: g.Delta, Gamma: g.Gamma, Theta: g.Theta}, nil
}
