package solver

import (
	"math"

	"github.com/wyfcoding/quant/fdm/boundary"
	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/fdm/payoff"
	"github.com/wyfcoding/quant/fdm/step"
	"github.com/wyfcoding/quant/xerrors"
)

// Desc 一次求解所需的网格、边界、条件与时间离散.
type Desc struct {
	Mesher       mesher.Mesher
	BCs          boundary.Set
	Conditions   *step.Composite // 可为 nil
	Calculator   payoff.InnerValueCalculator
	Maturity     float64
	TimeSteps    int
	DampingSteps int
}

func (d Desc) Validate() error {
	if d.Mesher == nil {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "nil mesher")
	}
	if d.Calculator == nil {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "nil inner value calculator")
	}
	if !(d.Maturity > 0) || math.IsInf(d.Maturity, 0) {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "maturity must be positive and finite, got %g", d.Maturity)
	}
	if d.TimeSteps < 1 {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "time steps must be at least 1, got %d", d.TimeSteps)
	}
	if d.DampingSteps < 0 {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "damping steps must not be negative, got %d", d.DampingSteps)
	}
	if d.Conditions != nil && math.Abs(d.Conditions.Maturity()-d.Maturity) > stopTolerance(d.Maturity) {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "conditions built for maturity %g, solver maturity is %g", d.Conditions.Maturity(), d.Maturity)
	}
	return nil
}

// conditions 返回条件组合，未设置时为空组合。
func (d Desc) conditions() (*step.Composite, error) {
	if d.Conditions != nil {
		return d.Conditions, nil
	}
	return step.NewComposite(d.Maturity)
}
