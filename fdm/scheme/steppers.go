package scheme

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"github.com/wyfcoding/quant/fdm/boundary"
	"github.com/wyfcoding/quant/fdm/operators"
)

type base struct {
	op    operators.Composite
	bcs   boundary.Set
	theta float64
	mu    float64
	dt    float64
}

func (b *base) SetStep(dt float64) { b.dt = dt }

// prepare 刷新 [t-dt, t] 上的系数与边界.
func (b *base) prepare(t float64) error {
	t1 := math.Max(0, t-b.dt)
	if err := b.op.SetTime(t1, t); err != nil {
		return err
	}
	b.bcs.SetTime(t1)
	b.bcs.ApplyBeforeApplying(b.op)
	return nil
}

// explicit 返回 a + dt·L·a.
func (b *base) explicit(a []float64) ([]float64, error) {
	la, err := b.op.Apply(a)
	if err != nil {
		return nil, err
	}
	y := make([]float64, len(a))
	floats.AddScaledTo(y, a, b.dt, la)
	b.bcs.ApplyAfterApplying(y)
	return y, nil
}

// sweep 逐方向求解 (I - θ·dt·L_i) y_i = y_{i-1} - θ·dt·L_i·ref，每次求解后重新施加边界.
func (b *base) sweep(y, ref []float64) ([]float64, error) {
	w := b.theta * b.dt
	for i := 0; i < b.op.Directions(); i++ {
		li, err := b.op.ApplyDirection(i, ref)
		if err != nil {
			return nil, err
		}
		rhs := make([]float64, len(y))
		floats.AddScaledTo(rhs, y, -w, li)
		b.bcs.ApplyBeforeSolving(b.op, rhs)
		if y, err = b.op.SolveSplitting(i, rhs, -w); err != nil {
			return nil, err
		}
		b.bcs.ApplyAfterSolving(y)
	}
	return y, nil
}

func diff(x, y []float64) []float64 {
	out := make([]float64, len(x))
	floats.SubTo(out, x, y)
	return out
}

type douglasStepper struct{ base }

func (s *douglasStepper) Step(a []float64, t float64) ([]float64, error) {
	if err := s.prepare(t); err != nil {
		return nil, err
	}
	y, err := s.explicit(a)
	if err != nil {
		return nil, err
	}
	if y, err = s.sweep(y, a); err != nil {
		return nil, err
	}
	s.bcs.ApplyAfterSolving(y)
	return y, nil
}

// craigSneydStepper 交叉项以 μ 加权的显式修正.
type craigSneydStepper struct{ base }

func (s *craigSneydStepper) Step(a []float64, t float64) ([]float64, error) {
	if err := s.prepare(t); err != nil {
		return nil, err
	}
	y0, err := s.explicit(a)
	if err != nil {
		return nil, err
	}
	y, err := s.sweep(y0, a)
	if err != nil {
		return nil, err
	}
	mixed, err := s.op.ApplyMixed(diff(y, a))
	if err != nil {
		return nil, err
	}
	yt := make([]float64, len(a))
	floats.AddScaledTo(yt, y0, s.mu*s.dt, mixed)
	s.bcs.ApplyAfterApplying(yt)
	if yt, err = s.sweep(yt, a); err != nil {
		return nil, err
	}
	s.bcs.ApplyAfterSolving(yt)
	return yt, nil
}

// modifiedCraigSneydStepper 在 Craig-Sneyd 基础上加入 (½-μ) 的全算子修正.
type modifiedCraigSneydStepper struct{ base }

func (s *modifiedCraigSneydStepper) Step(a []float64, t float64) ([]float64, error) {
	if err := s.prepare(t); err != nil {
		return nil, err
	}
	y0, err := s.explicit(a)
	if err != nil {
		return nil, err
	}
	y, err := s.sweep(y0, a)
	if err != nil {
		return nil, err
	}
	d := diff(y, a)
	mixed, err := s.op.ApplyMixed(d)
	if err != nil {
		return nil, err
	}
	full, err := s.op.Apply(d)
	if err != nil {
		return nil, err
	}
	yt := make([]float64, len(a))
	floats.AddScaledTo(yt, y0, s.mu*s.dt, mixed)
	floats.AddScaled(yt, (0.5-s.mu)*s.dt, full)
	s.bcs.ApplyAfterApplying(yt)
	if yt, err = s.sweep(yt, a); err != nil {
		return nil, err
	}
	s.bcs.ApplyAfterSolving(yt)
	return yt, nil
}

// hundsdorferStepper Hundsdorfer-Verwer 预估-校正格式，校正步以预估解为参考.
type hundsdorferStepper struct{ base }

func (s *hundsdorferStepper) Step(a []float64, t float64) ([]float64, error) {
	if err := s.prepare(t); err != nil {
		return nil, err
	}
	y0, err := s.explicit(a)
	if err != nil {
		return nil, err
	}
	y, err := s.sweep(y0, a)
	if err != nil {
		return nil, err
	}
	s.bcs.ApplyAfterSolving(y)

	full, err := s.op.Apply(diff(y, a))
	if err != nil {
		return nil, err
	}
	yt := make([]float64, len(a))
	floats.AddScaledTo(yt, y0, s.mu*s.dt, full)
	s.bcs.ApplyAfterApplying(yt)
	if yt, err = s.sweep(yt, y); err != nil {
		return nil, err
	}
	s.bcs.ApplyAfterSolving(yt)
	return yt, nil
}

type explicitEulerStepper struct{ base }

func (s *explicitEulerStepper) Step(a []float64, t float64) ([]float64, error) {
	if err := s.prepare(t); err != nil {
		return nil, err
	}
	return s.explicit(a)
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', 4, 64) }
