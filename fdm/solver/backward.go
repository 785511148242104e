// Package solver 组织从到期日到估值日的反向回滚，并在最终网格上插值出价格与希腊值。
package solver

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/wyfcoding/quant/fdm/boundary"
	"github.com/wyfcoding/quant/fdm/operators"
	"github.com/wyfcoding/quant/fdm/scheme"
	"github.com/wyfcoding/quant/fdm/step"
	"github.com/wyfcoding/quant/xerrors"
)

// State 回滚状态。
type State int

const (
	Uninitialized State = iota
	Initialized
	Rolling
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Rolling:
		return "rolling"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "uninitialized"
}

// Observer 回滚的度量钩子，steps 为实际执行的时间步数 (含停止时间切分出的子步)。
type Observer interface {
	ObserveRollback(scheme scheme.Type, steps int, elapsed time.Duration, err error)
}

// Option 可选参数。
type Option func(*BackwardSolver)

// WithLogger 注入日志，默认 slog.Default()。
func WithLogger(l *slog.Logger) Option {
	return func(s *BackwardSolver) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver 注入度量钩子。
func WithObserver(o Observer) Option {
	return func(s *BackwardSolver) { s.observer = o }
}

// BackwardSolver 按格式描述回滚解数组。实例持有回滚状态，不可并发使用。
type BackwardSolver struct {
	op         operators.Composite
	bcs        boundary.Set
	conditions *step.Composite
	desc       scheme.Desc
	logger     *slog.Logger
	observer   Observer
	state      State
	steps      int
}

func NewBackwardSolver(op operators.Composite, bcs boundary.Set, conditions *step.Composite, desc scheme.Desc, opts ...Option) (*BackwardSolver, error) {
	if op == nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "nil operator")
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	s := &BackwardSolver{
		op:         op,
		bcs:        bcs,
		conditions: conditions,
		desc:       desc,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State 当前状态。
func (s *BackwardSolver) State() State { return s.state }

// Rollback 把 rhs 从 from 回滚到 to，先以全隐式格式走 dampingSteps 步，
// 再以配置的格式走 steps 步。rhs 不会被修改。
func (s *BackwardSolver) Rollback(ctx context.Context, rhs []float64, from, to float64, steps, dampingSteps int) (out []float64, err error) {
	if !(from > to) || to < 0 || math.IsInf(from, 0) {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "rollback needs from > to >= 0, got [%g, %g]", to, from)
	}
	if steps < 1 || dampingSteps < 0 {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "invalid step counts: steps=%d damping=%d", steps, dampingSteps)
	}

	a := append([]float64(nil), rhs...)
	s.state = Initialized
	s.steps = 0
	start := time.Now()
	defer func() {
		if err != nil {
			s.state = Failed
			s.logger.ErrorContext(ctx, "rollback failed", "scheme", s.desc.String(), "steps", s.steps, "error", err)
		} else {
			s.state = Done
			s.logger.DebugContext(ctx, "rollback finished", "scheme", s.desc.String(), "steps", s.steps, "duration", time.Since(start))
		}
		if s.observer != nil {
			s.observer.ObserveRollback(s.desc.Type, s.steps, time.Since(start), err)
		}
	}()

	s.logger.DebugContext(ctx, "rollback started", "scheme", s.desc.String(), "from", from, "to", to, "steps", steps, "damping_steps", dampingSteps)

	all := steps + dampingSteps
	dampingTo := from - (from-to)*float64(dampingSteps)/float64(all)
	applyAtStart := true

	if dampingSteps > 0 {
		implicit, err := scheme.New(scheme.ImplicitEulerDesc(), s.op, s.bcs)
		if err != nil {
			return nil, err
		}
		s.logger.DebugContext(ctx, "damping phase", "to", dampingTo, "steps", dampingSteps)
		if a, err = s.rollbackPhase(ctx, implicit, a, from, dampingTo, dampingSteps, applyAtStart); err != nil {
			return nil, err
		}
		applyAtStart = false
	}

	stepper, err := scheme.New(s.desc, s.op, s.bcs)
	if err != nil {
		return nil, err
	}
	return s.rollbackPhase(ctx, stepper, a, dampingTo, to, steps, applyAtStart)
}

// rollbackPhase 等步长推进，落在步内的停止时间把该步切开并在其上作用条件。
// 与 from 重合的停止时间只在 applyAtStart 时作用一次。
func (s *BackwardSolver) rollbackPhase(ctx context.Context, stepper scheme.Stepper, a []float64, from, to float64, steps int, applyAtStart bool) ([]float64, error) {
	dt := (from - to) / float64(steps)
	stepper.SetStep(dt)

	var stopping []float64
	if s.conditions != nil {
		stopping = s.conditions.StoppingTimes()
	}
	if applyAtStart && len(stopping) > 0 && math.Abs(stopping[len(stopping)-1]-from) <= stopTolerance(from) {
		s.apply(ctx, a, stopping[len(stopping)-1])
	}

	var err error
	t := from
	for i := 0; i < steps; i, t = i+1, t-dt {
		now, next := t, t-dt
		if math.Abs(to-next) < math.Sqrt(epsilon) {
			next = to
		}
		s.state = Rolling

		hit := false
		for j := len(stopping) - 1; j >= 0; j-- {
			st := stopping[j]
			if next <= st && st < now {
				hit = true
				stepper.SetStep(now - st)
				if a, err = s.advance(ctx, stepper, a, now); err != nil {
					return nil, err
				}
				s.logger.DebugContext(ctx, "stopping time reached", "t", st)
				s.apply(ctx, a, st)
				now = st
			}
		}
		if hit {
			if now > next {
				stepper.SetStep(now - next)
				if a, err = s.advance(ctx, stepper, a, now); err != nil {
					return nil, err
				}
				s.apply(ctx, a, next)
			}
			stepper.SetStep(dt)
			continue
		}
		if a, err = s.advance(ctx, stepper, a, now); err != nil {
			return nil, err
		}
		s.apply(ctx, a, next)
	}
	return a, nil
}

const epsilon = 2.220446049250313e-16

func stopTolerance(t float64) float64 { return 1e-10 * math.Max(1, math.Abs(t)) }

func (s *BackwardSolver) advance(ctx context.Context, stepper scheme.Stepper, a []float64, t float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, xerrors.Derive(xerrors.ErrDeadline, "rollback interrupted at t=%g: %v", t, err)
	}
	out, err := stepper.Step(a, t)
	if err != nil {
		return nil, err
	}
	s.steps++
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, xerrors.Derive(xerrors.ErrNonFinite, "value at index %d is %g after the step from t=%g", i, v, t)
		}
	}
	return out, nil
}

func (s *BackwardSolver) apply(_ context.Context, a []float64, t float64) {
	if s.conditions != nil {
		s.conditions.ApplyTo(a, t)
	}
}
