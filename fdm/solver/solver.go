package solver

import (
	"context"
	"math"

	"github.com/wyfcoding/quant/fdm/interpolation"
	"github.com/wyfcoding/quant/fdm/operators"
	"github.com/wyfcoding/quant/fdm/scheme"
	"github.com/wyfcoding/quant/fdm/step"
	"github.com/wyfcoding/quant/xerrors"
)

// thetaHorizon theta 快照的最远时刻 (一天).
const thetaHorizon = 1.0 / 365

// SolverNd 任意维数的网格求解器: 平滑初值、回滚、张量样条插值.
type SolverNd struct {
	desc   Desc
	op     operators.Composite
	scheme scheme.Desc
	opts   []Option
}

func NewSolverNd(desc Desc, op operators.Composite, schemeDesc scheme.Desc, opts ...Option) (*SolverNd, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if op == nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "nil operator")
	}
	if dims := desc.Mesher.Layout().Dimensions(); op.Directions() != dims {
		return nil, xerrors.Derive(xerrors.ErrDimensionMismatch, "operator has %d directions, mesh has %d dimensions", op.Directions(), dims)
	}
	if err := schemeDesc.Validate(); err != nil {
		return nil, err
	}
	return &SolverNd{desc: desc, op: op, scheme: schemeDesc, opts: opts}, nil
}

// Desc 求解描述.
func (s *SolverNd) Desc() Desc { return s.desc }

// Solve 从到期日回滚到 0，并在 theta 快照时刻记录一份解.
func (s *SolverNd) Solve(ctx context.Context) (*Solution, error) {
	d := s.desc
	conds, err := d.conditions()
	if err != nil {
		return nil, err
	}

	first := d.Maturity
	for _, t := range conds.StoppingTimes() {
		if t > 0 {
			first = t
			break
		}
	}
	snapshot, err := step.NewSnapshot(0.99 * math.Min(thetaHorizon, first))
	if err != nil {
		return nil, err
	}
	if conds, err = conds.Join(snapshot); err != nil {
		return nil, err
	}

	l := d.Mesher.Layout()
	rhs := make([]float64, l.Size())
	l.Each(func(index int, coords []int) {
		rhs[index] = d.Calculator.AvgInnerValue(index, coords, d.Maturity)
	})

	bs, err := NewBackwardSolver(s.op, d.BCs, conds, s.scheme, s.opts...)
	if err != nil {
		return nil, err
	}
	values, err := bs.Rollback(ctx, rhs, d.Maturity, 0, d.TimeSteps, d.DampingSteps)
	if err != nil {
		return nil, err
	}
	return newSolution(s.axes(), values, snapshot)
}

func (s *SolverNd) axes() [][]float64 {
	dims := s.desc.Mesher.Layout().Dimensions()
	axes := make([][]float64, dims)
	for d := range axes {
		axes[d] = s.desc.Mesher.Mesher(d).Locations()
	}
	return axes
}

// Solution 回滚结果，按网格坐标插值.
type Solution struct {
	values    []float64
	thetaTime float64
	spline    *interpolation.Spline
	theta     *interpolation.Spline
}

func newSolution(axes [][]float64, values []float64, snapshot *step.Snapshot) (*Solution, error) {
	spline, err := interpolation.NewSpline(axes, values)
	if err != nil {
		return nil, err
	}
	sol := &Solution{values: values, thetaTime: snapshot.Time(), spline: spline}
	if snap := snapshot.Values(); snap != nil {
		if sol.theta, err = interpolation.NewSpline(axes, snap); err != nil {
			return nil, err
		}
	}
	return sol, nil
}

// Values 估值日的解数组，调用方不应修改.
func (s *Solution) Values() []float64 { return s.values }

func (s *Solution) ValueAt(x []float64) (float64, error) { return s.spline.Eval(x, nil) }

func (s *Solution) DerivativeAt(x []float64, direction int) (float64, error) {
	return s.derivative(x, direction, 1)
}

func (s *Solution) SecondDerivativeAt(x []float64, direction int) (float64, error) {
	return s.derivative(x, direction, 2)
}

// MixedDerivativeAt ∂²V/∂x_d0∂x_d1，d0 != d1.
func (s *Solution) MixedDerivativeAt(x []float64, d0, d1 int) (float64, error) {
	if d0 == d1 {
		return s.SecondDerivativeAt(x, d0)
	}
	order, err := orderFor(len(x), d0)
	if err != nil {
		return 0, err
	}
	if d1 < 0 || d1 >= len(x) {
		return 0, xerrors.Derive(xerrors.ErrInvalidArgument, "direction %d out of range", d1)
	}
	order[d1] = 1
	return s.spline.Eval(x, order)
}

// ThetaAt (V(τ) - V(0)) / τ，τ 为快照时刻.
func (s *Solution) ThetaAt(x []float64) (float64, error) {
	if s.theta == nil {
		return 0, xerrors.Derive(xerrors.ErrInvalidArgument, "no snapshot recorded at t=%g", s.thetaTime)
	}
	later, err := s.theta.Eval(x, nil)
	if err != nil {
		return 0, err
	}
	now, err := s.ValueAt(x)
	if err != nil {
		return 0, err
	}
	return (later - now) / s.thetaTime, nil
}

func (s *Solution) derivative(x []float64, direction, n int) (float64, error) {
	order, err := orderFor(len(x), direction)
	if err != nil {
		return 0, err
	}
	order[direction] = n
	return s.spline.Eval(x, order)
}

func orderFor(dims, direction int) ([]int, error) {
	if direction < 0 || direction >= dims {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "direction %d out of range", direction)
	}
	return make([]int, dims), nil
}

// Solver1d 一维求解器.
type Solver1d struct{ nd *SolverNd }

func NewSolver1d(desc Desc, op operators.Composite, schemeDesc scheme.Desc, opts ...Option) (*Solver1d, error) {
	if err := checkDims(desc, 1); err != nil {
		return nil, err
	}
	nd, err := NewSolverNd(desc, op, schemeDesc, opts...)
	if err != nil {
		return nil, err
	}
	return &Solver1d{nd: nd}, nil
}

func (s *Solver1d) Solve(ctx context.Context) (*Solution1d, error) {
	sol, err := s.nd.Solve(ctx)
	if err != nil {
		return nil, err
	}
	return &Solution1d{sol}, nil
}

// Solution1d 标量坐标的一维解.
type Solution1d struct{ *Solution }

func (s *Solution1d) Value(x float64) (float64, error)      { return s.ValueAt([]float64{x}) }
func (s *Solution1d) Derivative(x float64) (float64, error) { return s.DerivativeAt([]float64{x}, 0) }
func (s *Solution1d) Theta(x float64) (float64, error)      { return s.ThetaAt([]float64{x}) }

func (s *Solution1d) SecondDerivative(x float64) (float64, error) {
	return s.SecondDerivativeAt([]float64{x}, 0)
}

// Solver2d 二维求解器.
type Solver2d struct{ nd *SolverNd }

func NewSolver2d(desc Desc, op operators.Composite, schemeDesc scheme.Desc, opts ...Option) (*Solver2d, error) {
	if err := checkDims(desc, 2); err != nil {
		return nil, err
	}
	nd, err := NewSolverNd(desc, op, schemeDesc, opts...)
	if err != nil {
		return nil, err
	}
	return &Solver2d{nd: nd}, nil
}

func (s *Solver2d) Solve(ctx context.Context) (*Solution2d, error) {
	sol, err := s.nd.Solve(ctx)
	if err != nil {
		return nil, err
	}
	return &Solution2d{sol}, nil
}

// Solution2d 标量坐标的二维解.
type Solution2d struct{ *Solution }

func (s *Solution2d) Value(x, y float64) (float64, error) { return s.ValueAt([]float64{x, y}) }
func (s *Solution2d) Theta(x, y float64) (float64, error) { return s.ThetaAt([]float64{x, y}) }

func (s *Solution2d) DerivativeX(x, y float64) (float64, error) {
	return s.DerivativeAt([]float64{x, y}, 0)
}

func (s *Solution2d) DerivativeY(x, y float64) (float64, error) {
	return s.DerivativeAt([]float64{x, y}, 1)
}

func (s *Solution2d) DerivativeXX(x, y float64) (float64, error) {
	return s.SecondDerivativeAt([]float64{x, y}, 0)
}

func (s *Solution2d) DerivativeYY(x, y float64) (float64, error) {
	return s.SecondDerivativeAt([]float64{x, y}, 1)
}

func (s *Solution2d) DerivativeXY(x, y float64) (float64, error) {
	return s.MixedDerivativeAt([]float64{x, y}, 0, 1)
}

func checkDims(desc Desc, want int) error {
	if desc.Mesher == nil {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "nil mesher")
	}
	if got := desc.Mesher.Layout().Dimensions(); got != want {
		return xerrors.Derive(xerrors.ErrDimensionMismatch, "mesh has %d dimensions, want %d", got, want)
	}
	return nil
}
