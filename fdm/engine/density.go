package engine

import (
	"context"
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/fdm/operators"
	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/fdm/solver"
	"github.com/wyfcoding/quant/xerrors"
)

// InitialCondition 前向方程在 t = 0 的方差密度 p(v)，v 为方差坐标.
type InitialCondition interface {
	Density(v []float64, v0 float64) []float64
	Name() string
}

// DiracDelta 全部质量落在离 v0 最近的网格点上.
type DiracDelta struct{}

func (DiracDelta) Name() string { return "dirac" }

func (DiracDelta) Density(v []float64, v0 float64) []float64 {
	out := make([]float64, len(v))
	i := nearest(v, v0)
	lo, hi := i, i
	if i > 0 {
		lo = i - 1
	}
	if i < len(v)-1 {
		hi = i + 1
	}
	// 梯形积分下该点的权重为相邻两段的一半.
	out[i] = 2 / (v[hi] - v[lo])
	if lo == i || hi == i {
		out[i] *= 0.5
	}
	return out
}

// Gaussian 以 v0 为中心、Width 为标准差的正态密度，截断到网格上.
type Gaussian struct {
	Width float64
}

func (Gaussian) Name() string { return "gaussian" }

func (g Gaussian) Density(v []float64, v0 float64) []float64 {
	n := distuv.Normal{Mu: v0, Sigma: g.Width}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = n.Prob(x)
	}
	return out
}

// StationaryGamma 平方根过程的平稳 Gamma 分布，演化后应保持不变.
type StationaryGamma struct {
	Shape, Rate float64
}

// NewStationaryGamma 按过程参数取平稳分布.
func NewStationaryGamma(p *process.Heston) StationaryGamma {
	shape, rate := p.StationaryShapeRate()
	return StationaryGamma{Shape: shape, Rate: rate}
}

func (StationaryGamma) Name() string { return "stationary" }

func (g StationaryGamma) Density(v []float64, _ float64) []float64 {
	d := distuv.Gamma{Alpha: g.Shape, Beta: g.Rate}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = d.Prob(x)
	}
	return out
}

// ParseInitialCondition width 仅对 gaussian 有效.
func ParseInitialCondition(name string, width float64) (InitialCondition, error) {
	switch name {
	case "", "dirac":
		return DiracDelta{}, nil
	case "gaussian":
		if !(width > 0) {
			return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "gaussian initial condition needs a positive width, got %g", width)
		}
		return Gaussian{Width: width}, nil
	}
	return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "unknown initial condition %q", name)
}

// Density 方差的转移密度. P 已换算回方差坐标下的密度.
type Density struct {
	V    []float64 `json:"v"`
	P    []float64 `json:"p"`
	Mass float64   `json:"mass"`
	Mean float64   `json:"mean"`
}

// densityTail 网格上界覆盖的平稳分布尾部概率.
const densityTail = 1e-6

// SquareRootDensity 求解平方根过程的 Fokker-Planck 前向方程，得到 t 时刻的方差密度.
type SquareRootDensity struct {
	base
	process   process.Process
	transform operators.DensityTransform
	initial   InitialCondition
}

func NewSquareRootDensity(p process.Process, transform operators.DensityTransform, initial InitialCondition, cfg Config, opts ...Option) (*SquareRootDensity, error) {
	b, err := newBase(cfg, opts)
	if err != nil {
		return nil, err
	}
	if initial == nil {
		initial = DiracDelta{}
	}
	return &SquareRootDensity{base: b, process: p, transform: transform, initial: initial}, nil
}

func (e *SquareRootDensity) Calculate(ctx context.Context, horizon float64) (*Density, error) {
	h, ok := e.process.(*process.Heston)
	if !ok {
		return nil, processError("Heston", e.process)
	}
	if !(horizon > 0) || math.IsInf(horizon, 0) {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "horizon must be positive and finite, got %g", horizon)
	}
	kappa, theta, sigma, v0 := h.Kappa(), h.Theta(), h.Sigma(), h.V0()
	if !(v0 > 0) {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "forward density needs v0 > 0, got %g", v0)
	}

	shape, rate := h.StationaryShapeRate()
	upper := math.Max(distuv.Gamma{Alpha: shape, Beta: rate}.Quantile(1-densityTail), 4*v0)
	lower := 1e-4 * math.Min(v0, theta)
	var grid *mesher.Grid1d
	var err error
	if e.transform == operators.LogDensity {
		// 对数坐标下 e^{-y} 随 y 减小而爆炸，下界放宽两个数量级.
		lower *= 100
		grid, err = mesher.NewUniform1d(math.Log(lower), math.Log(upper), e.cfg.VGrid)
	} else {
		grid, err = mesher.NewUniform1d(lower, upper, e.cfg.VGrid)
	}
	if err != nil {
		return nil, err
	}
	m, err := mesher.NewComposite(grid)
	if err != nil {
		return nil, err
	}
	op, err := operators.NewSquareRootFwdOp(m, kappa, theta, sigma, 0, e.transform)
	if err != nil {
		return nil, err
	}

	y := grid.Locations()
	v := e.variance(y)
	p0 := e.initial.Density(v, v0)
	mass := integrate.Trapezoidal(v, p0)
	if !(mass > 0) {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "initial density %s has no mass on [%g, %g]", e.initial.Name(), v[0], v[len(v)-1])
	}
	for i := range p0 {
		p0[i] /= mass
	}
	u0 := e.toUnknown(v, p0, kappa, theta, sigma)

	bs, err := solver.NewBackwardSolver(op, nil, nil, e.cfg.Scheme, e.solverOpts...)
	if err != nil {
		return nil, err
	}
	u, err := bs.Rollback(ctx, u0, horizon, 0, e.cfg.TimeSteps, e.cfg.DampingSteps)
	if err != nil {
		return nil, err
	}

	d := &Density{V: v, P: e.fromUnknown(v, u, kappa, theta, sigma)}
	d.Mass = integrate.Trapezoidal(v, d.P)
	weighted := make([]float64, len(v))
	for i := range v {
		weighted[i] = v[i] * d.P[i]
	}
	d.Mean = integrate.Trapezoidal(v, weighted)
	e.logger.DebugContext(ctx, "square-root density evolved", "transform", e.transform.String(), "initial", e.initial.Name(), "horizon", horizon, "mass", d.Mass)
	return d, nil
}

func (e *SquareRootDensity) variance(y []float64) []float64 {
	if e.transform != operators.LogDensity {
		return append([]float64(nil), y...)
	}
	v := make([]float64, len(y))
	for i := range y {
		v[i] = math.Exp(y[i])
	}
	return v
}

// toUnknown 方差密度换算为算子的未知量: power 为 v^{-ν}p，log 为 y = ln v 的密度 v·p.
func (e *SquareRootDensity) toUnknown(v, p []float64, kappa, theta, sigma float64) []float64 {
	out := make([]float64, len(p))
	nu := 2*kappa*theta/(sigma*sigma) - 1
	for i := range p {
		switch e.transform {
		case operators.PowerDensity:
			out[i] = p[i] * math.Pow(v[i], -nu)
		case operators.LogDensity:
			out[i] = p[i] * v[i]
		default:
			out[i] = p[i]
		}
	}
	return out
}

func (e *SquareRootDensity) fromUnknown(v, u []float64, kappa, theta, sigma float64) []float64 {
	out := make([]float64, len(u))
	nu := 2*kappa*theta/(sigma*sigma) - 1
	for i := range u {
		switch e.transform {
		case operators.PowerDensity:
			out[i] = u[i] * math.Pow(v[i], nu)
		case operators.LogDensity:
			out[i] = u[i] / v[i]
		default:
			out[i] = u[i]
		}
	}
	return out
}

func nearest(xs []float64, x float64) int {
	best := 0
	for i := range xs {
		if math.Abs(xs[i]-x) < math.Abs(xs[best]-x) {
			best = i
		}
	}
	return best
}
