package operators

import (
	"math"
	"strings"

	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/xerrors"
)

// DensityTransform 平方根过程前向方程的未知量变换.
type DensityTransform int

const (
	// PlainDensity 直接求解密度 p(v).
	PlainDensity DensityTransform = iota
	// PowerDensity 求解 q = v^{-ν} p，ν = 2κθ/σ² - 1.
	PowerDensity
	// LogDensity 在 y = ln v 坐标下求解 y 的密度.
	LogDensity
)

func (t DensityTransform) String() string {
	switch t {
	case PowerDensity:
		return "power"
	case LogDensity:
		return "log"
	}
	return "plain"
}

// ParseDensityTransform 空串视为 plain.
func ParseDensityTransform(s string) (DensityTransform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "plain":
		return PlainDensity, nil
	case "power":
		return PowerDensity, nil
	case "log":
		return LogDensity, nil
	}
	return PlainDensity, xerrors.Derive(xerrors.ErrInvalidArgument, "unknown density transform %q", s)
}

// SquareRootFwdOp 平方根 (CIR) 过程 dv = κ(θ-v)dt + σ√v dW 的 Fokker-Planck 前向算子，
// 上下边界为零通量条件.
type SquareRootFwdOp struct {
	single
	kappa, theta, sigma float64
	transform           DensityTransform
	v                   []float64
}

// NewSquareRootFwdOp 在 direction 方向上构造前向算子.
func NewSquareRootFwdOp(m mesher.Mesher, kappa, theta, sigma float64, direction int, transform DensityTransform) (*SquareRootFwdOp, error) {
	if err := checkDirection(direction, m.Layout().Dimensions()); err != nil {
		return nil, err
	}
	if !(kappa > 0) || !(theta > 0) || !(sigma > 0) {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "square root process needs positive kappa, theta and sigma (%g, %g, %g)", kappa, theta, sigma)
	}
	n := m.Layout().Dim()[direction]
	if n < 3 {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "square root operator needs at least 3 points, got %d", n)
	}

	loc := m.Locations(direction)
	size := len(loc)
	s2 := sigma * sigma
	first := FirstDerivative(direction, m)
	second := SecondDerivative(direction, m)
	c1 := make([]float64, size)
	c2 := make([]float64, size)
	c0 := make([]float64, size)
	for i, x := range loc {
		switch transform {
		case PowerDensity:
			c1[i] = kappa * (x + theta)
			c2[i] = 0.5 * s2 * x
			c0[i] = 2 * kappa * kappa * theta / s2
		case LogDensity:
			e := math.Exp(-x)
			c1[i] = e*(-0.5*s2-kappa*theta) + kappa
			c2[i] = 0.5 * s2 * e
			c0[i] = kappa * theta * e
		default:
			c1[i] = kappa*(x-theta) + s2
			c2[i] = 0.5 * s2 * x
			c0[i] = kappa
		}
	}
	mapX := must(must(must(first.Mult(c1)).Add(must(second.Mult(c2)))).AddArray(c0))

	op := &SquareRootFwdOp{
		single: single{
			direction: direction,
			dims:      m.Layout().Dimensions(),
			mapT:      mapX,
		},
		kappa:     kappa,
		theta:     theta,
		sigma:     sigma,
		transform: transform,
		v:         append([]float64(nil), m.Mesher(direction).Locations()...),
	}
	op.setLowerBC(m)
	op.setUpperBC(m)
	return op, nil
}

// SetTime 系数与时间无关.
func (op *SquareRootFwdOp) SetTime(_, _ float64) error { return nil }

// Transform 未知量变换.
func (op *SquareRootFwdOp) Transform() DensityTransform { return op.transform }

func (op *SquareRootFwdOp) setLowerBC(m mesher.Mesher) {
	const n = 1
	_, beta, gamma := op.coeff(n)
	f := op.lowerBoundaryFactor()
	b := -(op.h(n-1) + op.h(n)) / op.zeta(n)
	c := op.h(n-1) / op.zetap(n)
	m.Layout().Each(func(idx int, coords []int) {
		if coords[op.direction] == 0 {
			l, _, _ := op.mapT.Row(idx)
			op.mapT.SetRow(idx, l, beta+f*b, gamma+f*c)
		}
	})
}

func (op *SquareRootFwdOp) setUpperBC(m mesher.Mesher) {
	n := len(op.v)
	alpha, beta, _ := op.coeff(n)
	f := op.upperBoundaryFactor()
	b := (op.h(n) + op.h(n-1)) / op.zeta(n)
	c := -op.h(n) / op.zetam(n)
	m.Layout().Each(func(idx int, coords []int) {
		if coords[op.direction] == n-1 {
			_, _, u := op.mapT.Row(idx)
			op.mapT.SetRow(idx, alpha+f*c, beta+f*b, u)
		}
	})
}

// vAt 1 起始的坐标，0 与 n+1 为外推的虚拟点.
func (op *SquareRootFwdOp) vAt(i int) float64 {
	n := len(op.v)
	switch {
	case i > 0 && i <= n:
		return op.v[i-1]
	case i == 0:
		if op.transform == LogDensity {
			return 2*op.v[0] - op.v[1]
		}
		return math.Max(0.5*op.v[0], op.v[0]-0.01*(op.v[1]-op.v[0]))
	default:
		return op.v[n-1] + (op.v[n-1] - op.v[n-2])
	}
}

func (op *SquareRootFwdOp) h(i int) float64     { return op.vAt(i+1) - op.vAt(i) }
func (op *SquareRootFwdOp) mu(i int) float64    { return op.kappa*(op.vAt(i)-op.theta) + op.sigma*op.sigma }
func (op *SquareRootFwdOp) zetam(i int) float64 { return op.h(i-1) * (op.h(i-1) + op.h(i)) }
func (op *SquareRootFwdOp) zeta(i int) float64  { return op.h(i-1) * op.h(i) }
func (op *SquareRootFwdOp) zetap(i int) float64 { return op.h(i) * (op.h(i-1) + op.h(i)) }

func (op *SquareRootFwdOp) coeff(n int) (alpha, beta, gamma float64) {
	s2 := op.sigma * op.sigma
	v := op.vAt(n)
	switch op.transform {
	case PowerDensity:
		mu := op.kappa * (op.theta + v)
		alpha = (s2*v - mu*op.h(n)) / op.zetam(n)
		beta = (-s2*v+mu*(op.h(n)-op.h(n-1)))/op.zeta(n) + 2*op.kappa*op.kappa*op.theta/s2
		gamma = (s2*v + mu*op.h(n-1)) / op.zetap(n)
	case LogDensity:
		e := math.Exp(-v)
		mu := (-op.kappa*op.theta-0.5*s2)*e + op.kappa
		alpha = s2*e/op.zetam(n) - mu*op.h(n)/op.zetam(n)
		beta = -s2*e/op.zeta(n) + mu*(op.h(n)-op.h(n-1))/op.zeta(n) + op.kappa*op.theta*e
		gamma = s2*e/op.zetap(n) + mu*op.h(n-1)/op.zetap(n)
	default:
		mu := op.mu(n)
		alpha = s2*v/op.zetam(n) - mu*op.h(n)/op.zetam(n)
		beta = -s2*v/op.zeta(n) + mu*(op.h(n)-op.h(n-1))/op.zeta(n) + op.kappa
		gamma = s2*v/op.zetap(n) + mu*op.h(n-1)/op.zetap(n)
	}
	return alpha, beta, gamma
}

func (op *SquareRootFwdOp) lowerBoundaryFactor() float64 {
	const n = 1
	s2 := op.sigma * op.sigma
	a := -(2*op.h(n-1) + op.h(n)) / op.zetam(n)
	v0, v1 := op.vAt(n-1), op.vAt(n)
	switch op.transform {
	case PowerDensity:
		mu := op.kappa * (v1 + op.theta)
		alpha := s2*v1/op.zetam(n) - mu*op.h(n)/op.zetam(n)
		nu := a*v0 + 2*op.kappa*v0/s2
		return alpha / nu * v0
	case LogDensity:
		mu := (-op.kappa*op.theta-0.5*s2)*math.Exp(-v1) + op.kappa
		alpha := s2*math.Exp(-v1)/op.zetam(n) - mu*op.h(n)/op.zetam(n)
		nu := a*math.Exp(-v0) + 2*op.kappa*(1-op.theta*math.Exp(-v0))/s2
		return alpha / nu * math.Exp(-v0)
	default:
		alpha := s2*v1/op.zetam(n) - op.mu(n)*op.h(n)/op.zetam(n)
		nu := a*v0 + (2*op.kappa*(v0-op.theta)+s2)/s2
		return alpha / nu * v0
	}
}

func (op *SquareRootFwdOp) upperBoundaryFactor() float64 {
	n := len(op.v)
	s2 := op.sigma * op.sigma
	a := (2*op.h(n) + op.h(n-1)) / op.zetap(n)
	vn, vn1 := op.vAt(n), op.vAt(n+1)
	switch op.transform {
	case PowerDensity:
		mu := op.kappa * (vn + op.theta)
		gamma := s2*vn/op.zetap(n) + mu*op.h(n-1)/op.zetap(n)
		nu := a*vn1 + 2*op.kappa*vn1/s2
		return gamma / nu * vn1
	case LogDensity:
		mu := (-op.kappa*op.theta-0.5*s2)*math.Exp(-vn) + op.kappa
		gamma := s2*math.Exp(-vn)/op.zetap(n) + mu*op.h(n-1)/op.zetap(n)
		nu := a*math.Exp(-vn1) + 2*op.kappa*(1-op.theta*math.Exp(-vn1))/s2
		return gamma / nu * math.Exp(-vn1)
	default:
		gamma := s2*vn/op.zetap(n) + op.mu(n)*op.h(n-1)/op.zetap(n)
		nu := a*vn1 + (2*op.kappa*(vn1-op.theta)+s2)/s2
		return gamma / nu * vn1
	}
}
