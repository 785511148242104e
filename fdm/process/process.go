package process

import (
	"math"

	"github.com/wyfcoding/quant/xerrors"
)

// Process 引擎接受的随机过程. 引擎按具体类型断言，类型不符返回 ErrInvalidProcess.
type Process interface {
	X0() float64
	Name() string
}

// GaussianProcess 一维高斯过程 (OU/Hull-White 状态变量)，供短期利率网格使用.
type GaussianProcess interface {
	X0() float64
	Expectation(t0, x0, dt float64) float64
	StdDeviation(t0, x0, dt float64) float64
}

// Dividend 离散现金股息.
type Dividend struct {
	Time   float64 `json:"time"`
	Amount float64 `json:"amount"`
}

// BlackScholes 广义 Black-Scholes-Merton 过程.
type BlackScholes struct {
	spot     float64
	rTS      YieldCurve
	qTS      YieldCurve
	vol      BlackVol
	localVol LocalVol
}

// BlackScholesOption 可选参数.
type BlackScholesOption func(*BlackScholes)

// WithLocalVol 使用局部波动率曲面驱动算子.
func WithLocalVol(lv LocalVol) BlackScholesOption {
	return func(p *BlackScholes) { p.localVol = lv }
}

// NewBlackScholes 创建 BSM 过程.
func NewBlackScholes(spot float64, r, q YieldCurve, vol BlackVol, opts ...BlackScholesOption) (*BlackScholes, error) {
	if !(spot > 0) {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "spot must be positive, got %g", spot)
	}
	if r == nil || q == nil || vol == nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "black-scholes process needs rate, dividend and volatility structures")
	}
	p := &BlackScholes{spot: spot, rTS: r, qTS: q, vol: vol}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewFlatBlackScholes 常数参数的便捷构造.
func NewFlatBlackScholes(spot, r, q, vol float64) (*BlackScholes, error) {
	if vol < 0 {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "negative volatility %g", vol)
	}
	return NewBlackScholes(spot, NewFlatForward(r), NewFlatForward(q), NewConstantVol(vol))
}

func (p *BlackScholes) X0() float64               { return p.spot }
func (p *BlackScholes) Name() string              { return "blackscholes" }
func (p *BlackScholes) RiskFreeRate() YieldCurve  { return p.rTS }
func (p *BlackScholes) DividendYield() YieldCurve { return p.qTS }
func (p *BlackScholes) BlackVolatility() BlackVol { return p.vol }
func (p *BlackScholes) LocalVolatility() LocalVol { return p.localVol }

// Heston 随机波动率过程.
//
//	dS = (r-q) S dt + √v S dW1
//	dv = κ(θ-v) dt + σ √v dW2,  d<W1,W2> = ρ dt
type Heston struct {
	spot  float64
	rTS   YieldCurve
	qTS   YieldCurve
	v0    float64
	kappa float64
	theta float64
	sigma float64
	rho   float64
}

// NewHeston 创建 Heston 过程并校验参数.
func NewHeston(spot float64, r, q YieldCurve, v0, kappa, theta, sigma, rho float64) (*Heston, error) {
	switch {
	case !(spot > 0):
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "spot must be positive, got %g", spot)
	case r == nil || q == nil:
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "heston process needs rate and dividend curves")
	case v0 < 0:
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "v0 must be non-negative, got %g", v0)
	case !(kappa > 0), !(theta > 0), !(sigma > 0):
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "kappa, theta and sigma must be positive (%g, %g, %g)", kappa, theta, sigma)
	case math.Abs(rho) > 1:
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "rho must lie in [-1, 1], got %g", rho)
	}
	return &Heston{spot: spot, rTS: r, qTS: q, v0: v0, kappa: kappa, theta: theta, sigma: sigma, rho: rho}, nil
}

func (p *Heston) X0() float64               { return p.spot }
func (p *Heston) Name() string              { return "heston" }
func (p *Heston) RiskFreeRate() YieldCurve  { return p.rTS }
func (p *Heston) DividendYield() YieldCurve { return p.qTS }
func (p *Heston) V0() float64               { return p.v0 }
func (p *Heston) Kappa() float64            { return p.kappa }
func (p *Heston) Theta() float64            { return p.theta }
func (p *Heston) Sigma() float64            { return p.sigma }
func (p *Heston) Rho() float64              { return p.rho }

// StationaryShapeRate 方差平稳分布 Gamma(2κθ/σ², 2κ/σ²) 的形状与速率参数.
func (p *Heston) StationaryShapeRate() (shape, rate float64) {
	s2 := p.sigma * p.sigma
	return 2 * p.kappa * p.theta / s2, 2 * p.kappa / s2
}

// HullWhite 拟合初始曲线的单因子 Hull-White 模型，状态变量 x = r - φ(t)，x(0) = 0.
//
//	dx = -a x dt + σ dW
type HullWhite struct {
	curve YieldCurve
	a     float64
	sigma float64
}

// NewHullWhite 创建 Hull-White 过程.
func NewHullWhite(curve YieldCurve, a, sigma float64) (*HullWhite, error) {
	if curve == nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "hull-white needs a term structure")
	}
	if !(a > 0) || sigma < 0 {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "hull-white needs a > 0 and sigma >= 0 (%g, %g)", a, sigma)
	}
	return &HullWhite{curve: curve, a: a, sigma: sigma}, nil
}

func (p *HullWhite) X0() float64       { return 0 }
func (p *HullWhite) Name() string      { return "hullwhite" }
func (p *HullWhite) A() float64        { return p.a }
func (p *HullWhite) Sigma() float64    { return p.sigma }
func (p *HullWhite) Curve() YieldCurve { return p.curve }

func (p *HullWhite) Expectation(_, x0, dt float64) float64 {
	return x0 * math.Exp(-p.a*dt)
}

func (p *HullWhite) StdDeviation(_, _, dt float64) float64 {
	return p.sigma * math.Sqrt((1-math.Exp(-2*p.a*dt))/(2*p.a))
}

// Phi 确定性平移 φ(t)，使模型精确拟合初始曲线.
func (p *HullWhite) Phi(t float64) float64 {
	e := 1 - math.Exp(-p.a*t)
	return InstantaneousForward(p.curve, t) + p.sigma*p.sigma/(2*p.a*p.a)*e*e
}

// ShortRate r = x + φ(t).
func (p *HullWhite) ShortRate(t, x float64) float64 {
	return x + p.Phi(t)
}

// B 仿射债券公式中的 B(t, T).
func (p *HullWhite) B(t, T float64) float64 {
	return (1 - math.Exp(-p.a*(T-t))) / p.a
}

// DiscountBond t 时刻、短期利率为 r 时到期日 T 的零息债券价格.
func (p *HullWhite) DiscountBond(t, T, r float64) float64 {
	b := p.B(t, T)
	f := InstantaneousForward(p.curve, t)
	lnA := math.Log(p.curve.Discount(T)/p.curve.Discount(t)) + b*f -
		p.sigma*p.sigma/(4*p.a)*(1-math.Exp(-2*p.a*t))*b*b
	return math.Exp(lnA - b*r)
}
