package mesher

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/xerrors"
)

type bsConfig struct {
	xMin, xMax *float64
	eps        float64
	scale      float64
	cPoint     *ConcentratingPoint
	dividends  []process.Dividend
}

// BlackScholesOption 对数价格网格的可选参数.
type BlackScholesOption func(*bsConfig)

// WithLogBounds 直接指定对数价格下界/上界 (nil 表示按分布自动确定).
func WithLogBounds(xMin, xMax *float64) BlackScholesOption {
	return func(c *bsConfig) {
		c.xMin = xMin
		c.xMax = xMax
	}
}

// WithEpsilon 网格覆盖的尾部概率.
func WithEpsilon(eps float64) BlackScholesOption {
	return func(c *bsConfig) { c.eps = eps }
}

// WithScaleFactor 边界放大系数.
func WithScaleFactor(s float64) BlackScholesOption {
	return func(c *bsConfig) { c.scale = s }
}

// WithSpotConcentration 在价格空间的 point 附近加密 (通常为执行价).
func WithSpotConcentration(point, density float64) BlackScholesOption {
	return func(c *bsConfig) {
		c.cPoint = &ConcentratingPoint{Point: point, Density: density}
	}
}

// WithDividends 考虑离散股息对远期包络的影响.
func WithDividends(divs []process.Dividend) BlackScholesOption {
	return func(c *bsConfig) { c.dividends = divs }
}

// NewBlackScholes1d 对数价格网格: 沿远期价格包络取 ±σ√T·Φ⁻¹(1-ε)·scale.
func NewBlackScholes1d(size int, p *process.BlackScholes, maturity, strike float64, opts ...BlackScholesOption) (*Grid1d, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "nil black-scholes process")
	}
	if !(maturity > 0) {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "maturity must be positive, got %g", maturity)
	}
	cfg := bsConfig{eps: 1e-4, scale: 1.5}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !(cfg.eps > 0 && cfg.eps < 1) {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "epsilon must lie in (0, 1), got %g", cfg.eps)
	}

	type event struct{ t, amount float64 }
	var steps []event
	for _, d := range cfg.dividends {
		if d.Time >= 0 && d.Time <= maturity {
			steps = append(steps, event{d.Time, d.Amount})
		}
	}
	n := int(24 * maturity)
	if n < 2 {
		n = 2
	}
	for i := 0; i < n; i++ {
		steps = append(steps, event{float64(i+1) * maturity / float64(n), 0})
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].t < steps[j].t })

	rTS, qTS := p.RiskFreeRate(), p.DividendYield()
	fwd := p.X0()
	mi, ma := fwd, fwd
	last := 0.0
	for _, s := range steps {
		fwd = fwd / rTS.Discount(s.t) * rTS.Discount(last) * qTS.Discount(s.t) / qTS.Discount(last)
		mi, ma = math.Min(mi, fwd), math.Max(ma, fwd)
		fwd -= s.amount
		if !(fwd > 0) {
			return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "dividends exceed the forward at t=%g", s.t)
		}
		mi, ma = math.Min(mi, fwd), math.Max(ma, fwd)
		last = s.t
	}

	normInvEps := distuv.UnitNormal.Quantile(1 - cfg.eps)
	sigmaSqrtT := p.BlackVolatility().BlackVol(maturity, strike) * math.Sqrt(maturity)

	xMin := math.Log(mi) - sigmaSqrtT*normInvEps*cfg.scale
	xMax := math.Log(ma) + sigmaSqrtT*normInvEps*cfg.scale
	if cfg.xMin != nil {
		xMin = *cfg.xMin
	}
	if cfg.xMax != nil {
		xMax = *cfg.xMax
	}
	if err := checkInterval(xMin, xMax); err != nil {
		return nil, err
	}

	if cfg.cPoint != nil && cfg.cPoint.Point > 0 {
		lc := math.Log(cfg.cPoint.Point)
		if lc >= xMin && lc <= xMax {
			return NewConcentrating1d(xMin, xMax, size, &ConcentratingPoint{Point: lc, Density: cfg.cPoint.Density})
		}
	}
	return NewUniform1d(xMin, xMax, size)
}
