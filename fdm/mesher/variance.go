package mesher

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/xerrors"
)

type varianceConfig struct {
	eps     float64
	density float64
	log     bool
}

// VarianceOption 方差网格可选参数.
type VarianceOption func(*varianceConfig)

// WithVarianceEpsilon 上界覆盖的尾部概率.
func WithVarianceEpsilon(eps float64) VarianceOption {
	return func(c *varianceConfig) { c.eps = eps }
}

// WithVarianceDensity v0 附近的加密程度，<= 0 表示等距.
func WithVarianceDensity(d float64) VarianceOption {
	return func(c *varianceConfig) { c.density = d }
}

// WithLogVariance 返回 ln v 坐标 (配合 operators.LogVariance 使用).
func WithLogVariance() VarianceOption {
	return func(c *varianceConfig) { c.log = true }
}

// NewHestonVariance1d Heston 方差维度网格.
//
// 上界取平稳 Gamma 分布的 1-ε 分位数与 v0/θ 加四倍标准差中的最大者；
// 普通坐标下界为 0，对数坐标下界为 min(v0, θ) 的千分之一.
func NewHestonVariance1d(size int, p *process.Heston, maturity float64, opts ...VarianceOption) (*Grid1d, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "nil heston process")
	}
	if !(maturity > 0) {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "maturity must be positive, got %g", maturity)
	}
	cfg := varianceConfig{eps: 1e-4, density: 0.2}
	for _, opt := range opts {
		opt(&cfg)
	}

	shape, rate := p.StationaryShapeRate()
	qMax := distuv.Gamma{Alpha: shape, Beta: rate}.Quantile(1 - cfg.eps)
	statVol := p.Sigma() * math.Sqrt(p.Theta()/(2*p.Kappa()))
	pathVol := p.Sigma() * math.Sqrt(math.Max(p.V0(), p.Theta())*maturity)
	upper := math.Max(qMax, math.Max(p.V0()+4*pathVol, p.Theta()+4*statVol))
	if math.IsNaN(upper) || math.IsInf(upper, 0) {
		upper = math.Max(p.V0(), p.Theta()) + 4*math.Max(statVol, pathVol)
	}

	start, end, point := 0.0, upper, p.V0()
	if cfg.log {
		base := p.Theta()
		if p.V0() > 0 {
			base = math.Min(p.V0(), p.Theta())
		}
		start, end = math.Log(1e-3*base), math.Log(upper)
		point = math.Log(math.Max(p.V0(), 1e-3*base))
	}
	if cfg.density > 0 && point >= start && point <= end {
		return NewConcentrating1d(start, end, size, &ConcentratingPoint{Point: point, Density: cfg.density})
	}
	return NewUniform1d(start, end, size)
}
