package mesher

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/xerrors"
)

type ouConfig struct {
	tAvgSteps int
	eps       float64
	mandatory *float64
}

// OUOption 高斯过程网格可选参数.
type OUOption func(*ouConfig)

// WithAveragingSteps 参与平均的时间层数.
func WithAveragingSteps(n int) OUOption {
	return func(c *ouConfig) { c.tAvgSteps = n }
}

// WithOUEpsilon 两端覆盖的尾部概率.
func WithOUEpsilon(eps float64) OUOption {
	return func(c *ouConfig) { c.eps = eps }
}

// WithMandatoryPoint 网格范围必须包含的点.
func WithMandatoryPoint(x float64) OUOption {
	return func(c *ouConfig) { c.mandatory = &x }
}

// NewOrnsteinUhlenbeck1d 在多个时间层上取状态变量正态分位数并平均得到的网格.
func NewOrnsteinUhlenbeck1d(size int, p process.GaussianProcess, maturity float64, opts ...OUOption) (*Grid1d, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "nil gaussian process")
	}
	if !(maturity > 0) {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "maturity must be positive, got %g", maturity)
	}
	cfg := ouConfig{tAvgSteps: 10, eps: 1e-4}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tAvgSteps < 1 || !(cfg.eps > 0 && cfg.eps < 0.5) {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "invalid averaging steps %d or epsilon %g", cfg.tAvgSteps, cfg.eps)
	}

	x0 := p.X0()
	mp := x0
	if cfg.mandatory != nil {
		mp = *cfg.mandatory
	}
	evolve := func(t, q float64) float64 {
		return p.Expectation(0, x0, t) + p.StdDeviation(0, x0, t)*distuv.UnitNormal.Quantile(q)
	}

	locations := make([]float64, size)
	dp := (1 - 2*cfg.eps) / float64(size-1)
	for l := 1; l <= cfg.tAvgSteps; l++ {
		t := maturity * float64(l) / float64(cfg.tAvgSteps)
		locations[0] += math.Min(math.Min(mp, x0), evolve(t, cfg.eps))
		q := cfg.eps
		for i := 1; i < size-1; i++ {
			q += dp
			locations[i] += evolve(t, q)
		}
		locations[size-1] += math.Max(math.Max(mp, x0), evolve(t, 1-cfg.eps))
	}
	for i := range locations {
		locations[i] /= float64(cfg.tAvgSteps)
	}
	return newGrid1d(locations)
}
