// Package process 提供有限差分引擎所需的随机过程与期限结构.
//
// 所有对象构建后只读，可在多个并发求解之间共享.
package process

import (
	"math"

	"gonum.org/v1/gonum/interp"

	"github.com/wyfcoding/quant/xerrors"
)

// forwardEps 计算瞬时远期利率时使用的时间步长.
const forwardEps = 1e-4

// YieldCurve 无风险利率或股息率期限结构，利率均为连续复利.
type YieldCurve interface {
	Discount(t float64) float64
	ZeroRate(t float64) float64
	// ForwardRate 返回区间 [t1, t2] 上的连续复利远期利率.
	ForwardRate(t1, t2 float64) float64
}

// InstantaneousForward 瞬时远期利率 f(0, t).
func InstantaneousForward(c YieldCurve, t float64) float64 {
	return c.ForwardRate(t, t+forwardEps)
}

// FlatForward 水平利率曲线.
type FlatForward struct {
	rate float64
}

// NewFlatForward 创建水平曲线.
func NewFlatForward(rate float64) *FlatForward {
	return &FlatForward{rate: rate}
}

func (f *FlatForward) Discount(t float64) float64 { return math.Exp(-f.rate * t) }

func (f *FlatForward) ZeroRate(float64) float64 { return f.rate }

func (f *FlatForward) ForwardRate(float64, float64) float64 { return f.rate }

// InterpolatedZeroCurve 零息利率线性插值曲线，两端水平外推.
type InterpolatedZeroCurve struct {
	times []float64
	zeros []float64
	fit   interp.PiecewiseLinear
}

// NewInterpolatedZeroCurve 由期限与零息利率构建曲线.
func NewInterpolatedZeroCurve(times, zeros []float64) (*InterpolatedZeroCurve, error) {
	if len(times) != len(zeros) {
		return nil, xerrors.Derive(xerrors.ErrDimensionMismatch, "%d times vs %d zero rates", len(times), len(zeros))
	}
	if len(times) < 2 {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "zero curve needs at least 2 nodes")
	}
	for i := range times {
		if times[i] < 0 || (i > 0 && times[i] <= times[i-1]) {
			return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "curve times must be non-negative and strictly increasing")
		}
	}
	c := &InterpolatedZeroCurve{
		times: append([]float64(nil), times...),
		zeros: append([]float64(nil), zeros...),
	}
	if err := c.fit.Fit(c.times, c.zeros); err != nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "zero curve fit: %v", err)
	}
	return c, nil
}

func (c *InterpolatedZeroCurve) ZeroRate(t float64) float64 {
	return c.fit.Predict(t)
}

func (c *InterpolatedZeroCurve) Discount(t float64) float64 {
	return math.Exp(-c.ZeroRate(t) * t)
}

func (c *InterpolatedZeroCurve) ForwardRate(t1, t2 float64) float64 {
	if t2-t1 < forwardEps {
		t2 = t1 + forwardEps
	}
	return (c.ZeroRate(t2)*t2 - c.ZeroRate(t1)*t1) / (t2 - t1)
}
