package process

import (
	"math"

	"gonum.org/v1/gonum/interp"

	"github.com/wyfcoding/quant/xerrors"
)

// BlackVol Black 隐含波动率期限结构.
type BlackVol interface {
	BlackVol(t, strike float64) float64
	BlackVariance(t, strike float64) float64
	// BlackForwardVariance 区间 [t1, t2] 上的远期总方差.
	BlackForwardVariance(t1, t2, strike float64) float64
}

// LocalVol 局部波动率曲面.
type LocalVol interface {
	LocalVol(t, s float64) float64
}

// ConstantVol 常数波动率.
type ConstantVol struct {
	vol float64
}

// NewConstantVol 创建常数波动率.
func NewConstantVol(vol float64) *ConstantVol {
	return &ConstantVol{vol: vol}
}

func (c *ConstantVol) BlackVol(float64, float64) float64 { return c.vol }

func (c *ConstantVol) BlackVariance(t, _ float64) float64 { return c.vol * c.vol * t }

func (c *ConstantVol) BlackForwardVariance(t1, t2, _ float64) float64 {
	return c.vol * c.vol * (t2 - t1)
}

// LocalVol 常数波动率同时也是一个常数局部波动率.
func (c *ConstantVol) LocalVol(float64, float64) float64 { return c.vol }

// VarianceCurve 按总方差线性插值的 ATM 波动率期限结构，与执行价无关.
type VarianceCurve struct {
	fit   interp.PiecewiseLinear
	tMax  float64
	wMax  float64
	slope float64
}

// NewVarianceCurve 由期限与波动率构建. 总方差必须单调不减.
func NewVarianceCurve(times, vols []float64) (*VarianceCurve, error) {
	if len(times) != len(vols) {
		return nil, xerrors.Derive(xerrors.ErrDimensionMismatch, "%d times vs %d vols", len(times), len(vols))
	}
	if len(times) == 0 {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "empty variance curve")
	}
	xs := []float64{0}
	ws := []float64{0}
	for i, t := range times {
		if t <= xs[len(xs)-1] {
			return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "variance curve times must be positive and increasing")
		}
		if vols[i] < 0 {
			return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "negative volatility %g", vols[i])
		}
		w := vols[i] * vols[i] * t
		if w < ws[len(ws)-1] {
			return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "total variance decreases at t=%g", t)
		}
		xs = append(xs, t)
		ws = append(ws, w)
	}
	c := &VarianceCurve{tMax: xs[len(xs)-1], wMax: ws[len(ws)-1]}
	c.slope = c.wMax / c.tMax
	if err := c.fit.Fit(xs, ws); err != nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "variance curve fit: %v", err)
	}
	return c, nil
}

func (c *VarianceCurve) BlackVariance(t, _ float64) float64 {
	if t <= 0 {
		return 0
	}
	if t > c.tMax {
		return c.wMax + (t-c.tMax)*c.slope
	}
	return c.fit.Predict(t)
}

func (c *VarianceCurve) BlackVol(t, strike float64) float64 {
	if t <= 0 {
		t = 1e-5
	}
	return math.Sqrt(c.BlackVariance(t, strike) / t)
}

func (c *VarianceCurve) BlackForwardVariance(t1, t2, strike float64) float64 {
	return c.BlackVariance(t2, strike) - c.BlackVariance(t1, strike)
}
