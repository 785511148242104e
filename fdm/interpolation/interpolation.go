// Package interpolation 在张量积网格上对解数组插值.
package interpolation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/wyfcoding/quant/xerrors"
)

// Spline 逐维 natural cubic 样条的张量积. values 按第 0 维变化最快排列.
type Spline struct {
	axes   [][]float64
	values []float64
}

func NewSpline(axes [][]float64, values []float64) (*Spline, error) {
	if len(axes) == 0 {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "spline needs at least one axis")
	}
	size := 1
	for d, ax := range axes {
		if len(ax) < 2 {
			return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "axis %d has %d points, need at least 2", d, len(ax))
		}
		for i := 1; i < len(ax); i++ {
			if !(ax[i] > ax[i-1]) {
				return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "axis %d is not strictly increasing", d)
			}
		}
		size *= len(ax)
	}
	if len(values) != size {
		return nil, xerrors.Derive(xerrors.ErrDimensionMismatch, "spline values have length %d, grid size is %d", len(values), size)
	}
	return &Spline{axes: axes, values: values}, nil
}

// Contains 判断 x 是否位于网格范围内.
func (s *Spline) Contains(x []float64) bool {
	if len(x) != len(s.axes) {
		return false
	}
	for d, ax := range s.axes {
		if !(x[d] >= ax[0] && x[d] <= ax[len(ax)-1]) {
			return false
		}
	}
	return true
}

// Eval 返回 ∂^order f(x). order[d] ∈ {0, 1, 2}，nil 表示函数值.
func (s *Spline) Eval(x []float64, order []int) (float64, error) {
	if len(x) != len(s.axes) {
		return 0, xerrors.Derive(xerrors.ErrDimensionMismatch, "point has %d coordinates, spline has %d axes", len(x), len(s.axes))
	}
	if !s.Contains(x) {
		return 0, xerrors.Derive(xerrors.ErrInvalidArgument, "point %v outside the grid", x)
	}
	if order == nil {
		order = make([]int, len(x))
	}
	if len(order) != len(x) {
		return 0, xerrors.Derive(xerrors.ErrDimensionMismatch, "derivative order has %d entries, spline has %d axes", len(order), len(s.axes))
	}

	// 逐维约化: 每次沿当前第 0 维拟合并求值，剩余维度保持原顺序.
	cur := s.values
	for d, ax := range s.axes {
		n := len(ax)
		lines := len(cur) / n
		next := make([]float64, lines)
		line := make([]float64, n)
		var spline interp.NaturalCubic
		for l := 0; l < lines; l++ {
			copy(line, cur[l*n:(l+1)*n])
			if err := spline.Fit(ax, line); err != nil {
				return 0, xerrors.Derive(xerrors.ErrInvalidArgument, "spline fit along axis %d: %v", d, err)
			}
			v, err := predict(&spline, ax, x[d], order[d])
			if err != nil {
				return 0, err
			}
			next[l] = v
		}
		cur = next
	}
	return cur[0], nil
}

func predict(spline *interp.NaturalCubic, ax []float64, x float64, order int) (float64, error) {
	switch order {
	case 0:
		return spline.Predict(x), nil
	case 1:
		return spline.PredictDerivative(x), nil
	case 2:
		// natural cubic 样条二阶连续，导数的中心差分在段内精确.
		h := 1e-4 * minSpacing(ax)
		lo := math.Max(x-h, ax[0])
		hi := math.Min(x+h, ax[len(ax)-1])
		return (spline.PredictDerivative(hi) - spline.PredictDerivative(lo)) / (hi - lo), nil
	}
	return 0, xerrors.Derive(xerrors.ErrInvalidArgument, "unsupported derivative order %d", order)
}

func minSpacing(ax []float64) float64 {
	m := math.Inf(1)
	for i := 1; i < len(ax); i++ {
		m = math.Min(m, ax[i]-ax[i-1])
	}
	return m
}

// Bilinear 二维网格上的双线性插值，values 按第 0 维变化最快排列.
type Bilinear struct {
	x, y   []float64
	values []float64
}

func NewBilinear(x, y, values []float64) (*Bilinear, error) {
	if len(x) < 2 || len(y) < 2 {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "bilinear interpolation needs at least 2x2 points")
	}
	if len(values) != len(x)*len(y) {
		return nil, xerrors.Derive(xerrors.ErrDimensionMismatch, "bilinear values have length %d, grid is %dx%d", len(values), len(x), len(y))
	}
	return &Bilinear{x: x, y: y, values: values}, nil
}

func (b *Bilinear) Value(x, y float64) (float64, error) {
	i, err := bracket(b.x, x)
	if err != nil {
		return 0, err
	}
	j, err := bracket(b.y, y)
	if err != nil {
		return 0, err
	}
	n := len(b.x)
	u := (x - b.x[i]) / (b.x[i+1] - b.x[i])
	v := (y - b.y[j]) / (b.y[j+1] - b.y[j])
	f00 := b.values[i+j*n]
	f10 := b.values[i+1+j*n]
	f01 := b.values[i+(j+1)*n]
	f11 := b.values[i+1+(j+1)*n]
	return (1-u)*(1-v)*f00 + u*(1-v)*f10 + (1-u)*v*f01 + u*v*f11, nil
}

// bracket 返回满足 xs[i] <= x <= xs[i+1] 的 i.
func bracket(xs []float64, x float64) (int, error) {
	if x < xs[0] || x > xs[len(xs)-1] || math.IsNaN(x) {
		return 0, xerrors.Derive(xerrors.ErrInvalidArgument, "%g outside [%g, %g]", x, xs[0], xs[len(xs)-1])
	}
	i := sort.SearchFloat64s(xs, x) - 1
	if i < 0 {
		i = 0
	}
	if i > len(xs)-2 {
		i = len(xs) - 2
	}
	return i, nil
}
