package operators

import (
	"gonum.org/v1/gonum/mat"

	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/xerrors"
)

// NinePoint 两方向 (d0, d1) 上的九点格式算子.
// 系数 aXY 中 X 为 d0 方向偏移 (0:-1, 1:0, 2:+1)，Y 为 d1 方向偏移.
type NinePoint struct {
	d0, d1 int
	size   int

	i00, i10, i20 []int
	i01, i21      []int
	i02, i12, i22 []int

	a00, a10, a20 []float64
	a01, a11, a21 []float64
	a02, a12, a22 []float64
}

// NewNinePoint 创建系数全零的九点算子.
func NewNinePoint(d0, d1 int, m mesher.Mesher) (*NinePoint, error) {
	l := m.Layout()
	if d0 == d1 || d0 < 0 || d1 < 0 || d0 >= l.Dimensions() || d1 >= l.Dimensions() {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "nine point operator needs two distinct directions, got %d and %d", d0, d1)
	}
	n := l.Size()
	idx := func() []int { return make([]int, n) }
	co := func() []float64 { return make([]float64, n) }
	op := &NinePoint{
		d0: d0, d1: d1, size: n,
		i00: idx(), i10: idx(), i20: idx(),
		i01: idx(), i21: idx(),
		i02: idx(), i12: idx(), i22: idx(),
		a00: co(), a10: co(), a20: co(),
		a01: co(), a11: co(), a21: co(),
		a02: co(), a12: co(), a22: co(),
	}
	l.Each(func(i int, c []int) {
		op.i00[i] = l.Neighbourhood2(i, c, d0, -1, d1, -1)
		op.i10[i] = l.Neighbourhood(i, c, d1, -1)
		op.i20[i] = l.Neighbourhood2(i, c, d0, 1, d1, -1)
		op.i01[i] = l.Neighbourhood(i, c, d0, -1)
		op.i21[i] = l.Neighbourhood(i, c, d0, 1)
		op.i02[i] = l.Neighbourhood2(i, c, d0, -1, d1, 1)
		op.i12[i] = l.Neighbourhood(i, c, d1, 1)
		op.i22[i] = l.Neighbourhood2(i, c, d0, 1, d1, 1)
	})
	return op, nil
}

// MixedDerivative 交叉导数 ∂²/∂x_d0∂x_d1，为两个方向一阶差分模板的张量积.
func MixedDerivative(d0, d1 int, m mesher.Mesher) (*NinePoint, error) {
	op, err := NewNinePoint(d0, d1, m)
	if err != nil {
		return nil, err
	}
	f0 := FirstDerivative(d0, m)
	f1 := FirstDerivative(d1, m)
	for i := 0; i < op.size; i++ {
		s0 := [3]float64{f0.lower[i], f0.diag[i], f0.upper[i]}
		s1 := [3]float64{f1.lower[i], f1.diag[i], f1.upper[i]}
		op.a00[i] = s0[0] * s1[0]
		op.a10[i] = s0[1] * s1[0]
		op.a20[i] = s0[2] * s1[0]
		op.a01[i] = s0[0] * s1[1]
		op.a11[i] = s0[1] * s1[1]
		op.a21[i] = s0[2] * s1[1]
		op.a02[i] = s0[0] * s1[2]
		op.a12[i] = s0[1] * s1[2]
		op.a22[i] = s0[2] * s1[2]
	}
	return op, nil
}

func (op *NinePoint) Size() int { return op.size }

// Apply 返回算子作用于 r 的结果.
func (op *NinePoint) Apply(r []float64) ([]float64, error) {
	if len(r) != op.size {
		return nil, xerrors.Derive(xerrors.ErrDimensionMismatch, "rhs has length %d, operator size is %d", len(r), op.size)
	}
	out := make([]float64, op.size)
	for i := range out {
		out[i] = op.a00[i]*r[op.i00[i]] + op.a10[i]*r[op.i10[i]] + op.a20[i]*r[op.i20[i]] +
			op.a01[i]*r[op.i01[i]] + op.a11[i]*r[i] + op.a21[i]*r[op.i21[i]] +
			op.a02[i]*r[op.i02[i]] + op.a12[i]*r[op.i12[i]] + op.a22[i]*r[op.i22[i]]
	}
	return out, nil
}

// Mult 行缩放，u 长度为 1 时视为标量.
func (op *NinePoint) Mult(u []float64) (*NinePoint, error) {
	if len(u) != op.size && len(u) != 1 {
		return nil, xerrors.Derive(xerrors.ErrDimensionMismatch, "multiplier has length %d, operator size is %d", len(u), op.size)
	}
	ret := *op
	scale := func(a []float64) []float64 {
		out := make([]float64, len(a))
		for i := range a {
			out[i] = a[i] * at(u, i)
		}
		return out
	}
	ret.a00, ret.a10, ret.a20 = scale(op.a00), scale(op.a10), scale(op.a20)
	ret.a01, ret.a11, ret.a21 = scale(op.a01), scale(op.a11), scale(op.a21)
	ret.a02, ret.a12, ret.a22 = scale(op.a02), scale(op.a12), scale(op.a22)
	return &ret, nil
}

// ToMatrix 稠密矩阵表示，仅用于测试与诊断.
func (op *NinePoint) ToMatrix() *mat.Dense {
	m := mat.NewDense(op.size, op.size, nil)
	add := func(i, j int, v float64) { m.Set(i, j, m.At(i, j)+v) }
	for i := 0; i < op.size; i++ {
		add(i, op.i00[i], op.a00[i])
		add(i, op.i10[i], op.a10[i])
		add(i, op.i20[i], op.a20[i])
		add(i, op.i01[i], op.a01[i])
		add(i, i, op.a11[i])
		add(i, op.i21[i], op.a21[i])
		add(i, op.i02[i], op.a02[i])
		add(i, op.i12[i], op.a12[i])
		add(i, op.i22[i], op.a22[i])
	}
	return m
}
