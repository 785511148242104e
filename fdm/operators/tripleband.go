// Package operators 提供张量网格上的有限差分线性算子及各模型的复合算子.
package operators

import (
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/wyfcoding/quant/fdm/layout"
	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/xerrors"
)

// parallelThreshold 网格点数达到该值时按线并行求解.
const parallelThreshold = 1 << 15

// TripleBand 沿单一方向的三对角算子:
//
//	(L u)[i] = lower[i]·u[i-] + diag[i]·u[i] + upper[i]·u[i+]
//
// i-/i+ 为沿 direction 的邻点. 边界行的越界邻点按反射取到线内，
// 因此 Apply 与 SolveSplitting 对边界行的处理一致.
type TripleBand struct {
	direction int
	mesher    mesher.Mesher
	i0, i2    []int
	lower     []float64
	diag      []float64
	upper     []float64
}

// NewTripleBand 创建系数全零的三对角算子.
func NewTripleBand(direction int, m mesher.Mesher) *TripleBand {
	l := m.Layout()
	n := l.Size()
	op := &TripleBand{
		direction: direction,
		mesher:    m,
		i0:        make([]int, n),
		i2:        make([]int, n),
		lower:     make([]float64, n),
		diag:      make([]float64, n),
		upper:     make([]float64, n),
	}
	l.Each(func(index int, coords []int) {
		op.i0[index] = l.Neighbourhood(index, coords, direction, -1)
		op.i2[index] = l.Neighbourhood(index, coords, direction, 1)
	})
	return op
}

// FirstDerivative 非均匀网格上的一阶导数: 内点中心差分，边界点单侧差分.
func FirstDerivative(direction int, m mesher.Mesher) *TripleBand {
	op := NewTripleBand(direction, m)
	last := m.Layout().Dim()[direction] - 1
	m.Layout().Each(func(i int, coords []int) {
		hm := m.Dminus(i, coords, direction)
		hp := m.Dplus(i, coords, direction)
		switch c := coords[direction]; {
		case last == 0:
		case c == 0:
			op.lower[i], op.diag[i], op.upper[i] = 0, -1/hp, 1/hp
		case c == last:
			op.lower[i], op.diag[i], op.upper[i] = -1/hm, 1/hm, 0
		default:
			zetam1 := hm * (hm + hp)
			zeta0 := hm * hp
			zetap1 := hp * (hm + hp)
			op.lower[i] = -hp / zetam1
			op.diag[i] = (hp - hm) / zeta0
			op.upper[i] = hm / zetap1
		}
	})
	return op
}

// SecondDerivative 非均匀网格上的二阶导数，边界行为零.
func SecondDerivative(direction int, m mesher.Mesher) *TripleBand {
	op := NewTripleBand(direction, m)
	last := m.Layout().Dim()[direction] - 1
	m.Layout().Each(func(i int, coords []int) {
		c := coords[direction]
		if c == 0 || c == last {
			return
		}
		hm := m.Dminus(i, coords, direction)
		hp := m.Dplus(i, coords, direction)
		zetam1 := hm * (hm + hp)
		zeta0 := hm * hp
		zetap1 := hp * (hm + hp)
		op.lower[i] = 2 / zetam1
		op.diag[i] = -2 / zeta0
		op.upper[i] = 2 / zetap1
	})
	return op
}

func (op *TripleBand) Direction() int { return op.direction }
func (op *TripleBand) Size() int      { return len(op.diag) }

// Row 返回第 i 行系数.
func (op *TripleBand) Row(i int) (lower, diag, upper float64) {
	return op.lower[i], op.diag[i], op.upper[i]
}

// SetRow 覆盖第 i 行系数，用于边界修正.
func (op *TripleBand) SetRow(i int, lower, diag, upper float64) {
	op.lower[i], op.diag[i], op.upper[i] = lower, diag, upper
}

// Clone 深拷贝系数，邻点下标共享 (只读).
func (op *TripleBand) Clone() *TripleBand {
	return &TripleBand{
		direction: op.direction,
		mesher:    op.mesher,
		i0:        op.i0,
		i2:        op.i2,
		lower:     append([]float64(nil), op.lower...),
		diag:      append([]float64(nil), op.diag...),
		upper:     append([]float64(nil), op.upper...),
	}
}

func (op *TripleBand) checkLen(what string, n int, broadcast bool) error {
	if n == len(op.diag) || (broadcast && n == 1) {
		return nil
	}
	return xerrors.Derive(xerrors.ErrDimensionMismatch, "%s has length %d, operator size is %d", what, n, len(op.diag))
}

func (op *TripleBand) checkCompatible(o *TripleBand) error {
	if o.direction != op.direction || len(o.diag) != len(op.diag) {
		return xerrors.Derive(xerrors.ErrDimensionMismatch,
			"incompatible operators: direction %d/%d, size %d/%d", op.direction, o.direction, len(op.diag), len(o.diag))
	}
	return nil
}

// at 长度为 1 的数组按标量广播.
func at(u []float64, i int) float64 {
	if len(u) == 1 {
		return u[0]
	}
	return u[i]
}

// Apply 返回 L·r.
func (op *TripleBand) Apply(r []float64) ([]float64, error) {
	if err := op.checkLen("rhs", len(r), false); err != nil {
		return nil, err
	}
	out := make([]float64, len(r))
	for i := range r {
		out[i] = op.lower[i]*r[op.i0[i]] + op.diag[i]*r[i] + op.upper[i]*r[op.i2[i]]
	}
	return out, nil
}

// Mult 行缩放: diag(u)·L. u 长度为 1 时视为标量.
func (op *TripleBand) Mult(u []float64) (*TripleBand, error) {
	if err := op.checkLen("multiplier", len(u), true); err != nil {
		return nil, err
	}
	ret := op.Clone()
	for i := range ret.diag {
		s := at(u, i)
		ret.lower[i] *= s
		ret.diag[i] *= s
		ret.upper[i] *= s
	}
	return ret, nil
}

// MultR 列缩放: L·diag(u).
func (op *TripleBand) MultR(u []float64) (*TripleBand, error) {
	if err := op.checkLen("multiplier", len(u), true); err != nil {
		return nil, err
	}
	ret := op.Clone()
	for i := range ret.diag {
		ret.lower[i] *= at(u, op.i0[i])
		ret.diag[i] *= at(u, i)
		ret.upper[i] *= at(u, op.i2[i])
	}
	return ret, nil
}

// Add 返回 L + M，两者须为同一方向、同一网格.
func (op *TripleBand) Add(m *TripleBand) (*TripleBand, error) {
	if err := op.checkCompatible(m); err != nil {
		return nil, err
	}
	ret := op.Clone()
	for i := range ret.diag {
		ret.lower[i] += m.lower[i]
		ret.diag[i] += m.diag[i]
		ret.upper[i] += m.upper[i]
	}
	return ret, nil
}

// AddArray 返回 L + diag(u).
func (op *TripleBand) AddArray(u []float64) (*TripleBand, error) {
	if err := op.checkLen("diagonal", len(u), true); err != nil {
		return nil, err
	}
	ret := op.Clone()
	for i := range ret.diag {
		ret.diag[i] += at(u, i)
	}
	return ret, nil
}

// Axpyb 原地赋值 this = diag(a)·x + y + diag(b).
// a 为空时忽略 x，b 为空时不加对角项，长度为 1 时按标量广播.
func (op *TripleBand) Axpyb(a []float64, x, y *TripleBand, b []float64) error {
	if err := op.checkCompatible(y); err != nil {
		return err
	}
	if len(a) > 0 {
		if err := op.checkCompatible(x); err != nil {
			return err
		}
		if err := op.checkLen("a", len(a), true); err != nil {
			return err
		}
	}
	if len(b) > 0 {
		if err := op.checkLen("b", len(b), true); err != nil {
			return err
		}
	}
	for i := range op.diag {
		l, d, u := y.lower[i], y.diag[i], y.upper[i]
		if len(a) > 0 {
			s := at(a, i)
			l += s * x.lower[i]
			d += s * x.diag[i]
			u += s * x.upper[i]
		}
		if len(b) > 0 {
			d += at(b, i)
		}
		op.lower[i], op.diag[i], op.upper[i] = l, d, u
	}
	return nil
}

// SolveSplitting 求解 (a·L + b·I) x = r，每条网格线独立地用 Thomas 算法求解.
func (op *TripleBand) SolveSplitting(r []float64, a, b float64) ([]float64, error) {
	if err := op.checkLen("rhs", len(r), false); err != nil {
		return nil, err
	}
	l := op.mesher.Layout()
	lines := l.Lines(op.direction)
	n := l.Dim()[op.direction]
	stride := l.Spacing()[op.direction]
	out := make([]float64, len(r))

	workers := runtime.GOMAXPROCS(0)
	if len(r) < parallelThreshold || workers < 2 || len(lines) < 2 {
		tmp := make([]float64, n)
		for _, start := range lines {
			if err := op.solveLine(start, stride, n, r, a, b, out, tmp); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	// 各线写入互不相交的下标，并行不改变结果
	var g errgroup.Group
	chunk := (len(lines) + workers - 1) / workers
	for lo := 0; lo < len(lines); lo += chunk {
		part := lines[lo:min(lo+chunk, len(lines))]
		g.Go(func() error {
			tmp := make([]float64, n)
			for _, start := range part {
				if err := op.solveLine(start, stride, n, r, a, b, out, tmp); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (op *TripleBand) solveLine(start, stride, n int, r []float64, a, b float64, out, tmp []float64) error {
	if n == 1 {
		d := a*(op.lower[start]+op.diag[start]+op.upper[start]) + b
		if d == 0 {
			return xerrors.Derive(xerrors.ErrSingularSystem, "zero pivot at index %d", start)
		}
		out[start] = r[start] / d
		return nil
	}

	// 边界行的反射邻点即线内相邻点，系数并入相应的副对角
	first, last := start, start+(n-1)*stride
	upper0 := op.upper[first] + op.lower[first]
	lowerN := op.lower[last] + op.upper[last]

	lowerAt := func(j, idx int) float64 {
		if j == n-1 {
			return lowerN
		}
		return op.lower[idx]
	}
	upperAt := func(j, idx int) float64 {
		if j == 0 {
			return upper0
		}
		return op.upper[idx]
	}

	prev := first
	bet := a*op.diag[first] + b
	if bet == 0 {
		return xerrors.Derive(xerrors.ErrSingularSystem, "zero pivot at index %d", first)
	}
	bet = 1 / bet
	out[first] = r[first] * bet

	for j := 1; j < n; j++ {
		idx := start + j*stride
		tmp[j] = a * upperAt(j-1, prev) * bet
		lo := lowerAt(j, idx)
		d := b + a*(op.diag[idx]-tmp[j]*lo)
		if d == 0 {
			return xerrors.Derive(xerrors.ErrSingularSystem, "zero pivot at index %d", idx)
		}
		bet = 1 / d
		out[idx] = (r[idx] - a*lo*out[prev]) * bet
		prev = idx
	}
	for j := n - 2; j >= 0; j-- {
		idx := start + j*stride
		out[idx] -= tmp[j+1] * out[idx+stride]
	}
	return nil
}

// ToMatrix 稠密矩阵表示，仅用于测试与诊断.
func (op *TripleBand) ToMatrix() *mat.Dense {
	n := len(op.diag)
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, op.i0[i], m.At(i, op.i0[i])+op.lower[i])
		m.Set(i, i, m.At(i, i)+op.diag[i])
		m.Set(i, op.i2[i], m.At(i, op.i2[i])+op.upper[i])
	}
	return m
}

// Layout 算子所在网格的布局.
func (op *TripleBand) Layout() *layout.Layout { return op.mesher.Layout() }
