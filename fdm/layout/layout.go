// Package layout 描述张量网格上多重下标与线性数组偏移之间的映射.
//
// 第 0 维变化最快: index = Σ coords[i]*spacing[i]，spacing[0] = 1.
package layout

import (
	"github.com/wyfcoding/quant/xerrors"
)

// Layout 网格布局，构建后不可变.
type Layout struct {
	dim     []int
	spacing []int
	size    int
}

// New 根据每一维的点数创建布局.
func New(dim []int) (*Layout, error) {
	if len(dim) == 0 {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "layout needs at least one dimension")
	}
	l := &Layout{
		dim:     append([]int(nil), dim...),
		spacing: make([]int, len(dim)),
		size:    1,
	}
	for i, d := range dim {
		if d < 1 {
			return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "dimension %d has %d points", i, d)
		}
		l.spacing[i] = l.size
		l.size *= d
	}
	return l, nil
}

// Dim 返回每一维的点数 (只读).
func (l *Layout) Dim() []int { return l.dim }

// Spacing 返回每一维的步长 (只读).
func (l *Layout) Spacing() []int { return l.spacing }

// Size 网格总点数.
func (l *Layout) Size() int { return l.size }

// Dimensions 维数.
func (l *Layout) Dimensions() int { return len(l.dim) }

// Index 多重下标转线性偏移.
func (l *Layout) Index(coords []int) int {
	idx := 0
	for i, c := range coords {
		idx += c * l.spacing[i]
	}
	return idx
}

// Coordinates 线性偏移转多重下标.
func (l *Layout) Coordinates(index int) []int {
	coords := make([]int, len(l.dim))
	l.coordinatesInto(index, coords)
	return coords
}

func (l *Layout) coordinatesInto(index int, coords []int) {
	for i := len(l.dim) - 1; i >= 0; i-- {
		coords[i] = index / l.spacing[i]
		index -= coords[i] * l.spacing[i]
	}
}

// Neighbourhood 返回沿 direction 偏移 offset 的邻点下标. 越界时按边界反射，
// 对应系数在边界行上为零，因此反射点只是一个合法的占位下标.
func (l *Layout) Neighbourhood(index int, coords []int, direction, offset int) int {
	c := coords[direction]
	n := reflect(c+offset, l.dim[direction])
	return index + (n-c)*l.spacing[direction]
}

// Neighbourhood2 同时沿两个方向偏移.
func (l *Layout) Neighbourhood2(index int, coords []int, d1, off1, d2, off2 int) int {
	c1, c2 := coords[d1], coords[d2]
	n1 := reflect(c1+off1, l.dim[d1])
	n2 := reflect(c2+off2, l.dim[d2])
	return index + (n1-c1)*l.spacing[d1] + (n2-c2)*l.spacing[d2]
}

func reflect(c, n int) int {
	if c < 0 {
		c = -c
	} else if c >= n {
		c = 2*(n-1) - c
	}
	// 单点维度
	if c < 0 || c >= n {
		return 0
	}
	return c
}

// Each 按线性下标顺序遍历所有网格点. coords 在回调间复用，不要保留引用.
func (l *Layout) Each(fn func(index int, coords []int)) {
	coords := make([]int, len(l.dim))
	for idx := 0; idx < l.size; idx++ {
		fn(idx, coords)
		l.increment(coords)
	}
}

func (l *Layout) increment(coords []int) {
	for i := range coords {
		coords[i]++
		if coords[i] < l.dim[i] {
			return
		}
		coords[i] = 0
	}
}

// Iterator 显式迭代器，适合需要提前结束的遍历.
type Iterator struct {
	layout *Layout
	index  int
	coords []int
}

// Iter 返回指向第一个点的迭代器.
func (l *Layout) Iter() *Iterator {
	return &Iterator{layout: l, coords: make([]int, len(l.dim))}
}

// Valid 是否仍在网格内.
func (it *Iterator) Valid() bool { return it.index < it.layout.size }

// Next 前进一个点.
func (it *Iterator) Next() {
	it.index++
	it.layout.increment(it.coords)
}

// Index 当前线性下标.
func (it *Iterator) Index() int { return it.index }

// Coordinates 当前多重下标 (只读).
func (it *Iterator) Coordinates() []int { return it.coords }

// Lines 枚举沿 direction 的所有一维网格线，返回每条线的起点下标.
// 同一条线上的点为 start + k*spacing[direction].
func (l *Layout) Lines(direction int) []int {
	n := l.dim[direction]
	starts := make([]int, 0, l.size/n)
	l.Each(func(index int, coords []int) {
		if coords[direction] == 0 {
			starts = append(starts, index)
		}
	})
	return starts
}

// Equal 判断两个布局是否一致.
func (l *Layout) Equal(o *Layout) bool {
	if l == o {
		return true
	}
	if o == nil || len(l.dim) != len(o.dim) {
		return false
	}
	for i := range l.dim {
		if l.dim[i] != o.dim[i] {
			return false
		}
	}
	return true
}
