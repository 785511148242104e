// Package boundary 定义显式/隐式步骤前后作用于解数组的边界条件.
package boundary

import (
	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/fdm/operators"
	"github.com/wyfcoding/quant/xerrors"
)

// Side 边界所在的一侧.
type Side int

const (
	Lower Side = iota
	Upper
)

func (s Side) String() string {
	if s == Upper {
		return "upper"
	}
	return "lower"
}

// Condition 时间步进各阶段的边界钩子.
type Condition interface {
	SetTime(t float64)
	ApplyBeforeApplying(op operators.Composite)
	ApplyBeforeSolving(op operators.Composite, rhs []float64)
	ApplyAfterApplying(a []float64)
	ApplyAfterSolving(a []float64)
}

// Set 有序的边界条件集合，按注册顺序作用.
type Set []Condition

func (s Set) SetTime(t float64) {
	for _, c := range s {
		c.SetTime(t)
	}
}

func (s Set) ApplyBeforeApplying(op operators.Composite) {
	for _, c := range s {
		c.ApplyBeforeApplying(op)
	}
}

func (s Set) ApplyBeforeSolving(op operators.Composite, rhs []float64) {
	for _, c := range s {
		c.ApplyBeforeSolving(op, rhs)
	}
}

func (s Set) ApplyAfterApplying(a []float64) {
	for _, c := range s {
		c.ApplyAfterApplying(a)
	}
}

func (s Set) ApplyAfterSolving(a []float64) {
	for _, c := range s {
		c.ApplyAfterSolving(a)
	}
}

// sideIndices 位于 direction 方向某一侧边界上的网格点，以及其内侧相邻点与间距.
func sideIndices(m mesher.Mesher, direction int, side Side) (idx, inner []int, h []float64, err error) {
	l := m.Layout()
	if direction < 0 || direction >= l.Dimensions() {
		return nil, nil, nil, xerrors.Derive(xerrors.ErrInvalidArgument, "boundary direction %d out of range", direction)
	}
	if l.Dim()[direction] < 2 {
		return nil, nil, nil, xerrors.Derive(xerrors.ErrInvalidArgument, "boundary direction %d has a single point", direction)
	}
	edge := 0
	offset := 1
	if side == Upper {
		edge = l.Dim()[direction] - 1
		offset = -1
	}
	l.Each(func(index int, coords []int) {
		if coords[direction] != edge {
			return
		}
		idx = append(idx, index)
		inner = append(inner, l.Neighbourhood(index, coords, direction, offset))
		if side == Upper {
			h = append(h, m.Dminus(index, coords, direction))
		} else {
			h = append(h, m.Dplus(index, coords, direction))
		}
	})
	return idx, inner, h, nil
}

// Dirichlet 在边界上给定 (可随时间变化的) 函数值.
type Dirichlet struct {
	indices []int
	valueFn func(t float64) float64
	value   float64
}

// NewDirichlet 常数边界值.
func NewDirichlet(m mesher.Mesher, direction int, side Side, value float64) (*Dirichlet, error) {
	return NewTimeDependentDirichlet(m, direction, side, func(float64) float64 { return value })
}

// NewTimeDependentDirichlet 边界值为时间的函数，在 SetTime 时刷新.
func NewTimeDependentDirichlet(m mesher.Mesher, direction int, side Side, fn func(t float64) float64) (*Dirichlet, error) {
	if fn == nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "nil dirichlet value function")
	}
	idx, _, _, err := sideIndices(m, direction, side)
	if err != nil {
		return nil, err
	}
	return &Dirichlet{indices: idx, valueFn: fn, value: fn(0)}, nil
}

func (d *Dirichlet) SetTime(t float64) { d.value = d.valueFn(t) }

func (d *Dirichlet) ApplyBeforeApplying(operators.Composite) {}

func (d *Dirichlet) ApplyBeforeSolving(_ operators.Composite, rhs []float64) { d.ApplyAfterApplying(rhs) }

func (d *Dirichlet) ApplyAfterApplying(a []float64) {
	for _, i := range d.indices {
		a[i] = d.value
	}
}

// ApplyAfterSolving 隐式解在边界行上仍受算子影响，求解后重新写入边界值.
func (d *Dirichlet) ApplyAfterSolving(a []float64) { d.ApplyAfterApplying(a) }

// Value 当前边界值.
func (d *Dirichlet) Value() float64 { return d.value }

// Neumann 在边界上给定沿坐标方向的导数 ∂u/∂x = slope.
type Neumann struct {
	side    Side
	indices []int
	inner   []int
	h       []float64
	slope   float64
}

// NewNeumann 以一阶差分实现的导数边界条件.
func NewNeumann(m mesher.Mesher, direction int, side Side, slope float64) (*Neumann, error) {
	idx, inner, h, err := sideIndices(m, direction, side)
	if err != nil {
		return nil, err
	}
	return &Neumann{side: side, indices: idx, inner: inner, h: h, slope: slope}, nil
}

func (n *Neumann) SetTime(float64) {}

func (n *Neumann) ApplyBeforeApplying(operators.Composite) {}

func (n *Neumann) ApplyBeforeSolving(operators.Composite, []float64) {}

func (n *Neumann) ApplyAfterApplying(a []float64) {
	for k, i := range n.indices {
		if n.side == Upper {
			a[i] = a[n.inner[k]] + n.slope*n.h[k]
		} else {
			a[i] = a[n.inner[k]] - n.slope*n.h[k]
		}
	}
}

func (n *Neumann) ApplyAfterSolving(a []float64) { n.ApplyAfterApplying(a) }
