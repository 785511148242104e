package mesher

import (
	"github.com/wyfcoding/quant/fdm/layout"
	"github.com/wyfcoding/quant/xerrors"
)

// Mesher 多维网格，坐标按 layout 展开.
type Mesher interface {
	Layout() *layout.Layout
	Dplus(index int, coords []int, direction int) float64
	Dminus(index int, coords []int, direction int) float64
	Location(coords []int, direction int) float64
	Locations(direction int) []float64
	Mesher(direction int) Mesher1d
}

// Composite 一维网格的张量积.
type Composite struct {
	layout    *layout.Layout
	meshers   []Mesher1d
	locations [][]float64
}

// NewComposite 组合各维网格，meshers[0] 为变化最快的维度.
func NewComposite(meshers ...Mesher1d) (*Composite, error) {
	if len(meshers) == 0 {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "composite mesher needs at least one dimension")
	}
	dims := make([]int, len(meshers))
	for i, m := range meshers {
		if m == nil {
			return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "nil mesher for direction %d", i)
		}
		dims[i] = m.Size()
	}
	l, err := layout.New(dims)
	if err != nil {
		return nil, err
	}
	c := &Composite{
		layout:    l,
		meshers:   append([]Mesher1d(nil), meshers...),
		locations: make([][]float64, len(meshers)),
	}
	for d := range meshers {
		loc := make([]float64, l.Size())
		src := meshers[d].Locations()
		l.Each(func(index int, coords []int) {
			loc[index] = src[coords[d]]
		})
		c.locations[d] = loc
	}
	return c, nil
}

// NewUniformGrid 每维等距的便捷构造，bounds[i] = {start, end}.
func NewUniformGrid(dims []int, bounds [][2]float64) (*Composite, error) {
	if len(dims) != len(bounds) {
		return nil, xerrors.Derive(xerrors.ErrDimensionMismatch, "%d dimensions but %d bounds", len(dims), len(bounds))
	}
	ms := make([]Mesher1d, len(dims))
	for i := range dims {
		m, err := NewUniform1d(bounds[i][0], bounds[i][1], dims[i])
		if err != nil {
			return nil, err
		}
		ms[i] = m
	}
	return NewComposite(ms...)
}

func (c *Composite) Layout() *layout.Layout { return c.layout }

func (c *Composite) Dplus(_ int, coords []int, direction int) float64 {
	return c.meshers[direction].Dplus(coords[direction])
}

func (c *Composite) Dminus(_ int, coords []int, direction int) float64 {
	return c.meshers[direction].Dminus(coords[direction])
}

func (c *Composite) Location(coords []int, direction int) float64 {
	return c.meshers[direction].Locations()[coords[direction]]
}

// Locations 返回长度为 layout.Size() 的坐标数组 (只读).
func (c *Composite) Locations(direction int) []float64 { return c.locations[direction] }

func (c *Composite) Mesher(direction int) Mesher1d { return c.meshers[direction] }
