// Package mesher 构建各维度严格递增的坐标序列，并组合为张量积网格.
package mesher

import (
	"math"

	"gonum.org/v1/gonum/interp"

	"github.com/wyfcoding/quant/xerrors"
)

// Mesher1d 一维网格.
type Mesher1d interface {
	Size() int
	Locations() []float64
	// Dplus x[i+1]-x[i]，最后一点为 NaN.
	Dplus(i int) float64
	// Dminus x[i]-x[i-1]，第一点为 NaN.
	Dminus(i int) float64
}

// Grid1d 以坐标数组表示的一维网格.
type Grid1d struct {
	locations []float64
	dplus     []float64
	dminus    []float64
}

func newGrid1d(locations []float64) (*Grid1d, error) {
	n := len(locations)
	if n < 2 {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "a 1d mesher needs at least 2 points, got %d", n)
	}
	g := &Grid1d{
		locations: locations,
		dplus:     make([]float64, n),
		dminus:    make([]float64, n),
	}
	for i := 0; i < n-1; i++ {
		h := locations[i+1] - locations[i]
		if !(h > 0) || math.IsInf(locations[i], 0) || math.IsInf(locations[i+1], 0) {
			return nil, xerrors.Derive(xerrors.ErrInvalidArgument,
				"mesh locations must be finite and strictly increasing (x[%d]=%g, x[%d]=%g)",
				i, locations[i], i+1, locations[i+1])
		}
		g.dplus[i] = h
		g.dminus[i+1] = h
	}
	g.dplus[n-1] = math.NaN()
	g.dminus[0] = math.NaN()
	return g, nil
}

func (g *Grid1d) Size() int            { return len(g.locations) }
func (g *Grid1d) Locations() []float64 { return g.locations }
func (g *Grid1d) Dplus(i int) float64  { return g.dplus[i] }
func (g *Grid1d) Dminus(i int) float64 { return g.dminus[i] }

func checkSize(size int) error {
	if size < 2 {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "a 1d mesher needs at least 2 points, got %d", size)
	}
	return nil
}

func checkInterval(start, end float64) error {
	if !(end > start) {
		return xerrors.Derive(xerrors.ErrInvalidArgument, "mesher end %g must be larger than start %g", end, start)
	}
	return nil
}

// NewUniform1d 等距网格.
func NewUniform1d(start, end float64, size int) (*Grid1d, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	if err := checkInterval(start, end); err != nil {
		return nil, err
	}
	dx := (end - start) / float64(size-1)
	locations := make([]float64, size)
	for i := range locations {
		locations[i] = start + float64(i)*dx
	}
	locations[size-1] = end
	return newGrid1d(locations)
}

// NewPredefined1d 使用给定坐标.
func NewPredefined1d(locations []float64) (*Grid1d, error) {
	return newGrid1d(append([]float64(nil), locations...))
}

// ConcentratingPoint 网格加密点. Density 为相对区间长度的密度参数，越小越集中.
type ConcentratingPoint struct {
	Point    float64
	Density  float64
	Required bool // 要求某个网格点恰好落在 Point 上
}

// NewConcentrating1d 以 asinh 变换在 cPoint 附近加密的网格，cPoint 为 nil 时退化为等距网格.
func NewConcentrating1d(start, end float64, size int, cPoint *ConcentratingPoint) (*Grid1d, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	if err := checkInterval(start, end); err != nil {
		return nil, err
	}
	if cPoint == nil {
		return NewUniform1d(start, end, size)
	}
	if cPoint.Point < start || cPoint.Point > end {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "concentrating point %g outside [%g, %g]", cPoint.Point, start, end)
	}
	if !(cPoint.Density > 0) {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "density must be positive, got %g", cPoint.Density)
	}

	c := cPoint.Point
	density := cPoint.Density * (end - start)
	c1 := math.Asinh((start - c) / density)
	c2 := math.Asinh((end - c) / density)
	dx := 1.0 / float64(size-1)

	transform := func(u float64) float64 { return u }
	if cPoint.Required && size > 2 && !closeTo(c, start) && !closeTo(c, end) {
		z0 := -c1 / (c2 - c1)
		k := math.Round(z0 * float64(size-1))
		k = math.Max(math.Min(k, float64(size-2)), 1)
		u0 := k / float64(size-1)
		var pl interp.PiecewiseLinear
		if err := pl.Fit([]float64{0, u0, 1}, []float64{0, z0, 1}); err != nil {
			return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "concentrating transform: %v", err)
		}
		transform = pl.Predict
	}

	locations := make([]float64, size)
	locations[0] = start
	locations[size-1] = end
	for i := 1; i < size-1; i++ {
		li := transform(float64(i) * dx)
		locations[i] = c + density*math.Sinh(c1*(1-li)+c2*li)
	}
	return newGrid1d(locations)
}

func closeTo(a, b float64) bool {
	const eps = 42 * 2.220446049250313e-16
	diff := math.Abs(a - b)
	if a == b {
		return true
	}
	return diff <= eps*math.Abs(a) && diff <= eps*math.Abs(b)
}
