package payoff

import (
	"math"

	"gonum.org/v1/gonum/integrate"

	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/xerrors"
)

// InnerValueCalculator 网格点上的内在价值.
type InnerValueCalculator interface {
	InnerValue(index int, coords []int, t float64) float64
	// AvgInnerValue 网格单元上的平均内在价值，用作平滑的初始条件.
	AvgInnerValue(index int, coords []int, t float64) float64
}

// cellSamples 单元平均的 Simpson 采样点数 (奇数).
const cellSamples = 33

// LogInner 对数价格网格上的单资产内在价值 payoff(eˣ).
type LogInner struct {
	payoff    Payoff
	mesher    mesher.Mesher
	direction int
}

func NewLogInner(p Payoff, m mesher.Mesher, direction int) (*LogInner, error) {
	if p == nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "nil payoff")
	}
	if direction < 0 || direction >= m.Layout().Dimensions() {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "direction %d out of range", direction)
	}
	return &LogInner{payoff: p, mesher: m, direction: direction}, nil
}

func (c *LogInner) InnerValue(_ int, coords []int, _ float64) float64 {
	return c.payoff.Value(math.Exp(c.mesher.Location(coords, c.direction)))
}

// AvgInnerValue 在 [x - h⁻/2, x + h⁺/2] 上以 Simpson 公式求平均，边界点取单侧半单元.
func (c *LogInner) AvgInnerValue(index int, coords []int, t float64) float64 {
	x := c.mesher.Location(coords, c.direction)
	last := c.mesher.Layout().Dim()[c.direction] - 1
	a, b := x, x
	if coords[c.direction] > 0 {
		a -= 0.5 * c.mesher.Dminus(index, coords, c.direction)
	}
	if coords[c.direction] < last {
		b += 0.5 * c.mesher.Dplus(index, coords, c.direction)
	}
	if !(b > a) {
		return c.InnerValue(index, coords, t)
	}
	return cellAverage(func(y float64) float64 { return c.payoff.Value(math.Exp(y)) }, a, b)
}

func cellAverage(f func(float64) float64, a, b float64) float64 {
	xs := make([]float64, cellSamples)
	ys := make([]float64, cellSamples)
	h := (b - a) / float64(cellSamples-1)
	allZero := true
	for i := range xs {
		xs[i] = a + float64(i)*h
		ys[i] = f(xs[i])
		if ys[i] != 0 {
			allZero = false
		}
	}
	if allZero {
		return 0
	}
	return integrate.Simpsons(xs, ys) / (b - a)
}

// LogBasketInner 各维均为对数价格的多资产内在价值.
type LogBasketInner struct {
	payoff Basket
	mesher mesher.Mesher
}

func NewLogBasketInner(p Basket, m mesher.Mesher) (*LogBasketInner, error) {
	if p == nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "nil basket payoff")
	}
	return &LogBasketInner{payoff: p, mesher: m}, nil
}

func (c *LogBasketInner) InnerValue(_ int, coords []int, _ float64) float64 {
	s := make([]float64, len(coords))
	for d := range coords {
		s[d] = math.Exp(c.mesher.Location(coords, d))
	}
	return c.payoff.Value(s)
}

func (c *LogBasketInner) AvgInnerValue(index int, coords []int, t float64) float64 {
	return c.InnerValue(index, coords, t)
}

// FuncInner 以网格坐标与时间为自变量的内在价值.
type FuncInner struct {
	mesher mesher.Mesher
	fn     func(x []float64, t float64) float64
}

func NewFuncInner(m mesher.Mesher, fn func(x []float64, t float64) float64) (*FuncInner, error) {
	if fn == nil {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "nil inner value function")
	}
	return &FuncInner{mesher: m, fn: fn}, nil
}

func (c *FuncInner) InnerValue(_ int, coords []int, t float64) float64 {
	x := make([]float64, len(coords))
	for d := range coords {
		x[d] = c.mesher.Location(coords, d)
	}
	return c.fn(x, t)
}

func (c *FuncInner) AvgInnerValue(index int, coords []int, t float64) float64 {
	return c.InnerValue(index, coords, t)
}
