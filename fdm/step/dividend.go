package step

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/xerrors"
)

// Dividend 离散现金股息. 除息时刻沿对数价格方向平移解:
// V(x) ← V(ln max(eˣ - D, e^{x_min}))，各网格线独立做线性插值.
type Dividend struct {
	mesher    mesher.Mesher
	direction int
	times     []float64
	amounts   []float64
	// x 方向坐标与平移后的查询点，按股息预先计算.
	x       []float64
	shifted [][]float64
}

func NewDividend(m mesher.Mesher, direction int, divs []process.Dividend) (*Dividend, error) {
	if m == nil || direction < 0 || direction >= m.Layout().Dimensions() {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "dividend direction %d out of range", direction)
	}
	sorted := append([]process.Dividend(nil), divs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	d := &Dividend{
		mesher:    m,
		direction: direction,
		x:         m.Mesher(direction).Locations(),
	}
	for _, div := range sorted {
		if !(div.Amount >= 0) || math.IsInf(div.Amount, 0) {
			return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "dividend amount must be finite and non-negative, got %g", div.Amount)
		}
		// 同一除息时刻的多笔股息合并为一次平移.
		if k := len(d.times) - 1; k >= 0 && d.times[k] == div.Time {
			d.amounts[k] += div.Amount
			continue
		}
		d.times = append(d.times, div.Time)
		d.amounts = append(d.amounts, div.Amount)
	}
	for _, amount := range d.amounts {
		d.shifted = append(d.shifted, d.shift(amount))
	}
	if err := checkTimes("dividend", d.times); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dividend) shift(amount float64) []float64 {
	sMin := math.Exp(d.x[0])
	out := make([]float64, len(d.x))
	for i, x := range d.x {
		out[i] = math.Log(math.Max(math.Exp(x)-amount, sMin))
	}
	return out
}

func (d *Dividend) Times() []float64 { return d.times }

// Amounts 与 Times 对应的股息金额.
func (d *Dividend) Amounts() []float64 { return d.amounts }

func (d *Dividend) ApplyTo(a []float64, t float64) {
	k := indexOf(d.times, t)
	if k < 0 || d.amounts[k] == 0 {
		return
	}
	l := d.mesher.Layout()
	n := len(d.x)
	stride := l.Spacing()[d.direction]
	line := make([]float64, n)
	var pl interp.PiecewiseLinear
	for _, start := range l.Lines(d.direction) {
		for i := 0; i < n; i++ {
			line[i] = a[start+i*stride]
		}
		if err := pl.Fit(d.x, line); err != nil {
			// 坐标严格递增，Fit 不会失败.
			panic(err)
		}
		for i, x := range d.shifted[k] {
			a[start+i*stride] = pl.Predict(x)
		}
	}
}
