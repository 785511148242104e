package payoff

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/xerrors"
)

func TestVanillaPayoffs(t *testing.T) {
	call, err := NewPlainVanilla(Call, 100)
	require.NoError(t, err)
	put, err := NewPlainVanilla(Put, 100)
	require.NoError(t, err)
	assert.Equal(t, 20.0, call.Value(120))
	assert.Equal(t, 0.0, call.Value(80))
	assert.Equal(t, 20.0, put.Value(80))

	digital, err := NewCashOrNothing(Call, 100, 5)
	require.NoError(t, err)
	assert.Equal(t, 5.0, digital.Value(101))
	assert.Equal(t, 0.0, digital.Value(99))

	aon, err := NewAssetOrNothing(Put, 100)
	require.NoError(t, err)
	assert.Equal(t, 99.0, aon.Value(99))

	_, err = NewPlainVanilla("straddle", 100)
	assert.ErrorIs(t, err, xerrors.ErrInvalidOptionType)
	_, err = NewPlainVanilla(Call, -1)
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)

	ot, err := ParseOptionType(" PUT ")
	require.NoError(t, err)
	assert.Equal(t, Put, ot)
}

func TestBasketPayoffs(t *testing.T) {
	call, _ := NewPlainVanilla(Call, 5)
	spread, err := NewBasket("spread", call, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 5.0, spread.Value([]float64{110, 100}))

	mx, _ := NewBasket("max", call, 3, nil)
	assert.Equal(t, 7.0, mx.Value([]float64{10, 12, 3}))

	avg, _ := NewBasket("average", call, 2, []float64{0.25, 0.75})
	assert.Equal(t, 5.0, avg.Value([]float64{4, 12}))

	_, err = NewBasket("spread", call, 3, nil)
	assert.ErrorIs(t, err, xerrors.ErrDimensionMismatch)
	_, err = NewBasket("rainbow", call, 2, nil)
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)
}

func TestExpressionPayoff(t *testing.T) {
	e, err := NewExpression("max(s1 - s2 - k, 0)", 5, 2)
	require.NoError(t, err)
	assert.InDelta(t, 5, e.Value([]float64{110, 100}), 1e-15)
	assert.InDelta(t, 0, e.Value([]float64{100, 110}), 1e-15)

	idx, err := NewExpression("s[0] * 0.5 + s[2]", 0, 3)
	require.NoError(t, err)
	assert.InDelta(t, 8, idx.Value([]float64{4, 100, 6}), 1e-15)

	_, err = NewExpression("max(s1 - ", 5, 2)
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)
	_, err = NewExpression("unknown + 1", 5, 2)
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)
	_, err = NewExpression("s1", 5, 4)
	assert.ErrorIs(t, err, xerrors.ErrDimensionMismatch)
}

func TestLogInnerCellAverage(t *testing.T) {
	m, err := mesher.NewUniformGrid([]int{11}, [][2]float64{{math.Log(50), math.Log(150)}})
	require.NoError(t, err)
	call, _ := NewPlainVanilla(Call, 100)
	c, err := NewLogInner(call, m, 0)
	require.NoError(t, err)

	m.Layout().Each(func(i int, coords []int) {
		s := math.Exp(m.Locations(0)[i])
		assert.InDelta(t, call.Value(s), c.InnerValue(i, coords, 0), 1e-12)
		avg := c.AvgInnerValue(i, coords, 0)
		// 凸函数的单元平均不小于中心值 (边界半单元除外)
		if coords[0] > 0 && coords[0] < 10 {
			assert.GreaterOrEqual(t, avg, c.InnerValue(i, coords, 0)-1e-12)
		}
		assert.False(t, math.IsNaN(avg))
	})

	// 远离行权价的线性区域平均值接近 eˣ 的平均
	coords := []int{9}
	idx := m.Layout().Index(coords)
	x := m.Locations(0)[idx]
	h := m.Dplus(idx, coords, 0)
	want := (math.Exp(x+h/2)-math.Exp(x-h/2))/h - 100
	assert.InDelta(t, want, c.AvgInnerValue(idx, coords, 0), 1e-6)
}

func TestBasketAndFuncInner(t *testing.T) {
	m, err := mesher.NewUniformGrid([]int{3, 3}, [][2]float64{{0, 1}, {0, 1}})
	require.NoError(t, err)
	call, _ := NewPlainVanilla(Call, 0)
	mx, _ := NewBasket("max", call, 2, nil)
	b, err := NewLogBasketInner(mx, m)
	require.NoError(t, err)
	assert.InDelta(t, math.E, b.InnerValue(m.Layout().Index([]int{0, 2}), []int{0, 2}, 0), 1e-12)

	f, err := NewFuncInner(m, func(x []float64, t float64) float64 { return x[0] + x[1] + t })
	require.NoError(t, err)
	assert.InDelta(t, 2.0, f.InnerValue(0, []int{1, 1}, 1), 1e-15)
	_, err = NewFuncInner(m, nil)
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)
}
