package mesher

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/xerrors"
)

func assertIncreasing(t *testing.T, m Mesher1d) {
	t.Helper()
	loc := m.Locations()
	for i := 1; i < len(loc); i++ {
		require.Greater(t, loc[i], loc[i-1], "index %d", i)
		assert.InDelta(t, loc[i]-loc[i-1], m.Dminus(i), 1e-14)
		assert.InDelta(t, loc[i]-loc[i-1], m.Dplus(i-1), 1e-14)
	}
	assert.True(t, math.IsNaN(m.Dminus(0)))
	assert.True(t, math.IsNaN(m.Dplus(len(loc)-1)))
}

func TestUniform1d(t *testing.T) {
	m, err := NewUniform1d(-1, 1, 5)
	require.NoError(t, err)
	assertIncreasing(t, m)
	assert.InDeltaSlice(t, []float64{-1, -0.5, 0, 0.5, 1}, m.Locations(), 1e-15)
}

func TestInvalidMeshers(t *testing.T) {
	_, err := NewUniform1d(0, 1, 1)
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)

	_, err = NewUniform1d(1, 1, 10)
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)

	_, err = NewPredefined1d([]float64{0, 1, 1, 2})
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)

	_, err = NewConcentrating1d(0, 1, 10, &ConcentratingPoint{Point: 2, Density: 0.1})
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)
}

func TestConcentrating1d(t *testing.T) {
	m, err := NewConcentrating1d(0, 10, 101, &ConcentratingPoint{Point: 3, Density: 0.05})
	require.NoError(t, err)
	assertIncreasing(t, m)
	assert.Equal(t, 0.0, m.Locations()[0])
	assert.Equal(t, 10.0, m.Locations()[100])

	// 加密点附近的步长明显小于远端
	near, far := math.Inf(1), 0.0
	for i := 0; i < 100; i++ {
		h := m.Dplus(i)
		if math.Abs(m.Locations()[i]-3) < 0.5 {
			near = math.Min(near, h)
		}
		far = math.Max(far, h)
	}
	assert.Less(t, near*4, far)
}

func TestConcentrating1dRequired(t *testing.T) {
	m, err := NewConcentrating1d(0, 10, 50, &ConcentratingPoint{Point: 3.3, Density: 0.1, Required: true})
	require.NoError(t, err)
	assertIncreasing(t, m)

	hit := false
	for _, x := range m.Locations() {
		if math.Abs(x-3.3) < 1e-12 {
			hit = true
		}
	}
	assert.True(t, hit)
}

func TestBlackScholes1d(t *testing.T) {
	p, err := process.NewFlatBlackScholes(100, 0.05, 0.01, 0.2)
	require.NoError(t, err)

	m, err := NewBlackScholes1d(100, p, 1, 100)
	require.NoError(t, err)
	assertIncreasing(t, m)

	loc := m.Locations()
	lnS := math.Log(100.0)
	assert.Less(t, loc[0], lnS-0.5)
	assert.Greater(t, loc[len(loc)-1], lnS+0.5)

	m2, err := NewBlackScholes1d(100, p, 1, 100, WithSpotConcentration(100, 0.1))
	require.NoError(t, err)
	assertIncreasing(t, m2)
	assert.Equal(t, loc[0], m2.Locations()[0])

	lo, hi := math.Log(50.0), math.Log(200.0)
	m3, err := NewBlackScholes1d(50, p, 1, 100, WithLogBounds(&lo, &hi))
	require.NoError(t, err)
	assert.Equal(t, lo, m3.Locations()[0])
	assert.Equal(t, hi, m3.Locations()[49])
}

func TestBlackScholes1dDividends(t *testing.T) {
	p, err := process.NewFlatBlackScholes(100, 0.05, 0, 0.2)
	require.NoError(t, err)

	plain, err := NewBlackScholes1d(100, p, 1, 100)
	require.NoError(t, err)
	withDiv, err := NewBlackScholes1d(100, p, 1, 100, WithDividends([]process.Dividend{{Time: 0.5, Amount: 10}}))
	require.NoError(t, err)
	assert.Less(t, withDiv.Locations()[0], plain.Locations()[0])

	_, err = NewBlackScholes1d(100, p, 1, 100, WithDividends([]process.Dividend{{Time: 0.5, Amount: 500}}))
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)
}

func TestHestonVariance1d(t *testing.T) {
	p, err := process.NewHeston(100, process.NewFlatForward(0.05), process.NewFlatForward(0),
		0.04, 1.5, 0.04, 0.3, -0.9)
	require.NoError(t, err)

	m, err := NewHestonVariance1d(50, p, 1)
	require.NoError(t, err)
	assertIncreasing(t, m)
	loc := m.Locations()
	assert.Equal(t, 0.0, loc[0])
	assert.Greater(t, loc[len(loc)-1], 0.04+4*0.3*math.Sqrt(0.04/3)-1e-12)

	lm, err := NewHestonVariance1d(50, p, 1, WithLogVariance())
	require.NoError(t, err)
	assertIncreasing(t, lm)
	assert.InDelta(t, math.Log(4e-5), lm.Locations()[0], 1e-12)
	assert.InDelta(t, math.Log(loc[len(loc)-1]), lm.Locations()[49], 1e-12)
}

func TestOrnsteinUhlenbeck1d(t *testing.T) {
	p, err := process.NewHullWhite(process.NewFlatForward(0.03), 0.1, 0.01)
	require.NoError(t, err)

	m, err := NewOrnsteinUhlenbeck1d(41, p, 5)
	require.NoError(t, err)
	assertIncreasing(t, m)
	loc := m.Locations()
	assert.Less(t, loc[0], 0.0)
	assert.Greater(t, loc[40], 0.0)
	// 对称分布，网格关于 0 对称
	assert.InDelta(t, 0, loc[0]+loc[40], 1e-12)
	assert.InDelta(t, 0, loc[20], 1e-12)

	_, err = NewOrnsteinUhlenbeck1d(41, p, 5, WithAveragingSteps(0))
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)
}

func TestComposite(t *testing.T) {
	m, err := NewUniformGrid([]int{3, 4}, [][2]float64{{0, 2}, {10, 13}})
	require.NoError(t, err)
	assert.Equal(t, 12, m.Layout().Size())

	m.Layout().Each(func(index int, coords []int) {
		assert.Equal(t, float64(coords[0]), m.Locations(0)[index])
		assert.Equal(t, 10+float64(coords[1]), m.Locations(1)[index])
		assert.Equal(t, m.Locations(1)[index], m.Location(coords, 1))
	})
	assert.Equal(t, 1.0, m.Dplus(0, []int{0, 0}, 1))
	assert.True(t, math.IsNaN(m.Dminus(0, []int{0, 0}, 0)))

	_, err = NewUniformGrid([]int{3}, nil)
	assert.ErrorIs(t, err, xerrors.ErrDimensionMismatch)
}
