package scheme

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/wyfcoding/quant/fdm/boundary"
	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/fdm/operators"
	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/xerrors"
)

func TestParseAndValidate(t *testing.T) {
	for name, want := range map[string]Type{
		"Douglas":              Douglas,
		"craig-sneyd":          CraigSneyd,
		"Modified_Craig_Sneyd": ModifiedCraigSneyd,
		"hundsdorfer":          Hundsdorfer,
		"modified hundsdorfer": ModifiedHundsdorfer,
		"ExplicitEuler":        ExplicitEuler,
	} {
		got, err := Parse(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)

		desc, err := Preset(got)
		require.NoError(t, err)
		assert.NoError(t, desc.Validate(), desc.String())
	}

	_, err := Parse("crank-nicolson")
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)

	bad := []Desc{
		{Type: Douglas, Theta: 0.4},
		{Type: Douglas, Theta: 1.2},
		{Type: CraigSneyd, Theta: 0.5, Mu: -0.1},
		{Type: ModifiedCraigSneyd, Theta: 0.3, Mu: 0.3},
		{Type: "adi", Theta: 0.5},
	}
	for _, d := range bad {
		assert.ErrorIs(t, d.Validate(), xerrors.ErrInvalidArgument, d.String())
	}
	assert.NoError(t, ImplicitEulerDesc().Validate())
}

func blackScholes1d(t *testing.T) (*mesher.Composite, *operators.BlackScholesOp) {
	t.Helper()
	m, err := mesher.NewUniformGrid([]int{41}, [][2]float64{{math.Log(40), math.Log(250)}})
	require.NoError(t, err)
	p, err := process.NewFlatBlackScholes(100, 0.05, 0.02, 0.2)
	require.NoError(t, err)
	op, err := operators.NewBlackScholesOp(m, p, 100, 0)
	require.NoError(t, err)
	return m, op
}

func callValues(m mesher.Mesher) []float64 {
	x := m.Locations(0)
	out := make([]float64, len(x))
	for i := range x {
		out[i] = math.Max(math.Exp(x[i])-100, 0)
	}
	return out
}

func TestThetaSchemeMatchesDenseSolve(t *testing.T) {
	m, op := blackScholes1d(t)
	a := callValues(m)
	const dt = 0.01

	for _, desc := range []Desc{DouglasDesc(), ImplicitEulerDesc(), {Type: Douglas, Theta: 0.75}} {
		s, err := New(desc, op, nil)
		require.NoError(t, err)
		s.SetStep(dt)
		got, err := s.Step(a, 1)
		require.NoError(t, err)

		L := op.ToMatrixDecomp()[0]
		n, _ := L.Dims()
		var lhs, rhsOp mat.Dense
		lhs.Scale(-desc.Theta*dt, L)
		rhsOp.Scale((1-desc.Theta)*dt, L)
		for i := 0; i < n; i++ {
			lhs.Set(i, i, lhs.At(i, i)+1)
			rhsOp.Set(i, i, rhsOp.At(i, i)+1)
		}
		var rhs, want mat.VecDense
		rhs.MulVec(&rhsOp, mat.NewVecDense(n, a))
		require.NoError(t, want.SolveVec(&lhs, &rhs))

		for i := 0; i < n; i++ {
			assert.InDelta(t, want.AtVec(i), got[i], 1e-9, "%s index %d", desc, i)
		}
	}
}

func TestExplicitEuler(t *testing.T) {
	m, op := blackScholes1d(t)
	a := callValues(m)
	s, err := New(ExplicitEulerDesc(), op, nil)
	require.NoError(t, err)
	s.SetStep(1e-4)
	got, err := s.Step(a, 0.5)
	require.NoError(t, err)

	la, err := op.Apply(a)
	require.NoError(t, err)
	want := make([]float64, len(a))
	floats.AddScaledTo(want, a, 1e-4, la)
	assert.InDeltaSlice(t, want, got, 1e-12)
}

func heston2d(t *testing.T) (*mesher.Composite, *operators.HestonOp) {
	t.Helper()
	m, err := mesher.NewUniformGrid([]int{30, 15}, [][2]float64{{math.Log(50), math.Log(200)}, {0, 1}})
	require.NoError(t, err)
	p, err := process.NewHeston(100, process.NewFlatForward(0.05), process.NewFlatForward(0), 0.04, 2.5, 0.04, 0.66, -0.8)
	require.NoError(t, err)
	op, err := operators.NewHestonOp(m, p, operators.PlainVariance)
	require.NoError(t, err)
	return m, op
}

func smooth2d(m mesher.Mesher) []float64 {
	x, v := m.Locations(0), m.Locations(1)
	out := make([]float64, len(x))
	for i := range out {
		out[i] = math.Exp(-math.Pow(x[i]-math.Log(100), 2)) * (1 + v[i])
	}
	return out
}

func TestCraigSneydWithoutMixedCorrectionIsDouglas(t *testing.T) {
	m, op := heston2d(t)
	a := smooth2d(m)

	d, err := New(Desc{Type: Douglas, Theta: 0.5}, op, nil)
	require.NoError(t, err)
	cs, err := New(Desc{Type: CraigSneyd, Theta: 0.5, Mu: 0}, op, nil)
	require.NoError(t, err)
	d.SetStep(0.02)
	cs.SetStep(0.02)

	y1, err := d.Step(a, 1)
	require.NoError(t, err)
	y2, err := cs.Step(a, 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, y1, y2, 1e-12)
}

func TestAllSchemesAreConsistent(t *testing.T) {
	m, op := heston2d(t)
	a := smooth2d(m)
	const dt = 1e-6

	la, err := op.Apply(a)
	require.NoError(t, err)
	euler := make([]float64, len(a))
	floats.AddScaledTo(euler, a, dt, la)

	for _, desc := range []Desc{
		DouglasDesc(), CraigSneydDesc(), ModifiedCraigSneydDesc(),
		HundsdorferDesc(), ModifiedHundsdorferDesc(), ExplicitEulerDesc(),
	} {
		s, err := New(desc, op, nil)
		require.NoError(t, err)
		s.SetStep(dt)
		y, err := s.Step(a, 1)
		require.NoError(t, err, desc.String())
		assert.Len(t, y, len(a))
		assert.Less(t, floats.Distance(y, euler, math.Inf(1)), 1e-4, desc.String())
	}
}

func TestDirichletBoundary(t *testing.T) {
	m, op := heston2d(t)
	a := smooth2d(m)
	bc, err := boundary.NewDirichlet(m, 0, boundary.Upper, 3)
	require.NoError(t, err)

	last := m.Layout().Dim()[0] - 1
	for _, desc := range []Desc{
		ExplicitEulerDesc(), DouglasDesc(), CraigSneydDesc(),
		ModifiedCraigSneydDesc(), HundsdorferDesc(), ModifiedHundsdorferDesc(),
	} {
		s, err := New(desc, op, boundary.Set{bc})
		require.NoError(t, err)
		s.SetStep(0.01)
		y, err := s.Step(a, 1)
		require.NoError(t, err, desc.String())

		nodes := 0
		m.Layout().Each(func(index int, coords []int) {
			require.False(t, math.IsNaN(y[index]), desc.String())
			if coords[0] == last {
				nodes++
				assert.Equal(t, 3.0, y[index], "%s at node %d", desc.String(), index)
			}
		})
		assert.Equal(t, m.Layout().Dim()[1], nodes)
	}
}

func TestStepRejectsWrongLength(t *testing.T) {
	_, op := heston2d(t)
	s, err := New(DouglasDesc(), op, nil)
	require.NoError(t, err)
	s.SetStep(0.1)
	_, err = s.Step(make([]float64, 3), 1)
	assert.ErrorIs(t, err, xerrors.ErrDimensionMismatch)

	_, err = New(DouglasDesc(), nil, nil)
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)
}
