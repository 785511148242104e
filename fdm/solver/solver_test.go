package solver

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/wyfcoding/quant/fdm/boundary"
	"github.com/wyfcoding/quant/fdm/interpolation"
	"github.com/wyfcoding/quant/fdm/mesher"
	"github.com/wyfcoding/quant/fdm/operators"
	"github.com/wyfcoding/quant/fdm/payoff"
	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/fdm/scheme"
	"github.com/wyfcoding/quant/fdm/step"
	"github.com/wyfcoding/quant/xerrors"
)

func hestonProcess(t *testing.T) *process.Heston {
	t.Helper()
	p, err := process.NewHeston(100, process.NewFlatForward(0.05), process.NewFlatForward(0), 0.04, 2.5, 0.04, 0.66, -0.8)
	require.NoError(t, err)
	return p
}

func hestonGrid(t *testing.T, xMax float64) *mesher.Composite {
	t.Helper()
	m, err := mesher.NewUniformGrid([]int{200, 100}, [][2]float64{{3.8, xMax}, {0, 1}})
	require.NoError(t, err)
	return m
}

func interpolateAtSpot(t *testing.T, m *mesher.Composite, values []float64) float64 {
	t.Helper()
	b, err := interpolation.NewBilinear(m.Mesher(0).Locations(), m.Mesher(1).Locations(), values)
	require.NoError(t, err)
	v, err := b.Value(math.Log(100), 0.04)
	require.NoError(t, err)
	return v
}

func TestHestonBarrierReference(t *testing.T) {
	m := hestonGrid(t, 4.905274778)
	op, err := operators.NewHestonOp(m, hestonProcess(t), operators.PlainVariance)
	require.NoError(t, err)

	x := m.Locations(0)
	rhs := make([]float64, len(x))
	for i := range rhs {
		rhs[i] = math.Max(math.Exp(x[i])-100, 0)
	}
	bc, err := boundary.NewDirichlet(m, 0, boundary.Upper, 0)
	require.NoError(t, err)

	bs, err := NewBackwardSolver(op, boundary.Set{bc}, nil, scheme.HundsdorferDesc())
	require.NoError(t, err)
	out, err := bs.Rollback(context.Background(), rhs, 1, 0, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, Done, bs.State())

	assert.InDelta(t, 9.049016, interpolateAtSpot(t, m, out), 5e-3)
}

func TestHestonAmericanReference(t *testing.T) {
	m := hestonGrid(t, math.Log(220))
	op, err := operators.NewHestonOp(m, hestonProcess(t), operators.PlainVariance)
	require.NoError(t, err)

	put, err := payoff.NewPlainVanilla(payoff.Put, 100)
	require.NoError(t, err)
	calc, err := payoff.NewLogInner(put, m, 0)
	require.NoError(t, err)
	american, err := step.NewAmerican(m, calc)
	require.NoError(t, err)
	conds, err := step.NewComposite(1, american)
	require.NoError(t, err)

	x := m.Locations(0)
	rhs := make([]float64, len(x))
	for i := range rhs {
		rhs[i] = put.Value(math.Exp(x[i]))
	}

	bs, err := NewBackwardSolver(op, nil, conds, scheme.HundsdorferDesc())
	require.NoError(t, err)
	out, err := bs.Rollback(context.Background(), rhs, 1, 0, 50, 0)
	require.NoError(t, err)

	assert.InDelta(t, 5.641648, interpolateAtSpot(t, m, out), 5e-3)
}

func TestHestonExpressCertificate(t *testing.T) {
	m := hestonGrid(t, math.Log(220))
	p := hestonProcess(t)

	autocall, err := step.NewAutocall(m, 0, []step.Observation{
		{Time: 0.333, Trigger: 100, Redemption: 108},
		{Time: 0.666, Trigger: 100, Redemption: 108},
	})
	require.NoError(t, err)
	dividend, err := step.NewDividend(m, 0, []process.Dividend{{Time: 0.5, Amount: 2.5}})
	require.NoError(t, err)
	conds, err := step.NewComposite(1, autocall, dividend)
	require.NoError(t, err)

	express := payoff.Func(func(s float64) float64 {
		v := 100.0
		if s >= 100 {
			v = 108
		}
		if s <= 75 {
			v -= 100 - s
		}
		return v
	})
	calc, err := payoff.NewLogInner(express, m, 0)
	require.NoError(t, err)

	s, err := NewHestonSolver(p, operators.PlainVariance, Desc{
		Mesher:     m,
		Conditions: conds,
		Calculator: calc,
		Maturity:   1,
		TimeSteps:  50,
	}, scheme.HundsdorferDesc())
	require.NoError(t, err)

	g, err := s.Calculate(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 101.027, g.Value, 1e-2)
	assert.InDelta(t, 0.418, g.Delta, 5e-3)
	assert.InDelta(t, -0.040, g.Gamma, 5e-3)
}

// blackScholesCall 解析解，作为收敛性参照.
func blackScholesCall(s, k, r, q, vol, t float64) (price, delta, gamma, theta float64) {
	n := distuv.UnitNormal
	sd := vol * math.Sqrt(t)
	d1 := (math.Log(s/k) + (r-q)*t + 0.5*sd*sd) / sd
	d2 := d1 - sd
	dq, dr := math.Exp(-q*t), math.Exp(-r*t)
	price = s*dq*n.CDF(d1) - k*dr*n.CDF(d2)
	delta = dq * n.CDF(d1)
	gamma = dq * n.Prob(d1) / (s * sd)
	theta = -s*dq*n.Prob(d1)*vol/(2*math.Sqrt(t)) - r*k*dr*n.CDF(d2) + q*s*dq*n.CDF(d1)
	return
}

func blackScholesDesc(t *testing.T, p *process.BlackScholes, calcFor func(m mesher.Mesher) payoff.InnerValueCalculator, conds func(m mesher.Mesher, calc payoff.InnerValueCalculator) *step.Composite) Desc {
	t.Helper()
	g, err := mesher.NewBlackScholes1d(201, p, 1, 100, mesher.WithSpotConcentration(100, 0.1))
	require.NoError(t, err)
	m, err := mesher.NewComposite(g)
	require.NoError(t, err)
	calc := calcFor(m)
	desc := Desc{Mesher: m, Calculator: calc, Maturity: 1, TimeSteps: 100, DampingSteps: 1}
	if conds != nil {
		desc.Conditions = conds(m, calc)
	}
	return desc
}

func vanilla(t *testing.T, typ payoff.OptionType) func(m mesher.Mesher) payoff.InnerValueCalculator {
	return func(m mesher.Mesher) payoff.InnerValueCalculator {
		p, err := payoff.NewPlainVanilla(typ, 100)
		require.NoError(t, err)
		calc, err := payoff.NewLogInner(p, m, 0)
		require.NoError(t, err)
		return calc
	}
}

func TestBlackScholesEuropeanAgainstClosedForm(t *testing.T) {
	p, err := process.NewFlatBlackScholes(100, 0.05, 0.02, 0.2)
	require.NoError(t, err)
	price, delta, gamma, theta := blackScholesCall(100, 100, 0.05, 0.02, 0.2, 1)

	for _, desc := range []scheme.Desc{scheme.DouglasDesc(), scheme.CraigSneydDesc(), scheme.HundsdorferDesc()} {
		s, err := NewBlackScholesSolver(p, 100, blackScholesDesc(t, p, vanilla(t, payoff.Call), nil), desc)
		require.NoError(t, err)
		g, err := s.Calculate(context.Background())
		require.NoError(t, err, desc.String())

		assert.InDelta(t, price, g.Value, 1e-2, desc.String())
		assert.InDelta(t, delta, g.Delta, 2e-3, desc.String())
		assert.InDelta(t, gamma, g.Gamma, 2e-3, desc.String())
		assert.InDelta(t, theta, g.Theta, 5e-2, desc.String())
	}
}

func TestAmericanPutDominatesEuropean(t *testing.T) {
	p, err := process.NewFlatBlackScholes(100, 0.06, 0, 0.25)
	require.NoError(t, err)

	european, err := NewBlackScholesSolver(p, 100, blackScholesDesc(t, p, vanilla(t, payoff.Put), nil), scheme.DouglasDesc())
	require.NoError(t, err)
	eu, err := european.Calculate(context.Background())
	require.NoError(t, err)

	withExercise := func(m mesher.Mesher, calc payoff.InnerValueCalculator) *step.Composite {
		c, err := step.NewVanillaComposite(m, calc, step.NewAmericanExercise(1), nil, 0)
		require.NoError(t, err)
		return c
	}
	american, err := NewBlackScholesSolver(p, 100, blackScholesDesc(t, p, vanilla(t, payoff.Put), withExercise), scheme.DouglasDesc())
	require.NoError(t, err)
	am, err := american.Calculate(context.Background())
	require.NoError(t, err)

	assert.Greater(t, am.Value, eu.Value)
	assert.Greater(t, am.Value-eu.Value, 0.1)
	assert.Less(t, am.Delta, 0.0)
	assert.Greater(t, am.Gamma, 0.0)
}

type countingObserver struct {
	steps int
	err   error
	calls int
}

func (o *countingObserver) ObserveRollback(_ scheme.Type, steps int, _ time.Duration, err error) {
	o.steps, o.err = steps, err
	o.calls++
}

type timesRecorder struct {
	times []float64
	calls []float64
}

func (r *timesRecorder) Times() []float64 { return r.times }

func (r *timesRecorder) ApplyTo(_ []float64, t float64) { r.calls = append(r.calls, t) }

func bs1d(t *testing.T) (*mesher.Composite, operators.Composite) {
	t.Helper()
	m, err := mesher.NewUniformGrid([]int{201}, [][2]float64{{math.Log(40), math.Log(250)}})
	require.NoError(t, err)
	p, err := process.NewFlatBlackScholes(100, 0.05, 0, 0.2)
	require.NoError(t, err)
	op, err := operators.NewBlackScholesOp(m, p, 100, 0)
	require.NoError(t, err)
	return m, op
}

func TestRollbackSplitsAtStoppingTimes(t *testing.T) {
	m, op := bs1d(t)
	scheduled := &timesRecorder{times: []float64{0.5, 0.25}}
	every := &timesRecorder{}
	conds, err := step.NewComposite(1, scheduled, every)
	require.NoError(t, err)

	obs := &countingObserver{}
	bs, err := NewBackwardSolver(op, nil, conds, scheme.DouglasDesc(), WithObserver(obs))
	require.NoError(t, err)
	assert.Equal(t, Uninitialized, bs.State())

	_, err = bs.Rollback(context.Background(), make([]float64, m.Layout().Size()), 1, 0, 3, 0)
	require.NoError(t, err)

	assert.Equal(t, []float64{0.5, 0.25}, scheduled.calls)
	assert.InDeltaSlice(t, []float64{2.0 / 3, 0.5, 1.0 / 3, 0.25, 0}, every.calls, 1e-12)
	assert.Equal(t, 5, obs.steps)
	assert.NoError(t, obs.err)
	assert.Equal(t, "done", bs.State().String())
}

func TestRollbackMaturityConditionAppliedOnce(t *testing.T) {
	m, op := bs1d(t)
	atMaturity := &timesRecorder{times: []float64{1}}
	conds, err := step.NewComposite(1, atMaturity)
	require.NoError(t, err)

	obs := &countingObserver{}
	bs, err := NewBackwardSolver(op, nil, conds, scheme.DouglasDesc(), WithObserver(obs))
	require.NoError(t, err)
	_, err = bs.Rollback(context.Background(), make([]float64, m.Layout().Size()), 1, 0, 4, 2)
	require.NoError(t, err)

	assert.Equal(t, []float64{1}, atMaturity.calls)
	assert.Equal(t, 6, obs.steps)
}

func TestRollbackErrors(t *testing.T) {
	m, op := bs1d(t)
	rhs := make([]float64, m.Layout().Size())
	bs, err := NewBackwardSolver(op, nil, nil, scheme.DouglasDesc())
	require.NoError(t, err)

	_, err = bs.Rollback(context.Background(), rhs, 0, 1, 10, 0)
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)
	_, err = bs.Rollback(context.Background(), rhs, 1, 0, 0, 0)
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	obs := &countingObserver{}
	bs, err = NewBackwardSolver(op, nil, nil, scheme.DouglasDesc(), WithObserver(obs))
	require.NoError(t, err)
	_, err = bs.Rollback(ctx, rhs, 1, 0, 10, 0)
	assert.ErrorIs(t, err, xerrors.ErrDeadline)
	assert.Equal(t, Failed, bs.State())
	assert.ErrorIs(t, obs.err, xerrors.ErrDeadline)

	_, err = NewBackwardSolver(nil, nil, nil, scheme.DouglasDesc())
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)
	_, err = NewBackwardSolver(op, nil, nil, scheme.Desc{Type: scheme.Douglas, Theta: 0.1})
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)
}

func TestExplicitEulerBlowUpIsReported(t *testing.T) {
	m, op := bs1d(t)
	x := m.Locations(0)
	rhs := make([]float64, len(x))
	for i := range rhs {
		rhs[i] = math.Max(math.Exp(x[i])-100, 0)
	}
	bs, err := NewBackwardSolver(op, nil, nil, scheme.ExplicitEulerDesc())
	require.NoError(t, err)
	_, err = bs.Rollback(context.Background(), rhs, 30, 0, 300, 0)
	assert.ErrorIs(t, err, xerrors.ErrNonFinite)
	assert.True(t, xerrors.IsNumerical(err))
}

func TestDescValidation(t *testing.T) {
	m, op := bs1d(t)
	calc := vanilla(t, payoff.Call)(m)
	conds, err := step.NewComposite(2)
	require.NoError(t, err)

	for name, d := range map[string]Desc{
		"no mesher":     {Calculator: calc, Maturity: 1, TimeSteps: 10},
		"no calculator": {Mesher: m, Maturity: 1, TimeSteps: 10},
		"zero maturity": {Mesher: m, Calculator: calc, TimeSteps: 10},
		"no steps":      {Mesher: m, Calculator: calc, Maturity: 1},
		"negative damp": {Mesher: m, Calculator: calc, Maturity: 1, TimeSteps: 10, DampingSteps: -1},
		"maturity skew": {Mesher: m, Calculator: calc, Maturity: 1, TimeSteps: 10, Conditions: conds},
	} {
		_, err := NewSolverNd(d, op, scheme.DouglasDesc())
		assert.ErrorIs(t, err, xerrors.ErrInvalidArgument, name)
	}

	good := Desc{Mesher: m, Calculator: calc, Maturity: 1, TimeSteps: 10}
	_, err = NewSolver2d(good, op, scheme.DouglasDesc())
	assert.ErrorIs(t, err, xerrors.ErrDimensionMismatch)

	hm := hestonGrid(t, math.Log(220))
	_, err = NewSolverNd(Desc{Mesher: hm, Calculator: calc, Maturity: 1, TimeSteps: 10}, op, scheme.DouglasDesc())
	assert.ErrorIs(t, err, xerrors.ErrDimensionMismatch)
}

func TestSolutionDerivativesOnLinearPayoff(t *testing.T) {
	// 零利率零波动下解保持初值 V = eˣ.
	p, err := process.NewFlatBlackScholes(100, 0, 0, 1e-8)
	require.NoError(t, err)
	m, err := mesher.NewUniformGrid([]int{101}, [][2]float64{{math.Log(50), math.Log(200)}})
	require.NoError(t, err)
	op, err := operators.NewBlackScholesOp(m, p, 100, 0)
	require.NoError(t, err)
	calc, err := payoff.NewFuncInner(m, func(x []float64, _ float64) float64 { return math.Exp(x[0]) })
	require.NoError(t, err)

	s, err := NewSolver1d(Desc{Mesher: m, Calculator: calc, Maturity: 0.5, TimeSteps: 10}, op, scheme.DouglasDesc())
	require.NoError(t, err)
	sol, err := s.Solve(context.Background())
	require.NoError(t, err)

	x := math.Log(100)
	v, err := sol.Value(x)
	require.NoError(t, err)
	assert.InDelta(t, 100, v, 1e-2)
	d, err := sol.Derivative(x)
	require.NoError(t, err)
	assert.InDelta(t, 100, d, 1e-1)
	th, err := sol.Theta(x)
	require.NoError(t, err)
	assert.InDelta(t, 0, th, 1e-2)

	_, err = sol.Value(math.Log(500))
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)
	_, err = sol.DerivativeAt([]float64{x}, 1)
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)
}
