package pricer

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/quant/algorithm/finance"
	"github.com/wyfcoding/quant/cache"
	"github.com/wyfcoding/quant/config"
	"github.com/wyfcoding/quant/fdm/engine"
	"github.com/wyfcoding/quant/fdm/payoff"
	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/fdm/scheme"
	"github.com/wyfcoding/quant/metrics"
	"github.com/wyfcoding/quant/xerrors"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testEngineConfig() config.EngineConfig {
	cfg := config.DefaultEngineConfig()
	cfg.Scheme = "douglas"
	cfg.DampingSteps = 2
	cfg.XGrid, cfg.VGrid, cfg.RGrid, cfg.BasketGrid = 151, 41, 51, 31
	cfg.Timeout = time.Minute
	return cfg
}

func atmCall(model Model) Request {
	return Request{
		Model:      model,
		OptionType: "call",
		Strike:     dec("100"),
		Maturity:   dec("1"),
		Market:     Market{Spot: dec("100"), Rate: dec("0.05"), Vol: dec("0.2")},
	}
}

func newTestPricer(t *testing.T, opts ...Option) *Pricer {
	t.Helper()
	p, err := New(testEngineConfig(), opts...)
	require.NoError(t, err)
	return p
}

func TestEngineConfigMapping(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	ec, err := EngineConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, scheme.HundsdorferDesc(), ec.Scheme)
	assert.Equal(t, 200, ec.XGrid)

	cfg.Scheme, cfg.Theta = "Craig-Sneyd", 0.7
	ec, err = EngineConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, scheme.CraigSneyd, ec.Scheme.Type)
	assert.Equal(t, 0.7, ec.Scheme.Theta)
	assert.Equal(t, 0.5, ec.Scheme.Mu)

	cfg.Scheme = "crank"
	_, err = EngineConfig(cfg)
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)

	cfg = config.DefaultEngineConfig()
	cfg.VarianceTransform = "sqrt"
	_, err = EngineConfig(cfg)
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)
}

func TestPriceBlackScholesAgainstClosedForm(t *testing.T) {
	p := newTestPricer(t)
	ctx := context.Background()

	want, err := finance.BlackScholes(payoff.Call, finance.BlackScholesInput{Spot: 100, Strike: 100, Rate: 0.05, Vol: 0.2, Expiry: 1})
	require.NoError(t, err)

	fd, err := p.Price(ctx, atmCall(ModelBlackScholes))
	require.NoError(t, err)
	assert.InDelta(t, want.Price, fd.Value.InexactFloat64(), 3e-2)
	assert.InDelta(t, want.Delta, fd.Delta.InexactFloat64(), 3e-3)
	assert.NotEmpty(t, fd.RunID)
	assert.False(t, fd.Cached)

	cf, err := p.Price(ctx, atmCall(ModelAnalytic))
	require.NoError(t, err)
	assert.InDelta(t, 10.4506, cf.Value.InexactFloat64(), 1e-4)
	assert.Contains(t, cf.Extra, "vega")
}

func TestPriceAnalyticImpliesVolFromQuote(t *testing.T) {
	p := newTestPricer(t)
	req := atmCall(ModelAnalytic)
	req.Market.Vol = decimal.Zero
	req.Market.Price = dec("10.450583572185565")

	res, err := p.Price(context.Background(), req)
	require.NoError(t, err)
	require.Contains(t, res.Extra, "implied_vol")
	assert.InDelta(t, 0.2, res.Extra["implied_vol"].InexactFloat64(), 1e-6)
	assert.InDelta(t, 10.4506, res.Value.InexactFloat64(), 1e-4)
}

func TestPriceServesRepeatsFromCache(t *testing.T) {
	c, err := cache.NewBigCache(context.Background(), config.Default().Cache)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	m := metrics.NewMetrics("test")
	p := newTestPricer(t, WithCache(c), WithMetrics(m))
	ctx := context.Background()

	req := atmCall(ModelBlackScholes)
	req.Engine = &EngineOverrides{TimeSteps: 20, XGrid: 61}
	first, err := p.Price(ctx, req)
	require.NoError(t, err)

	req.Strike = dec("100.000")
	second, err := p.Price(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.True(t, first.Value.Equal(second.Value))
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PricerCacheHits.WithLabelValues("blackscholes")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PricerRequestsTotal.WithLabelValues("blackscholes", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RollbacksTotal.WithLabelValues("douglas", "ok")))
}

// memoryCache 在进程内保存结果指针，Get 时浅拷贝结构体.
type memoryCache struct {
	cache.Nop
	items map[string]*Response
}

func (c *memoryCache) Get(_ context.Context, key string, value any) error {
	r, ok := c.items[key]
	if !ok {
		return cache.ErrMiss
	}
	*value.(*Response) = *r
	return nil
}

func (c *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	c.items[key] = value.(*Response)
	return nil
}

func TestPriceResponsesDoNotShareState(t *testing.T) {
	p := newTestPricer(t, WithCache(&memoryCache{items: map[string]*Response{}}))
	ctx := context.Background()
	req := atmCall(ModelAnalytic)
	req.Market.Vol = decimal.Zero
	req.Market.Price = dec("10.450583572185565")

	first, err := p.Price(ctx, req)
	require.NoError(t, err)
	require.Contains(t, first.Extra, "implied_vol")
	first.Extra["implied_vol"] = dec("-1")
	first.Extra["note"] = dec("1")

	second, err := p.Price(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.NotContains(t, second.Extra, "note")
	assert.InDelta(t, 0.2, second.Extra["implied_vol"].InexactFloat64(), 1e-6)
}

func TestResponseCloneCopiesDensity(t *testing.T) {
	r := &Response{
		Extra:   map[string]decimal.Decimal{"mass": dec("1")},
		Density: &engine.Density{V: []float64{0.01, 0.02}, P: []float64{3, 4}, Mass: 1},
	}
	c := r.clone()
	c.Extra["mass"] = dec("2")
	c.Density.P[0] = 0
	c.Density.Mass = 0

	assert.True(t, r.Extra["mass"].Equal(dec("1")))
	assert.Equal(t, []float64{3, 4}, r.Density.P)
	assert.Equal(t, 1.0, r.Density.Mass)
}

func TestCacheKey(t *testing.T) {
	p := newTestPricer(t)
	a, b := atmCall(ModelHeston), atmCall(ModelHeston)
	b.Market.Spot = dec("100.00")

	ka, err := CacheKey(a, p.Config())
	require.NoError(t, err)
	kb, err := CacheKey(b, p.Config())
	require.NoError(t, err)
	assert.Equal(t, ka, kb)

	other := p.Config()
	other.TimeSteps++
	kc, err := CacheKey(a, other)
	require.NoError(t, err)
	assert.NotEqual(t, ka, kc)
}

func TestPriceRejectsBadRequests(t *testing.T) {
	p := newTestPricer(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*Request)
		want   *xerrors.Error
	}{
		{"unknown model", func(r *Request) { r.Model = "sabr" }, xerrors.ErrInvalidArgument},
		{"bad option type", func(r *Request) { r.OptionType = "straddle" }, xerrors.ErrInvalidOptionType},
		{"missing heston block", func(r *Request) { r.Model = ModelHeston }, xerrors.ErrInvalidArgument},
		{"bermudan without dates", func(r *Request) { r.Exercise = "bermudan" }, xerrors.ErrInvalidArgument},
		{"zero maturity", func(r *Request) { r.Maturity = decimal.Zero }, xerrors.ErrInvalidArgument},
		{"american analytic", func(r *Request) { r.Model, r.Exercise = ModelAnalytic, "american" }, xerrors.ErrUnsupportedExercise},
		{"american barrier", func(r *Request) {
			r.Model, r.Exercise = ModelBarrier, "american"
			r.Barrier = &BarrierParams{Type: "down-out", Level: dec("90")}
		}, xerrors.ErrUnsupportedExercise},
		{"bad override", func(r *Request) { r.Engine = &EngineOverrides{Scheme: "leapfrog"} }, xerrors.ErrInvalidArgument},
		{"basket size mismatch", func(r *Request) {
			r.Model = ModelBasket
			r.Basket = &BasketParams{Spots: []decimal.Decimal{dec("100"), dec("100")}, Vols: []decimal.Decimal{dec("0.2")}}
		}, xerrors.ErrDimensionMismatch},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := atmCall(ModelBlackScholes)
			c.mutate(&req)
			_, err := p.Price(ctx, req)
			assert.ErrorIs(t, err, c.want)
		})
	}
}

func TestPriceBatchKeepsOrder(t *testing.T) {
	p := newTestPricer(t)
	put := atmCall(ModelAnalytic)
	put.OptionType = "put"
	bad := atmCall(ModelAnalytic)
	bad.Market.Vol = decimal.Zero

	results, err := p.PriceBatch(context.Background(), []Request{atmCall(ModelAnalytic), bad, put})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
	assert.InDelta(t, 10.4506, results[0].Response.Value.InexactFloat64(), 1e-4)
	assert.Nil(t, results[1].Response)
	assert.Equal(t, xerrors.ErrInvalidArgument.Code, results[1].Code)
	assert.InDelta(t, 5.5735, results[2].Response.Value.InexactFloat64(), 1e-4)
	assert.Equal(t, results[0].Response.RunID, results[2].Response.RunID)

	_, err = p.PriceBatch(context.Background(), nil)
	assert.ErrorIs(t, err, xerrors.ErrInvalidArgument)
}

func TestPriceHonoursCancellation(t *testing.T) {
	p := newTestPricer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Price(ctx, atmCall(ModelBlackScholes))
	assert.ErrorIs(t, err, xerrors.ErrDeadline)
}

func TestReload(t *testing.T) {
	p := newTestPricer(t)
	cfg := testEngineConfig()
	cfg.Scheme = "modified-hundsdorfer"
	require.NoError(t, p.Reload(cfg))
	assert.Equal(t, scheme.ModifiedHundsdorfer, p.Config().Scheme.Type)

	cfg.TimeSteps = 0
	assert.Error(t, p.Reload(cfg))
	assert.Equal(t, scheme.ModifiedHundsdorfer, p.Config().Scheme.Type, "rejected config leaves the previous one active")
}

func TestPriceHullWhiteBondOption(t *testing.T) {
	p := newTestPricer(t)
	req := Request{
		Model:      ModelHullWhite,
		OptionType: "put",
		Strike:     dec("0.89"),
		Maturity:   dec("2"),
		Market:     Market{Rate: dec("0.04")},
		HullWhite:  &HullWhiteParams{A: 0.1, Sigma: 0.01, BondMaturity: dec("5")},
	}
	got, err := p.Price(context.Background(), req)
	require.NoError(t, err)

	want, err := finance.HullWhiteZeroBondOption(payoff.Put, process.NewFlatForward(0.04), 0.1, 0.01, 0.89, 2, 5)
	require.NoError(t, err)
	assert.InEpsilon(t, want, got.Value.InexactFloat64(), 5e-2)
}

func TestPriceDensity(t *testing.T) {
	p := newTestPricer(t)
	req := Request{
		Model:   ModelDensity,
		Heston:  &HestonParams{V0: 0.04, Kappa: 2, Theta: 0.04, Sigma: 0.2},
		Density: &DensityParams{Horizon: dec("0.5"), Transform: "plain", Initial: "stationary"},
		Engine:  &EngineOverrides{VGrid: 101},
	}
	got, err := p.Price(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, got.Density)
	assert.InDelta(t, 1, got.Extra["mass"].InexactFloat64(), 3e-2)
	assert.InEpsilon(t, 0.04, got.Value.InexactFloat64(), 5e-2)
}

func TestPriceBasketExpression(t *testing.T) {
	p := newTestPricer(t)
	req := atmCall(ModelBasket)
	req.Strike = dec("5")
	req.Maturity = dec("0.5")
	req.Basket = &BasketParams{
		Expression:  "max(s1 - s2 - k, 0)",
		Spots:       []decimal.Decimal{dec("110"), dec("100")},
		Vols:        []decimal.Decimal{dec("0.2"), dec("0.15")},
		Correlation: [][]float64{{1, 0.5}, {0.5, 1}},
	}
	got, err := p.Price(context.Background(), req)
	require.NoError(t, err)
	assert.Greater(t, got.Value.InexactFloat64(), 0.0)
	assert.Contains(t, got.Extra, "delta2")
}
