package pricer

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/quant/algorithm/finance"
	"github.com/wyfcoding/quant/fdm/engine"
	"github.com/wyfcoding/quant/fdm/operators"
	"github.com/wyfcoding/quant/fdm/payoff"
	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/fdm/step"
	"github.com/wyfcoding/quant/xerrors"
)

func (p *Pricer) dispatch(ctx context.Context, req Request, cfg engine.Config, opts []engine.Option) (*Response, error) {
	switch req.Model {
	case ModelBlackScholes:
		return priceBlackScholes(ctx, req, cfg, opts)
	case ModelBarrier:
		return priceBarrier(ctx, req, cfg, opts)
	case ModelHeston:
		return priceHeston(ctx, req, cfg, opts)
	case ModelBasket:
		return priceBasket(ctx, req, cfg, opts)
	case ModelHullWhite:
		return priceHullWhite(ctx, req, cfg, opts)
	case ModelHestonHullWhite:
		return priceHestonHullWhite(ctx, req, cfg, opts)
	case ModelDensity:
		return priceDensity(ctx, req, cfg, opts)
	case ModelAnalytic:
		return priceAnalytic(req)
	}
	return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "unknown model %q", req.Model)
}

func (r *Request) blackScholesProcess() (*process.BlackScholes, error) {
	m := r.Market
	return process.NewFlatBlackScholes(f64(m.Spot), f64(m.Rate), f64(m.Dividend), f64(m.Vol))
}

func (r *Request) hestonProcess() (*process.Heston, error) {
	if err := needBlock(r.Heston != nil, r.Model, "heston"); err != nil {
		return nil, err
	}
	m, h := r.Market, r.Heston
	return process.NewHeston(f64(m.Spot),
		process.NewFlatForward(f64(m.Rate)), process.NewFlatForward(f64(m.Dividend)),
		h.V0, h.Kappa, h.Theta, h.Sigma, h.Rho)
}

func (r *Request) hullWhiteProcess() (*process.HullWhite, error) {
	if err := needBlock(r.HullWhite != nil, r.Model, "hull_white"); err != nil {
		return nil, err
	}
	return process.NewHullWhite(process.NewFlatForward(f64(r.Market.Rate)), r.HullWhite.A, r.HullWhite.Sigma)
}

func priceBlackScholes(ctx context.Context, req Request, cfg engine.Config, opts []engine.Option) (*Response, error) {
	proc, err := req.blackScholesProcess()
	if err != nil {
		return nil, err
	}
	opt, err := req.vanillaOption()
	if err != nil {
		return nil, err
	}
	e, err := engine.NewBlackScholesVanilla(proc, cfg, opts...)
	if err != nil {
		return nil, err
	}
	res, err := e.Calculate(ctx, opt)
	if err != nil {
		return nil, err
	}
	return fromResults(req.Model, res), nil
}

func priceBarrier(ctx context.Context, req Request, cfg engine.Config, opts []engine.Option) (*Response, error) {
	if err := needBlock(req.Barrier != nil, req.Model, "barrier"); err != nil {
		return nil, err
	}
	proc, err := req.blackScholesProcess()
	if err != nil {
		return nil, err
	}
	vanilla, err := req.vanillaOption()
	if err != nil {
		return nil, err
	}
	bt, err := engine.ParseBarrierType(req.Barrier.Type)
	if err != nil {
		return nil, err
	}
	opt := engine.BarrierOption{
		VanillaOption: vanilla,
		Type:          bt,
		Barrier:       f64(req.Barrier.Level),
		Rebate:        f64(req.Barrier.Rebate),
	}
	for _, t := range req.Barrier.Monitoring {
		opt.Monitoring = append(opt.Monitoring, f64(t))
	}
	e, err := engine.NewBlackScholesBarrier(proc, cfg, opts...)
	if err != nil {
		return nil, err
	}
	res, err := e.Calculate(ctx, opt)
	if err != nil {
		return nil, err
	}
	return fromResults(req.Model, res), nil
}

func priceHeston(ctx context.Context, req Request, cfg engine.Config, opts []engine.Option) (*Response, error) {
	proc, err := req.hestonProcess()
	if err != nil {
		return nil, err
	}
	if req.Heston.Transform != "" {
		if cfg.Transform, err = operators.ParseVarianceTransform(req.Heston.Transform); err != nil {
			return nil, err
		}
	}
	opt, err := req.vanillaOption()
	if err != nil {
		return nil, err
	}
	e, err := engine.NewHestonVanilla(proc, cfg, opts...)
	if err != nil {
		return nil, err
	}
	res, err := e.Calculate(ctx, opt)
	if err != nil {
		return nil, err
	}
	return fromResults(req.Model, res), nil
}

func priceBasket(ctx context.Context, req Request, cfg engine.Config, opts []engine.Option) (*Response, error) {
	if err := needBlock(req.Basket != nil, req.Model, "basket"); err != nil {
		return nil, err
	}
	b := req.Basket
	n := len(b.Spots)
	if len(b.Vols) != n || (len(b.Dividends) != 0 && len(b.Dividends) != n) {
		return nil, xerrors.Derive(xerrors.ErrDimensionMismatch, "basket has %d spots, %d vols and %d dividend yields", n, len(b.Vols), len(b.Dividends))
	}
	procs := make([]process.Process, n)
	for i := range b.Spots {
		q := 0.0
		if len(b.Dividends) > 0 {
			q = f64(b.Dividends[i])
		}
		bs, err := process.NewFlatBlackScholes(f64(b.Spots[i]), f64(req.Market.Rate), q, f64(b.Vols[i]))
		if err != nil {
			return nil, err
		}
		procs[i] = bs
	}

	strike := f64(req.Strike)
	var basket payoff.Basket
	if b.Expression != "" {
		expr, err := payoff.NewExpression(b.Expression, strike, n)
		if err != nil {
			return nil, err
		}
		basket = expr
	} else {
		vanilla, err := req.vanillaPayoff()
		if err != nil {
			return nil, err
		}
		kind := b.Kind
		if kind == "" {
			kind = "average"
		}
		if basket, err = payoff.NewBasket(kind, vanilla, n, b.Weights); err != nil {
			return nil, err
		}
	}
	ex, err := req.exercise()
	if err != nil {
		return nil, err
	}

	e, err := engine.NewBasket(procs, b.Correlation, cfg, opts...)
	if err != nil {
		return nil, err
	}
	res, err := e.Calculate(ctx, engine.BasketOption{Payoff: basket, Strike: strike, Exercise: ex})
	if err != nil {
		return nil, err
	}
	return fromResults(req.Model, res), nil
}

func priceHullWhite(ctx context.Context, req Request, cfg engine.Config, opts []engine.Option) (*Response, error) {
	proc, err := req.hullWhiteProcess()
	if err != nil {
		return nil, err
	}
	t, err := req.optionType()
	if err != nil {
		return nil, err
	}
	ex, err := req.exercise()
	if err != nil {
		return nil, err
	}
	e, err := engine.NewHullWhiteBondOption(proc, cfg, opts...)
	if err != nil {
		return nil, err
	}
	res, err := e.Calculate(ctx, engine.BondOption{
		Type:         t,
		Strike:       f64(req.Strike),
		BondMaturity: f64(req.HullWhite.BondMaturity),
		Exercise:     ex,
	})
	if err != nil {
		return nil, err
	}
	return fromResults(req.Model, res), nil
}

func priceHestonHullWhite(ctx context.Context, req Request, cfg engine.Config, opts []engine.Option) (*Response, error) {
	h, err := req.hestonProcess()
	if err != nil {
		return nil, err
	}
	hw, err := req.hullWhiteProcess()
	if err != nil {
		return nil, err
	}
	opt, err := req.vanillaOption()
	if err != nil {
		return nil, err
	}
	e, err := engine.NewHestonHullWhiteVanilla(h, hw, req.HullWhite.EquityCorrelation, cfg, opts...)
	if err != nil {
		return nil, err
	}
	res, err := e.Calculate(ctx, opt)
	if err != nil {
		return nil, err
	}
	return fromResults(req.Model, res), nil
}

// priceDensity Market 只用到利率与股息率占位，现货取 1.
func priceDensity(ctx context.Context, req Request, cfg engine.Config, opts []engine.Option) (*Response, error) {
	if err := needBlock(req.Density != nil, req.Model, "density"); err != nil {
		return nil, err
	}
	if req.Market.Spot.IsZero() {
		req.Market.Spot = decimal.NewFromInt(1)
	}
	h, err := req.hestonProcess()
	if err != nil {
		return nil, err
	}
	d := req.Density
	tr, err := operators.ParseDensityTransform(d.Transform)
	if err != nil {
		return nil, err
	}
	var initial engine.InitialCondition
	if d.Initial == "stationary" {
		initial = engine.NewStationaryGamma(h)
	} else if initial, err = engine.ParseInitialCondition(d.Initial, d.Width); err != nil {
		return nil, err
	}
	e, err := engine.NewSquareRootDensity(h, tr, initial, cfg, opts...)
	if err != nil {
		return nil, err
	}
	dens, err := e.Calculate(ctx, f64(d.Horizon))
	if err != nil {
		return nil, err
	}
	return &Response{
		Model:   req.Model,
		Value:   round(dens.Mean),
		Extra:   map[string]decimal.Decimal{"mass": round(dens.Mass)},
		Density: dens,
	}, nil
}

// priceAnalytic 欧式期权闭式解，Extra 给出 vega 与 rho. 只给报价时先反解隐含波动率.
func priceAnalytic(req Request) (*Response, error) {
	t, err := req.optionType()
	if err != nil {
		return nil, err
	}
	if req.Exercise != "" {
		et, err := step.ParseExerciseType(req.Exercise)
		if err != nil {
			return nil, err
		}
		if et != step.ExerciseEuropean {
			return nil, xerrors.Derive(xerrors.ErrUnsupportedExercise, "analytic model prices european exercise only, got %q", req.Exercise)
		}
	}
	if len(req.Dividends) > 0 {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "analytic model does not take cash dividends")
	}
	m := req.Market
	extra := make(map[string]decimal.Decimal, 3)
	if m.Vol.IsZero() && m.Price.IsPositive() {
		vol, err := finance.NewBlackScholesCalculator().CalculateImpliedVolatility(string(t), m.Spot, req.Strike, req.Maturity, m.Rate, m.Dividend, m.Price)
		if err != nil {
			return nil, err
		}
		m.Vol = vol
		extra["implied_vol"] = round(vol.InexactFloat64())
	}
	g, err := finance.BlackScholes(t, finance.BlackScholesInput{
		Spot:     f64(m.Spot),
		Strike:   f64(req.Strike),
		Rate:     f64(m.Rate),
		Dividend: f64(m.Dividend),
		Vol:      f64(m.Vol),
		Expiry:   f64(req.Maturity),
	})
	if err != nil {
		return nil, err
	}
	extra["vega"], extra["rho"] = round(g.Vega), round(g.Rho)
	return &Response{
		Model: req.Model,
		Value: round(g.Price),
		Delta: round(g.Delta),
		Gamma: round(g.Gamma),
		Theta: round(g.Theta),
		Extra: extra,
	}, nil
}
