// Package pricer 把有限差分引擎包装成带缓存、度量与追踪的定价服务.
//
// 同一个 Pricer 可被多个 goroutine 同时使用; 相同请求并发到达时只回滚一次.
package pricer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"

	"github.com/wyfcoding/quant/cache"
	"github.com/wyfcoding/quant/config"
	"github.com/wyfcoding/quant/contextx"
	"github.com/wyfcoding/quant/fdm/engine"
	"github.com/wyfcoding/quant/fdm/operators"
	"github.com/wyfcoding/quant/fdm/scheme"
	"github.com/wyfcoding/quant/idgen"
	"github.com/wyfcoding/quant/limiter"
	"github.com/wyfcoding/quant/metrics"
	"github.com/wyfcoding/quant/tracing"
	"github.com/wyfcoding/quant/xerrors"
)

// EngineConfig 把服务配置映射为引擎配置. Theta 与 Mu 为 0 时取格式预设值.
func EngineConfig(cfg config.EngineConfig) (engine.Config, error) {
	out := engine.DefaultConfig()
	if cfg.Scheme != "" {
		t, err := scheme.Parse(cfg.Scheme)
		if err != nil {
			return engine.Config{}, err
		}
		if out.Scheme, err = scheme.Preset(t); err != nil {
			return engine.Config{}, err
		}
	}
	if cfg.Theta > 0 {
		out.Scheme.Theta = cfg.Theta
	}
	if cfg.Mu > 0 {
		out.Scheme.Mu = cfg.Mu
	}
	tr, err := operators.ParseVarianceTransform(cfg.VarianceTransform)
	if err != nil {
		return engine.Config{}, err
	}
	out.Transform = tr
	out.TimeSteps = cfg.TimeSteps
	out.DampingSteps = cfg.DampingSteps
	out.XGrid, out.VGrid, out.RGrid, out.BasketGrid = cfg.XGrid, cfg.VGrid, cfg.RGrid, cfg.BasketGrid
	return out, out.Validate()
}

// settings 可热更新的部分.
type settings struct {
	engine  engine.Config
	timeout time.Duration
	workers int
}

// Pricer 定价服务.
type Pricer struct {
	current  atomic.Pointer[settings]
	cache    cache.Cache
	metrics  *metrics.Metrics
	logger   *slog.Logger
	slots    *limiter.Slots
	group    singleflight.Group
	validate *validator.Validate
}

// Option Pricer 可选参数.
type Option func(*Pricer)

// WithCache 结果缓存，默认不缓存.
func WithCache(c cache.Cache) Option {
	return func(p *Pricer) {
		if c != nil {
			p.cache = c
		}
	}
}

// WithMetrics 同时作为回滚的度量钩子.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pricer) { p.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pricer) {
		if l != nil {
			p.logger = l
		}
	}
}

// New 按服务配置创建 Pricer. Workers 同时限制单个批次的并行度与全局并发回滚数.
func New(cfg config.EngineConfig, opts ...Option) (*Pricer, error) {
	p := &Pricer{
		cache:    cache.Nop{},
		logger:   slog.Default(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	s, err := newSettings(cfg)
	if err != nil {
		return nil, err
	}
	p.current.Store(s)
	p.slots = limiter.NewSlots(s.workers)
	return p, nil
}

func newSettings(cfg config.EngineConfig) (*settings, error) {
	ec, err := EngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &settings{engine: ec, timeout: cfg.Timeout, workers: workers}, nil
}

// Reload 替换默认离散参数与超时，并发上限在重启前保持不变. 作为配置热更新回调使用.
func (p *Pricer) Reload(cfg config.EngineConfig) error {
	s, err := newSettings(cfg)
	if err != nil {
		p.logger.Error("engine config rejected", "error", err)
		return err
	}
	s.workers = p.current.Load().workers
	p.current.Store(s)
	p.logger.Info("engine config reloaded", "scheme", s.engine.Scheme.String(), "time_steps", s.engine.TimeSteps)
	return nil
}

// Config 当前生效的默认引擎配置.
func (p *Pricer) Config() engine.Config {
	return p.current.Load().engine
}

// Cache 定价结果缓存，未配置时为 cache.Nop.
func (p *Pricer) Cache() cache.Cache {
	return p.cache
}

// Price 定价单个请求. 命中缓存时不回滚，Cached 为 true.
func (p *Pricer) Price(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	if contextx.GetRunID(ctx) == "" {
		ctx = contextx.WithRunID(ctx, idgen.GenRunID())
	}
	ctx, span := tracing.StartSpan(ctx, "pricer.Price")
	defer span.End()
	tracing.AddTag(ctx, "model", string(req.Model))

	resp, cached, err := p.price(ctx, req)
	p.metrics.ObservePrice(string(req.Model), cached, time.Since(start), err)
	if err != nil {
		tracing.SetError(ctx, err)
		p.logger.WarnContext(ctx, "pricing failed", "model", req.Model, "error", err)
		return nil, err
	}
	out := resp.clone()
	out.RunID = contextx.GetRunID(ctx)
	out.Cached = cached
	out.TraceID = tracing.GetTraceID(ctx)
	p.logger.InfoContext(ctx, "priced", "model", req.Model, "cached", cached, "value", out.Value.String(), "elapsed", time.Since(start))
	return out, nil
}

func (p *Pricer) price(ctx context.Context, req Request) (*Response, bool, error) {
	if err := p.validate.Struct(req); err != nil {
		return nil, false, xerrors.Derive(xerrors.ErrInvalidArgument, "%v", err)
	}
	s := p.current.Load()
	cfg, err := applyOverrides(s.engine, req.Engine)
	if err != nil {
		return nil, false, err
	}
	key, err := CacheKey(req, cfg)
	if err != nil {
		return nil, false, err
	}

	var hit Response
	switch err := p.cache.Get(ctx, key, &hit); {
	case err == nil:
		return &hit, true, nil
	case !errors.Is(err, cache.ErrMiss):
		p.logger.WarnContext(ctx, "cache read failed", "error", err)
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		resp, err := p.compute(ctx, req, cfg, s.timeout)
		if err != nil {
			return nil, err
		}
		if err := p.cache.Set(ctx, key, resp, 0); err != nil {
			p.logger.WarnContext(ctx, "cache write failed", "error", err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Response), false, nil
}

// compute 占用一个回滚名额后按模型分派.
func (p *Pricer) compute(ctx context.Context, req Request, cfg engine.Config, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := p.slots.Acquire(ctx); err != nil {
		return nil, err
	}
	defer p.slots.Release()

	ctx, span := tracing.StartSpan(ctx, "fdm."+string(req.Model))
	defer span.End()
	tracing.AddTag(ctx, "scheme", string(cfg.Scheme.Type))
	tracing.AddTag(ctx, "time_steps", cfg.TimeSteps)

	opts := []engine.Option{engine.WithLogger(p.logger)}
	if p.metrics != nil {
		opts = append(opts, engine.WithObserver(p.metrics))
	}
	resp, err := p.dispatch(ctx, req, cfg, opts)
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}
	return resp, nil
}

// applyOverrides 请求级参数覆盖默认配置.
func applyOverrides(cfg engine.Config, o *EngineOverrides) (engine.Config, error) {
	if o == nil {
		return cfg, nil
	}
	if o.Scheme != "" {
		t, err := scheme.Parse(o.Scheme)
		if err != nil {
			return engine.Config{}, err
		}
		if cfg.Scheme, err = scheme.Preset(t); err != nil {
			return engine.Config{}, err
		}
	}
	set := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	set(&cfg.TimeSteps, o.TimeSteps)
	set(&cfg.DampingSteps, o.DampingSteps)
	set(&cfg.XGrid, o.XGrid)
	set(&cfg.VGrid, o.VGrid)
	set(&cfg.RGrid, o.RGrid)
	set(&cfg.BasketGrid, o.BasketGrid)
	return cfg, cfg.Validate()
}

// CacheKey 请求与生效引擎配置的规范 JSON 的 SHA-256. decimal 按数值序列化，
// "1.0" 与 "1" 得到同一个键.
func CacheKey(req Request, cfg engine.Config) (string, error) {
	req.Engine = nil
	b, err := json.Marshal(struct {
		Request Request       `json:"request"`
		Engine  engine.Config `json:"engine"`
	}{req, cfg})
	if err != nil {
		return "", xerrors.WrapInternal(err, "marshal cache key")
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Result 批量定价中单个请求的结果，Error 非空时 Response 为 nil.
type Result struct {
	Index    int       `json:"index"`
	Response *Response `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`
	Code     int       `json:"code,omitempty"`
}

// PriceBatch 在有界 goroutine 池上并行定价，单个请求失败不影响其他请求.
// 所有请求共享同一个运行号，结果顺序与输入一致.
func (p *Pricer) PriceBatch(ctx context.Context, reqs []Request) ([]Result, error) {
	if len(reqs) == 0 {
		return nil, xerrors.Derive(xerrors.ErrInvalidArgument, "empty batch")
	}
	if contextx.GetRunID(ctx) == "" {
		ctx = contextx.WithRunID(ctx, idgen.GenRunID())
	}
	ctx, span := tracing.StartSpan(ctx, "pricer.PriceBatch")
	defer span.End()
	tracing.AddTag(ctx, "size", len(reqs))

	results := make([]Result, len(reqs))
	wp := pool.New().WithMaxGoroutines(p.current.Load().workers)
	for i := range reqs {
		wp.Go(func() {
			results[i].Index = i
			resp, err := p.Price(ctx, reqs[i])
			if err != nil {
				results[i].Error = err.Error()
				if e, ok := xerrors.FromError(err); ok {
					results[i].Code = e.Code
				}
				return
			}
			results[i].Response = resp
		})
	}
	wp.Wait()
	if err := ctx.Err(); err != nil {
		return results, xerrors.Derive(xerrors.ErrDeadline, "batch interrupted: %v", err)
	}
	return results, nil
}
