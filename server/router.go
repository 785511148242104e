package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/quant/config"
	"github.com/wyfcoding/quant/fdm/scheme"
	"github.com/wyfcoding/quant/health"
	"github.com/wyfcoding/quant/limiter"
	"github.com/wyfcoding/quant/metrics"
	"github.com/wyfcoding/quant/middleware"
	"github.com/wyfcoding/quant/pricer"
	"github.com/wyfcoding/quant/response"
)

// NewRouter 组装定价服务的路由与中间件. m 为 nil 时不暴露指标，rl 为 nil 时不限流.
func NewRouter(cfg *config.Config, p *pricer.Pricer, m *metrics.Metrics, rl limiter.Limiter, logger *slog.Logger) *gin.Engine {
	skip := []string{"/healthz", "/readyz", cfg.Metrics.Path}
	mws := []gin.HandlerFunc{
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.TracingMiddleware(cfg.Server.Name, skip...),
		middleware.Logger(logger, cfg.Log.SlowThreshold),
	}
	if m != nil {
		mws = append(mws, middleware.HTTPMetricsMiddleware(m, skip...))
	}
	r := NewDefaultGinEngine(cfg.Server.Environment, mws...)

	r.GET("/healthz", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok", "version": cfg.Version})
	})
	ready := health.NewRegistry(0)
	ready.Register("cache", health.CacheChecker(p.Cache()))
	ready.Register("solver", health.SolverChecker(func() scheme.Desc { return p.Config().Scheme }))
	r.GET("/readyz", ready.Handler())
	if m != nil && cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	v1 := r.Group("/v1", middleware.MaxBodyBytes(cfg.Server.HTTP.MaxBodyBytes))
	if rl != nil {
		v1.Use(middleware.RateLimitMiddleware(rl))
	}
	v1.Use(middleware.TimeoutMiddleware(cfg.Engine.Timeout))
	pricer.NewHandler(p, pricer.DefaultMaxBatch).Register(v1)

	r.NoRoute(func(c *gin.Context) {
		response.ErrorWithStatus(c, http.StatusNotFound, "not found", c.Request.URL.Path)
	})
	return r
}
