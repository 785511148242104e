// Package metrics 封装独立的 Prometheus 注册表，以及 HTTP、回滚与定价请求的预定义指标。
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 封装了基于 Prometheus 的指标采集注册表及预定义的标准监控指标。
type Metrics struct {
	registry *prometheus.Registry // 内部独立的 Prometheus 注册中心

	HTTPRequestsTotal   *prometheus.CounterVec   // HTTP 请求总量 (维度: method, path, status)
	HTTPRequestDuration *prometheus.HistogramVec // HTTP 请求耗时分布

	RollbacksTotal   *prometheus.CounterVec   // 回滚次数 (维度: scheme, status)
	RollbackDuration *prometheus.HistogramVec // 回滚耗时分布
	TimeStepsTotal   *prometheus.CounterVec   // 实际推进的时间步总数

	PricerRequestsTotal   *prometheus.CounterVec   // 定价请求 (维度: model, status)
	PricerRequestDuration *prometheus.HistogramVec // 定价耗时分布
	PricerCacheHits       *prometheus.CounterVec   // 缓存命中 (维度: model)

	BuildInfo *prometheus.GaugeVec
}

// NewMetrics 初始化并返回一个新的指标采集器。
// 它会自动注册 Go 运行时指标和进程指标。
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "http_server_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	m.HTTPRequestDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_server_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.RollbacksTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "fdm_rollbacks_total",
		Help: "Total number of finite-difference rollbacks",
	}, []string{"scheme", "status"})

	// 大网格的多维回滚可达数十秒.
	m.RollbackDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fdm_rollback_duration_seconds",
		Help:    "Finite-difference rollback latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 9),
	}, []string{"scheme"})

	m.TimeStepsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "fdm_time_steps_total",
		Help: "Total number of time steps taken by all rollbacks",
	}, []string{"scheme"})

	m.PricerRequestsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "pricer_requests_total",
		Help: "Total number of pricing requests",
	}, []string{"model", "status"})

	m.PricerRequestDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pricer_request_duration_seconds",
		Help:    "Pricing latency in seconds, cache hits included",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	}, []string{"model"})

	m.PricerCacheHits = m.NewCounterVec(prometheus.CounterOpts{
		Name: "pricer_cache_hits_total",
		Help: "Total number of pricing requests served from cache",
	}, []string{"model"})

	slog.Info("unified metrics registry initialized", "service", serviceName)
	return m
}

// NewCounterVec 创建并注册一个新的计数器指标。
func (m *Metrics) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

// NewGaugeVec 创建并注册一个新的仪表盘指标。
func (m *Metrics) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(opts, labelNames)
	m.registry.MustRegister(gv)
	return gv
}

// NewHistogramVec 创建并注册一个新的直方图指标。
func (m *Metrics) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

// Handler 返回用于暴露指标的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 供测试读取指标.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
