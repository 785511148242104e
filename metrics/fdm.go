package metrics

import (
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wyfcoding/quant/fdm/scheme"
	"github.com/wyfcoding/quant/xerrors"
)

// ObserveRollback 实现 solver.Observer.
func (m *Metrics) ObserveRollback(s scheme.Type, steps int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	label := string(s)
	m.RollbacksTotal.WithLabelValues(label, Status(err)).Inc()
	m.RollbackDuration.WithLabelValues(label).Observe(elapsed.Seconds())
	m.TimeStepsTotal.WithLabelValues(label).Add(float64(steps))
}

// ObservePrice 记录一次定价请求.
func (m *Metrics) ObservePrice(model string, cached bool, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.PricerRequestsTotal.WithLabelValues(model, Status(err)).Inc()
	m.PricerRequestDuration.WithLabelValues(model).Observe(elapsed.Seconds())
	if cached {
		m.PricerCacheHits.WithLabelValues(model).Inc()
	}
}

// Status 把错误归并为低基数的标签值: ok、错误大类或 error.
func Status(err error) string {
	if err == nil {
		return "ok"
	}
	if e, ok := xerrors.FromError(err); ok {
		return strings.ToLower(e.Type.String())
	}
	return "error"
}

// RegisterBuildInfo 以常量 1 暴露服务名、版本与 Go 版本，重复调用无效果.
func (m *Metrics) RegisterBuildInfo(service, version string) {
	if m == nil || m.BuildInfo != nil {
		return
	}
	m.BuildInfo = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Service build metadata, always 1.",
	}, []string{"service", "version", "go_version"})
	m.BuildInfo.WithLabelValues(orUnknown(service), orUnknown(version), runtime.Version()).Set(1)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
