package metrics

import (
	"errors"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/wyfcoding/quant/fdm/scheme"
	"github.com/wyfcoding/quant/xerrors"
)

func TestObserveRollback(t *testing.T) {
	m := NewMetrics("test")
	m.ObserveRollback(scheme.Hundsdorfer, 100, 20*time.Millisecond, nil)
	m.ObserveRollback(scheme.Hundsdorfer, 7, time.Millisecond, xerrors.Derive(xerrors.ErrNonFinite, "nan at t=0.3"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RollbacksTotal.WithLabelValues("hundsdorfer", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RollbacksTotal.WithLabelValues("hundsdorfer", "numerical")))
	assert.Equal(t, 107.0, testutil.ToFloat64(m.TimeStepsTotal.WithLabelValues("hundsdorfer")))
}

func TestObservePrice(t *testing.T) {
	m := NewMetrics("test")
	m.ObservePrice("heston", false, time.Second, nil)
	m.ObservePrice("heston", true, time.Microsecond, nil)
	m.ObservePrice("barrier", false, time.Millisecond, xerrors.Derive(xerrors.ErrUnsupportedExercise, "american barrier"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PricerRequestsTotal.WithLabelValues("heston", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PricerCacheHits.WithLabelValues("heston")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PricerRequestsTotal.WithLabelValues("barrier", "unsupported")))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "ok", Status(nil))
	assert.Equal(t, "invalidarg", Status(xerrors.ErrInvalidArgument))
	assert.Equal(t, "error", Status(errors.New("boom")))
}

func TestHandlerExposesBuildInfo(t *testing.T) {
	var nilMetrics *Metrics
	nilMetrics.ObserveRollback(scheme.Douglas, 1, 0, nil)

	m := NewMetrics("test")
	m.RegisterBuildInfo("fdm-pricer", "1.0.0")
	m.RegisterBuildInfo("ignored", "2.0.0")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `build_info{go_version="`+runtime.Version()+`",service="fdm-pricer",version="1.0.0"} 1`))
	assert.False(t, strings.Contains(body, "2.0.0"))
}
