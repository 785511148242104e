package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/quant/config"
	"github.com/wyfcoding/quant/contextx"
	"github.com/wyfcoding/quant/limiter"
	"github.com/wyfcoding/quant/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequestIDPropagation(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/id", func(c *gin.Context) {
		c.String(http.StatusOK, contextx.GetRequestID(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set(HeaderXRequestID, "abc")
	rec := serve(r, req)
	assert.Equal(t, "abc", rec.Body.String())
	assert.Equal(t, "abc", rec.Header().Get(HeaderXRequestID))

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/id", nil))
	assert.NotEmpty(t, rec.Body.String())
	assert.Equal(t, rec.Body.String(), rec.Header().Get(HeaderXRequestID))
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(Recovery(slog.New(slog.NewJSONHandler(&buf, nil))))
	r.GET("/panic", func(*gin.Context) { panic("grid exploded") })

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "grid exploded")
	assert.NotContains(t, rec.Body.String(), "grid exploded")
}

func TestRateLimit(t *testing.T) {
	l := limiter.NewDynamicFromConfig(config.RateLimitConfig{Enabled: true, Rate: 1, Burst: 1})
	r := gin.New()
	r.Use(RateLimitMiddleware(l))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	rec := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "429102")
}

func TestMaxBodyBytes(t *testing.T) {
	r := gin.New()
	r.Use(MaxBodyBytes(8))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("tiny"))
	assert.Equal(t, http.StatusNoContent, serve(r, req).Code)
}

func TestMaxBodyBytesDisabled(t *testing.T) {
	r := gin.New()
	r.Use(MaxBodyBytes(0))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 1<<16)))
	assert.Equal(t, http.StatusNoContent, serve(r, req).Code)
}

func TestTimeoutMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(TimeoutMiddleware(5 * time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	rec := serve(r, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), "504101")
}

func TestHTTPMetrics(t *testing.T) {
	m := metrics.NewMetrics("test")
	r := gin.New()
	r.Use(HTTPMetricsMiddleware(m, "/metrics"))
	r.GET("/v1/price/:model", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, httptest.NewRequest(http.MethodGet, "/v1/price/heston", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/v1/price/:model", "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/metrics", "200")))
}

func TestLoggerMarksSlowRequests(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(Logger(slog.New(slog.NewJSONHandler(&buf, nil)), time.Nanosecond))
	r.GET("/", func(c *gin.Context) {
		time.Sleep(time.Millisecond)
		c.Status(http.StatusOK)
	})

	serve(r, httptest.NewRequestWithContext(context.Background(), http.MethodGet, "/", nil))
	require.NotEmpty(t, buf.String())
	assert.Contains(t, buf.String(), `"level":"WARN"`)
}

func TestRequestIDRejectsOversizedHeader(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	long := strings.Repeat("a", maxRequestIDLen+1)
	req.Header.Set(HeaderXRequestID, long)
	rec := serve(r, req)
	assert.NotEqual(t, long, rec.Header().Get(HeaderXRequestID))
	assert.NotEmpty(t, rec.Header().Get(HeaderXRequestID))
}

func TestLoggerErrorLevelOn5xx(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(Logger(slog.New(slog.NewJSONHandler(&buf, nil)), 0))
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
	assert.Contains(t, buf.String(), `"route":"/boom"`)
}
