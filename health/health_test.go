package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/quant/cache"
	"github.com/wyfcoding/quant/config"
	"github.com/wyfcoding/quant/fdm/scheme"
)

func TestRegistryCheck(t *testing.T) {
	r := NewRegistry(50 * time.Millisecond)
	r.Register("up", func(context.Context) error { return nil })
	r.Register("down", func(context.Context) error { return errors.New("disk full") })
	r.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	r.Register("ignored", nil)

	status, ok := r.Check(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "ok", status["up"])
	assert.Equal(t, "disk full", status["down"])
	assert.Equal(t, context.DeadlineExceeded.Error(), status["slow"])
	assert.NotContains(t, status, "ignored")

	r.Register("down", func(context.Context) error { return nil })
	r.Register("slow", func(context.Context) error { return nil })
	_, ok = r.Check(context.Background())
	assert.True(t, ok)
}

func TestHandlerStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRegistry(0)
	r.Register("down", func(context.Context) error { return errors.New("boom") })
	e := gin.New()
	e.GET("/readyz", r.Handler())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"down":"boom"`)
}

func TestCacheChecker(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, CacheChecker(cache.Nop{})(ctx))
	assert.Error(t, CacheChecker(nil)(ctx))

	c, err := cache.NewBigCache(ctx, config.Default().Cache)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	assert.NoError(t, CacheChecker(c)(ctx))
}

func TestSolverChecker(t *testing.T) {
	for _, desc := range []scheme.Desc{scheme.DouglasDesc(), scheme.HundsdorferDesc(), scheme.CraigSneydDesc()} {
		t.Run(string(desc.Type), func(t *testing.T) {
			check := SolverChecker(func() scheme.Desc { return desc })
			assert.NoError(t, check(context.Background()))
		})
	}
}
