// Package health 就绪检查: 注册具名探针，并发执行并汇总为 HTTP 响应.
package health

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/quant/algorithm/finance"
	"github.com/wyfcoding/quant/cache"
	"github.com/wyfcoding/quant/fdm/engine"
	"github.com/wyfcoding/quant/fdm/payoff"
	"github.com/wyfcoding/quant/fdm/process"
	"github.com/wyfcoding/quant/fdm/scheme"
	"github.com/wyfcoding/quant/fdm/step"
)

// Checker 定义健康检查函数原型。
type Checker func(ctx context.Context) error

const defaultTimeout = 2 * time.Second

// Registry 具名探针集合.
type Registry struct {
	mu      sync.RWMutex
	names   []string
	checks  map[string]Checker
	timeout time.Duration
}

// NewRegistry timeout 为单个探针的超时，非正数时取 2 秒.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Registry{checks: make(map[string]Checker), timeout: timeout}
}

// Register 同名探针覆盖旧值.
func (r *Registry) Register(name string, c Checker) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.checks[name]; !ok {
		r.names = append(r.names, name)
	}
	r.checks[name] = c
}

// Check 并发执行全部探针，返回每个探针的状态 ("ok" 或错误信息) 以及是否全部通过.
func (r *Registry) Check(ctx context.Context) (map[string]string, bool) {
	r.mu.RLock()
	names := append([]string(nil), r.names...)
	checks := make([]Checker, len(names))
	for i, n := range names {
		checks[i] = r.checks[n]
	}
	r.mu.RUnlock()

	errs := make([]error, len(names))
	var g errgroup.Group
	for i := range checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			errs[i] = checks[i](cctx)
			return nil
		})
	}
	_ = g.Wait()

	status := make(map[string]string, len(names))
	healthy := true
	for i, n := range names {
		if errs[i] != nil {
			status[n] = errs[i].Error()
			healthy = false
			continue
		}
		status[n] = "ok"
	}
	return status, healthy
}

// Handler 全部通过时 200，否则 503.
func (r *Registry) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status, ok := r.Check(c.Request.Context())
		code := http.StatusOK
		if !ok {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"ready": ok, "checks": status})
	}
}

// CacheChecker 写入并读回一个探测键.
func CacheChecker(c cache.Cache) Checker {
	const key = "health:probe"
	return func(ctx context.Context) error {
		if c == nil {
			return fmt.Errorf("cache is nil")
		}
		if _, ok := c.(cache.Nop); ok {
			return nil
		}
		want := time.Now().UnixNano()
		if err := c.Set(ctx, key, want, time.Minute); err != nil {
			return err
		}
		var got int64
		if err := c.Get(ctx, key, &got); err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("cache probe read back %d, wrote %d", got, want)
		}
		return nil
	}
}

// solverTolerance 粗网格下平价看涨期权与闭式解的允许偏差.
const solverTolerance = 0.1

// SolverChecker 以当前格式在粗网格上为平价看涨期权定价，并与闭式解比较.
func SolverChecker(current func() scheme.Desc) Checker {
	return func(ctx context.Context) error {
		desc := current()
		p, err := process.NewFlatBlackScholes(100, 0.05, 0, 0.2)
		if err != nil {
			return err
		}
		cfg := engine.DefaultConfig()
		cfg.Scheme, cfg.XGrid, cfg.TimeSteps, cfg.DampingSteps = desc, 61, 25, 2
		e, err := engine.NewBlackScholesVanilla(p, cfg)
		if err != nil {
			return err
		}
		pay, err := payoff.NewPlainVanilla(payoff.Call, 100)
		if err != nil {
			return err
		}
		res, err := e.Calculate(ctx, engine.VanillaOption{Payoff: pay, Exercise: step.NewEuropeanExercise(1)})
		if err != nil {
			return err
		}
		want, err := finance.BlackScholes(payoff.Call, finance.BlackScholesInput{Spot: 100, Strike: 100, Rate: 0.05, Vol: 0.2, Expiry: 1})
		if err != nil {
			return err
		}
		if diff := math.Abs(res.Value - want.Price); !(diff < solverTolerance) {
			return fmt.Errorf("%s canary off by %g", desc.Type, diff)
		}
		return nil
	}
}
