// fdm-pricer 以 HTTP 接口暴露有限差分定价引擎.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/wyfcoding/quant/app"
	"github.com/wyfcoding/quant/bootstrap"
	"github.com/wyfcoding/quant/cache"
	"github.com/wyfcoding/quant/config"
	"github.com/wyfcoding/quant/limiter"
	"github.com/wyfcoding/quant/metrics"
	"github.com/wyfcoding/quant/pricer"
	"github.com/wyfcoding/quant/server"
)

// version 构建时通过 -ldflags "-X main.version=..." 注入.
var version = "dev"

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config file, empty for defaults")
	flag.Parse()

	if err := run(*configPath); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	b := bootstrap.New("fdm-pricer", version)
	if err := b.Initialize(configPath); err != nil {
		return err
	}
	cfg, logger := b.Config, b.Logger.Logger
	config.PrintWithMask(cfg)

	shutdownTracer := b.SetupTracing(cfg.Tracing)

	m := metrics.NewMetrics(cfg.Server.Name)
	m.RegisterBuildInfo(cfg.Server.Name, cfg.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, err := cache.NewBigCache(ctx, cfg.Cache)
	if err != nil {
		logger.Error("failed to init cache", "error", err)
		shutdownTracer()
		return err
	}

	p, err := pricer.New(cfg.Engine,
		pricer.WithCache(c),
		pricer.WithMetrics(m),
		pricer.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to init pricer", "error", err)
		_ = c.Close()
		shutdownTracer()
		return err
	}

	rl := limiter.NewDynamicFromConfig(cfg.RateLimit)
	config.RegisterReloadHook(func(next *config.Config) {
		// 被拒绝的引擎配置由 Reload 记录，旧配置继续生效.
		_ = p.Reload(next.Engine)
		rl.Apply(next.RateLimit)
	})

	router := server.NewRouter(cfg, p, m, rl, logger)
	srv := server.NewGinServer(router, cfg.Server, logger)

	a := app.New(cfg.Server.Name, logger,
		app.WithServer(srv),
		app.WithCleanup(shutdownTracer),
		app.WithCleanup(func() {
			if err := c.Close(); err != nil {
				logger.Error("failed to close cache", "error", err)
			}
		}),
	)
	return a.Run()
}
