// Package bootstrap 负责进程级基础设施的初始化: 配置、日志、追踪与 ID 生成器.
package bootstrap

import (
	"context"
	"time"

	"github.com/wyfcoding/quant/config"
	"github.com/wyfcoding/quant/idgen"
	"github.com/wyfcoding/quant/logging"
	"github.com/wyfcoding/quant/tracing"
)

// Bootstrapper 处理通用基础设施的初始化
type Bootstrapper struct {
	ServiceName string
	Version     string
	Config      *config.Config
	Logger      *logging.Logger
}

// New 创建一个新的引导器实例
func New(serviceName, version string) *Bootstrapper {
	return &Bootstrapper{
		ServiceName: serviceName,
		Version:     version,
	}
}

// Initialize 在默认值之上加载配置文件 (path 为空时只使用默认值)，
// 随后按 Log 节初始化全局日志与 ID 生成器.
func (b *Bootstrapper) Initialize(path string) error {
	cfg := config.Default()
	if b.ServiceName != "" {
		cfg.Server.Name = b.ServiceName
	}
	if path != "" {
		if err := config.Load(path, cfg); err != nil {
			// 配置失败时先用临时 logger 记录.
			logging.NewLogger(b.ServiceName, "bootstrap").Error("failed to load config", "path", path, "error", err)
			return err
		}
	}
	if cfg.Version == "" {
		cfg.Version = b.Version
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = cfg.Server.Name
	}
	b.ServiceName, b.Version, b.Config = cfg.Server.Name, cfg.Version, cfg

	b.Logger = logging.Init(LogConfig(cfg))
	if err := idgen.Init(cfg.Snowflake); err != nil {
		b.Logger.Error("failed to init id generator", "error", err)
		return err
	}
	return nil
}

// LogConfig 由全局配置构造日志配置.
func LogConfig(cfg *config.Config) logging.Config {
	return logging.Config{
		Service:    cfg.Server.Name,
		Module:     "pricer",
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		Console:    cfg.Log.Console,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}
}

// SetupTracing 初始化 OpenTelemetry 追踪器，返回的函数在退出时刷新并关闭导出器.
func (b *Bootstrapper) SetupTracing(cfg config.TracingConfig) func() {
	shutdown, err := tracing.InitTracer(cfg)
	if err != nil {
		b.Logger.Error("failed to init tracer", "error", err)
		return func() {}
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			b.Logger.Error("failed to shutdown tracer", "error", err)
		}
	}
}
