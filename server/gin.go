// Package server 提供 HTTP 服务器的生命周期封装。
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/quant/config"
)

// shutdownTimeout 优雅关闭时等待在途请求的上限.
const shutdownTimeout = 5 * time.Second

// GinServer 封装了标准的 http.Server，用于运行 Gin 引擎，并提供优雅的启动和关闭。
type GinServer struct {
	server *http.Server
	logger *slog.Logger
}

// NewGinServer 按 HTTP 配置创建服务器，Addr 为空时监听 :Port.
func NewGinServer(engine *gin.Engine, cfg config.ServerConfig, logger *slog.Logger) *GinServer {
	addr := cfg.HTTP.Addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.HTTP.Port)
	}
	return &GinServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadTimeout:       cfg.HTTP.ReadTimeout,
			ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
			WriteTimeout:      cfg.HTTP.WriteTimeout,
			IdleTimeout:       cfg.HTTP.IdleTimeout,
		},
		logger: logger,
	}
}

// Addr 监听地址.
func (s *GinServer) Addr() string {
	return s.server.Addr
}

// Start 阻塞运行，直到 ctx 被取消 (随后优雅关闭) 或监听失败。
func (s *GinServer) Start(ctx context.Context) error {
	s.logger.Info("starting gin server", "addr", s.server.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("gin server stopping due to context cancellation")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Stop 等待现有请求在超时内完成。
func (s *GinServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping gin server gracefully")
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
