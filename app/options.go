package app

import (
	"time"

	"github.com/wyfcoding/quant/server"
)

// Option 函数式选项，配置 App 管理的服务器与清理函数.
type Option func(*options)

type options struct {
	servers         []server.Server
	cleanups        []func()
	shutdownTimeout time.Duration
}

// WithServer 注册服务器，Run 时启动，退出时按注册顺序停止.
func WithServer(servers ...server.Server) Option {
	return func(o *options) {
		o.servers = append(o.servers, servers...)
	}
}

// WithCleanup 注册清理函数，服务器全部停止后按注册的逆序执行.
func WithCleanup(cleanup func()) Option {
	return func(o *options) {
		if cleanup != nil {
			o.cleanups = append(o.cleanups, cleanup)
		}
	}
}

// WithShutdownTimeout 停止服务器的总超时，默认 10 秒.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}
