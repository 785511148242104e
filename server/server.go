package server

import "context"

// Server 统一的服务器生命周期契约。
type Server interface {
	// Start 阻塞运行，直到 ctx 被取消或出现不可恢复的错误。
	Start(ctx context.Context) error
	// Stop 优雅停止，等待在途请求完成。
	Stop(ctx context.Context) error
}

var _ Server = (*GinServer)(nil)
