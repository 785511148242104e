// Package contextx 提供在 context.Context 中注入与提取请求级标识的工具函数。
// 它通过使用私有类型作为 Key，有效防止了跨包的 Key 冲突。
package contextx

import (
	"context"
)

type contextKey int

const (
	RequestIDKey contextKey = iota // 请求唯一标识 Key。
	RunIDKey                       // 定价运行 ID Key，一次批量定价共享同一个。
	IPKey                          // 客户端 IP Key。
)

// AllKeys 返回所有标准上下文 Key。
var AllKeys = []contextKey{RequestIDKey, RunIDKey, IPKey}

// KeyNames 映射 Key 到日志字段名。
var KeyNames = map[contextKey]string{
	RequestIDKey: "request_id",
	RunIDKey:     "run_id",
	IPKey:        "client_ip",
}

// WithRequestID 将请求 ID 注入到 Context 中。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID 从 Context 中提取请求 ID。
func GetRequestID(ctx context.Context) string {
	return get(ctx, RequestIDKey)
}

// WithRunID 将定价运行 ID 注入到 Context 中。
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRunID 从 Context 中提取定价运行 ID。
func GetRunID(ctx context.Context) string {
	return get(ctx, RunIDKey)
}

// WithIP 将客户端 IP 地址注入到 Context 中。
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, IPKey, ip)
}

// GetIP 从 Context 中提取客户端 IP。
func GetIP(ctx context.Context) string {
	return get(ctx, IPKey)
}

// Fields 以 slog 键值对形式返回 Context 中已设置的字段。
func Fields(ctx context.Context) []any {
	var out []any
	for _, k := range AllKeys {
		if v := get(ctx, k); v != "" {
			out = append(out, KeyNames[k], v)
		}
	}
	return out
}

func get(ctx context.Context, k contextKey) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(k).(string); ok {
		return val
	}
	return ""
}
