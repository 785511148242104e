// Package xerrors 提供统一的错误模型: 错误大类、业务码、堆栈与协议状态码映射.
//
// 每个包以 New 声明哨兵错误，返回时用 Derive 派生带详情的副本.
// 派生错误与哨兵的 Type 和 Code 相同，可用 errors.Is 匹配.
package xerrors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorType 错误的大类
type ErrorType uint

const (
	ErrUnknown ErrorType = iota
	ErrInternal
	ErrInvalidArg
	ErrNotFound
	ErrDeadlineExceeded
	ErrUnavailable
	ErrLimitExceeded
	ErrUnsupported // 参数各自合法，但组合不被引擎支持
	ErrNumerical   // 数值计算失败 (奇异系统、非有限值)
)

var typeNames = [...]string{
	"Unknown", "Internal", "InvalidArg", "NotFound", "DeadlineExceeded",
	"Unavailable", "LimitExceeded", "Unsupported", "Numerical",
}

func (t ErrorType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return typeNames[ErrUnknown]
}

// protocolCodes 各大类对应的 HTTP 与 gRPC 状态码，未列出的按内部错误处理.
var protocolCodes = map[ErrorType]struct {
	http int
	grpc codes.Code
}{
	ErrInvalidArg:       {http.StatusBadRequest, codes.InvalidArgument},
	ErrNotFound:         {http.StatusNotFound, codes.NotFound},
	ErrUnsupported:      {http.StatusUnprocessableEntity, codes.FailedPrecondition},
	ErrLimitExceeded:    {http.StatusTooManyRequests, codes.ResourceExhausted},
	ErrDeadlineExceeded: {http.StatusGatewayTimeout, codes.DeadlineExceeded},
	ErrUnavailable:      {http.StatusServiceUnavailable, codes.Unavailable},
}

// Error 带业务码的错误. Message 面向调用方，Detail 描述具体的非法值.
type Error struct {
	Type    ErrorType `json:"type"`
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Detail  string    `json:"detail"`
	Cause   error     `json:"-"`
	Stack   []string  `json:"stack,omitempty"`
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %d: %s", e.Type, e.Code, e.Message)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (Cause: %v)", e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is 按大类与业务码判等.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t != nil && e.Code == t.Code && e.Type == t.Type
}

// New 创建错误并记录调用栈.
func New(errType ErrorType, code int, message string, detail string, cause error) *Error {
	e := &Error{Type: errType, Code: code, Message: message, Detail: detail, Cause: cause}
	e.Stack = callers(3)
	return e
}

// Derive 以哨兵为模板派生新错误，哨兵本身不变.
func Derive(sentinel *Error, format string, args ...any) *Error {
	return &Error{
		Type:    sentinel.Type,
		Code:    sentinel.Code,
		Message: sentinel.Message,
		Detail:  fmt.Sprintf(format, args...),
		Stack:   callers(3),
	}
}

// DeriveCause 同 Derive，并以 cause 作为底层错误.
func DeriveCause(sentinel *Error, cause error, format string, args ...any) *Error {
	e := Derive(sentinel, format, args...)
	e.Cause = cause
	e.Stack = callers(3)
	return e
}

// stackDepth 记录的最大栈帧数.
const stackDepth = 10

func callers(skip int) []string {
	var pcs [stackDepth]uintptr
	n := runtime.Callers(skip, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	out := make([]string, 0, n)
	for {
		f, more := frames.Next()
		out = append(out, fmt.Sprintf("%s:%d (%s)", f.File, f.Line, f.Function))
		if !more {
			return out
		}
	}
}

// Internal 500 内部错误.
func Internal(msg string, cause error) *Error {
	return New(ErrInternal, http.StatusInternalServerError, msg, "", cause)
}

// Wrap 包装外部错误. err 链上已有 *Error 时原样返回，保留其大类与业务码.
func Wrap(err error, errType ErrorType, msg string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := FromError(err); ok {
		return e
	}
	return New(errType, int(errType), msg, "", err)
}

func WrapInternal(err error, msg string) *Error {
	return Wrap(err, ErrInternal, msg)
}

// IsConfiguration 输入或配置错误，调用方修正参数后可重试.
func IsConfiguration(err error) bool { return typeOf(err) == ErrInvalidArg }

// IsNumerical 数值失败，通常需要调整网格或格式.
func IsNumerical(err error) bool { return typeOf(err) == ErrNumerical }

func IsUnsupported(err error) bool { return typeOf(err) == ErrUnsupported }

func typeOf(err error) ErrorType {
	if e, ok := FromError(err); ok {
		return e.Type
	}
	return ErrUnknown
}

func (e *Error) HTTPStatus() int {
	if c, ok := protocolCodes[e.Type]; ok {
		return c.http
	}
	return http.StatusInternalServerError
}

func (e *Error) GRPCCode() codes.Code {
	if c, ok := protocolCodes[e.Type]; ok {
		return c.grpc
	}
	return codes.Internal
}

func (e *Error) ToGRPCStatus() *status.Status {
	return status.New(e.GRPCCode(), e.Message)
}

// FromError 沿错误链查找 *Error.
func FromError(err error) (*Error, bool) {
	var e *Error
	if err != nil && errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
