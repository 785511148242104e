// Package response 统一的 JSON 响应信封: 成功时 code 为 0，失败时 code 为业务码 (xerrors) 或 HTTP 状态码.
package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/wyfcoding/quant/contextx"
	"github.com/wyfcoding/quant/xerrors"
)

// HTTPStatusProvider 能给出 HTTP 状态码的错误.
type HTTPStatusProvider interface {
	HTTPStatus() int
}

// StatusClientClosedRequest 客户端在响应前断开 (nginx 约定).
const StatusClientClosedRequest = 499

// Success HTTP 200，业务码 0.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":       0,
		"msg":        "success",
		"data":       data,
		"request_id": requestID(c),
	})
}

// Error 按错误链中的 xerrors 输出业务码与状态码. 裸的 context 错误视为计算超时，
// gRPC Status 按状态码映射，其余错误一律 500 且不回显内部信息.
func Error(c *gin.Context, err error) {
	if err == nil {
		Success(c, nil)
		return
	}
	if e, ok := xerrors.FromError(err); ok {
		write(c, e.HTTPStatus(), e.Code, e.Message, e.Detail)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		e := xerrors.ErrDeadline
		write(c, e.HTTPStatus(), e.Code, e.Message, err.Error())
		return
	}

	var sp HTTPStatusProvider
	if errors.As(err, &sp) {
		code := sp.HTTPStatus()
		write(c, code, code, http.StatusText(code), err.Error())
		return
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		code := grpcCodeToHTTP(st.Code())
		write(c, code, code, st.Message(), "")
		return
	}
	write(c, http.StatusInternalServerError, http.StatusInternalServerError, "internal error", "")
}

// ErrorWithStatus 直接指定 HTTP 状态码，业务码与之相同.
func ErrorWithStatus(c *gin.Context, status int, msg string, detail string) {
	write(c, status, status, msg, detail)
}

func write(c *gin.Context, httpStatus, code int, msg, detail string) {
	c.JSON(httpStatus, gin.H{
		"code":       code,
		"msg":        msg,
		"detail":     detail,
		"request_id": requestID(c),
	})
}

func requestID(c *gin.Context) string {
	if c.Request == nil {
		return ""
	}
	return contextx.GetRequestID(c.Request.Context())
}

// grpcCodeToHTTP 与 xerrors.Error.GRPCCode 的映射互逆.
func grpcCodeToHTTP(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition:
		return http.StatusUnprocessableEntity
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Canceled:
		return StatusClientClosedRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Unimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
