package pricer

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/quant/response"
	"github.com/wyfcoding/quant/xerrors"
)

// DefaultMaxBatch 单个批量请求允许的最大条数.
const DefaultMaxBatch = 256

// Handler 定价 HTTP 接口.
type Handler struct {
	pricer   *Pricer
	maxBatch int
}

func NewHandler(p *Pricer, maxBatch int) *Handler {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Handler{pricer: p, maxBatch: maxBatch}
}

// BatchRequest POST /v1/price/batch 的请求体.
type BatchRequest struct {
	Requests []Request `json:"requests"`
}

// Register 挂载 POST /price 与 POST /price/batch.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/price", h.price)
	r.POST("/price/batch", h.batch)
}

func (h *Handler) price(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		decodeError(c, "request", err)
		return
	}
	resp, err := h.pricer.Price(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

func (h *Handler) batch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		decodeError(c, "batch", err)
		return
	}
	if len(req.Requests) > h.maxBatch {
		response.Error(c, xerrors.Derive(xerrors.ErrInvalidArgument, "batch of %d exceeds the limit of %d", len(req.Requests), h.maxBatch))
		return
	}
	results, err := h.pricer.PriceBatch(c.Request.Context(), req.Requests)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, results)
}

// decodeError 请求体被 MaxBytesReader 截断时返回 413，其余解码错误为 400.
func decodeError(c *gin.Context, what string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.ErrorWithStatus(c, http.StatusRequestEntityTooLarge, "request body too large",
			fmt.Sprintf("limit is %d bytes", tooLarge.Limit))
		return
	}
	response.Error(c, xerrors.Derive(xerrors.ErrInvalidArgument, "decode %s: %v", what, err))
}
