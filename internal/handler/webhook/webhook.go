package webhook

import (
	"context"
	"io"

	"bracketflow/internal/consts"
	"bracketflow/internal/model"
	"bracketflow/internal/webhook"
	"bracketflow/pkg/errors"
	"bracketflow/pkg/errors/ecode"
	"bracketflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// 请求体上限
const maxBodySize = 64 << 10

type Handler struct {
	whHandler *webhook.WebhookHandler
}

func NewHandler(wh *webhook.WebhookHandler) *Handler {
	return &Handler{whHandler: wh}
}

type signalResponse struct {
	SignalID int64  `json:"signal_id"`
	Pair     string `json:"pair"`
	Setup    string `json:"setup_type"`
}

// HandlerSignal POST /webhook/signal
func (h *Handler) HandlerSignal() gin.HandlerFunc {
	return h.handle(h.whHandler.HandleSignal)
}

// HandlerMessage POST /webhook/message
func (h *Handler) HandlerMessage() gin.HandlerFunc {
	return h.handle(h.whHandler.HandleMessage)
}

func (h *Handler) handle(fn func(ctx context.Context, body []byte) (*model.Signal, error)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !h.whHandler.Enabled() {
			response.Unavailable(ctx, "webhook secret not configured")
			return
		}
		// 获取签名
		signature := ctx.GetHeader(consts.SignatureHeader)
		if signature == "" {
			response.Unauthorized(ctx, "Missing signature")
			return
		}
		body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxBodySize))
		if err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.ParamsErr, "Failed to read body"), nil)
			return
		}
		// 验签
		if !h.whHandler.VerifySignature(body, signature) {
			response.Unauthorized(ctx, "Invalid signature")
			return
		}

		sig, err := fn(ctx.Request.Context(), body)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, signalResponse{SignalID: sig.ID, Pair: sig.Pair, Setup: sig.SetupType})
	}
}
