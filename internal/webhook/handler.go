package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"bracketflow/internal/dao"
	"bracketflow/internal/ingest"
	"bracketflow/internal/model"
	"bracketflow/pkg/errors"
	"bracketflow/pkg/errors/ecode"
	"bracketflow/pkg/logger"
	"bracketflow/pkg/validator"

	"github.com/gin-gonic/gin/binding"
	"github.com/goccy/go-json"
)

// SignalRequest 结构化信号
type SignalRequest struct {
	Pair        string    `json:"pair" binding:"required"`
	SetupType   string    `json:"setup_type" binding:"required,oneof=LONG SHORT long short"`
	Entry       float64   `json:"entry" binding:"gt=0"`
	Leverage    int64     `json:"leverage" binding:"gt=0,lte=125"`
	StopLoss    float64   `json:"stop_loss" binding:"gt=0"`
	TakeProfits []float64 `json:"take_profits" binding:"max=4,dive,gt=0"`
	Quantity    float64   `json:"quantity" binding:"gte=0"`
	Timestamp   time.Time `json:"timestamp"`
	Message     string    `json:"message"`
}

// MessageRequest 原始频道消息，走解析器
type MessageRequest struct {
	Text string `json:"text" binding:"required"`
	Date int64  `json:"date"`
}

// WebhookHandler 验签后把信号写入信号表，由 poller 执行
type WebhookHandler struct {
	secret  []byte
	signals dao.SignalDao
	now     func() time.Time
}

func NewWebhookHandler(secret string, signals dao.SignalDao) *WebhookHandler {
	return &WebhookHandler{
		secret:  []byte(secret),
		signals: signals,
		now:     time.Now,
	}
}

func (wh *WebhookHandler) Enabled() bool {
	return len(wh.secret) > 0
}

// VerifySignature X-Signature 为 body 的 HMAC-SHA256 hex
func (wh *WebhookHandler) VerifySignature(body []byte, signatureHeader string) bool {
	if !wh.Enabled() || signatureHeader == "" {
		return false
	}
	h := hmac.New(sha256.New, wh.secret)
	h.Write(body)
	expectedMAC := h.Sum(nil)
	providedMAC, err := hex.DecodeString(strings.TrimSpace(signatureHeader))
	if err != nil {
		return false
	}
	return hmac.Equal(providedMAC, expectedMAC)
}

func (wh *WebhookHandler) HandleSignal(ctx context.Context, body []byte) (*model.Signal, error) {
	var req SignalRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.Wrap(err, ecode.ParamsErr, "Invalid JSON")
	}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		return nil, errors.WithCode(ecode.ParamsErr, validator.Translate(err))
	}

	sig := &model.Signal{
		Pair:        strings.ToUpper(strings.TrimSpace(req.Pair)),
		SetupType:   strings.ToUpper(req.SetupType),
		Entry:       model.NullFloat(req.Entry),
		Leverage:    model.NullInt(req.Leverage),
		StopLoss:    model.NullFloat(req.StopLoss),
		Timestamp:   req.Timestamp,
		FullMessage: req.Message,
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = wh.now()
	}
	if req.Quantity > 0 {
		sig.Quantity = model.NullFloat(req.Quantity)
	}
	for i, tp := range req.TakeProfits {
		sig.SetTakeProfit(i+1, tp)
	}
	return wh.save(ctx, sig)
}

func (wh *WebhookHandler) HandleMessage(ctx context.Context, body []byte) (*model.Signal, error) {
	var req MessageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.Wrap(err, ecode.ParamsErr, "Invalid JSON")
	}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		return nil, errors.WithCode(ecode.ParamsErr, validator.Translate(err))
	}
	ts := wh.now()
	if req.Date > 0 {
		ts = time.Unix(req.Date, 0)
	}
	sig, err := ingest.ParseMessage(req.Text, ts)
	if err != nil {
		return nil, errors.Wrap(err, ecode.ParamsErr, "Unrecognized signal message")
	}
	return wh.save(ctx, sig)
}

func (wh *WebhookHandler) save(ctx context.Context, sig *model.Signal) (*model.Signal, error) {
	if err := wh.signals.Save(ctx, sig); err != nil {
		return nil, errors.Wrap(err, ecode.ServerErr, "save signal failed")
	}
	logger.Info("[Webhook] signal stored",
		logger.Pair("signal_id", sig.ID),
		logger.Pair("pair", sig.Pair),
		logger.Pair("setup_type", sig.SetupType),
		logger.Pair("entry", sig.EntryPrice()),
		logger.Pair("stop_loss", sig.StopLossPrice()))
	return sig, nil
}
