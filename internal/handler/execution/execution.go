package execution

import (
	"strconv"
	"time"

	"bracketflow/internal/dao"
	"bracketflow/internal/dedup"
	"bracketflow/internal/metrics"
	"bracketflow/internal/model"
	"bracketflow/internal/poller"
	"bracketflow/internal/report"
	"bracketflow/pkg/errors"
	"bracketflow/pkg/errors/ecode"
	"bracketflow/pkg/logger"
	"bracketflow/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type Handler struct {
	executions dao.ExecutionDao
	signals    dao.SignalDao
	last       *poller.LastExecuted
	guard      *dedup.Guard
	hub        *report.Hub
	mode       string
	sinks      []string
}

func NewHandler(executions dao.ExecutionDao, signals dao.SignalDao, last *poller.LastExecuted, guard *dedup.Guard, hub *report.Hub) *Handler {
	return &Handler{
		executions: executions,
		signals:    signals,
		last:       last,
		guard:      guard,
		hub:        hub,
	}
}

// SetInfo 运行模式和已启用的报告去处，只用于状态展示
func (h *Handler) SetInfo(mode string, sinks []string) {
	h.mode = mode
	h.sinks = sinks
}

type ExecutionView struct {
	model.ExecutionRecord
	// snowflake id 以字符串返回，避免 js 精度丢失
	ID string `json:"id"`
}

// ExecutionsGetList GET /api/v1/executions?symbol=&signal_id=&limit=
func (h *Handler) ExecutionsGetList() gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			records []model.ExecutionRecord
			err     error
		)
		if sid := c.Query("signal_id"); sid != "" {
			id, perr := strconv.ParseInt(sid, 10, 64)
			if perr != nil {
				response.JSON(c, errors.Wrap(perr, ecode.ParamsErr, "invalid signal_id"), nil)
				return
			}
			records, err = h.executions.ListBySignal(c.Request.Context(), id)
		} else {
			records, err = h.executions.List(c.Request.Context(), c.Query("symbol"), parseLimit(c))
		}
		if err != nil {
			logger.Errorf("[Api] list executions: %v", err)
			response.JSON(c, errors.Wrap(err, ecode.ServerErr, ""), nil)
			return
		}
		views := make([]ExecutionView, 0, len(records))
		for _, r := range records {
			views = append(views, ExecutionView{ExecutionRecord: r, ID: strconv.FormatInt(r.ID, 10)})
		}
		response.JSON(c, nil, views)
	}
}

// SignalsGetList GET /api/v1/signals?limit=
func (h *Handler) SignalsGetList() gin.HandlerFunc {
	return func(c *gin.Context) {
		signals, err := h.signals.List(c.Request.Context(), parseLimit(c))
		if err != nil {
			response.JSON(c, errors.Wrap(err, ecode.ServerErr, ""), nil)
			return
		}
		views := make([]SignalView, 0, len(signals))
		for i := range signals {
			s := &signals[i]
			views = append(views, SignalView{
				ID:          s.ID,
				Pair:        s.Pair,
				Symbol:      s.Instrument(),
				SetupType:   s.SetupType,
				Entry:       s.EntryPrice(),
				Leverage:    s.LeverageValue(),
				StopLoss:    s.StopLossPrice(),
				TakeProfits: s.TakeProfits(),
				Timestamp:   s.Timestamp,
				Executed:    h.last.Is(s.ID),
			})
		}
		response.JSON(c, nil, views)
	}
}

type SignalView struct {
	ID          int64              `json:"id"`
	Pair        string             `json:"pair"`
	Symbol      string             `json:"symbol"`
	SetupType   string             `json:"setup_type"`
	Entry       float64            `json:"entry"`
	Leverage    int                `json:"leverage"`
	StopLoss    float64            `json:"stop_loss"`
	TakeProfits []model.TakeProfit `json:"take_profits"`
	Timestamp   time.Time          `json:"timestamp"`
	// 是否为最近一次派发的信号
	Executed bool `json:"executed"`
}

type CooldownView struct {
	Symbol    string    `json:"symbol"`
	LastEntry time.Time `json:"last_entry"`
	Remaining string    `json:"remaining"`
}

type StatusView struct {
	Mode           string         `json:"mode"`
	LastSignalID   *int64         `json:"last_signal_id"`
	CooldownWindow string         `json:"cooldown_window"`
	Cooldowns      []CooldownView `json:"cooldowns"`
	StreamClients  int            `json:"stream_clients"`
	Sinks          []string       `json:"sinks"`
	// 进程启动以来的轮询结果计数
	Ticks map[string]float64 `json:"ticks"`
}

// StatusGet GET /api/v1/status
func (h *Handler) StatusGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		view := StatusView{
			Mode:           h.mode,
			CooldownWindow: h.guard.Window().String(),
			Cooldowns:      []CooldownView{},
			Sinks:          h.sinks,
			Ticks:          metrics.TickCounts(),
		}
		if id, ok := h.last.Get(); ok {
			view.LastSignalID = &id
		}
		for _, cd := range h.guard.Active(time.Now()) {
			view.Cooldowns = append(view.Cooldowns, CooldownView{
				Symbol:    cd.Symbol,
				LastEntry: cd.LastEntry,
				Remaining: cd.Remaining.Truncate(time.Millisecond).String(),
			})
		}
		if h.hub != nil {
			view.StreamClients = h.hub.Clients()
		}
		response.JSON(c, nil, view)
	}
}

// ServeWS GET /api/v1/executions/ws 实时推送执行报告
func (h *Handler) ServeWS(c *gin.Context) {
	if h.hub == nil {
		response.Unavailable(c, "stream disabled")
		return
	}
	if err := h.hub.Serve(c.Writer, c.Request); err != nil {
		logger.Warnf("[Stream] %s: %v", c.ClientIP(), err)
	}
}

func parseLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
