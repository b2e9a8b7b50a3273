package model

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/plugin/soft_delete"
)

// Stage 括号单执行阶段
type Stage string

const (
	StageStart          Stage = "START"
	StageBalanceChecked Stage = "BALANCE_CHECKED"
	StageDedupChecked   Stage = "DEDUP_CHECKED"
	StageLeverageSet    Stage = "LEVERAGE_SET"
	StageSized          Stage = "SIZED"
	StageEntryPlaced    Stage = "ENTRY_PLACED"
	StageStopLossPlaced Stage = "SL_PLACED"
	StageTakeProfits    Stage = "TP_PLACED"
	StageDone           Stage = "DONE"
	StageAborted        Stage = "ABORTED"
)

// OutcomeKind 执行结果分类
type OutcomeKind string

const (
	OutcomeDone                OutcomeKind = "DONE"
	OutcomeInvalidSignal       OutcomeKind = "INVALID_SIGNAL"
	OutcomeTransportError      OutcomeKind = "TRANSPORT_ERROR"
	OutcomeInsufficientBalance OutcomeKind = "INSUFFICIENT_BALANCE"
	OutcomeDuplicateSuppressed OutcomeKind = "DUPLICATE_SUPPRESSED"
	OutcomeUnknownInstrument   OutcomeKind = "UNKNOWN_INSTRUMENT"
	OutcomeInvalidEntryPrice   OutcomeKind = "INVALID_ENTRY_PRICE"
	OutcomeQuantityTooSmall    OutcomeKind = "QUANTITY_TOO_SMALL"
	OutcomeEntryNotFilled      OutcomeKind = "ENTRY_NOT_FILLED"
	OutcomeStopLossFailed      OutcomeKind = "STOP_LOSS_FAILED"

	// 单个止盈腿失败，只出现在 LegResult 上
	OutcomeTakeProfitFailed OutcomeKind = "TAKE_PROFIT_FAILED"
)

// LegResult 保护单（SL/TPn）下单结果
type LegResult struct {
	Label   string      `json:"label"`
	Price   float64     `json:"price"`
	OK      bool        `json:"ok"`
	OrderID string      `json:"order_id,omitempty"`
	Outcome OutcomeKind `json:"outcome,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Sizing 下单数量计算明细
type Sizing struct {
	Raw       decimal.Decimal `json:"raw"`
	Quantity  decimal.Decimal `json:"quantity"`
	Precision int32           `json:"precision"`
	Clamp     string          `json:"clamp,omitempty"`
}

// ExecutionReport 一次括号单执行的完整结果
type ExecutionReport struct {
	ExecutionID int64       `json:"execution_id"`
	SignalID    int64       `json:"signal_id"`
	Symbol      string      `json:"symbol"`
	Side        OrderSide   `json:"side"`
	Leverage    int         `json:"leverage"`
	Stage       Stage       `json:"stage"`   // 最终状态 DONE / ABORTED
	Reached     Stage       `json:"reached"` // 最后完成的阶段
	Outcome     OutcomeKind `json:"outcome"`
	Error       string      `json:"error,omitempty"`

	Balance    float64         `json:"balance"`
	EntryPrice float64         `json:"entry_price"`
	Sizing     *Sizing         `json:"sizing,omitempty"`
	Entry      *OrderAck       `json:"entry,omitempty"`
	Executed   decimal.Decimal `json:"executed_qty"`
	Notional   float64         `json:"notional"`
	Margin     float64         `json:"margin"`
	Legs       []LegResult     `json:"legs,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (r *ExecutionReport) Aborted() bool {
	return r.Outcome != OutcomeDone
}

// ManualIntervention 已开仓但没有止损保护
func (r *ExecutionReport) ManualIntervention() bool {
	return r.Outcome == OutcomeStopLossFailed
}

// PartialTakeProfits 止损已挂但部分止盈失败
func (r *ExecutionReport) PartialTakeProfits() bool {
	return len(r.FailedLegs()) > 0 && r.Outcome == OutcomeDone
}

func (r *ExecutionReport) FailedLegs() []LegResult {
	var failed []LegResult
	for _, l := range r.Legs {
		if !l.OK {
			failed = append(failed, l)
		}
	}
	return failed
}

func (r *ExecutionReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ExecutionRecord 执行报告持久化
type ExecutionRecord struct {
	ID          int64                 `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	SignalID    int64                 `gorm:"column:signal_id;index" json:"signal_id"`
	Symbol      string                `gorm:"column:symbol;type:varchar(32);index" json:"symbol"`
	Side        string                `gorm:"column:side;type:varchar(8)" json:"side"`
	Leverage    int                   `gorm:"column:leverage" json:"leverage"`
	Stage       string                `gorm:"column:stage;type:varchar(32)" json:"stage"`
	Outcome     string                `gorm:"column:outcome;type:varchar(32);index" json:"outcome"`
	Error       string                `gorm:"column:error;type:text" json:"error"`
	EntryPrice  float64               `gorm:"column:entry_price" json:"entry_price"`
	ExecutedQty string                `gorm:"column:executed_qty;type:varchar(64)" json:"executed_qty"`
	Notional    float64               `gorm:"column:notional" json:"notional"`
	Margin      float64               `gorm:"column:margin" json:"margin"`
	Legs        datatypes.JSON        `gorm:"column:legs" json:"legs"`
	StartedAt   time.Time             `gorm:"column:started_at" json:"started_at"`
	FinishedAt  time.Time             `gorm:"column:finished_at" json:"finished_at"`
	CreatedAt   time.Time             `gorm:"column:created_at" json:"created_at"`
	DeletedAt   soft_delete.DeletedAt `gorm:"column:deleted_at;softDelete:milli" json:"-"`
}

func (ExecutionRecord) TableName() string {
	return "execution_records"
}

func NewExecutionRecord(r *ExecutionReport) (*ExecutionRecord, error) {
	legs, err := json.Marshal(r.Legs)
	if err != nil {
		return nil, err
	}
	return &ExecutionRecord{
		ID:          r.ExecutionID,
		SignalID:    r.SignalID,
		Symbol:      r.Symbol,
		Side:        string(r.Side),
		Leverage:    r.Leverage,
		Stage:       string(r.Reached),
		Outcome:     string(r.Outcome),
		Error:       r.Error,
		EntryPrice:  r.EntryPrice,
		ExecutedQty: r.Executed.String(),
		Notional:    r.Notional,
		Margin:      r.Margin,
		Legs:        datatypes.JSON(legs),
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
	}, nil
}
