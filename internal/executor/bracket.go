package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bracketflow/internal/consts"
	"bracketflow/internal/dedup"
	"bracketflow/internal/exchange"
	"bracketflow/internal/model"
	"bracketflow/internal/sizing"
	"bracketflow/pkg/logger"

	"github.com/bwmarrin/snowflake"
)

// 括号单执行：市价开仓 + 止损 + 最多4个止盈
// START -> BALANCE_CHECKED -> DEDUP_CHECKED -> LEVERAGE_SET -> SIZED -> ENTRY_PLACED -> SL_PLACED -> TP_PLACED -> DONE
// 任意阶段都可能 ABORTED

type Config struct {
	NotionalUSD float64
	MinBalance  float64
	QuoteAsset  string
	// snowflake 节点号
	NodeID int64
}

// Reporter 接收每次执行的结果
type Reporter interface {
	Report(ctx context.Context, rep *model.ExecutionReport)
}

type BracketExecutor struct {
	gateway  exchange.Gateway
	sizer    *sizing.Sizer
	guard    *dedup.Guard
	reporter Reporter
	cfg      Config
	ids      *snowflake.Node
	now      func() time.Time
}

func NewBracketExecutor(gw exchange.Gateway, sizer *sizing.Sizer, guard *dedup.Guard, cfg Config) (*BracketExecutor, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}
	return &BracketExecutor{
		gateway: gw,
		sizer:   sizer,
		guard:   guard,
		cfg:     cfg,
		ids:     node,
		now:     time.Now,
	}, nil
}

func (e *BracketExecutor) SetReporter(r Reporter) {
	e.reporter = r
}

// abort 中止原因，nil 表示继续
type abort struct {
	kind model.OutcomeKind
	err  error
}

func abortWith(kind model.OutcomeKind, err error) *abort {
	return &abort{kind: kind, err: err}
}

// bracket 单次执行的上下文
type bracket struct {
	sig      model.Signal
	symbol   string
	side     model.OrderSide
	leverage int
	stopLoss float64
	sized    *model.Sizing
	rep      *model.ExecutionReport
}

// Execute 执行一个信号，结果总是通过返回的报告表达，不返回 error
func (e *BracketExecutor) Execute(ctx context.Context, sig model.Signal) *model.ExecutionReport {
	b := &bracket{
		sig:    sig,
		symbol: sig.Instrument(),
		rep: &model.ExecutionReport{
			ExecutionID: e.ids.Generate().Int64(),
			SignalID:    sig.ID,
			Symbol:      sig.Instrument(),
			Leverage:    sig.LeverageValue(),
			EntryPrice:  sig.EntryPrice(),
			Reached:     model.StageStart,
			StartedAt:   e.now(),
		},
	}

	if ab := e.run(ctx, b); ab != nil {
		b.rep.Stage = model.StageAborted
		b.rep.Outcome = ab.kind
		if ab.err != nil {
			b.rep.Error = ab.err.Error()
		}
	} else {
		b.rep.Stage = model.StageDone
		b.rep.Outcome = model.OutcomeDone
	}
	b.rep.FinishedAt = e.now()

	e.logOutcome(b.rep)
	if e.reporter != nil {
		e.reporter.Report(ctx, b.rep)
	}
	return b.rep
}

func (e *BracketExecutor) run(ctx context.Context, b *bracket) *abort {
	if ab := e.validate(b); ab != nil {
		return ab
	}
	if ab := e.checkBalance(ctx, b); ab != nil {
		return ab
	}

	// 同一交易对的检查和占用是原子的，直到本次执行结束才释放
	ticket, ok := e.guard.Acquire(b.symbol, e.now())
	if !ok {
		return abortWith(model.OutcomeDuplicateSuppressed,
			fmt.Errorf("%s executed within the last %s or still in flight", b.symbol, e.guard.Window()))
	}
	defer ticket.Release()
	b.rep.Reached = model.StageDedupChecked

	if ab := e.setLeverage(ctx, b); ab != nil {
		return ab
	}
	if ab := e.size(ctx, b); ab != nil {
		return ab
	}
	if ab := e.enter(ctx, b, ticket); ab != nil {
		return ab
	}
	if ab := e.placeStopLoss(ctx, b); ab != nil {
		return ab
	}
	e.placeTakeProfits(ctx, b)
	return nil
}

func (e *BracketExecutor) validate(b *bracket) *abort {
	dir, err := b.sig.Direction()
	if err != nil {
		return abortWith(model.OutcomeInvalidSignal, err)
	}
	b.side = dir.Side()
	b.rep.Side = b.side

	if b.symbol == "" {
		return abortWith(model.OutcomeInvalidSignal, errors.New("empty pair"))
	}
	b.leverage = b.sig.LeverageValue()
	if b.leverage <= 0 {
		return abortWith(model.OutcomeInvalidSignal, fmt.Errorf("leverage %d", b.leverage))
	}
	// 没有止损价的信号不开仓，否则仓位没有保护
	b.stopLoss = b.sig.StopLossPrice()
	if b.stopLoss <= 0 {
		return abortWith(model.OutcomeInvalidSignal, errors.New("missing stop loss"))
	}
	return nil
}

func (e *BracketExecutor) checkBalance(ctx context.Context, b *bracket) *abort {
	balance, err := e.gateway.AvailableBalance(ctx, e.cfg.QuoteAsset)
	if err != nil {
		return abortWith(model.OutcomeTransportError, err)
	}
	b.rep.Balance = balance
	logger.Infof("[Bracket] signal=%d %s 可用余额 %.4f %s", b.sig.ID, b.symbol, balance, e.cfg.QuoteAsset)
	if balance <= e.cfg.MinBalance {
		return abortWith(model.OutcomeInsufficientBalance,
			fmt.Errorf("available %.4f %s <= %.4f", balance, e.cfg.QuoteAsset, e.cfg.MinBalance))
	}
	b.rep.Reached = model.StageBalanceChecked
	return nil
}

func (e *BracketExecutor) setLeverage(ctx context.Context, b *bracket) *abort {
	if err := e.gateway.SetLeverage(ctx, b.symbol, b.leverage); err != nil {
		return abortWith(model.OutcomeTransportError, err)
	}
	b.rep.Reached = model.StageLeverageSet
	return nil
}

func (e *BracketExecutor) size(ctx context.Context, b *bracket) *abort {
	spec, err := e.gateway.InstrumentSpec(ctx, b.symbol)
	if err != nil {
		if errors.Is(err, exchange.ErrInstrumentNotFound) {
			return abortWith(model.OutcomeUnknownInstrument, err)
		}
		return abortWith(model.OutcomeTransportError, err)
	}

	res, err := e.sizer.Compute(e.cfg.NotionalUSD, b.sig.EntryPrice(), *spec)
	switch {
	case errors.Is(err, sizing.ErrInvalidEntryPrice):
		return abortWith(model.OutcomeInvalidEntryPrice, fmt.Errorf("entry %v: %w", b.sig.EntryPrice(), err))
	case errors.Is(err, sizing.ErrQuantityTooSmall):
		return abortWith(model.OutcomeQuantityTooSmall, err)
	case err != nil:
		return abortWith(model.OutcomeInvalidSignal, err)
	}
	if res.Clamp != "" {
		logger.Warnf("[Bracket] %s 数量 %s 低于下限(%s)，调整为 %s", b.symbol, res.Raw.Truncate(res.Precision), res.Clamp, res.Quantity)
	}
	b.sized = res
	b.rep.Sizing = res
	b.rep.Reached = model.StageSized
	return nil
}

func (e *BracketExecutor) enter(ctx context.Context, b *bracket, ticket *dedup.Ticket) *abort {
	ack, err := e.gateway.PlaceMarketOrder(ctx, b.symbol, b.side, b.sized.Quantity)
	if err != nil {
		return abortWith(model.OutcomeTransportError, err)
	}
	b.rep.Entry = ack
	if !ack.Filled() {
		// 交易所接受了订单但没有成交，不挂保护单，需要人工确认
		logger.Warn("[Bracket] entry accepted but not filled, skip protective orders",
			logger.Pair("signal_id", b.sig.ID),
			logger.Pair("symbol", b.symbol),
			logger.Pair("order_id", ack.OrderID),
			logger.Pair("status", ack.Status))
		return abortWith(model.OutcomeEntryNotFilled,
			fmt.Errorf("order %s status %s executed 0", ack.OrderID, ack.Status))
	}
	// 只有确认成交才进入冷却
	ticket.Confirm(e.now())

	b.rep.Executed = ack.ExecutedQty
	executed, _ := ack.ExecutedQty.Float64()
	b.rep.Notional = b.sig.EntryPrice() * executed
	b.rep.Margin = b.rep.Notional / float64(b.leverage)
	b.rep.Reached = model.StageEntryPlaced

	logger.Info("[Bracket] entry filled",
		logger.Pair("signal_id", b.sig.ID),
		logger.Pair("symbol", b.symbol),
		logger.Pair("side", b.side),
		logger.Pair("order_id", ack.OrderID),
		logger.Pair("executed_qty", ack.ExecutedQty.String()),
		logger.Pair("notional", b.rep.Notional),
		logger.Pair("margin", b.rep.Margin),
		logger.Pair("leverage", b.leverage))
	return nil
}

func (e *BracketExecutor) placeStopLoss(ctx context.Context, b *bracket) *abort {
	leg := model.LegResult{Label: consts.LegStopLoss, Price: b.stopLoss}
	ack, err := e.gateway.PlaceStopOrder(ctx, b.symbol, b.side.Opposite(), b.rep.Executed, b.stopLoss)
	if err != nil {
		leg.Outcome = model.OutcomeStopLossFailed
		leg.Error = err.Error()
		b.rep.Legs = append(b.rep.Legs, leg)
		logger.Error("[Bracket] stop loss failed, position is open without protection, manual intervention required",
			logger.Pair("signal_id", b.sig.ID),
			logger.Pair("symbol", b.symbol),
			logger.Pair("executed_qty", b.rep.Executed.String()),
			logger.Pair("stop_price", b.stopLoss),
			logger.Pair("error", err.Error()))
		return abortWith(model.OutcomeStopLossFailed, err)
	}
	leg.OK = true
	leg.OrderID = ack.OrderID
	b.rep.Legs = append(b.rep.Legs, leg)
	b.rep.Reached = model.StageStopLossPlaced
	logger.Infof("[Bracket] %s 止损已挂 %v order=%s", b.symbol, b.stopLoss, ack.OrderID)
	return nil
}

// 每个止盈单独立，失败不影响后面的
func (e *BracketExecutor) placeTakeProfits(ctx context.Context, b *bracket) {
	for _, tp := range b.sig.TakeProfits() {
		leg := model.LegResult{Label: tp.Label, Price: tp.Price}
		ack, err := e.gateway.PlaceTakeProfitOrder(ctx, b.symbol, b.side.Opposite(), b.rep.Executed, tp.Price)
		if err != nil {
			leg.Outcome = model.OutcomeTakeProfitFailed
			leg.Error = err.Error()
			logger.Warnf("[Bracket] %s %s(%v) 下单失败: %v", b.symbol, tp.Label, tp.Price, err)
		} else {
			leg.OK = true
			leg.OrderID = ack.OrderID
			logger.Infof("[Bracket] %s %s 已挂 %v order=%s", b.symbol, tp.Label, tp.Price, ack.OrderID)
		}
		b.rep.Legs = append(b.rep.Legs, leg)
	}
	b.rep.Reached = model.StageTakeProfits
}

func (e *BracketExecutor) logOutcome(rep *model.ExecutionReport) {
	switch rep.Outcome {
	case model.OutcomeDone:
		if rep.PartialTakeProfits() {
			logger.Warnf("[Bracket] signal=%d %s done, %d take profit leg(s) failed", rep.SignalID, rep.Symbol, len(rep.FailedLegs()))
			return
		}
		logger.Infof("[Bracket] signal=%d %s done, legs=%d", rep.SignalID, rep.Symbol, len(rep.Legs))
	case model.OutcomeDuplicateSuppressed:
		logger.Infof("[Bracket] signal=%d %s skipped: %s", rep.SignalID, rep.Symbol, rep.Error)
	case model.OutcomeInsufficientBalance, model.OutcomeEntryNotFilled:
		logger.Warnf("[Bracket] signal=%d %s aborted at %s: %s (%s)", rep.SignalID, rep.Symbol, rep.Reached, rep.Outcome, rep.Error)
	default:
		logger.Errorf("[Bracket] signal=%d %s aborted at %s: %s (%s)", rep.SignalID, rep.Symbol, rep.Reached, rep.Outcome, rep.Error)
	}
}
