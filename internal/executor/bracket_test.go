package executor

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"bracketflow/internal/dedup"
	"bracketflow/internal/exchange"
	"bracketflow/internal/model"
	"bracketflow/internal/sizing"

	"github.com/shopspring/decimal"
)

type collectReporter struct {
	mu      sync.Mutex
	reports []*model.ExecutionReport
}

func (c *collectReporter) Report(_ context.Context, rep *model.ExecutionReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, rep)
}

func newTestExecutor(t *testing.T, balance float64) (*BracketExecutor, *exchange.SimulatedExchange, *collectReporter) {
	t.Helper()
	ex := exchange.NewSimulatedExchange()
	ex.SetBalance("USDT", balance)
	ex.SetInstrument(model.InstrumentSpec{
		Symbol:            "BTCUSDT",
		HasPrecision:      true,
		QuantityPrecision: 3,
		StepSize:          decimal.RequireFromString("0.001"),
		MinQty:            decimal.RequireFromString("0.001"),
	})
	ex.SetInstrument(model.InstrumentSpec{Symbol: "ETHUSDT", HasPrecision: true, QuantityPrecision: 3, MinQty: decimal.RequireFromString("0.001")})

	e, err := NewBracketExecutor(ex, sizing.NewSizer(3, 0.000001), dedup.NewGuard(30*time.Second), Config{
		NotionalUSD: 10,
		MinBalance:  0.5,
		QuoteAsset:  "USDT",
		NodeID:      1,
	})
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	r := &collectReporter{}
	e.SetReporter(r)
	return e, ex, r
}

func btcLong() model.Signal {
	s := model.Signal{
		ID:        42,
		Pair:      "BTCUSDT.P",
		SetupType: "LONG",
		Entry:     model.NullFloat(65000),
		Leverage:  model.NullInt(20),
		StopLoss:  model.NullFloat(63000),
	}
	s.SetTakeProfit(1, 66000)
	s.SetTakeProfit(2, 67000)
	s.SetTakeProfit(3, 68000)
	s.SetTakeProfit(4, 69000)
	return s
}

func TestExecute_FullBracket(t *testing.T) {
	e, ex, r := newTestExecutor(t, 100)

	rep := e.Execute(context.Background(), btcLong())
	if rep.Outcome != model.OutcomeDone || rep.Stage != model.StageDone || rep.Reached != model.StageTakeProfits {
		t.Fatalf("unexpected outcome %s/%s/%s: %s", rep.Outcome, rep.Stage, rep.Reached, rep.Error)
	}
	if ex.Leverage("BTCUSDT") != 20 {
		t.Fatalf("expected leverage 20, got %d", ex.Leverage("BTCUSDT"))
	}

	market := ex.CallsOf(exchange.MethodMarket)
	if len(market) != 1 || market[0].Side != model.Buy || !market[0].Qty.Equal(decimal.RequireFromString("0.001")) {
		t.Fatalf("unexpected market calls %+v", market)
	}
	stops := ex.CallsOf(exchange.MethodStop)
	if len(stops) != 1 || stops[0].Side != model.Sell || stops[0].Price != 63000 {
		t.Fatalf("unexpected stop calls %+v", stops)
	}
	tps := ex.CallsOf(exchange.MethodTakeProfit)
	if len(tps) != 4 {
		t.Fatalf("expected 4 take profits, got %d", len(tps))
	}
	for i, want := range []float64{66000, 67000, 68000, 69000} {
		if tps[i].Price != want || tps[i].Side != model.Sell {
			t.Fatalf("tp %d: unexpected call %+v", i+1, tps[i])
		}
	}
	if len(rep.Legs) != 5 || rep.Legs[0].Label != "SL" || rep.Legs[4].Label != "TP4" {
		t.Fatalf("unexpected legs %+v", rep.Legs)
	}
	if math.Abs(rep.Notional-65) > 1e-9 || math.Abs(rep.Margin-3.25) > 1e-9 {
		t.Fatalf("unexpected notional/margin %v/%v", rep.Notional, rep.Margin)
	}
	if len(r.reports) != 1 || r.reports[0] != rep {
		t.Fatalf("expected the report to be published once")
	}
}

func TestExecute_ShortUsesOppositeSides(t *testing.T) {
	e, ex, _ := newTestExecutor(t, 100)
	sig := model.Signal{ID: 1, Pair: "ETHUSDT.P", SetupType: "SHORT", Entry: model.NullFloat(2500), Leverage: model.NullInt(10), StopLoss: model.NullFloat(2600)}
	sig.SetTakeProfit(1, 2400)

	rep := e.Execute(context.Background(), sig)
	if rep.Outcome != model.OutcomeDone {
		t.Fatalf("unexpected outcome %s: %s", rep.Outcome, rep.Error)
	}
	if m := ex.CallsOf(exchange.MethodMarket); m[0].Side != model.Sell {
		t.Fatalf("short entry must SELL, got %s", m[0].Side)
	}
	if s := ex.CallsOf(exchange.MethodStop); s[0].Side != model.Buy {
		t.Fatalf("short stop must BUY, got %s", s[0].Side)
	}
	if tp := ex.CallsOf(exchange.MethodTakeProfit); len(tp) != 1 || tp[0].Side != model.Buy {
		t.Fatalf("unexpected take profit calls %+v", tp)
	}
}

func TestExecute_InsufficientBalance(t *testing.T) {
	for _, bal := range []float64{0.3, 0.5} {
		e, ex, _ := newTestExecutor(t, bal)
		rep := e.Execute(context.Background(), btcLong())
		if rep.Outcome != model.OutcomeInsufficientBalance || rep.Stage != model.StageAborted {
			t.Fatalf("balance %v: unexpected outcome %s", bal, rep.Outcome)
		}
		calls := ex.Calls()
		if len(calls) != 1 || calls[0].Method != exchange.MethodBalance {
			t.Fatalf("balance %v: expected only the balance query, got %+v", bal, calls)
		}
	}
}

func TestExecute_DuplicateSuppressed(t *testing.T) {
	e, ex, _ := newTestExecutor(t, 100)
	ctx := context.Background()

	first := e.Execute(ctx, btcLong())
	second := e.Execute(ctx, btcLong())
	if first.Outcome != model.OutcomeDone {
		t.Fatalf("first: %s %s", first.Outcome, first.Error)
	}
	if second.Outcome != model.OutcomeDuplicateSuppressed || second.Reached != model.StageBalanceChecked {
		t.Fatalf("second: unexpected %s at %s", second.Outcome, second.Reached)
	}
	if n := len(ex.CallsOf(exchange.MethodMarket)); n != 1 {
		t.Fatalf("expected one market order, got %d", n)
	}

	// 冷却过后可以再次开仓
	e.now = func() time.Time { return time.Now().Add(31 * time.Second) }
	third := e.Execute(ctx, btcLong())
	if third.Outcome != model.OutcomeDone {
		t.Fatalf("third: %s %s", third.Outcome, third.Error)
	}
}

func TestExecute_ConcurrentSameSymbol(t *testing.T) {
	e, ex, _ := newTestExecutor(t, 100)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Execute(context.Background(), btcLong())
		}()
	}
	wg.Wait()

	if n := len(ex.CallsOf(exchange.MethodMarket)); n != 1 {
		t.Fatalf("expected exactly one market order, got %d", n)
	}
}

func TestExecute_EntryNotFilled(t *testing.T) {
	e, ex, _ := newTestExecutor(t, 100)
	ex.FillHook = func(string, decimal.Decimal) (string, decimal.Decimal) {
		return "NEW", decimal.Zero
	}

	rep := e.Execute(context.Background(), btcLong())
	if rep.Outcome != model.OutcomeEntryNotFilled || rep.Reached != model.StageSized {
		t.Fatalf("unexpected %s at %s", rep.Outcome, rep.Reached)
	}
	if len(ex.CallsOf(exchange.MethodStop)) != 0 || len(ex.CallsOf(exchange.MethodTakeProfit)) != 0 {
		t.Fatalf("no protective orders expected after unfilled entry")
	}
	if rep.Entry == nil || rep.Entry.Status != "NEW" {
		t.Fatalf("expected entry ack on report, got %+v", rep.Entry)
	}

	// 未成交不写冷却
	ex.FillHook = nil
	if again := e.Execute(context.Background(), btcLong()); again.Outcome != model.OutcomeDone {
		t.Fatalf("expected retry to proceed, got %s", again.Outcome)
	}
}

func TestExecute_StopLossFailure(t *testing.T) {
	e, ex, _ := newTestExecutor(t, 100)
	ex.FailHook = func(c exchange.Call) error {
		if c.Method == exchange.MethodStop {
			return errors.New("-2021 order would immediately trigger")
		}
		return nil
	}

	rep := e.Execute(context.Background(), btcLong())
	if rep.Outcome != model.OutcomeStopLossFailed || !rep.ManualIntervention() {
		t.Fatalf("unexpected outcome %s", rep.Outcome)
	}
	if rep.Reached != model.StageEntryPlaced {
		t.Fatalf("expected ENTRY_PLACED reached, got %s", rep.Reached)
	}
	if n := len(ex.CallsOf(exchange.MethodTakeProfit)); n != 0 {
		t.Fatalf("take profits must not be placed after stop loss failure, got %d", n)
	}
	if len(rep.Legs) != 1 || rep.Legs[0].OK {
		t.Fatalf("expected one failed SL leg, got %+v", rep.Legs)
	}
	// 开仓已成交，冷却生效
	if !e.guard.ShouldBlock("BTCUSDT", time.Now()) {
		t.Fatalf("expected cooldown after filled entry")
	}
}

func TestExecute_TakeProfitFailureContinues(t *testing.T) {
	e, ex, _ := newTestExecutor(t, 100)
	ex.FailHook = func(c exchange.Call) error {
		if c.Method == exchange.MethodTakeProfit && c.Price == 67000 {
			return errors.New("timeout")
		}
		return nil
	}

	rep := e.Execute(context.Background(), btcLong())
	if rep.Outcome != model.OutcomeDone || !rep.PartialTakeProfits() {
		t.Fatalf("expected DONE with partial take profits, got %s", rep.Outcome)
	}
	if n := len(ex.CallsOf(exchange.MethodTakeProfit)); n != 4 {
		t.Fatalf("expected all 4 take profits attempted, got %d", n)
	}
	failed := rep.FailedLegs()
	if len(failed) != 1 || failed[0].Label != "TP2" || failed[0].Outcome != model.OutcomeTakeProfitFailed {
		t.Fatalf("unexpected failed legs %+v", failed)
	}
}

func TestExecute_SkipsAbsentTakeProfits(t *testing.T) {
	e, ex, _ := newTestExecutor(t, 100)
	sig := btcLong()
	sig.TP2 = model.NullFloat(0)
	sig.TP4.Valid = false

	rep := e.Execute(context.Background(), sig)
	if rep.Outcome != model.OutcomeDone {
		t.Fatalf("unexpected outcome %s", rep.Outcome)
	}
	tps := ex.CallsOf(exchange.MethodTakeProfit)
	if len(tps) != 2 || tps[0].Price != 66000 || tps[1].Price != 68000 {
		t.Fatalf("unexpected take profit calls %+v", tps)
	}
	if rep.Legs[2].Label != "TP3" {
		t.Fatalf("labels must follow signal slots, got %+v", rep.Legs)
	}
}

func TestExecute_ProtectiveLegsUseExecutedQty(t *testing.T) {
	e, ex, _ := newTestExecutor(t, 100)
	e.cfg.NotionalUSD = 200 // 0.003 BTC
	ex.FillHook = func(_ string, qty decimal.Decimal) (string, decimal.Decimal) {
		return "PARTIALLY_FILLED", decimal.RequireFromString("0.002")
	}

	rep := e.Execute(context.Background(), btcLong())
	if rep.Outcome != model.OutcomeDone {
		t.Fatalf("unexpected outcome %s", rep.Outcome)
	}
	if q := ex.CallsOf(exchange.MethodMarket)[0].Qty; !q.Equal(decimal.RequireFromString("0.003")) {
		t.Fatalf("expected requested 0.003, got %s", q)
	}
	for _, c := range append(ex.CallsOf(exchange.MethodStop), ex.CallsOf(exchange.MethodTakeProfit)...) {
		if !c.Qty.Equal(decimal.RequireFromString("0.002")) {
			t.Fatalf("%s used %s instead of executed qty", c.Method, c.Qty)
		}
	}
}

func TestExecute_Aborts(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*model.Signal)
		fail    string
		want    model.OutcomeKind
		reached model.Stage
		orders  bool
	}{
		{name: "unknown direction", mutate: func(s *model.Signal) { s.SetupType = "UNKNOWN" }, want: model.OutcomeInvalidSignal, reached: model.StageStart},
		{name: "missing leverage", mutate: func(s *model.Signal) { s.Leverage.Valid = false; s.Leverage.Int64 = 0 }, want: model.OutcomeInvalidSignal, reached: model.StageStart},
		{name: "missing stop loss", mutate: func(s *model.Signal) { s.StopLoss = model.NullFloat(0) }, want: model.OutcomeInvalidSignal, reached: model.StageStart},
		{name: "zero entry", mutate: func(s *model.Signal) { s.Entry = model.NullFloat(0) }, want: model.OutcomeInvalidEntryPrice, reached: model.StageLeverageSet},
		{name: "unknown instrument", mutate: func(s *model.Signal) { s.Pair = "DOGEUSDT.P" }, want: model.OutcomeUnknownInstrument, reached: model.StageLeverageSet},
		{name: "balance transport", fail: exchange.MethodBalance, want: model.OutcomeTransportError, reached: model.StageStart},
		{name: "leverage transport", fail: exchange.MethodLeverage, want: model.OutcomeTransportError, reached: model.StageDedupChecked},
		{name: "spec transport", fail: exchange.MethodSpec, want: model.OutcomeTransportError, reached: model.StageLeverageSet},
		{name: "entry transport", fail: exchange.MethodMarket, want: model.OutcomeTransportError, reached: model.StageSized, orders: true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e, ex, _ := newTestExecutor(t, 100)
			if c.fail != "" {
				ex.FailHook = func(call exchange.Call) error {
					if call.Method == c.fail {
						return errors.New("connection reset")
					}
					return nil
				}
			}
			sig := btcLong()
			if c.mutate != nil {
				c.mutate(&sig)
			}
			rep := e.Execute(context.Background(), sig)
			if rep.Outcome != c.want || rep.Reached != c.reached || rep.Stage != model.StageAborted {
				t.Fatalf("expected %s at %s, got %s at %s (%s)", c.want, c.reached, rep.Outcome, rep.Reached, rep.Error)
			}
			if n := len(ex.CallsOf(exchange.MethodMarket)); (n > 0) != c.orders {
				t.Fatalf("unexpected market order count %d", n)
			}
			if len(ex.CallsOf(exchange.MethodStop))+len(ex.CallsOf(exchange.MethodTakeProfit)) != 0 {
				t.Fatalf("no protective orders expected")
			}
			if e.guard.ShouldBlock(sig.Instrument(), time.Now()) {
				t.Fatalf("aborted bracket must not start cooldown")
			}
		})
	}
}
