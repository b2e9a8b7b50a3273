package exchange

import (
	"context"
	"fmt"
	"sync"

	"bracketflow/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// 模拟交易所：本地撮合，所有市价单立即全部成交。
// 用于 simulated 模式和测试，可以按调用注入错误。
type SimulatedExchange struct {
	mu       sync.Mutex
	balances map[string]float64
	specs    map[string]model.InstrumentSpec
	leverage map[string]int
	// 未登记的合约使用该规则，nil 表示合约不存在
	fallback *model.InstrumentSpec
	// 根据订单id存储订单
	orders map[string]*model.OrderAck
	calls  []Call

	// 注入：返回非 nil 错误时该次调用失败
	FailHook func(c Call) error
	// 市价单回执的状态和成交数量，nil 表示全部成交
	FillHook func(symbol string, qty decimal.Decimal) (status string, executed decimal.Decimal)
}

// Call 一次网关调用记录
type Call struct {
	Method string
	Symbol string
	Side   model.OrderSide
	Qty    decimal.Decimal
	Price  float64
}

const (
	MethodBalance    = "AvailableBalance"
	MethodLeverage   = "SetLeverage"
	MethodSpec       = "InstrumentSpec"
	MethodMarket     = "PlaceMarketOrder"
	MethodStop       = "PlaceStopOrder"
	MethodTakeProfit = "PlaceTakeProfitOrder"
)

func NewSimulatedExchange() *SimulatedExchange {
	return &SimulatedExchange{
		balances: make(map[string]float64),
		specs:    make(map[string]model.InstrumentSpec),
		leverage: make(map[string]int),
		orders:   make(map[string]*model.OrderAck),
	}
}

func (s *SimulatedExchange) SetBalance(asset string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[asset] = v
}

func (s *SimulatedExchange) SetInstrument(spec model.InstrumentSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs[spec.Symbol] = spec
}

// SetFallback 模拟模式下任意合约都可以下单
func (s *SimulatedExchange) SetFallback(spec model.InstrumentSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = &spec
}

// Calls 调用记录副本
func (s *SimulatedExchange) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *SimulatedExchange) CallsOf(method string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (s *SimulatedExchange) Leverage(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leverage[symbol]
}

func (s *SimulatedExchange) record(c Call) error {
	s.calls = append(s.calls, c)
	if s.FailHook != nil {
		return s.FailHook(c)
	}
	return nil
}

func (s *SimulatedExchange) AvailableBalance(ctx context.Context, asset string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Method: MethodBalance, Symbol: asset}); err != nil {
		return 0, err
	}
	return s.balances[asset], nil
}

func (s *SimulatedExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Method: MethodLeverage, Symbol: symbol}); err != nil {
		return err
	}
	s.leverage[symbol] = leverage
	return nil
}

func (s *SimulatedExchange) InstrumentSpec(ctx context.Context, symbol string) (*model.InstrumentSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Method: MethodSpec, Symbol: symbol}); err != nil {
		return nil, err
	}
	spec, ok := s.specs[symbol]
	if !ok && s.fallback != nil {
		spec, ok = *s.fallback, true
		spec.Symbol = symbol
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, ErrInstrumentNotFound)
	}
	return &spec, nil
}

func (s *SimulatedExchange) PlaceMarketOrder(ctx context.Context, symbol string, side model.OrderSide, qty decimal.Decimal) (*model.OrderAck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Method: MethodMarket, Symbol: symbol, Side: side, Qty: qty}); err != nil {
		return nil, err
	}
	status, executed := "FILLED", qty
	if s.FillHook != nil {
		status, executed = s.FillHook(symbol, qty)
	}
	return s.place(symbol, side, model.OrderTypeMarket, status, executed), nil
}

func (s *SimulatedExchange) PlaceStopOrder(ctx context.Context, symbol string, side model.OrderSide, qty decimal.Decimal, stopPrice float64) (*model.OrderAck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Method: MethodStop, Symbol: symbol, Side: side, Qty: qty, Price: stopPrice}); err != nil {
		return nil, err
	}
	return s.place(symbol, side, model.OrderTypeStopMarket, "NEW", decimal.Zero), nil
}

func (s *SimulatedExchange) PlaceTakeProfitOrder(ctx context.Context, symbol string, side model.OrderSide, qty decimal.Decimal, triggerPrice float64) (*model.OrderAck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Method: MethodTakeProfit, Symbol: symbol, Side: side, Qty: qty, Price: triggerPrice}); err != nil {
		return nil, err
	}
	return s.place(symbol, side, model.OrderTypeTakeProfit, "NEW", decimal.Zero), nil
}

func (s *SimulatedExchange) place(symbol string, side model.OrderSide, typ model.OrderType, status string, executed decimal.Decimal) *model.OrderAck {
	orderID := uuid.NewString()
	ack := &model.OrderAck{
		OrderID:       orderID,
		ClientOrderID: orderID,
		Symbol:        symbol,
		Side:          side,
		Type:          typ,
		Status:        status,
		ExecutedQty:   executed,
	}
	s.orders[orderID] = ack
	return ack
}

// Order 按订单id查询
func (s *SimulatedExchange) Order(orderID string) (*model.OrderAck, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	return o, ok
}
