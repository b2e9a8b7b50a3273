package model

import (
	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite 保护单方向与开仓方向相反
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (d Direction) Side() OrderSide {
	if d == Long {
		return Buy
	}
	return Sell
}

type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
	OrderTypeTakeProfit OrderType = "TAKE_PROFIT_MARKET"
)

// InstrumentSpec 交易所给出的合约下单规则，每次下单前实时获取
type InstrumentSpec struct {
	Symbol            string          `json:"symbol"`
	HasPrecision      bool            `json:"has_precision"`
	QuantityPrecision int32           `json:"quantity_precision"`
	StepSize          decimal.Decimal `json:"step_size"`
	MinQty            decimal.Decimal `json:"min_qty"`
}

// OrderAck 下单回执
type OrderAck struct {
	OrderID       string          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id"`
	Symbol        string          `json:"symbol"`
	Side          OrderSide       `json:"side"`
	Type          OrderType       `json:"type"`
	Status        string          `json:"status"`
	ExecutedQty   decimal.Decimal `json:"executed_qty"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
}

func (a *OrderAck) Filled() bool {
	return a != nil && a.ExecutedQty.IsPositive()
}
