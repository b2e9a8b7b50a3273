package exchange

import (
	"context"
	"errors"

	"bracketflow/internal/model"

	"github.com/shopspring/decimal"
)

var ErrInstrumentNotFound = errors.New("instrument not found")

// Gateway 交易所适配层，只做请求映射，不含业务逻辑，也不重试
type Gateway interface {
	// 指定资产的可用余额
	AvailableBalance(ctx context.Context, asset string) (float64, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	// 下单规则，找不到交易对返回 ErrInstrumentNotFound
	InstrumentSpec(ctx context.Context, symbol string) (*model.InstrumentSpec, error)

	PlaceMarketOrder(ctx context.Context, symbol string, side model.OrderSide, qty decimal.Decimal) (*model.OrderAck, error)
	PlaceStopOrder(ctx context.Context, symbol string, side model.OrderSide, qty decimal.Decimal, stopPrice float64) (*model.OrderAck, error)
	PlaceTakeProfitOrder(ctx context.Context, symbol string, side model.OrderSide, qty decimal.Decimal, triggerPrice float64) (*model.OrderAck, error)
}
