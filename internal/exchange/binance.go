package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bracketflow/conf"
	"bracketflow/internal/model"
	"bracketflow/pkg/logger"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// BinanceGateway U本位合约 REST 适配
type BinanceGateway struct {
	client      *futures.Client
	limiter     *rate.Limiter
	recvWindow  int64
	callTimeout time.Duration
	reduceOnly  bool
}

func NewBinanceGateway(cfg conf.Binance) *BinanceGateway {
	if cfg.Testnet {
		futures.UseTestnet = true
	}
	client := binance.NewFuturesClient(cfg.ApiKey, cfg.SecretKey)
	if cfg.BaseURL != "" {
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	client.HTTPClient = &http.Client{Timeout: cfg.CallTimeout}

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	return &BinanceGateway{
		client:      client,
		limiter:     rate.NewLimiter(limit, 1),
		recvWindow:  cfg.RecvWindow,
		callTimeout: cfg.CallTimeout,
		reduceOnly:  cfg.ReduceOnlyProtective,
	}
}

// call 限速 + 单次调用超时
func (b *BinanceGateway) call(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	if b.callTimeout <= 0 {
		ctx, cancel := context.WithCancel(ctx)
		return ctx, cancel, nil
	}
	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	return ctx, cancel, nil
}

func (b *BinanceGateway) opts() []futures.RequestOption {
	if b.recvWindow <= 0 {
		return nil
	}
	return []futures.RequestOption{futures.WithRecvWindow(b.recvWindow)}
}

func (b *BinanceGateway) AvailableBalance(ctx context.Context, asset string) (float64, error) {
	ctx, cancel, err := b.call(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	balances, err := b.client.NewGetBalanceService().Do(ctx, b.opts()...)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	for _, bal := range balances {
		if !strings.EqualFold(bal.Asset, asset) {
			continue
		}
		v, err := strconv.ParseFloat(bal.AvailableBalance, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %s available balance %q: %w", asset, bal.AvailableBalance, err)
		}
		return v, nil
	}
	// 账户里没有该资产视为 0
	return 0, nil
}

func (b *BinanceGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	ctx, cancel, err := b.call(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	res, err := b.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx, b.opts()...)
	if err != nil {
		return fmt.Errorf("change leverage %s to %dx: %w", symbol, leverage, err)
	}
	logger.Debugf("[Binance] %s leverage=%d maxNotional=%s", symbol, res.Leverage, res.MaxNotionalValue)
	return nil
}

func (b *BinanceGateway) InstrumentSpec(ctx context.Context, symbol string) (*model.InstrumentSpec, error) {
	ctx, cancel, err := b.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange info: %w", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		spec := &model.InstrumentSpec{
			Symbol:            s.Symbol,
			HasPrecision:      true,
			QuantityPrecision: int32(s.QuantityPrecision),
		}
		if lot := s.LotSizeFilter(); lot != nil {
			if step, err := decimal.NewFromString(lot.StepSize); err == nil {
				spec.StepSize = step
			}
			if minQty, err := decimal.NewFromString(lot.MinQuantity); err == nil {
				spec.MinQty = minQty
			}
		}
		return spec, nil
	}
	return nil, fmt.Errorf("%s: %w", symbol, ErrInstrumentNotFound)
}

func (b *BinanceGateway) PlaceMarketOrder(ctx context.Context, symbol string, side model.OrderSide, qty decimal.Decimal) (*model.OrderAck, error) {
	svc := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(qty.String()).
		// RESULT 回执里才有成交数量
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	return b.create(ctx, svc, symbol, side, model.OrderTypeMarket)
}

// 止损、止盈走条件单接口 /fapi/v1/algoOrder
func (b *BinanceGateway) PlaceStopOrder(ctx context.Context, symbol string, side model.OrderSide, qty decimal.Decimal, stopPrice float64) (*model.OrderAck, error) {
	return b.createAlgo(ctx, symbol, side, qty, stopPrice, futures.AlgoOrderTypeStopMarket, model.OrderTypeStopMarket)
}

func (b *BinanceGateway) PlaceTakeProfitOrder(ctx context.Context, symbol string, side model.OrderSide, qty decimal.Decimal, triggerPrice float64) (*model.OrderAck, error) {
	return b.createAlgo(ctx, symbol, side, qty, triggerPrice, futures.AlgoOrderTypeTakeProfitMarket, model.OrderTypeTakeProfit)
}

func (b *BinanceGateway) createAlgo(ctx context.Context, symbol string, side model.OrderSide, qty decimal.Decimal, trigger float64, algoType futures.AlgoOrderType, typ model.OrderType) (*model.OrderAck, error) {
	ctx, cancel, err := b.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	clientID := newClientOrderID()
	svc := b.client.NewCreateAlgoOrderService().
		AlgoType(futures.OrderAlgoTypeConditional).
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(algoType).
		Quantity(qty.String()).
		TriggerPrice(formatPrice(trigger)).
		TimeInForce(futures.TimeInForceTypeGTC).
		ClientAlgoId(clientID)
	if b.reduceOnly {
		svc = svc.ReduceOnly(true)
	}
	res, err := svc.Do(ctx, b.opts()...)
	if err != nil {
		return nil, fmt.Errorf("place %s %s %s: %w", typ, side, symbol, err)
	}

	ack := &model.OrderAck{
		OrderID:       strconv.FormatInt(res.AlgoId, 10),
		ClientOrderID: res.ClientAlgoId,
		Symbol:        symbol,
		Side:          side,
		Type:          typ,
		Status:        res.AlgoStatus,
	}
	if ack.ClientOrderID == "" {
		ack.ClientOrderID = clientID
	}
	return ack, nil
}

func (b *BinanceGateway) create(ctx context.Context, svc *futures.CreateOrderService, symbol string, side model.OrderSide, typ model.OrderType) (*model.OrderAck, error) {
	ctx, cancel, err := b.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	clientID := newClientOrderID()
	res, err := svc.NewClientOrderID(clientID).Do(ctx, b.opts()...)
	if err != nil {
		return nil, fmt.Errorf("place %s %s %s: %w", typ, side, symbol, err)
	}

	ack := &model.OrderAck{
		OrderID:       strconv.FormatInt(res.OrderID, 10),
		ClientOrderID: res.ClientOrderID,
		Symbol:        symbol,
		Side:          side,
		Type:          typ,
		Status:        string(res.Status),
	}
	if ack.ClientOrderID == "" {
		ack.ClientOrderID = clientID
	}
	if res.ExecutedQuantity != "" {
		if v, err := decimal.NewFromString(res.ExecutedQuantity); err == nil {
			ack.ExecutedQty = v
		}
	}
	if res.AvgPrice != "" {
		if v, err := decimal.NewFromString(res.AvgPrice); err == nil {
			ack.AvgPrice = v
		}
	}
	return ack, nil
}

// 币安 clientOrderId 最长 36 位
func newClientOrderID() string {
	return "bf-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:28]
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
