package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"bracketflow/conf"
	"bracketflow/internal/model"

	"github.com/shopspring/decimal"
)

// fakeFutures 按路径模拟币安合约接口
type fakeFutures struct {
	mu     sync.Mutex
	orders []url.Values
	algos  []url.Values
	lev    url.Values
}

func (f *fakeFutures) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, "/balance"):
		fmt.Fprint(w, `[{"accountAlias":"x","asset":"BNB","balance":"1","availableBalance":"1"},
			{"accountAlias":"x","asset":"USDT","balance":"25.5","availableBalance":"12.75"}]`)
	case strings.HasSuffix(path, "/leverage"):
		f.mu.Lock()
		f.lev = r.Form
		f.mu.Unlock()
		fmt.Fprintf(w, `{"leverage":%s,"maxNotionalValue":"1000000","symbol":"%s"}`, r.Form.Get("leverage"), r.Form.Get("symbol"))
	case strings.HasSuffix(path, "/exchangeInfo"):
		fmt.Fprint(w, `{"timezone":"UTC","serverTime":1,"symbols":[
			{"symbol":"ETHUSDT","quantityPrecision":3,"pricePrecision":2,
			 "filters":[{"filterType":"LOT_SIZE","stepSize":"0.001","minQty":"0.001","maxQty":"10000"}]},
			{"symbol":"BTCUSDT","quantityPrecision":3,"pricePrecision":1,
			 "filters":[{"filterType":"PRICE_FILTER","tickSize":"0.10","minPrice":"0.1","maxPrice":"1000000"},
			            {"filterType":"LOT_SIZE","stepSize":"0.001","minQty":"0.001","maxQty":"1000"}]}]}`)
	case strings.HasSuffix(path, "/fapi/v1/order"):
		f.mu.Lock()
		f.orders = append(f.orders, r.Form)
		n := len(f.orders)
		f.mu.Unlock()
		// 条件单类型不再允许走普通下单接口
		if r.Form.Get("type") != "MARKET" && r.Form.Get("type") != "LIMIT" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code":-4120,"msg":"Order type not supported for this endpoint."}`)
			return
		}
		fmt.Fprintf(w, `{"orderId":%d,"symbol":"%s","status":"FILLED","clientOrderId":"%s","executedQty":"%s","avgPrice":"65000.5","side":"%s","type":"%s"}`,
			1000+n, r.Form.Get("symbol"), r.Form.Get("newClientOrderId"), r.Form.Get("quantity"), r.Form.Get("side"), r.Form.Get("type"))
	case strings.HasSuffix(path, "/fapi/v1/algoOrder"):
		f.mu.Lock()
		f.algos = append(f.algos, r.Form)
		n := len(f.algos)
		f.mu.Unlock()
		if r.Form.Get("type") == "TAKE_PROFIT_MARKET" && r.Form.Get("triggerPrice") == "1" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code":-2021,"msg":"Order would immediately trigger."}`)
			return
		}
		fmt.Fprintf(w, `{"algoId":%d,"clientAlgoId":"%s","algoType":"%s","orderType":"%s","symbol":"%s","side":"%s","quantity":"%s","algoStatus":"NEW","triggerPrice":"%s"}`,
			2000+n, r.Form.Get("clientAlgoId"), r.Form.Get("algoType"), r.Form.Get("type"), r.Form.Get("symbol"),
			r.Form.Get("side"), r.Form.Get("quantity"), r.Form.Get("triggerPrice"))
	default:
		http.NotFound(w, r)
	}
}

func newTestGateway(t *testing.T) (*BinanceGateway, *fakeFutures) {
	t.Helper()
	fake := &fakeFutures{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	gw := NewBinanceGateway(conf.Binance{
		ApiKey:      "key",
		SecretKey:   "secret",
		BaseURL:     srv.URL,
		RecvWindow:  60000,
		CallTimeout: 5 * time.Second,
	})
	return gw, fake
}

func TestBinanceGateway_Balance(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()

	bal, err := gw.AvailableBalance(ctx, "USDT")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 12.75 {
		t.Fatalf("expected 12.75, got %v", bal)
	}
	bal, err = gw.AvailableBalance(ctx, "BUSD")
	if err != nil || bal != 0 {
		t.Fatalf("missing asset should be 0, got %v %v", bal, err)
	}
}

func TestBinanceGateway_LeverageAndSpec(t *testing.T) {
	gw, fake := newTestGateway(t)
	ctx := context.Background()

	if err := gw.SetLeverage(ctx, "BTCUSDT", 20); err != nil {
		t.Fatalf("leverage: %v", err)
	}
	if fake.lev.Get("symbol") != "BTCUSDT" || fake.lev.Get("leverage") != "20" {
		t.Fatalf("unexpected leverage params %v", fake.lev)
	}

	spec, err := gw.InstrumentSpec(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	if !spec.HasPrecision || spec.QuantityPrecision != 3 {
		t.Fatalf("unexpected precision %+v", spec)
	}
	if !spec.MinQty.Equal(decimal.RequireFromString("0.001")) || !spec.StepSize.Equal(decimal.RequireFromString("0.001")) {
		t.Fatalf("unexpected lot size %+v", spec)
	}

	if _, err := gw.InstrumentSpec(ctx, "DOGEUSDT"); !errors.Is(err, ErrInstrumentNotFound) {
		t.Fatalf("expected ErrInstrumentNotFound, got %v", err)
	}
}

func TestBinanceGateway_Orders(t *testing.T) {
	gw, fake := newTestGateway(t)
	ctx := context.Background()
	qty := decimal.RequireFromString("0.002")

	ack, err := gw.PlaceMarketOrder(ctx, "BTCUSDT", model.Buy, qty)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if !ack.Filled() || !ack.ExecutedQty.Equal(qty) || ack.Status != "FILLED" || ack.OrderID != "1001" {
		t.Fatalf("unexpected market ack %+v", ack)
	}
	if ack.ClientOrderID == "" || len(ack.ClientOrderID) > 36 {
		t.Fatalf("bad client order id %q", ack.ClientOrderID)
	}

	stopAck, err := gw.PlaceStopOrder(ctx, "BTCUSDT", model.Sell, qty, 63000.5)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopAck.OrderID != "2001" || stopAck.Status != "NEW" || stopAck.Type != model.OrderTypeStopMarket {
		t.Fatalf("unexpected stop ack %+v", stopAck)
	}
	if stopAck.ClientOrderID == "" || len(stopAck.ClientOrderID) > 36 {
		t.Fatalf("bad client algo id %q", stopAck.ClientOrderID)
	}
	tpAck, err := gw.PlaceTakeProfitOrder(ctx, "BTCUSDT", model.Sell, qty, 67000)
	if err != nil {
		t.Fatalf("take profit: %v", err)
	}
	if tpAck.OrderID != "2002" || tpAck.Type != model.OrderTypeTakeProfit {
		t.Fatalf("unexpected take profit ack %+v", tpAck)
	}
	if _, err := gw.PlaceTakeProfitOrder(ctx, "BTCUSDT", model.Sell, qty, 1); err == nil {
		t.Fatalf("expected remote rejection to surface as error")
	}

	// 市价单走 /order，止损止盈走 /algoOrder
	if len(fake.orders) != 1 {
		t.Fatalf("expected 1 plain order request, got %d", len(fake.orders))
	}
	if len(fake.algos) != 3 {
		t.Fatalf("expected 3 algo order requests, got %d", len(fake.algos))
	}
	market, stop, tp := fake.orders[0], fake.algos[0], fake.algos[1]
	if market.Get("type") != "MARKET" || market.Get("side") != "BUY" || market.Get("quantity") != "0.002" {
		t.Fatalf("unexpected market params %v", market)
	}
	if market.Get("newOrderRespType") != "RESULT" {
		t.Fatalf("market order should ask for RESULT response, got %v", market)
	}
	if market.Get("recvWindow") != "60000" {
		t.Fatalf("expected recvWindow 60000, got %q", market.Get("recvWindow"))
	}
	if stop.Get("algoType") != "CONDITIONAL" || stop.Get("type") != "STOP_MARKET" || stop.Get("side") != "SELL" ||
		stop.Get("triggerPrice") != "63000.5" || stop.Get("timeInForce") != "GTC" {
		t.Fatalf("unexpected stop params %v", stop)
	}
	if stop.Get("recvWindow") != "60000" {
		t.Fatalf("expected recvWindow on algo order, got %q", stop.Get("recvWindow"))
	}
	if tp.Get("type") != "TAKE_PROFIT_MARKET" || tp.Get("triggerPrice") != "67000" || tp.Get("quantity") != "0.002" {
		t.Fatalf("unexpected take profit params %v", tp)
	}
	if stop.Get("reduceOnly") == "true" {
		t.Fatalf("reduceOnly should be off by default")
	}
}
