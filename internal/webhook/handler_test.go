package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"bracketflow/internal/model"
	"bracketflow/pkg/errors"
	"bracketflow/pkg/errors/ecode"
)

const testSecret = "ab12cd34ef56abcdef1234567890abcdef1234567890"

func sign(body string) string {
	h := hmac.New(sha256.New, []byte(testSecret))
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}

type memSignals struct {
	saved []*model.Signal
}

func (m *memSignals) Latest(context.Context) (*model.Signal, error) { return nil, nil }

func (m *memSignals) Save(_ context.Context, s *model.Signal) error {
	s.ID = int64(len(m.saved) + 1)
	m.saved = append(m.saved, s)
	return nil
}

func (m *memSignals) GetByID(context.Context, int64) (*model.Signal, error) { return nil, nil }

func (m *memSignals) List(context.Context, int) ([]model.Signal, error) { return nil, nil }

func TestVerifySignature(t *testing.T) {
	wh := NewWebhookHandler(testSecret, &memSignals{})
	body := []byte(`{"pair":"BTCUSDT.P"}`)

	if !wh.VerifySignature(body, sign(string(body))) {
		t.Fatalf("valid signature rejected")
	}
	if wh.VerifySignature(body, sign(`{"pair":"ETHUSDT.P"}`)) {
		t.Fatalf("signature of another body accepted")
	}
	if wh.VerifySignature(body, "not-hex") || wh.VerifySignature(body, "") {
		t.Fatalf("malformed signature accepted")
	}
	if NewWebhookHandler("", &memSignals{}).VerifySignature(body, sign(string(body))) {
		t.Fatalf("webhook without secret must reject everything")
	}
}

func TestHandleSignal(t *testing.T) {
	store := &memSignals{}
	wh := NewWebhookHandler(testSecret, store)
	fixed := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	wh.now = func() time.Time { return fixed }

	sig, err := wh.HandleSignal(context.Background(), []byte(`{"pair":"btcusdt.p","setup_type":"long","entry":65000,"leverage":20,"stop_loss":63000,"take_profits":[66000,67000]}`))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if sig.ID != 1 || sig.Pair != "BTCUSDT.P" || sig.SetupType != "LONG" {
		t.Fatalf("unexpected signal %+v", sig)
	}
	if len(sig.TakeProfits()) != 2 || sig.TP3.Valid {
		t.Fatalf("unexpected take profits %+v", sig.TakeProfits())
	}
	if !sig.Timestamp.Equal(fixed) {
		t.Fatalf("missing timestamp should default to now")
	}

	bad := []string{
		`{"pair":"BTCUSDT","setup_type":"UP","entry":1,"leverage":1,"stop_loss":1}`,
		`{"pair":"BTCUSDT","setup_type":"LONG","entry":0,"leverage":1,"stop_loss":1}`,
		`{"pair":"BTCUSDT","setup_type":"LONG","entry":1,"leverage":1,"stop_loss":1,"take_profits":[1,2,3,4,5]}`,
		`{"pair":"","setup_type":"LONG","entry":1,"leverage":1,"stop_loss":1}`,
		`{"pair":`,
	}
	for _, body := range bad {
		_, err := wh.HandleSignal(context.Background(), []byte(body))
		if code, _ := errors.DecodeErr(err); code != ecode.ParamsErr {
			t.Fatalf("%s: expected params error, got %v", body, err)
		}
	}
	if len(store.saved) != 1 {
		t.Fatalf("invalid requests must not be stored")
	}
}

func TestHandleMessage(t *testing.T) {
	store := &memSignals{}
	wh := NewWebhookHandler(testSecret, store)

	sig, err := wh.HandleMessage(context.Background(), []byte(`{"text":"#ETHUSDT.P SHORT\nEntry: 2500\nLeverage: 10x\nSL: 2600\nTP1: 2400","date":1740787200}`))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if sig.Instrument() != "ETHUSDT" || sig.StopLossPrice() != 2600 || sig.Timestamp.Unix() != 1740787200 {
		t.Fatalf("unexpected signal %+v", sig)
	}

	_, err = wh.HandleMessage(context.Background(), []byte(`{"text":"hello"}`))
	if code, _ := errors.DecodeErr(err); code != ecode.ParamsErr {
		t.Fatalf("expected params error, got %v", err)
	}
}
