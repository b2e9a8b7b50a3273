package sizing

import (
	"errors"
	"testing"

	"bracketflow/internal/model"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSizer_BTCUSDT(t *testing.T) {
	s := NewSizer(3, 0.000001)
	spec := model.InstrumentSpec{Symbol: "BTCUSDT", HasPrecision: true, QuantityPrecision: 3, MinQty: dec("0.001")}

	// 10/65000 = 0.000153... 截断为 0.000，抬到 minQty
	res, err := s.Compute(10, 65000, spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Quantity.Equal(dec("0.001")) {
		t.Fatalf("expected 0.001, got %s", res.Quantity)
	}
	if res.Clamp != ClampMinQty {
		t.Fatalf("expected min_qty clamp, got %q", res.Clamp)
	}
}

func TestSizer_Compute(t *testing.T) {
	s := NewSizer(3, 0.000001)
	cases := []struct {
		name     string
		notional float64
		entry    float64
		spec     model.InstrumentSpec
		want     string
		clamp    string
	}{
		{"precision truncates never rounds up", 10, 3, model.InstrumentSpec{HasPrecision: true, QuantityPrecision: 2}, "3.33", ""},
		{"precision zero", 10, 0.7, model.InstrumentSpec{HasPrecision: true, QuantityPrecision: 0}, "14", ""},
		{"step size scale", 10, 3, model.InstrumentSpec{StepSize: dec("0.00100000")}, "3.333", ""},
		{"integer step size", 10, 0.3, model.InstrumentSpec{StepSize: dec("1.0")}, "33", ""},
		{"default precision", 10, 7, model.InstrumentSpec{}, "1.428", ""},
		{"precision wins over step size", 10, 3, model.InstrumentSpec{HasPrecision: true, QuantityPrecision: 1, StepSize: dec("0.001")}, "3.3", ""},
		{"min qty from lot size", 10, 3000, model.InstrumentSpec{StepSize: dec("0.01"), MinQty: dec("0.01")}, "0.01", ClampMinQty},
		{"absolute floor", 1, 1e9, model.InstrumentSpec{HasPrecision: true, QuantityPrecision: 8}, "0.000001", ClampAbsoluteFloor},
		{"floor below precision", 1, 1e9, model.InstrumentSpec{HasPrecision: true, QuantityPrecision: 3}, "0.000001", ClampAbsoluteFloor},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res, err := s.Compute(c.notional, c.entry, c.spec)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.Quantity.Equal(dec(c.want)) {
				t.Fatalf("expected %s, got %s", c.want, res.Quantity)
			}
			if res.Clamp != c.clamp {
				t.Fatalf("expected clamp %q, got %q", c.clamp, res.Clamp)
			}
		})
	}
}

// 截断结果不超过原始值，且和原始值的差小于一个最小单位
func TestSizer_TruncationBounds(t *testing.T) {
	s := NewSizer(3, 0.000001)
	for _, entry := range []float64{0.0123, 1.7, 3, 19.99, 245.5, 3120.75} {
		for p := int32(0); p <= 4; p++ {
			spec := model.InstrumentSpec{HasPrecision: true, QuantityPrecision: p}
			res, err := s.Compute(100, entry, spec)
			if err != nil {
				t.Fatalf("entry %v precision %d: %v", entry, p, err)
			}
			if res.Clamp != "" {
				continue
			}
			unit := decimal.New(1, -p)
			if res.Quantity.GreaterThan(res.Raw) {
				t.Fatalf("entry %v precision %d: %s rounded up from %s", entry, p, res.Quantity, res.Raw)
			}
			if res.Raw.Sub(res.Quantity).GreaterThanOrEqual(unit) {
				t.Fatalf("entry %v precision %d: %s too far below %s", entry, p, res.Quantity, res.Raw)
			}
		}
	}
}

func TestSizer_InvalidEntry(t *testing.T) {
	s := NewSizer(3, 0.000001)
	for _, entry := range []float64{0, -1} {
		if _, err := s.Compute(10, entry, model.InstrumentSpec{}); !errors.Is(err, ErrInvalidEntryPrice) {
			t.Fatalf("entry %v: expected ErrInvalidEntryPrice, got %v", entry, err)
		}
	}
}

func TestSizer_QuantityTooSmall(t *testing.T) {
	s := &Sizer{DefaultPrecision: 3}
	if _, err := s.Compute(1, 1e9, model.InstrumentSpec{}); !errors.Is(err, ErrQuantityTooSmall) {
		t.Fatalf("expected ErrQuantityTooSmall, got %v", err)
	}
}

func TestStepScale(t *testing.T) {
	cases := map[string]int32{
		"0.00100000": 3,
		"0.1":        1,
		"1.0":        0,
		"10":         0,
		"0.00000001": 8,
		"0.5000":     1,
	}
	for in, want := range cases {
		if got := StepScale(dec(in)); got != want {
			t.Fatalf("StepScale(%s) = %d, want %d", in, got, want)
		}
	}
}
