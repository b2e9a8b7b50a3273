package sizing

import (
	"errors"

	"bracketflow/internal/model"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidEntryPrice = errors.New("entry price must be positive")
	ErrQuantityTooSmall  = errors.New("quantity is zero after normalization")
)

const (
	ClampMinQty        = "min_qty"
	ClampAbsoluteFloor = "absolute_floor"
)

// Sizer 把名义金额换算成交易所可接受的下单数量
type Sizer struct {
	// 交易所既没有精度也没有 stepSize 时使用
	DefaultPrecision int32
	// 数量绝对下限
	AbsoluteFloor decimal.Decimal
}

func NewSizer(defaultPrecision int32, absoluteFloor float64) *Sizer {
	return &Sizer{
		DefaultPrecision: defaultPrecision,
		AbsoluteFloor:    decimal.NewFromFloat(absoluteFloor),
	}
}

// Compute notional/entry 按精度向零截断，再依次抬到 minQty 和绝对下限
func (s *Sizer) Compute(notional, entryPrice float64, spec model.InstrumentSpec) (*model.Sizing, error) {
	if entryPrice <= 0 {
		return nil, ErrInvalidEntryPrice
	}

	raw := decimal.NewFromFloat(notional).Div(decimal.NewFromFloat(entryPrice))
	precision := s.Precision(spec)
	qty := raw.Truncate(precision)

	res := &model.Sizing{Raw: raw, Precision: precision}
	if spec.MinQty.IsPositive() && qty.LessThan(spec.MinQty) {
		qty = spec.MinQty
		res.Clamp = ClampMinQty
	}
	if s.AbsoluteFloor.IsPositive() && qty.LessThan(s.AbsoluteFloor) {
		qty = s.AbsoluteFloor
		res.Clamp = ClampAbsoluteFloor
	}
	if !qty.IsPositive() {
		return nil, ErrQuantityTooSmall
	}
	res.Quantity = qty
	return res, nil
}

// Precision 优先使用交易所给出的精度，其次是 stepSize 的小数位
func (s *Sizer) Precision(spec model.InstrumentSpec) int32 {
	if spec.HasPrecision {
		return spec.QuantityPrecision
	}
	if spec.StepSize.IsPositive() {
		return StepScale(spec.StepSize)
	}
	return s.DefaultPrecision
}

// StepScale 去掉末尾 0 之后的小数位数，0.00100000 -> 3，1.0 -> 0
func StepScale(step decimal.Decimal) int32 {
	scale := -step.Exponent()
	for scale > 0 && step.Truncate(scale-1).Equal(step) {
		scale--
	}
	if scale < 0 {
		return 0
	}
	return scale
}
