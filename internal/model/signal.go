package model

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"bracketflow/internal/consts"
)

// Direction 信号方向
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Signal 对应采集端写入的 signal_messages 表，执行端只读
type Signal struct {
	ID          int64           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Pair        string          `gorm:"column:pair;type:varchar(64)" json:"pair"`
	SetupType   string          `gorm:"column:setup_type;type:varchar(16)" json:"setup_type"`
	Entry       sql.NullFloat64 `gorm:"column:entry" json:"-"`
	Leverage    sql.NullInt64   `gorm:"column:leverage" json:"-"`
	StopLoss    sql.NullFloat64 `gorm:"column:stop_loss" json:"-"`
	TP1         sql.NullFloat64 `gorm:"column:tp1" json:"-"`
	TP2         sql.NullFloat64 `gorm:"column:tp2" json:"-"`
	TP3         sql.NullFloat64 `gorm:"column:tp3" json:"-"`
	TP4         sql.NullFloat64 `gorm:"column:tp4" json:"-"`
	Timestamp   time.Time       `gorm:"column:timestamp;index" json:"timestamp"`
	Quantity    sql.NullFloat64 `gorm:"column:quantity" json:"-"`
	FullMessage string          `gorm:"column:full_message;type:text" json:"full_message"`
}

func (Signal) TableName() string {
	return "signal_messages"
}

// TakeProfit 一个止盈目标
type TakeProfit struct {
	Label string  `json:"label"`
	Price float64 `json:"price"`
}

// Instrument 交易所合约代码：去掉 .P 后缀和分隔符
func (s *Signal) Instrument() string {
	p := strings.ToUpper(strings.TrimSpace(s.Pair))
	p = strings.TrimPrefix(p, "#")
	p = strings.TrimSuffix(p, consts.PerpetualSuffix)
	p = strings.NewReplacer("/", "", "-", "", "_", "").Replace(p)
	return p
}

func (s *Signal) Direction() (Direction, error) {
	switch Direction(strings.ToUpper(strings.TrimSpace(s.SetupType))) {
	case Long:
		return Long, nil
	case Short:
		return Short, nil
	}
	return "", fmt.Errorf("unknown setup type %q", s.SetupType)
}

func (s *Signal) EntryPrice() float64 {
	return s.Entry.Float64
}

func (s *Signal) StopLossPrice() float64 {
	return s.StopLoss.Float64
}

func (s *Signal) LeverageValue() int {
	return int(s.Leverage.Int64)
}

// TakeProfits 按 TP1..TP4 顺序返回有效目标，<=0 或空值视为未设置
func (s *Signal) TakeProfits() []TakeProfit {
	all := []sql.NullFloat64{s.TP1, s.TP2, s.TP3, s.TP4}
	tps := make([]TakeProfit, 0, len(all))
	for i, tp := range all {
		if !tp.Valid || tp.Float64 <= 0 {
			continue
		}
		tps = append(tps, TakeProfit{Label: fmt.Sprintf("TP%d", i+1), Price: tp.Float64})
	}
	return tps
}

// SetTakeProfit 按序号(1..4)设置止盈价
func (s *Signal) SetTakeProfit(n int, price float64) {
	v := sql.NullFloat64{Float64: price, Valid: true}
	switch n {
	case 1:
		s.TP1 = v
	case 2:
		s.TP2 = v
	case 3:
		s.TP3 = v
	case 4:
		s.TP4 = v
	}
}

func NullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func NullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}
