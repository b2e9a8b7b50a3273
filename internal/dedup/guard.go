package dedup

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Guard 按交易对的冷却控制：同一交易对在窗口内只允许一次市价开仓。
// 每个交易对一个 slot，不同交易对之间不会互相阻塞。
type Guard struct {
	window time.Duration
	slots  sync.Map // symbol -> *slot
}

type slot struct {
	// 执行中的括号单持有
	mu sync.Mutex
	// 最近一次确认成交的时间(UnixNano)，0 表示没有
	last atomic.Int64
}

func NewGuard(window time.Duration) *Guard {
	return &Guard{window: window}
}

func (g *Guard) Window() time.Duration {
	return g.window
}

func (g *Guard) slot(symbol string) *slot {
	if s, ok := g.slots.Load(symbol); ok {
		return s.(*slot)
	}
	s, _ := g.slots.LoadOrStore(symbol, &slot{})
	return s.(*slot)
}

// ShouldBlock 只读检查，冷却期内返回 true
func (g *Guard) ShouldBlock(symbol string, now time.Time) bool {
	s, ok := g.slots.Load(symbol)
	if !ok {
		return false
	}
	return g.cooling(s.(*slot), now)
}

func (g *Guard) cooling(s *slot, now time.Time) bool {
	last := s.last.Load()
	if last == 0 {
		return false
	}
	return now.Sub(time.Unix(0, last)) < g.window
}

// Acquire 原子地检查并占用交易对。
// 同一交易对已有执行中的括号单，或仍在冷却期内，返回 false。
func (g *Guard) Acquire(symbol string, now time.Time) (*Ticket, bool) {
	s := g.slot(symbol)
	if !s.mu.TryLock() {
		return nil, false
	}
	if g.cooling(s, now) {
		s.mu.Unlock()
		return nil, false
	}
	return &Ticket{slot: s}, true
}

// Ticket 持有期间独占交易对
type Ticket struct {
	slot     *slot
	released atomic.Bool
}

// Confirm 开仓确认成交后写入冷却时间
func (t *Ticket) Confirm(at time.Time) {
	t.slot.last.Store(at.UnixNano())
}

// Release 可重复调用
func (t *Ticket) Release() {
	if t.released.CompareAndSwap(false, true) {
		t.slot.mu.Unlock()
	}
}

// Cooldown 一个仍在冷却中的交易对
type Cooldown struct {
	Symbol    string        `json:"symbol"`
	LastEntry time.Time     `json:"last_entry"`
	Remaining time.Duration `json:"remaining"`
}

// Active 当前所有冷却中的交易对，按剩余时间倒序
func (g *Guard) Active(now time.Time) []Cooldown {
	var out []Cooldown
	g.slots.Range(func(k, v any) bool {
		s := v.(*slot)
		last := s.last.Load()
		if last == 0 {
			return true
		}
		at := time.Unix(0, last)
		if remaining := g.window - now.Sub(at); remaining > 0 {
			out = append(out, Cooldown{Symbol: k.(string), LastEntry: at, Remaining: remaining})
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Remaining > out[j].Remaining })
	return out
}
