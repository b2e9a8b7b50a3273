package poller

import "sync"

// LastExecuted 最近一次派发执行的信号 id，进程内状态，重启后为空
type LastExecuted struct {
	mu  sync.RWMutex
	id  int64
	set bool
}

func NewLastExecuted() *LastExecuted {
	return &LastExecuted{}
}

// Get 返回 id，未执行过任何信号时 ok 为 false
func (l *LastExecuted) Get() (id int64, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.id, l.set
}

func (l *LastExecuted) Is(id int64) bool {
	last, ok := l.Get()
	return ok && last == id
}

// Mark 比较并记录 id，和当前值相同时返回 false。多个调用方并发 Mark 同一个 id 只有一个成功
func (l *LastExecuted) Mark(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set && l.id == id {
		return false
	}
	l.id = id
	l.set = true
	return true
}
