package report

import (
	"context"
	"fmt"
	"time"

	"bracketflow/internal/model"
	"bracketflow/pkg/logger"

	"go.uber.org/multierr"
)

// Sink 执行报告的一个去处
type Sink interface {
	Name() string
	Report(ctx context.Context, rep *model.ExecutionReport) error
}

// Fanout 把报告分发给所有 sink，单个失败不影响其他
type Fanout struct {
	sinks   []Sink
	timeout time.Duration
}

func NewFanout(timeout time.Duration, sinks ...Sink) *Fanout {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Fanout{sinks: sinks, timeout: timeout}
}

func (f *Fanout) Add(s Sink) {
	f.sinks = append(f.sinks, s)
}

func (f *Fanout) Sinks() []string {
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Report 实现 executor.Reporter
func (f *Fanout) Report(ctx context.Context, rep *model.ExecutionReport) {
	if err := f.Publish(ctx, rep); err != nil {
		logger.Errorf("[Report] execution %d: %v", rep.ExecutionID, err)
	}
}

// Publish 返回所有 sink 的错误
func (f *Fanout) Publish(ctx context.Context, rep *model.ExecutionReport) error {
	// 报告发生在括号单结束之后，不受执行超时影响
	base := context.WithoutCancel(ctx)
	var errs error
	for _, s := range f.sinks {
		sctx, cancel := context.WithTimeout(base, f.timeout)
		err := s.Report(sctx, rep)
		cancel()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errs
}
