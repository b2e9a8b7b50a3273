package poller

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"bracketflow/internal/metrics"
	"bracketflow/internal/model"
	"bracketflow/pkg/logger"
)

// SignalSource 信号来源，dao.SignalDao 满足该接口
type SignalSource interface {
	// 最新一条信号，没有时返回 nil, nil
	Latest(ctx context.Context) (*model.Signal, error)
}

type Executor interface {
	Execute(ctx context.Context, sig model.Signal) *model.ExecutionReport
}

type Config struct {
	Interval       time.Duration
	BracketTimeout time.Duration
}

// Poller 定时拉取最新信号并交给执行器，tick 串行执行
type Poller struct {
	source SignalSource
	exec   Executor
	last   *LastExecuted
	cfg    Config

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPoller(source SignalSource, exec Executor, last *LastExecuted, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if last == nil {
		last = NewLastExecuted()
	}
	return &Poller{
		source: source,
		exec:   exec,
		last:   last,
		cfg:    cfg,
		stop:   make(chan struct{}),
	}
}

func (p *Poller) LastExecuted() *LastExecuted {
	return p.last
}

// Start 后台运行，配合 Stop 使用
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Run(ctx)
	}()
}

// Run 阻塞直到 ctx 结束或 Stop，启动后立即执行第一次 tick
func (p *Poller) Run(ctx context.Context) {
	logger.Infof("[Poller] started, interval=%s", p.cfg.Interval)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		p.Tick(ctx)
		select {
		case <-ctx.Done():
			logger.Infof("[Poller] context done, exit")
			return
		case <-p.stop:
			logger.Infof("[Poller] stopped")
			return
		case <-ticker.C:
		}
	}
}

// Stop 停止接收新的 tick，并等待正在执行的括号单结束
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

// Tick 执行一次拉取，所有错误和 panic 都在这里吞掉，不影响下一次
func (p *Poller) Tick(ctx context.Context) (dispatched bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncTick(metrics.TickPanic)
			logger.Errorf("[Poller] tick panic: %v\n%s", r, debug.Stack())
			dispatched = false
		}
	}()

	select {
	case <-p.stop:
		return false
	default:
	}

	sig, err := p.source.Latest(ctx)
	if err != nil {
		metrics.IncTick(metrics.TickError)
		logger.Errorf("[Poller] fetch latest signal: %v", err)
		return false
	}
	if sig == nil {
		metrics.IncTick(metrics.TickIdle)
		logger.Debugf("[Poller] no signal")
		return false
	}
	// 先记录再执行，失败的信号不会重试
	if !p.last.Mark(sig.ID) {
		metrics.IncTick(metrics.TickSeen)
		logger.Debugf("[Poller] signal %d already executed", sig.ID)
		return false
	}
	metrics.IncTick(metrics.TickDispatched)
	metrics.SetLastSignalID(sig.ID)
	logger.Info("[Poller] new signal",
		logger.Pair("signal_id", sig.ID),
		logger.Pair("pair", sig.Pair),
		logger.Pair("setup_type", sig.SetupType),
		logger.Pair("timestamp", sig.Timestamp))

	p.dispatch(ctx, *sig)
	return true
}

// 执行中的括号单不跟随关停取消，只受 BracketTimeout 约束
func (p *Poller) dispatch(ctx context.Context, sig model.Signal) {
	execCtx := context.WithoutCancel(ctx)
	if p.cfg.BracketTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(execCtx, p.cfg.BracketTimeout)
		defer cancel()
	}
	rep := p.exec.Execute(execCtx, sig)
	if rep == nil {
		logger.Warnf("[Poller] signal %d: executor returned no report", sig.ID)
		return
	}
	logger.Infof("[Poller] signal %d %s finished: %s (%s)", sig.ID, rep.Symbol, rep.Outcome, rep.Duration())
}
