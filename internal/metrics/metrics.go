package metrics

import (
	"context"

	"bracketflow/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// 暴露在 /metrics:
//   bracketflow_executions_total{outcome}
//   bracketflow_order_legs_total{leg,result}
//   bracketflow_poll_ticks_total{result}
//   bracketflow_last_signal_id
//   bracketflow_bracket_duration_seconds

var (
	executions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bracketflow_executions_total",
			Help: "Bracket executions by outcome",
		},
		[]string{"outcome"},
	)

	legs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bracketflow_order_legs_total",
			Help: "Protective order legs by label and result",
		},
		[]string{"leg", "result"}, // result: ok|failed
	)

	ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bracketflow_poll_ticks_total",
			Help: "Poll ticks by result",
		},
		[]string{"result"},
	)

	lastSignal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bracketflow_last_signal_id",
			Help: "Id of the last signal dispatched for execution",
		},
	)

	duration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bracketflow_bracket_duration_seconds",
			Help:    "Wall time of a bracket execution",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
)

func init() {
	prometheus.MustRegister(executions, legs, ticks)
	prometheus.MustRegister(lastSignal, duration)
}

// poll tick 结果
const (
	TickDispatched = "dispatched"
	TickIdle       = "idle"
	TickSeen       = "seen"
	TickError      = "error"
	TickPanic      = "panic"
)

func IncTick(result string)    { ticks.WithLabelValues(result).Inc() }
func SetLastSignalID(id int64) { lastSignal.Set(float64(id)) }

func TickCount(result string) float64 {
	return counterValue(ticks.WithLabelValues(result))
}

// Sink 把执行报告记到指标上
type Sink struct{}

func (Sink) Name() string { return "metrics" }

func (Sink) Report(_ context.Context, rep *model.ExecutionReport) error {
	executions.WithLabelValues(string(rep.Outcome)).Inc()
	for _, leg := range rep.Legs {
		result := "ok"
		if !leg.OK {
			result = "failed"
		}
		legs.WithLabelValues(leg.Label, result).Inc()
	}
	if d := rep.Duration(); d > 0 {
		duration.Observe(d.Seconds())
	}
	return nil
}

// TickCounts 各结果的 tick 次数，状态接口使用
func TickCounts() map[string]float64 {
	out := make(map[string]float64, 5)
	for _, r := range []string{TickDispatched, TickIdle, TickSeen, TickError, TickPanic} {
		out[r] = TickCount(r)
	}
	return out
}

func ExecutionCount(outcome model.OutcomeKind) float64 {
	return counterValue(executions.WithLabelValues(string(outcome)))
}

func LegCount(leg, result string) float64 {
	return counterValue(legs.WithLabelValues(leg, result))
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
