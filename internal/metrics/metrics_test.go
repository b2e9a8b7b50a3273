package metrics

import (
	"context"
	"testing"
	"time"

	"bracketflow/internal/model"
)

func TestSink_Report(t *testing.T) {
	beforeExec := ExecutionCount(model.OutcomeStopLossFailed)
	beforeLeg := LegCount("SL", "failed")

	start := time.Now()
	rep := &model.ExecutionReport{
		Outcome:    model.OutcomeStopLossFailed,
		Legs:       []model.LegResult{{Label: "SL", OK: false}},
		StartedAt:  start,
		FinishedAt: start.Add(300 * time.Millisecond),
	}
	if err := (Sink{}).Report(context.Background(), rep); err != nil {
		t.Fatalf("report: %v", err)
	}

	if got := ExecutionCount(model.OutcomeStopLossFailed) - beforeExec; got != 1 {
		t.Fatalf("expected executions +1, got %v", got)
	}
	if got := LegCount("SL", "failed") - beforeLeg; got != 1 {
		t.Fatalf("expected failed SL leg +1, got %v", got)
	}
}

func TestIncTick(t *testing.T) {
	before := TickCount(TickIdle)
	IncTick(TickIdle)
	IncTick(TickIdle)
	if got := TickCount(TickIdle) - before; got != 2 {
		t.Fatalf("expected 2 idle ticks, got %v", got)
	}
}
