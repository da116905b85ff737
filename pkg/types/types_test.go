package types

import (
	"testing"
	"time"
)

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusStopped, true},
		{StatusTimedOut, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("Terminal(%s) = %v; want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestRecordLifecycle(t *testing.T) {
	rec := NewExecutionRecord("exec-abc123", "drill")

	if rec.Status() != StatusPending {
		t.Fatalf("fresh record should be Pending, got %s", rec.Status())
	}
	rec.MarkRunning()
	if rec.Status() != StatusRunning {
		t.Fatalf("expected Running, got %s", rec.Status())
	}

	rec.AppendPhase(PhaseResult{PhaseName: "inject", Success: true})
	rec.Finalize(StatusCompleted, "")

	if !rec.Sealed() {
		t.Error("record should be sealed after Finalize")
	}
	snap := rec.Snapshot()
	if snap.Status != StatusCompleted || snap.EndTime == nil {
		t.Errorf("unexpected sealed snapshot: %+v", snap)
	}
	if snap.EndTime.Before(snap.StartTime) {
		t.Error("end time before start time")
	}
}

func TestRecordIgnoresMutationAfterSeal(t *testing.T) {
	rec := NewExecutionRecord("exec-abc123", "drill")
	rec.MarkRunning()
	rec.Finalize(StatusStopped, "external stop requested")

	rec.AppendPhase(PhaseResult{PhaseName: "late"})
	rec.SetRollback(RollbackResult{Partial: true})
	rec.Finalize(StatusCompleted, "second finalize must lose")
	rec.MarkRunning()

	snap := rec.Snapshot()
	if len(snap.Phases) != 0 {
		t.Errorf("phase appended after seal: %+v", snap.Phases)
	}
	if snap.RollbackResult != nil {
		t.Error("rollback attached after seal")
	}
	if snap.Status != StatusStopped || snap.TerminationReason != "external stop requested" {
		t.Errorf("terminal state overwritten: %s / %s", snap.Status, snap.TerminationReason)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	rec := NewExecutionRecord("exec-abc123", "drill")
	rec.MarkRunning()
	rec.AppendPhase(PhaseResult{
		PhaseName: "inject",
		Actions:   []ActionResult{{Service: "exchange", Kind: "halt_trading", CorrelationID: "chaos-exchange-halt_trading-aaaa"}},
		Assertions: []AssertionResult{{
			Kind:     "risk_alert",
			Passed:   true,
			Evidence: map[string]interface{}{"alert": "trading_halted"},
		}},
	})

	snap := rec.Snapshot()
	snap.Phases[0].Actions[0].Service = "mutated"
	snap.Phases[0].Assertions[0].Evidence["alert"] = "mutated"

	fresh := rec.Snapshot()
	if fresh.Phases[0].Actions[0].Service != "exchange" {
		t.Error("snapshot shares action slice with the record")
	}
	if fresh.Phases[0].Assertions[0].Evidence["alert"] != "trading_halted" {
		t.Error("snapshot shares evidence map with the record")
	}
}

func TestSummarize(t *testing.T) {
	rec := NewExecutionRecord("exec-abc123", "drill")
	sum := rec.Summarize()
	if sum.ExecutionID != "exec-abc123" || sum.ScenarioName != "drill" || sum.EndTime != nil {
		t.Errorf("unexpected summary: %+v", sum)
	}
	rec.Finalize(StatusCompleted, "")
	if sum = rec.Summarize(); sum.EndTime == nil {
		t.Error("summary of a sealed record should carry the end time")
	}
}

func TestPollIntervalOverride(t *testing.T) {
	details := CoordinatorDetails{
		AssertionPollInterval:  5 * time.Second,
		AssertionPollOverrides: map[string]time.Duration{"risk_alert": time.Second},
	}
	if got := details.PollInterval("risk_alert"); got != time.Second {
		t.Errorf("override ignored, got %v", got)
	}
	if got := details.PollInterval("system_health"); got != 5*time.Second {
		t.Errorf("default lost, got %v", got)
	}
}
