package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kyokomi/emoji"
	"github.com/sirupsen/logrus"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/events"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/log"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/metrics"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/scenario"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/telemetry"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/types"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/utils/retry"
)

// Supervisor drives one execution from phase iteration through finalize. It
// exclusively owns its ExecutionRecord until Finalize seals it.
type Supervisor struct {
	engine       *Engine
	scenario     *scenario.Scenario
	record       *types.ExecutionRecord
	stopped      *atomic.Bool
	correlations correlationLog
}

// NewSupervisor build the supervisor for one submitted scenario. stopped is
// the external stop signal owned by the registry entry.
func (e *Engine) NewSupervisor(sc *scenario.Scenario, record *types.ExecutionRecord, stopped *atomic.Bool) *Supervisor {
	return &Supervisor{
		engine:   e,
		scenario: sc,
		record:   record,
		stopped:  stopped,
	}
}

// Run walks the scenario's phases in order under the scenario deadline,
// triggers rollback on failure, and finalizes the record. It never returns
// an error; the sealed record is the outcome.
func (s *Supervisor) Run(ctx context.Context) {
	executionID := s.record.ExecutionID()
	ctx, span := telemetry.StartSpan(ctx, "chaos.execution")
	defer span.End()

	// a stop racing submit wins before any phase runs
	if s.stopped.Load() {
		s.record.Finalize(types.StatusStopped, "external stop requested before start")
		s.persist()
		return
	}

	s.record.MarkRunning()
	metrics.ExecutionStarted()
	logger := log.WithExecution(executionID)
	logger.WithFields(logrus.Fields{
		"Scenario": s.scenario.Name,
		"Phases":   len(s.scenario.Phases),
	}).Info("[Execution]: Starting scenario")
	s.engine.publish(events.EventDetails{
		ExecutionID: executionID,
		Reason:      events.ReasonExecutionStarted,
		Message:     "scenario execution started",
		Fields:      map[string]interface{}{"scenario": s.scenario.Name},
	})

	var failedPhase, failureReason string
	for _, ph := range s.scenario.Phases {
		if ctx.Err() != nil || s.stopped.Load() {
			break
		}
		phaseResult := s.engine.runPhase(ctx, executionID, ph, &s.correlations)
		s.record.AppendPhase(phaseResult)
		s.engine.publish(events.EventDetails{
			ExecutionID: executionID,
			Reason:      events.ReasonPhaseCompleted,
			Message:     "phase finished",
			Fields:      map[string]interface{}{"phase": ph.Name, "success": phaseResult.Success},
		})
		if !phaseResult.Success {
			failedPhase = ph.Name
			failureReason = phaseResult.Error
			break
		}
	}

	status, reason := s.verdict(ctx, failedPhase, failureReason)

	if s.shouldRollback(status) {
		s.engine.publish(events.EventDetails{
			ExecutionID: executionID,
			Reason:      events.ReasonRollbackStarted,
			Message:     "rollback started",
		})
		rollbackResult := s.engine.runRollback(executionID, s.scenario.Rollback, &s.correlations, s.engine.details.AggressiveCleanup)
		s.record.SetRollback(rollbackResult)
	}

	s.record.Finalize(status, reason)
	metrics.ExecutionFinished(status)
	s.persist()
	s.engine.publish(events.EventDetails{
		ExecutionID: executionID,
		Reason:      events.ReasonExecutionFinished,
		Message:     "scenario execution finished",
		Fields:      map[string]interface{}{"status": string(status), "reason": reason},
	})

	mark := emoji.Sprint(" :thumbsup:")
	if status != types.StatusCompleted {
		mark = emoji.Sprint(" :thumbsdown:")
	}
	logger.Infof("[Summary]: Finished with verdict %v%v", status, mark)
}

// verdict folds the loop exit condition into the terminal status. Stop wins
// over timeout, timeout over phase failure.
func (s *Supervisor) verdict(ctx context.Context, failedPhase, failureReason string) (types.Status, string) {
	switch {
	case s.stopped.Load():
		return types.StatusStopped, "external stop requested"
	case ctx.Err() == context.DeadlineExceeded:
		return types.StatusTimedOut, "scenario timeout exceeded"
	case failedPhase != "":
		return types.StatusFailed, fmt.Sprintf("phase '%s' failed: %s", failedPhase, failureReason)
	}
	return types.StatusCompleted, ""
}

// shouldRollback applies the trigger policy: phase failure with on_failure
// set, or an external stop under aggressive cleanup
func (s *Supervisor) shouldRollback(status types.Status) bool {
	if !s.engine.details.RollbackEnabled {
		return false
	}
	switch status {
	case types.StatusFailed, types.StatusTimedOut:
		return s.scenario.Rollback.OnFailure
	case types.StatusStopped:
		return s.engine.details.AggressiveCleanup
	}
	return false
}

// persist hands the sealed record to the repository, best-effort: a
// persistence failure is logged and the in-memory record stays authoritative
func (s *Supervisor) persist() {
	if s.engine.repo == nil {
		return
	}
	snapshot := s.record.Snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := retry.Times(3).Wait(500 * time.Millisecond).Try(ctx, func(attempt uint) error {
		return s.engine.repo.SaveExecution(ctx, snapshot)
	})
	if err != nil {
		log.Errorf("[Summary]: could not persist execution %v, record kept in memory, err: %v", snapshot.ExecutionID, err)
	}
}
