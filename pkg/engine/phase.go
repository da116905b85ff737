package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/log"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/metrics"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/scenario"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/telemetry"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/types"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/utils/stringutils"
)

// parOutcome carries one parallel action result back to the collector; the
// index keeps declaration order in the phase result
type parOutcome struct {
	idx    int
	result types.ActionResult
}

// runPhase executes one phase: sequential actions in declaration order,
// delayed parallel actions, then all assertions concurrently under the phase
// deadline. A sequential action failure aborts the phase; parallel action
// failures are recorded but the assertions stay the oracle.
func (e *Engine) runPhase(ctx context.Context, executionID string, ph scenario.Phase, corr *correlationLog) types.PhaseResult {
	start := time.Now()
	result := types.PhaseResult{PhaseName: ph.Name, StartTime: start, Success: true}

	ctx, span := telemetry.StartSpan(ctx, "chaos.phase")
	defer span.End()

	phaseCtx, cancel := context.WithDeadline(ctx, start.Add(ph.Duration.D()))
	defer cancel()

	logger := log.WithExecution(executionID)
	logger.WithFields(logrus.Fields{
		"Phase":    ph.Name,
		"Duration": ph.Duration.String(),
	}).Info("[Phase]: Starting")

	for _, act := range ph.Actions {
		correlationID := stringutils.GetCorrelationID(act.Service, act.Kind)
		corr.add(act.Service, correlationID)
		actionResult := e.executeAction(phaseCtx, executionID, ph.Name, act, correlationID)
		result.Actions = append(result.Actions, actionResult)
		if !actionResult.Success {
			// remaining sequential actions and the assertion block are skipped
			result.Success = false
			result.Error = fmt.Sprintf("action '%s/%s' failed: %s", act.Service, act.Kind, actionResult.Error)
			result.EndTime = time.Now()
			metrics.ObservePhaseDuration(ph.Name, result.EndTime.Sub(start))
			return result
		}
	}

	// parallel injections fire concurrently after their delay from phase start
	outcomes := make(chan parOutcome, len(ph.ParallelActions))
	for i, pa := range ph.ParallelActions {
		correlationID := stringutils.GetCorrelationID(pa.Service, pa.Kind)
		corr.add(pa.Service, correlationID)
		go func(idx int, pa scenario.ParallelAction, correlationID string) {
			outcomes <- parOutcome{idx: idx, result: e.runParallelAction(phaseCtx, executionID, ph.Name, start, pa, correlationID)}
		}(i, pa, correlationID)
	}

	assertionResults := make([]types.AssertionResult, len(ph.Assertions))
	var wg sync.WaitGroup
	for i, as := range ph.Assertions {
		wg.Add(1)
		go func(idx int, as scenario.Assertion) {
			defer wg.Done()
			assertionResults[idx] = e.evaluateAssertion(phaseCtx, start, as)
		}(i, as)
	}
	wg.Wait()

	// the assertion block is over; cut the phase signal so still-running
	// parallel actions unwind, then account for every one of them
	cancel()
	result.Actions = append(result.Actions, e.collectParallel(ph, outcomes)...)
	result.Assertions = assertionResults

	for _, ar := range assertionResults {
		if !ar.Passed {
			result.Success = false
			result.Error = fmt.Sprintf("assertion '%s' failed: %s", ar.Kind, ar.Message)
			break
		}
	}

	result.EndTime = time.Now()
	metrics.ObservePhaseDuration(ph.Name, result.EndTime.Sub(start))
	logger.WithFields(logrus.Fields{
		"Phase":   ph.Name,
		"Success": result.Success,
	}).Info("[Phase]: Finished")
	return result
}

// collectParallel drains the parallel action outcomes, bounded by the
// cancellation grace. An action that fails to unwind in time is recorded as
// canceled so the phase result still accounts for every launched action.
func (e *Engine) collectParallel(ph scenario.Phase, outcomes chan parOutcome) []types.ActionResult {
	if len(ph.ParallelActions) == 0 {
		return nil
	}
	results := make([]types.ActionResult, len(ph.ParallelActions))
	seen := make([]bool, len(ph.ParallelActions))

	grace := time.NewTimer(e.details.CancellationGrace)
	defer grace.Stop()
	collected := 0
	for collected < len(ph.ParallelActions) {
		select {
		case out := <-outcomes:
			results[out.idx] = out.result
			seen[out.idx] = true
			collected++
		case <-grace.C:
			log.Warnf("[Phase]: %v parallel action(s) did not unwind within the cancellation grace", len(ph.ParallelActions)-collected)
			now := time.Now()
			for i, done := range seen {
				if !done {
					results[i] = types.ActionResult{
						Service:   ph.ParallelActions[i].Service,
						Kind:      ph.ParallelActions[i].Kind,
						StartTime: now,
						EndTime:   now,
						Error:     "canceled: did not unwind within grace",
					}
				}
			}
			return results
		}
	}
	return results
}

// runParallelAction waits out the delay from phase start, then injects. A
// cancellation during the delay records the action as never injected.
func (e *Engine) runParallelAction(ctx context.Context, executionID, phase string, phaseStart time.Time, pa scenario.ParallelAction, correlationID string) types.ActionResult {
	if wait := time.Until(phaseStart.Add(pa.Delay.D())); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			now := time.Now()
			return types.ActionResult{
				Service:       pa.Service,
				Kind:          pa.Kind,
				StartTime:     now,
				EndTime:       now,
				Error:         "canceled before injection",
				CorrelationID: correlationID,
			}
		}
	}
	return e.executeAction(ctx, executionID, phase, pa.Action, correlationID)
}

// evaluateAssertion runs one evaluator under phase_start + within, clamped
// by the phase deadline
func (e *Engine) evaluateAssertion(phaseCtx context.Context, phaseStart time.Time, as scenario.Assertion) types.AssertionResult {
	evaluator, err := e.evaluators.Get(as.Kind)
	if err != nil {
		return types.AssertionResult{
			Kind:      as.Kind,
			Message:   err.Error(),
			Timestamp: time.Now(),
		}
	}

	assertCtx, cancel := context.WithDeadline(phaseCtx, phaseStart.Add(as.Within.D()))
	defer cancel()
	result := evaluator.Evaluate(assertCtx, as)
	metrics.RecordAssertion(as.Kind, result.Passed)
	return result
}
