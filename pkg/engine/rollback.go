package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/driver"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/log"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/metrics"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/scenario"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/types"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/utils/stringutils"
)

// runRollback executes the best-effort reverse-of-chaos sequence. It runs on
// a fresh context (the scenario context is usually already dead here),
// bounded by the rollback timeout. Failures are recorded and the sequence
// continues; rollback never triggers rollback and never runs assertions.
func (e *Engine) runRollback(executionID string, spec scenario.RollbackSpec, corr *correlationLog, aggressive bool) types.RollbackResult {
	result := types.RollbackResult{StartTime: time.Now()}

	ctx, cancel := context.WithTimeout(context.Background(), e.details.RollbackTimeout)
	defer cancel()

	if aggressive {
		for _, issued := range corr.reversed() {
			if err := e.clearCorrelation(ctx, issued); err != nil {
				log.Errorf("[Rollback]: could not clear correlation %v on %v, err: %v", issued.id, issued.service, err)
				result.Partial = true
				continue
			}
			result.ClearedIDs = append(result.ClearedIDs, issued.id)
		}
	}

	for _, act := range spec.Actions {
		correlationID := stringutils.GetCorrelationID(act.Service, act.Kind)
		actionResult := e.executeAction(ctx, executionID, types.Rollback, act, correlationID)
		result.Actions = append(result.Actions, actionResult)
		if !actionResult.Success {
			result.Partial = true
		}
	}

	result.EndTime = time.Now()
	log.WithExecution(executionID).WithFields(logrus.Fields{
		"Actions": len(result.Actions),
		"Cleared": len(result.ClearedIDs),
		"Partial": result.Partial,
	}).Info("[Rollback]: Finished")
	return result
}

func (e *Engine) clearCorrelation(ctx context.Context, issued correlationEntry) error {
	drv, err := e.drivers.Get(issued.service)
	if err != nil {
		return err
	}
	clearCtx, cancel := context.WithTimeout(ctx, e.details.RollbackActionTimeout)
	defer cancel()
	err = drv.Clear(clearCtx, issued.id)
	if statser, ok := drv.(driver.Statser); ok {
		metrics.ObserveDriverStats(issued.service, statser.Stats())
	}
	return err
}
