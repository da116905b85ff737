package engine

import (
	"context"
	"sync"
	"time"

	"github.com/trading-ecosystem/chaos-coordinator/pkg/assertion"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/cerrors"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/driver"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/events"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/metrics"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/repository"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/scenario"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/types"
)

// Engine bundles the collaborators every execution shares: the driver and
// evaluator registries, the persistence port and the event recorder. One
// Engine serves many concurrent supervisors.
type Engine struct {
	details    types.CoordinatorDetails
	drivers    *driver.Registry
	evaluators *assertion.Registry
	repo       repository.Repository
	recorder   *events.Recorder
}

// New build an engine around its collaborators. repo and recorder may be
// nil; persistence and event publishing are skipped then.
func New(details types.CoordinatorDetails, drivers *driver.Registry, evaluators *assertion.Registry, repo repository.Repository, recorder *events.Recorder) *Engine {
	return &Engine{
		details:    details,
		drivers:    drivers,
		evaluators: evaluators,
		repo:       repo,
		recorder:   recorder,
	}
}

// Details return the engine tunables
func (e *Engine) Details() types.CoordinatorDetails {
	return e.details
}

// correlationEntry remembers which service an issued correlation id targeted
// so aggressive cleanup can route the clear call
type correlationEntry struct {
	service string
	id      string
}

// correlationLog collects every correlation id issued by one execution
type correlationLog struct {
	mu      sync.Mutex
	entries []correlationEntry
}

func (c *correlationLog) add(service, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, correlationEntry{service: service, id: id})
}

// reversed return the issued entries newest-first, the clear order
func (c *correlationLog) reversed() []correlationEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]correlationEntry, len(c.entries))
	for i, entry := range c.entries {
		out[len(c.entries)-1-i] = entry
	}
	return out
}

// executeAction drives one chaos call through its driver with the per-action
// deadline and converts the outcome into an ActionResult. Errors never
// escape as errors; the result object is the only channel upward.
func (e *Engine) executeAction(ctx context.Context, executionID, phase string, act scenario.Action, correlationID string) types.ActionResult {
	result := types.ActionResult{
		Service:       act.Service,
		Kind:          act.Kind,
		StartTime:     time.Now(),
		CorrelationID: correlationID,
	}

	drv, err := e.drivers.Get(act.Service)
	if err == nil {
		if err = drv.Validate(act); err == nil {
			actionCtx, cancel := context.WithTimeout(ctx, e.details.ServiceTimeout(act.Service))
			err = drv.Execute(actionCtx, act, correlationID)
			cancel()
		}
	}

	result.EndTime = time.Now()
	if err != nil {
		reason, _ := cerrors.GetRootCauseAndErrorCode(err, phase)
		result.Error = reason
	} else {
		result.Success = true
	}

	metrics.RecordAction(act.Service, act.Kind, result.Success)
	if statser, ok := drv.(driver.Statser); ok {
		metrics.ObserveDriverStats(act.Service, statser.Stats())
	}
	if result.Success {
		e.publish(events.EventDetails{
			ExecutionID: executionID,
			Reason:      events.ReasonChaosInjected,
			Message:     "chaos action injected",
			Fields: map[string]interface{}{
				"service":        act.Service,
				"kind":           act.Kind,
				"correlation_id": correlationID,
			},
		})
	}
	return result
}

// publish forwards a lifecycle event to the recorder, best-effort
func (e *Engine) publish(ev events.EventDetails) {
	if e.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	e.recorder.Publish(ctx, ev)
}
