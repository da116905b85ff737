package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/cerrors"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/engine"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/log"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/scenario"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/types"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/utils/stringutils"
)

// entry is the process-wide registration of one execution
type entry struct {
	id          string
	scenario    *scenario.Scenario
	record      *types.ExecutionRecord
	stopped     atomic.Bool
	cancel      context.CancelFunc
	finished    chan struct{}
	removeTimer *time.Timer
}

// Registry is the process-wide map of executions. It is the only shared
// mutable state of the coordinator; every write runs under one mutex, reads
// hand out record snapshots.
type Registry struct {
	mu        sync.Mutex
	engine    *engine.Engine
	details   types.CoordinatorDetails
	entries   map[string]*entry
	baseCtx   context.Context
	baseStop  context.CancelFunc
	startTime time.Time
}

// Info is the condensed health self-report of the registry
type Info struct {
	Active        int           `json:"active"`
	Capacity      int           `json:"capacity"`
	TotalRetained int           `json:"total_retained"`
	Uptime        time.Duration `json:"uptime"`
}

// New build the registry around a configured engine
func New(eng *engine.Engine, details types.CoordinatorDetails) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		engine:    eng,
		details:   details,
		entries:   map[string]*entry{},
		baseCtx:   ctx,
		baseStop:  cancel,
		startTime: time.Now(),
	}
}

// Submit registers a frozen scenario and schedules its supervisor. It
// returns the fresh execution id, or a capacity error when the active count
// is at the limit. Simultaneous submits at capacity reject in caller order;
// the mutex serializes them.
func (r *Registry) Submit(sc *scenario.Scenario) (string, error) {
	r.mu.Lock()
	if r.activeLocked() >= r.details.MaxConcurrentExecutions {
		r.mu.Unlock()
		return "", cerrors.Error{ErrorCode: cerrors.ErrorTypeCapacityExceeded, Reason: "capacity"}
	}

	id := stringutils.GetExecutionID()
	for _, taken := r.entries[id]; taken; _, taken = r.entries[id] {
		id = stringutils.GetExecutionID()
	}

	timeout := sc.Timeout.D()
	if timeout <= 0 {
		timeout = r.details.DefaultScenarioTimeout
	}
	ctx, cancel := context.WithTimeout(r.baseCtx, timeout)

	en := &entry{
		id:       id,
		scenario: sc,
		record:   types.NewExecutionRecord(id, sc.Name),
		cancel:   cancel,
		finished: make(chan struct{}),
	}
	r.entries[id] = en
	r.mu.Unlock()

	log.WithExecution(id).WithFields(logrus.Fields{
		"Scenario": sc.Name,
		"Timeout":  timeout.String(),
	}).Info("[Registry]: Execution submitted")
	go r.run(ctx, en)
	return id, nil
}

func (r *Registry) run(ctx context.Context, en *entry) {
	defer en.cancel()
	supervisor := r.engine.NewSupervisor(en.scenario, en.record, &en.stopped)
	supervisor.Run(ctx)
	close(en.finished)

	r.mu.Lock()
	en.removeTimer = time.AfterFunc(r.details.ExecutionRetention, func() {
		r.remove(en.id)
	})
	r.mu.Unlock()
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Status return a snapshot of the execution record
func (r *Registry) Status(id string) (types.ExecutionSnapshot, error) {
	r.mu.Lock()
	en, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return types.ExecutionSnapshot{}, cerrors.Error{ErrorCode: cerrors.ErrorTypeNotFound, Target: id, Reason: "no such execution"}
	}
	return en.record.Snapshot(), nil
}

// Stop requests an external stop. Terminal executions report AlreadyFinished.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	en, ok := r.entries[id]
	if !ok {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeNotFound, Target: id, Reason: "no such execution"}
	}
	if en.record.Status().Terminal() {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeAlreadyFinished, Target: id, Reason: "execution already finished"}
	}
	log.WithExecution(id).Info("[Registry]: Stop requested")
	en.stopped.Store(true)
	en.cancel()
	return nil
}

// Finished return the channel closed when the execution finalizes
func (r *Registry) Finished(id string) (<-chan struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	en, ok := r.entries[id]
	if !ok {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeNotFound, Target: id, Reason: "no such execution"}
	}
	return en.finished, nil
}

// ListActive return summaries of the non-terminal executions
func (r *Registry) ListActive() []types.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Summary
	for _, en := range r.entries {
		if !en.record.Status().Terminal() {
			out = append(out, en.record.Summarize())
		}
	}
	return out
}

// ListAll return summaries of every retained execution started after since
func (r *Registry) ListAll(since time.Time) []types.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Summary
	for _, en := range r.entries {
		if sum := en.record.Summarize(); sum.StartTime.After(since) {
			out = append(out, sum)
		}
	}
	return out
}

// Info return the health self-report
func (r *Registry) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Info{
		Active:        r.activeLocked(),
		Capacity:      r.details.MaxConcurrentExecutions,
		TotalRetained: len(r.entries),
		Uptime:        time.Since(r.startTime),
	}
}

// Shutdown stops every active execution and waits for the supervisors to
// finalize, bounded by twice the cancellation grace
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	var waiting []*entry
	for _, en := range r.entries {
		if en.record.Status().Terminal() {
			continue
		}
		en.stopped.Store(true)
		en.cancel()
		waiting = append(waiting, en)
	}
	r.mu.Unlock()

	bound := time.After(2 * r.details.CancellationGrace)
	for _, en := range waiting {
		select {
		case <-en.finished:
		case <-bound:
			log.Warn("[Registry]: Shutdown grace expired with executions still finalizing")
			r.baseStop()
			return
		case <-ctx.Done():
			r.baseStop()
			return
		}
	}
	r.baseStop()
}

func (r *Registry) activeLocked() int {
	active := 0
	for _, en := range r.entries {
		if !en.record.Status().Terminal() {
			active++
		}
	}
	return active
}
