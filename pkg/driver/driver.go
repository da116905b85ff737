package driver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/trading-ecosystem/chaos-coordinator/pkg/cerrors"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/scenario"
)

// Driver adapts abstract chaos actions onto one target service. Execute must
// respect the context deadline and stay idempotent under retry for the same
// correlation id; Clear must tolerate "nothing to clear".
type Driver interface {
	Validate(action scenario.Action) error
	Execute(ctx context.Context, action scenario.Action, correlationID string) error
	Clear(ctx context.Context, correlationID string) error
}

// Statser is implemented by drivers that track remote traffic counters; the
// engine scrapes it after every action to keep the metrics current
type Statser interface {
	Stats() ClientStats
}

// Registry holds the driver per target service
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

func NewRegistry() *Registry {
	return &Registry{drivers: map[string]Driver{}}
}

// Register binds a driver to a service name, replacing any previous binding
func (r *Registry) Register(service string, d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[service] = d
}

// Get return the driver for the service
func (r *Registry) Get(service string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[service]
	if !ok {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeActionFailed, Target: service, Reason: fmt.Sprintf("no driver registered for service '%s'", service)}
	}
	return d, nil
}

// Services return the registered service names, sorted
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
