package types

import "time"

// ServiceEndpoint is the resolved location of one target service
type ServiceEndpoint struct {
	BaseURL string
	Timeout time.Duration
}

// CoordinatorDetails is for collecting all the engine tunables
type CoordinatorDetails struct {
	MaxConcurrentExecutions int
	DefaultScenarioTimeout  time.Duration
	AssertionPollInterval   time.Duration
	AssertionPollOverrides  map[string]time.Duration
	ActionTimeoutDefault    time.Duration
	CancellationGrace       time.Duration
	RollbackEnabled         bool
	RollbackTimeout         time.Duration
	RollbackActionTimeout   time.Duration
	AggressiveCleanup       bool
	ExecutionRetention      time.Duration
	RedisURL                string
	PostgresURL             string
	OTLPEndpoint            string
	Services                map[string]ServiceEndpoint
}

// PollInterval return the cadence for the given assertion kind
func (d CoordinatorDetails) PollInterval(kind string) time.Duration {
	if override, ok := d.AssertionPollOverrides[kind]; ok && override > 0 {
		return override
	}
	return d.AssertionPollInterval
}

// ServiceTimeout return the per-service call timeout, falling back to the
// action timeout default
func (d CoordinatorDetails) ServiceTimeout(service string) time.Duration {
	if ep, ok := d.Services[service]; ok && ep.Timeout > 0 {
		return ep.Timeout
	}
	return d.ActionTimeoutDefault
}
