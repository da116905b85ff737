package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/log"
)

const (
	ReasonExecutionStarted  = "ExecutionStarted"
	ReasonPhaseCompleted    = "PhaseCompleted"
	ReasonChaosInjected     = "ChaosInjected"
	ReasonRollbackStarted   = "RollbackStarted"
	ReasonExecutionFinished = "ExecutionFinished"
)

// channelPrefix namespaces the per-execution event channels
const channelPrefix = "chaos:events:"

// EventDetails is one lifecycle event of an execution
type EventDetails struct {
	ExecutionID string                 `json:"execution_id"`
	Reason      string                 `json:"reason"`
	Message     string                 `json:"message"`
	Timestamp   time.Time              `json:"timestamp"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

// Recorder publishes lifecycle events to the redis channel of the owning
// execution. Publishing is best-effort; subscribers are external tooling.
type Recorder struct {
	rdb *redis.Client
}

// NewRecorder connect the recorder to redis
func NewRecorder(redisURL string) (*Recorder, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &Recorder{rdb: rdb}, nil
}

// Publish emit one event. Failures are logged, never propagated: events are
// observability, not control flow.
func (r *Recorder) Publish(ctx context.Context, ev EventDetails) {
	if r == nil || r.rdb == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("Unable to encode event %v, err: %v", ev.Reason, err)
		return
	}
	if err := r.rdb.Publish(ctx, channelPrefix+ev.ExecutionID, payload).Err(); err != nil {
		log.Errorf("Unable to publish event %v for %v, err: %v", ev.Reason, ev.ExecutionID, err)
	}
}

// Close release the redis connection
func (r *Recorder) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}
