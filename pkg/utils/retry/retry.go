package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/trading-ecosystem/chaos-coordinator/pkg/cerrors"
)

// Action defines the prototype of action function, function as a value
type Action func(attempt uint) error

// Model defines the schema, contains all the attributes need for retry
type Model struct {
	retry    uint
	waitTime time.Duration
	backoff  []time.Duration
}

// Times sets the maximum number of attempts, the first one included
// it will run if the instance of model is not present before
func Times(retry uint) *Model {
	model := Model{}
	return model.Times(retry)
}

// Times sets the maximum number of attempts, the first one included
// it will run if the instance of model is already present
func (model *Model) Times(retry uint) *Model {
	model.retry = retry
	return model
}

// Wait is used to define the wait duration after each iteration of retry
// it will run if the instance of model is not present before
func Wait(waitTime time.Duration) *Model {
	model := Model{}
	return model.Wait(waitTime)
}

// Wait is used to define the wait duration after each iteration of retry
// it will run if the instance of model is already present
func (model *Model) Wait(waitTime time.Duration) *Model {
	model.waitTime = waitTime
	return model
}

// Backoff sets an explicit wait schedule, one entry per retry. The schedule
// wins over Wait; attempts past the schedule reuse its last entry.
func (model *Model) Backoff(schedule ...time.Duration) *Model {
	model.backoff = schedule
	return model
}

// Try is used to run an action with retries and some delay after each iteration
func (model Model) Try(ctx context.Context, action Action) error {
	if action == nil {
		return fmt.Errorf("no action specified")
	}

	var err error
	for attempt := uint(0); (attempt == 0 || err != nil) && attempt < model.retry; attempt++ {
		if ctx.Err() != nil {
			return contextError(ctx)
		}
		err = action(attempt)
		if err == nil {
			return nil
		}
		if !cerrors.IsRetryable(err) && cerrors.IsUserFriendly(err) {
			return err
		}
		if wait := model.waitFor(attempt); wait > 0 && attempt+1 < model.retry {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return contextError(ctx)
			}
		}
	}

	return err
}

func (model Model) waitFor(attempt uint) time.Duration {
	if len(model.backoff) == 0 {
		return model.waitTime
	}
	if int(attempt) < len(model.backoff) {
		return model.backoff[attempt]
	}
	return model.backoff[len(model.backoff)-1]
}

func contextError(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeDeadlineExceeded, Reason: "deadline exceeded", Retryable: true}
	}
	return cerrors.Error{ErrorCode: cerrors.ErrorTypeCanceled, Reason: "canceled"}
}
