package repository

import (
	"context"

	"github.com/trading-ecosystem/chaos-coordinator/pkg/types"
)

// Repository is the persistence port of the engine. The engine calls it
// only at finalize, with the sealed record, and retries a failed save up to
// three attempts in all.
type Repository interface {
	SaveExecution(ctx context.Context, snapshot types.ExecutionSnapshot) error
}

// Noop discards records; the in-memory registry stays the only store
type Noop struct{}

func (Noop) SaveExecution(context.Context, types.ExecutionSnapshot) error { return nil }
