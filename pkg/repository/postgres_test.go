package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/cerrors"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/types"
)

func sealedSnapshot() types.ExecutionSnapshot {
	end := time.Now()
	return types.ExecutionSnapshot{
		ExecutionID:  "exec-abc123",
		ScenarioName: "drill",
		StartTime:    end.Add(-time.Minute),
		EndTime:      &end,
		Status:       types.StatusCompleted,
		Phases: []types.PhaseResult{{
			PhaseName: "inject",
			Success:   true,
			Actions: []types.ActionResult{{
				Service:       "exchange",
				Kind:          "halt_trading",
				Success:       true,
				CorrelationID: "chaos-exchange-halt_trading-aaaa",
			}},
		}},
	}
}

func TestSaveExecution(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO chaos_executions").
		WithArgs("exec-abc123", "drill", "Completed", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresFromDB(db)
	if err := repo.SaveExecution(context.Background(), sealedSnapshot()); err != nil {
		t.Fatalf("SaveExecution failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSaveExecutionSurfacesRetryableFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO chaos_executions").
		WillReturnError(errors.New("connection refused"))

	repo := NewPostgresFromDB(db)
	err = repo.SaveExecution(context.Background(), sealedSnapshot())
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if !cerrors.IsRetryable(err) {
		t.Errorf("persistence failures should be retryable, got %v", err)
	}
	if cerrors.GetErrorType(err) != cerrors.ErrorTypeRepositoryFailure {
		t.Errorf("unexpected error type %v", cerrors.GetErrorType(err))
	}
}

func TestNoopRepository(t *testing.T) {
	if err := (Noop{}).SaveExecution(context.Background(), sealedSnapshot()); err != nil {
		t.Errorf("noop repository must never fail, got %v", err)
	}
}
