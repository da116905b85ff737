package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	// postgres driver
	_ "github.com/lib/pq"
	"github.com/palantir/stacktrace"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/cerrors"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/types"
)

const createExecutionsTable = `
CREATE TABLE IF NOT EXISTS chaos_executions (
	execution_id TEXT PRIMARY KEY,
	scenario     TEXT NOT NULL,
	status       TEXT NOT NULL,
	start_time   TIMESTAMPTZ NOT NULL,
	end_time     TIMESTAMPTZ,
	record       JSONB NOT NULL
)`

const upsertExecution = `
INSERT INTO chaos_executions (execution_id, scenario, status, start_time, end_time, record)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (execution_id) DO UPDATE
SET status = EXCLUDED.status, end_time = EXCLUDED.end_time, record = EXCLUDED.record`

// Postgres persists finalized execution records, one row per execution with
// the full record as structured JSON
type Postgres struct {
	db *sql.DB
}

// NewPostgres open the database and ensure the schema
func NewPostgres(url string) (*Postgres, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, stacktrace.Propagate(err, "could not open postgres")
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	repo := &Postgres{db: db}
	if err := repo.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewPostgresFromDB wrap an existing handle, used by tests
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createExecutionsTable); err != nil {
		return stacktrace.Propagate(err, "could not ensure chaos_executions schema")
	}
	return nil
}

// SaveExecution upsert the sealed record
func (p *Postgres) SaveExecution(ctx context.Context, snapshot types.ExecutionSnapshot) error {
	record, err := json.Marshal(snapshot)
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeRepositoryFailure, Target: snapshot.ExecutionID, Reason: "could not encode record: " + err.Error()}
	}

	var endTime interface{}
	if snapshot.EndTime != nil {
		endTime = *snapshot.EndTime
	}
	_, err = p.db.ExecContext(ctx, upsertExecution,
		snapshot.ExecutionID,
		snapshot.ScenarioName,
		string(snapshot.Status),
		snapshot.StartTime,
		endTime,
		record,
	)
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeRepositoryFailure, Target: snapshot.ExecutionID, Reason: err.Error(), Retryable: true}
	}
	return nil
}

// Close release the database handle
func (p *Postgres) Close() error {
	return p.db.Close()
}
