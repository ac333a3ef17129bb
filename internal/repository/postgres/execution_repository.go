// Package postgres provides the PostgreSQL-backed implementation of the
// execution repository.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/brandlens/brandlens/internal/aggregate"
	"github.com/brandlens/brandlens/internal/diagnosis"
	"github.com/brandlens/brandlens/internal/repository"
	"github.com/brandlens/brandlens/internal/task"
	_ "github.com/lib/pq"
)

type ExecutionRepository struct {
	db *sql.DB
}

func NewExecutionRepository(connectionString string) (*ExecutionRepository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &ExecutionRepository{db: db}, nil
}

// NewExecutionRepositoryWithDB wraps an existing connection, mainly for tests.
func NewExecutionRepositoryWithDB(db *sql.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

func (r *ExecutionRepository) SaveState(ctx context.Context, state diagnosis.ExecutionState) error {
	query := `
		INSERT INTO execution_history (
			execution_id, stage, progress, is_completed,
			success_count, failed_count, skipped_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (execution_id) DO UPDATE SET
			stage = EXCLUDED.stage,
			progress = EXCLUDED.progress,
			is_completed = EXCLUDED.is_completed,
			success_count = EXCLUDED.success_count,
			failed_count = EXCLUDED.failed_count,
			skipped_count = EXCLUDED.skipped_count,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		state.ExecutionID,
		string(state.Stage),
		state.Progress,
		state.IsCompleted,
		state.Counts.Success,
		state.Counts.Failed,
		state.Counts.Skipped,
		state.CreatedAt,
		state.UpdatedAt,
	)

	return err
}

func (r *ExecutionRepository) LoadState(ctx context.Context, executionID string) (*diagnosis.ExecutionState, error) {
	query := `
		SELECT execution_id, stage, progress, is_completed,
		       success_count, failed_count, skipped_count, created_at, updated_at
		FROM execution_history
		WHERE execution_id = $1
	`

	var state diagnosis.ExecutionState
	var stage string
	err := r.db.QueryRowContext(ctx, query, executionID).Scan(
		&state.ExecutionID,
		&stage,
		&state.Progress,
		&state.IsCompleted,
		&state.Counts.Success,
		&state.Counts.Failed,
		&state.Counts.Skipped,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state.Stage = diagnosis.Stage(stage)
	state.ShouldStopPolling = state.IsCompleted || state.Stage.IsTerminal()

	return &state, nil
}

func (r *ExecutionRepository) SaveOutcomes(ctx context.Context, executionID string, outcomes []task.Outcome) error {
	query := `
		INSERT INTO task_outcomes (
			execution_id, task_id, brand, platform, success,
			content, error, latency_ms, timed_out, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (execution_id, task_id) DO NOTHING
	`

	for _, o := range outcomes {
		var content, errMsg any
		if o.Content != "" {
			content = o.Content
		}
		if o.Error != "" {
			errMsg = o.Error
		}

		if _, err := r.db.ExecContext(
			ctx,
			query,
			executionID,
			o.TaskID,
			o.Brand,
			o.Platform,
			o.Success,
			content,
			errMsg,
			o.LatencyMs,
			o.TimedOut,
		); err != nil {
			return err
		}
	}

	return nil
}

func (r *ExecutionRepository) SaveResult(ctx context.Context, executionID string, result aggregate.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
		INSERT INTO execution_results (execution_id, health_score, recommendation, result, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (execution_id) DO NOTHING
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		executionID,
		result.HealthScore,
		string(result.Recommendation),
		data,
	)

	return err
}

func (r *ExecutionRepository) GetExecutionStats(ctx context.Context, hours int) ([]repository.ExecutionStats, error) {
	query := `
		SELECT
			stage, COUNT(*) as count,
			COALESCE(AVG(progress), 0) as avg_progress,
			COALESCE(AVG(success_count), 0) as avg_successes,
			COALESCE(AVG(failed_count + skipped_count), 0) as avg_failures
		FROM execution_history
		WHERE created_at > NOW() - INTERVAL '1 hour' * $1
		GROUP BY stage
		ORDER BY stage
	`
	rows, err := r.db.QueryContext(ctx, query, hours)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var stats []repository.ExecutionStats
	for rows.Next() {
		var s repository.ExecutionStats
		if err := rows.Scan(
			&s.Stage,
			&s.Count,
			&s.AvgProgress,
			&s.AvgSuccesses,
			&s.AvgFailures,
		); err != nil {
			return nil, err
		}

		stats = append(stats, s)
	}

	return stats, rows.Err()
}

func (r *ExecutionRepository) GetRecentExecutions(ctx context.Context, limit int) ([]repository.RecentExecution, error) {
	query := `
		SELECT
			execution_id, stage, progress,
			success_count, failed_count, skipped_count,
			created_at,
			CASE WHEN is_completed THEN updated_at END as completed_at
		FROM execution_history
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var executions []repository.RecentExecution
	for rows.Next() {
		var e repository.RecentExecution
		var completedAt sql.NullTime
		if err := rows.Scan(
			&e.ExecutionID,
			&e.Stage,
			&e.Progress,
			&e.Success,
			&e.Failed,
			&e.Skipped,
			&e.CreatedAt,
			&completedAt,
		); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			e.CompletedAt = &completedAt.Time
		}

		executions = append(executions, e)
	}

	return executions, rows.Err()
}

func (r *ExecutionRepository) DB() *sql.DB {
	return r.db
}

func (r *ExecutionRepository) Close() error {
	return r.db.Close()
}
