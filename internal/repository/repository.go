// Package repository defines the durable execution record kept in Postgres:
// state history, task outcomes, and aggregated results.
package repository

import (
	"context"
	"time"

	"github.com/brandlens/brandlens/internal/aggregate"
	"github.com/brandlens/brandlens/internal/diagnosis"
	"github.com/brandlens/brandlens/internal/task"
)

type ExecutionRepository interface {
	SaveState(ctx context.Context, state diagnosis.ExecutionState) error
	LoadState(ctx context.Context, executionID string) (*diagnosis.ExecutionState, error)
	SaveOutcomes(ctx context.Context, executionID string, outcomes []task.Outcome) error
	SaveResult(ctx context.Context, executionID string, result aggregate.Result) error
	GetExecutionStats(ctx context.Context, hours int) ([]ExecutionStats, error)
	GetRecentExecutions(ctx context.Context, limit int) ([]RecentExecution, error)
	Close() error
}

type ExecutionStats struct {
	Stage        string  `json:"stage"`
	Count        int     `json:"count"`
	AvgProgress  float64 `json:"avg_progress"`
	AvgSuccesses float64 `json:"avg_successes"`
	AvgFailures  float64 `json:"avg_failures"`
}

type RecentExecution struct {
	ExecutionID string     `json:"execution_id"`
	Stage       string     `json:"stage"`
	Progress    int        `json:"progress"`
	Success     int        `json:"success_count"`
	Failed      int        `json:"failed_count"`
	Skipped     int        `json:"skipped_count"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
