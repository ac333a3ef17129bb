// Package dashboard implements the web-based monitoring interface for execution metrics and status.
package dashboard

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/brandlens/brandlens/internal/diagnosis"
	"github.com/brandlens/brandlens/internal/httputil"
)

// StateLister is the read side the dashboard needs. Satisfied by *store.Store.
type StateLister interface {
	GetAllStates(ctx context.Context) ([]diagnosis.ExecutionState, error)
}

type Dashboard struct {
	states StateLister
}

type Stats struct {
	TotalExecutions   int            `json:"total_executions"`
	RunningExecutions int            `json:"running_executions"`
	Completed         int            `json:"completed"`
	PartialSuccess    int            `json:"partial_success"`
	Failed            int            `json:"failed"`
	TimedOut          int            `json:"timed_out"`
	ExecutionsByStage map[string]int `json:"executions_by_stage"`
	TasksSucceeded    int            `json:"tasks_succeeded"`
	TasksFailed       int            `json:"tasks_failed"`
	TasksSkipped      int            `json:"tasks_skipped"`
	AverageDuration   string         `json:"average_duration"`
	LastUpdated       time.Time      `json:"last_updated"`
}

type ExecutionHistory struct {
	ExecutionID string                 `json:"execution_id"`
	Stage       diagnosis.Stage        `json:"stage"`
	Progress    int                    `json:"progress"`
	Counts      diagnosis.ResultCounts `json:"result_counts"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  time.Time              `json:"finished_at"`
	Duration    string                 `json:"duration"`
}

func NewDashboard(states StateLister) *Dashboard {
	return &Dashboard{states: states}
}

func (d *Dashboard) GetStats(w http.ResponseWriter, r *http.Request) {
	states, err := d.states.GetAllStates(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	stats := Stats{
		TotalExecutions:   len(states),
		ExecutionsByStage: make(map[string]int),
		LastUpdated:       time.Now(),
	}

	var totalDuration time.Duration
	finished := 0

	for _, state := range states {
		stats.ExecutionsByStage[string(state.Stage)]++

		switch state.Stage {
		case diagnosis.StageCompleted:
			stats.Completed++
		case diagnosis.StagePartialSuccess:
			stats.PartialSuccess++
		case diagnosis.StageFailed:
			stats.Failed++
		case diagnosis.StageTimeout:
			stats.TimedOut++
		default:
			stats.RunningExecutions++
		}

		stats.TasksSucceeded += state.Counts.Success
		stats.TasksFailed += state.Counts.Failed
		stats.TasksSkipped += state.Counts.Skipped

		if state.Stage.IsTerminal() {
			totalDuration += state.UpdatedAt.Sub(state.CreatedAt)
			finished++
		}
	}

	if finished > 0 {
		avg := totalDuration / time.Duration(finished)
		stats.AverageDuration = avg.Round(time.Millisecond).String()
	} else {
		stats.AverageDuration = "N/A"
	}

	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (d *Dashboard) GetRecentExecutions(w http.ResponseWriter, r *http.Request) {
	states, err := d.states.GetAllStates(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	history := []ExecutionHistory{}

	for _, state := range states {
		if !state.Stage.IsTerminal() {
			continue
		}
		if state.UpdatedAt.Before(cutoff) {
			continue
		}

		history = append(history, ExecutionHistory{
			ExecutionID: state.ExecutionID,
			Stage:       state.Stage,
			Progress:    state.Progress,
			Counts:      state.Counts,
			StartedAt:   state.CreatedAt,
			FinishedAt:  state.UpdatedAt,
			Duration:    state.UpdatedAt.Sub(state.CreatedAt).Round(time.Millisecond).String(),
		})
	}

	sort.Slice(history, func(i, j int) bool {
		return history[i].FinishedAt.After(history[j].FinishedAt)
	})

	httputil.WriteJSON(w, http.StatusOK, history)
}
