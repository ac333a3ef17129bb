// Package task defines the brand-diagnosis task domain model shared by the
// matrix builder, execution engine, and persistence layers.
// A task is one (brand, question, platform) unit of dispatch work.
package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type (
	TaskStatus string
	Task       struct {
		ID           string     `json:"id"`
		Brand        string     `json:"brand"`
		Question     string     `json:"question"`
		Platform     string     `json:"platform"`
		AttemptCount int        `json:"attempt_count"`
		Status       TaskStatus `json:"status"`
		CreatedAt    time.Time  `json:"created_at"`
		StartedAt    *time.Time `json:"started_at,omitempty"`
		CompletedAt  *time.Time `json:"completed_at,omitempty"`
	}
)

// Well-known Outcome error values produced by the engine itself rather than
// by a platform.
const (
	ErrCircuitOpen  = "circuit_open"
	ErrBatchTimeout = "batch_timeout"
)

const (
	StatusPending            TaskStatus = "pending"
	StatusRunning            TaskStatus = "running"
	StatusSuccess            TaskStatus = "success"
	StatusFailed             TaskStatus = "failed"
	StatusSkippedCircuitOpen TaskStatus = "skipped_circuit_open"
)

// idNamespace pins task ids to their (brand, question, platform) triple so
// that rebuilding the same matrix yields the same ids.
var idNamespace = uuid.MustParse("7f1a34c2-9b6d-4e83-a1f0-5c2d8e4b7a90")

func NewTask(brand, question, platform string) *Task {
	return &Task{
		ID:        TaskID(brand, question, platform),
		Brand:     brand,
		Question:  question,
		Platform:  platform,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}

func TaskID(brand, question, platform string) string {
	return uuid.NewSHA1(idNamespace, []byte(brand+"\x00"+question+"\x00"+platform)).String()
}

func (t *Task) ToJSON() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func TaskFromJSON(data string) (*Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, err
	}

	return &t, nil
}

// Outcome is the immutable result of a finished task. The engine creates
// exactly one per submitted task; the aggregator consumes them.
type Outcome struct {
	TaskID    string `json:"task_id"`
	Brand     string `json:"brand"`
	Platform  string `json:"platform"`
	Success   bool   `json:"success"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
	TimedOut  bool   `json:"timed_out"`
}

func (o Outcome) ToJSON() (string, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func OutcomeFromJSON(data string) (*Outcome, error) {
	var o Outcome
	if err := json.Unmarshal([]byte(data), &o); err != nil {
		return nil, err
	}

	return &o, nil
}
