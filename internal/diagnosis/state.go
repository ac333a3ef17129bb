// Package diagnosis owns the lifecycle of a brand-diagnosis execution: the
// state machine that tracks it and the service that drives the dispatch
// engine through it.
package diagnosis

import (
	"context"
	"fmt"
	"log"
	"time"
)

type Stage string

const (
	StageInitializing   Stage = "INITIALIZING"
	StageAIFetching     Stage = "AI_FETCHING"
	StageAnalyzing      Stage = "ANALYZING"
	StageCompleted      Stage = "COMPLETED"
	StagePartialSuccess Stage = "PARTIAL_SUCCESS"
	StageFailed         Stage = "FAILED"
	StageTimeout        Stage = "TIMEOUT"
)

// IsTerminal reports whether no further transition is permitted from s.
func (s Stage) IsTerminal() bool {
	switch s {
	case StageCompleted, StagePartialSuccess, StageFailed, StageTimeout:
		return true
	default:
		return false
	}
}

type Event string

const (
	EventSucceed         Event = "succeed"
	EventFail            Event = "fail"
	EventAllComplete     Event = "all_complete"
	EventPartialComplete Event = "partial_complete"
	EventAllFail         Event = "all_fail"
	EventTimeout         Event = "timeout"
	EventPartialSucceed  Event = "partial_succeed"
)

var transitions = map[Stage]map[Event]Stage{
	StageInitializing: {
		EventSucceed: StageAIFetching,
		EventFail:    StageFailed,
	},
	StageAIFetching: {
		EventAllComplete:     StageAnalyzing,
		EventPartialComplete: StageAnalyzing,
		EventAllFail:         StageFailed,
		EventTimeout:         StageTimeout,
	},
	StageAnalyzing: {
		EventSucceed:        StageCompleted,
		EventPartialSucceed: StagePartialSuccess,
		EventFail:           StageFailed,
	},
}

// StateError reports an illegal transition attempt. It indicates a caller
// bug; the state is left untouched.
type StateError struct {
	ExecutionID string
	From        Stage
	Event       Event
}

func (e *StateError) Error() string {
	return fmt.Sprintf("execution %s: no transition for event %q from stage %s", e.ExecutionID, e.Event, e.From)
}

type ResultCounts struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// ExecutionState is the persisted snapshot of one diagnosis run. Pollers read
// it until ShouldStopPolling turns true.
type ExecutionState struct {
	ExecutionID       string       `json:"execution_id"`
	Stage             Stage        `json:"stage"`
	Progress          int          `json:"progress"`
	IsCompleted       bool         `json:"is_completed"`
	ShouldStopPolling bool         `json:"should_stop_polling"`
	Counts            ResultCounts `json:"result_counts"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// PersistFunc stores a state snapshot. A failure is logged by the machine and
// otherwise ignored: execution continues in memory and the next successful
// persist carries the latest state.
type PersistFunc func(ctx context.Context, state ExecutionState) error

// Machine advances one execution through its lifecycle. It is owned by a
// single goroutine (the service driving the engine); it does not lock.
type Machine struct {
	state   ExecutionState
	persist PersistFunc
}

func NewMachine(executionID string, persist PersistFunc) *Machine {
	now := time.Now()
	m := &Machine{
		state: ExecutionState{
			ExecutionID: executionID,
			Stage:       StageInitializing,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		persist: persist,
	}

	return m
}

// State returns a copy of the current snapshot.
func (m *Machine) State() ExecutionState {
	return m.state
}

// SetCounts updates the per-status result counts carried in the snapshot.
func (m *Machine) SetCounts(counts ResultCounts) {
	m.state.Counts = counts
}

// Transition applies event, optionally updating progress, and persists the
// new snapshot before returning. A transition from a terminal stage fails
// with *StateError and mutates nothing. A progress regression is allowed but
// logged, since a retried sub-step may legitimately reset displayed progress.
func (m *Machine) Transition(ctx context.Context, event Event, progress *int) error {
	from := m.state.Stage
	if from.IsTerminal() {
		err := &StateError{ExecutionID: m.state.ExecutionID, From: from, Event: event}
		log.Printf("Rejected transition: %v", err)
		return err
	}

	next, ok := transitions[from][event]
	if !ok {
		err := &StateError{ExecutionID: m.state.ExecutionID, From: from, Event: event}
		log.Printf("Rejected transition: %v", err)
		return err
	}

	if progress != nil {
		if *progress < m.state.Progress {
			log.Printf("Progress regression for execution %s: %d -> %d", m.state.ExecutionID, m.state.Progress, *progress)
		}
		m.state.Progress = *progress
	}

	m.state.Stage = next
	m.state.IsCompleted = next == StageCompleted || next == StagePartialSuccess
	m.state.ShouldStopPolling = m.state.IsCompleted || next.IsTerminal()
	m.state.UpdatedAt = time.Now()
	if next == StageCompleted {
		m.state.Progress = 100
	}

	if m.persist != nil {
		if err := m.persist(ctx, m.state); err != nil {
			log.Printf("Failed to persist state for execution %s: %v", m.state.ExecutionID, err)
		}
	}

	return nil
}

// SetProgress updates progress without a stage change (used while fetching),
// persisting the snapshot so pollers see it.
func (m *Machine) SetProgress(ctx context.Context, progress int) {
	if m.state.Stage.IsTerminal() {
		return
	}
	if progress < m.state.Progress {
		log.Printf("Progress regression for execution %s: %d -> %d", m.state.ExecutionID, m.state.Progress, progress)
	}
	m.state.Progress = progress
	m.state.UpdatedAt = time.Now()

	if m.persist != nil {
		if err := m.persist(ctx, m.state); err != nil {
			log.Printf("Failed to persist state for execution %s: %v", m.state.ExecutionID, err)
		}
	}
}
