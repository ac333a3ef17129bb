package repository

import (
	"context"
	"sync"

	"github.com/brandlens/brandlens/internal/aggregate"
	"github.com/brandlens/brandlens/internal/diagnosis"
	"github.com/brandlens/brandlens/internal/task"
)

// MockExecutionRepository is an in-memory ExecutionRepository for unit tests.
// Error fields, when set, are returned by the corresponding method.
type MockExecutionRepository struct {
	mu sync.Mutex

	States   map[string]diagnosis.ExecutionState
	Outcomes map[string][]task.Outcome
	Results  map[string]aggregate.Result

	SaveStateCalls    int
	SaveOutcomesCalls int
	SaveResultCalls   int

	SaveStateError    error
	LoadStateError    error
	SaveOutcomesError error
	SaveResultError   error
}

func NewMockExecutionRepository() *MockExecutionRepository {
	return &MockExecutionRepository{
		States:   make(map[string]diagnosis.ExecutionState),
		Outcomes: make(map[string][]task.Outcome),
		Results:  make(map[string]aggregate.Result),
	}
}

func (m *MockExecutionRepository) SaveState(ctx context.Context, state diagnosis.ExecutionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveStateCalls++
	if m.SaveStateError != nil {
		return m.SaveStateError
	}
	m.States[state.ExecutionID] = state

	return nil
}

func (m *MockExecutionRepository) LoadState(ctx context.Context, executionID string) (*diagnosis.ExecutionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.LoadStateError != nil {
		return nil, m.LoadStateError
	}
	state, ok := m.States[executionID]
	if !ok {
		return nil, nil
	}

	return &state, nil
}

func (m *MockExecutionRepository) SaveOutcomes(ctx context.Context, executionID string, outcomes []task.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveOutcomesCalls++
	if m.SaveOutcomesError != nil {
		return m.SaveOutcomesError
	}
	m.Outcomes[executionID] = outcomes

	return nil
}

func (m *MockExecutionRepository) SaveResult(ctx context.Context, executionID string, result aggregate.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveResultCalls++
	if m.SaveResultError != nil {
		return m.SaveResultError
	}
	m.Results[executionID] = result

	return nil
}

func (m *MockExecutionRepository) GetExecutionStats(ctx context.Context, hours int) ([]ExecutionStats, error) {
	return nil, nil
}

func (m *MockExecutionRepository) GetRecentExecutions(ctx context.Context, limit int) ([]RecentExecution, error) {
	return nil, nil
}

func (m *MockExecutionRepository) Close() error {
	return nil
}

// StateFor returns the stored snapshot for an execution, if any.
func (m *MockExecutionRepository) StateFor(executionID string) (diagnosis.ExecutionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.States[executionID]
	return state, ok
}
