package diagnosis

import (
	"context"
	"errors"
	"log"

	"github.com/brandlens/brandlens/internal/aggregate"
	"github.com/brandlens/brandlens/internal/engine"
	"github.com/brandlens/brandlens/internal/matrix"
	"github.com/brandlens/brandlens/internal/task"
	"github.com/google/uuid"
)

var (
	ErrExecutionNotFound = errors.New("execution not found")
	ErrResultNotReady    = errors.New("result not ready")
)

// Store is the hot snapshot store serving the polling path.
type Store interface {
	SaveState(ctx context.Context, state ExecutionState) error
	GetState(ctx context.Context, executionID string) (*ExecutionState, error)
	SaveOutcomes(ctx context.Context, executionID string, outcomes []task.Outcome) error
	SaveResult(ctx context.Context, executionID string, result aggregate.Result) error
	GetResult(ctx context.Context, executionID string) (*aggregate.Result, error)
}

// History is the durable execution record. Writes are best-effort: a failure
// is logged and the run continues in memory.
type History interface {
	SaveState(ctx context.Context, state ExecutionState) error
	SaveOutcomes(ctx context.Context, executionID string, outcomes []task.Outcome) error
	SaveResult(ctx context.Context, executionID string, result aggregate.Result) error
}

// Runner executes a task batch. Satisfied by *engine.Engine.
type Runner interface {
	Run(ctx context.Context, tasks []*task.Task, onProgress engine.ProgressFunc) engine.Result
}

// Notifier is told about finished executions, e.g. to send a summary email.
type Notifier interface {
	ExecutionFinished(ctx context.Context, state ExecutionState, result aggregate.Result) error
}

// Service exposes the diagnosis lifecycle: start a run, poll its state, and
// fetch its aggregated result.
type Service struct {
	builder  *matrix.Builder
	runner   Runner
	store    Store
	history  History
	notifier Notifier
}

func NewService(builder *matrix.Builder, runner Runner, store Store, history History) *Service {
	return &Service{
		builder: builder,
		runner:  runner,
		store:   store,
		history: history,
	}
}

// SetNotifier attaches an optional completion notifier.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Start validates the request, builds the task matrix, and kicks off the
// dispatch in the background. It returns the execution id immediately;
// callers poll GetState until ShouldStopPolling.
func (s *Service) Start(ctx context.Context, brands, questions, platforms []string) (string, error) {
	tasks, err := s.builder.Build(brands, questions, platforms)
	if err != nil {
		return "", err
	}

	executionID := uuid.New().String()
	m := NewMachine(executionID, s.persistState)
	s.persistState(ctx, m.State())

	// The run outlives the HTTP request that started it.
	go s.run(context.Background(), m, tasks)

	return executionID, nil
}

// GetState returns the latest persisted snapshot for the execution.
func (s *Service) GetState(ctx context.Context, executionID string) (*ExecutionState, error) {
	state, err := s.store.GetState(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrExecutionNotFound
	}

	return state, nil
}

// GetResult returns the aggregated result once the execution finished with at
// least partial success.
func (s *Service) GetResult(ctx context.Context, executionID string) (*aggregate.Result, error) {
	state, err := s.store.GetState(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrExecutionNotFound
	}
	if !state.IsCompleted {
		return nil, ErrResultNotReady
	}

	result, err := s.store.GetResult(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrResultNotReady
	}

	return result, nil
}

func (s *Service) run(ctx context.Context, m *Machine, tasks []*task.Task) {
	executionID := m.State().ExecutionID
	log.Printf("Execution %s: dispatching %d tasks", executionID, len(tasks))

	if err := m.Transition(ctx, EventSucceed, intp(5)); err != nil {
		log.Printf("Execution %s: %v", executionID, err)
		return
	}

	result := s.runner.Run(ctx, tasks, func(completed, total int) {
		// Fetching spans 5..90 of the progress display; analysis takes the
		// rest.
		m.SetProgress(ctx, 5+completed*85/total)
	})

	counts := ResultCounts{}
	for _, o := range result.Outcomes {
		switch {
		case o.Success:
			counts.Success++
		case o.Error == task.ErrCircuitOpen:
			counts.Skipped++
		default:
			counts.Failed++
		}
	}
	m.SetCounts(counts)
	s.persistOutcomes(ctx, executionID, result.Outcomes)

	if result.TimedOut {
		if err := m.Transition(ctx, EventTimeout, nil); err != nil {
			log.Printf("Execution %s: %v", executionID, err)
		}
		return
	}
	if counts.Success == 0 {
		if err := m.Transition(ctx, EventAllFail, nil); err != nil {
			log.Printf("Execution %s: %v", executionID, err)
		}
		return
	}

	fetchEvent := EventAllComplete
	if counts.Success < len(result.Outcomes) {
		fetchEvent = EventPartialComplete
	}
	if err := m.Transition(ctx, fetchEvent, intp(90)); err != nil {
		log.Printf("Execution %s: %v", executionID, err)
		return
	}

	aggregated := aggregate.Aggregate(result.Outcomes)
	s.persistResult(ctx, executionID, aggregated)

	var finishEvent Event
	switch aggregated.Recommendation {
	case aggregate.RecommendCompleted:
		finishEvent = EventSucceed
	case aggregate.RecommendPartialSuccess:
		finishEvent = EventPartialSucceed
	default:
		finishEvent = EventFail
	}
	if err := m.Transition(ctx, finishEvent, intp(100)); err != nil {
		log.Printf("Execution %s: %v", executionID, err)
		return
	}

	state := m.State()
	log.Printf("Execution %s: finished in stage %s (success=%d failed=%d skipped=%d)",
		executionID, state.Stage, counts.Success, counts.Failed, counts.Skipped)

	if s.notifier != nil && state.IsCompleted {
		if err := s.notifier.ExecutionFinished(ctx, state, aggregated); err != nil {
			log.Printf("Execution %s: notification failed: %v", executionID, err)
		}
	}
}

func (s *Service) persistState(ctx context.Context, state ExecutionState) error {
	if err := s.store.SaveState(ctx, state); err != nil {
		log.Printf("Failed to save state snapshot for execution %s: %v", state.ExecutionID, err)
	}
	if s.history != nil {
		if err := s.history.SaveState(ctx, state); err != nil {
			log.Printf("Failed to record state history for execution %s: %v", state.ExecutionID, err)
		}
	}

	// Persistence is best-effort; the machine continues regardless.
	return nil
}

func (s *Service) persistOutcomes(ctx context.Context, executionID string, outcomes []task.Outcome) {
	if err := s.store.SaveOutcomes(ctx, executionID, outcomes); err != nil {
		log.Printf("Failed to save outcomes for execution %s: %v", executionID, err)
	}
	if s.history != nil {
		if err := s.history.SaveOutcomes(ctx, executionID, outcomes); err != nil {
			log.Printf("Failed to record outcome history for execution %s: %v", executionID, err)
		}
	}
}

func (s *Service) persistResult(ctx context.Context, executionID string, result aggregate.Result) {
	if err := s.store.SaveResult(ctx, executionID, result); err != nil {
		log.Printf("Failed to save result for execution %s: %v", executionID, err)
	}
	if s.history != nil {
		if err := s.history.SaveResult(ctx, executionID, result); err != nil {
			log.Printf("Failed to record result history for execution %s: %v", executionID, err)
		}
	}
}

func intp(v int) *int { return &v }
