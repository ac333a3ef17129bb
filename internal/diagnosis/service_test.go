package diagnosis_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brandlens/brandlens/internal/aggregate"
	"github.com/brandlens/brandlens/internal/breaker"
	"github.com/brandlens/brandlens/internal/diagnosis"
	"github.com/brandlens/brandlens/internal/engine"
	"github.com/brandlens/brandlens/internal/matrix"
	"github.com/brandlens/brandlens/internal/platform"
	"github.com/brandlens/brandlens/internal/repository"
	"github.com/brandlens/brandlens/internal/store"
	"github.com/brandlens/brandlens/internal/timeout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	service *diagnosis.Service
	store   *store.Store
	history *repository.MockExecutionRepository
	mr      *miniredis.Miniredis
}

func setupService(t *testing.T, adapters *platform.Registry, timeoutConfig timeout.Config) *serviceFixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s, err := store.NewStore(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	breakers := breaker.NewRegistry(breaker.DefaultConfig())
	timeouts := timeout.NewCalculator(timeoutConfig)
	e := engine.New(adapters, breakers, timeouts, engine.Config{Workers: 4, BatchTimeout: 5 * time.Second})
	history := repository.NewMockExecutionRepository()

	builder := matrix.NewBuilder(adapters.Platforms())
	service := diagnosis.NewService(builder, e, s, history)

	return &serviceFixture{service: service, store: s, history: history, mr: mr}
}

func waitForTerminal(t *testing.T, f *serviceFixture, executionID string) diagnosis.ExecutionState {
	t.Helper()

	var state *diagnosis.ExecutionState
	require.Eventually(t, func() bool {
		var err error
		state, err = f.service.GetState(context.Background(), executionID)
		return err == nil && state.ShouldStopPolling
	}, 5*time.Second, 10*time.Millisecond, "execution never reached a terminal stage")

	return *state
}

func okAdapter(content string) platform.Adapter {
	return platform.Func(func(ctx context.Context, prompt string) (platform.Response, error) {
		return platform.Response{Content: content}, nil
	})
}

func TestStart_ValidationError(t *testing.T) {
	adapters := platform.NewRegistry()
	adapters.Register("openai", okAdapter("hi"))
	f := setupService(t, adapters, timeout.DefaultConfig())

	_, err := f.service.Start(context.Background(), nil, []string{"q1"}, []string{"openai"})

	var verr *matrix.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestStart_AllSucceed(t *testing.T) {
	adapters := platform.NewRegistry()
	adapters.Register("openai", okAdapter("Acme is the best choice"))
	adapters.Register("gemini", okAdapter("Acme is a leading vendor"))
	f := setupService(t, adapters, timeout.DefaultConfig())
	ctx := context.Background()

	id, err := f.service.Start(ctx, []string{"Acme"}, []string{"q1", "q2"}, []string{"openai", "gemini"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	state := waitForTerminal(t, f, id)
	assert.Equal(t, diagnosis.StageCompleted, state.Stage)
	assert.Equal(t, 100, state.Progress)
	assert.True(t, state.IsCompleted)
	assert.Equal(t, diagnosis.ResultCounts{Success: 4}, state.Counts)

	result, err := f.service.GetResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, aggregate.RecommendCompleted, result.Recommendation)
	assert.Equal(t, 4, result.SuccessCount)
	assert.Greater(t, result.HealthScore, 0.0)
}

func TestStart_AllFail(t *testing.T) {
	adapters := platform.NewRegistry()
	adapters.Register("openai", platform.Func(func(ctx context.Context, prompt string) (platform.Response, error) {
		return platform.Response{}, errors.New("model unavailable")
	}))
	f := setupService(t, adapters, timeout.DefaultConfig())
	ctx := context.Background()

	id, err := f.service.Start(ctx, []string{"Acme", "Umbrella"}, []string{"q1", "q2"}, []string{"openai"})
	require.NoError(t, err)

	state := waitForTerminal(t, f, id)
	assert.Equal(t, diagnosis.StageFailed, state.Stage)
	assert.False(t, state.IsCompleted)
	assert.Equal(t, 0, state.Counts.Success)
	assert.Equal(t, 4, state.Counts.Failed+state.Counts.Skipped)

	_, err = f.service.GetResult(ctx, id)
	assert.ErrorIs(t, err, diagnosis.ErrResultNotReady)
}

func TestStart_PartialSuccess(t *testing.T) {
	adapters := platform.NewRegistry()
	adapters.Register("openai", okAdapter("Acme is great"))
	adapters.Register("gemini", okAdapter("Acme is reliable"))
	adapters.Register("perplexity", platform.Func(func(ctx context.Context, prompt string) (platform.Response, error) {
		<-ctx.Done()
		return platform.Response{}, ctx.Err()
	}))

	config := timeout.DefaultConfig()
	config.Default = 50 * time.Millisecond
	f := setupService(t, adapters, config)
	ctx := context.Background()

	id, err := f.service.Start(ctx, []string{"Acme"}, []string{"q1"}, []string{"openai", "gemini", "perplexity"})
	require.NoError(t, err)

	state := waitForTerminal(t, f, id)
	assert.Equal(t, diagnosis.StagePartialSuccess, state.Stage)
	assert.True(t, state.IsCompleted)
	assert.Equal(t, 2, state.Counts.Success)
	assert.Equal(t, 1, state.Counts.Failed)

	result, err := f.service.GetResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, aggregate.RecommendPartialSuccess, result.Recommendation)
	assert.InDelta(t, 1.0/3.0, result.FailureRate, 1e-9)
}

func TestGetState_Unknown(t *testing.T) {
	adapters := platform.NewRegistry()
	adapters.Register("openai", okAdapter("hi"))
	f := setupService(t, adapters, timeout.DefaultConfig())

	_, err := f.service.GetState(context.Background(), "no-such-execution")

	assert.ErrorIs(t, err, diagnosis.ErrExecutionNotFound)
}

func TestGetResult_NotReadyWhileRunning(t *testing.T) {
	release := make(chan struct{})
	adapters := platform.NewRegistry()
	adapters.Register("openai", platform.Func(func(ctx context.Context, prompt string) (platform.Response, error) {
		<-release
		return platform.Response{Content: "Acme wins"}, nil
	}))
	f := setupService(t, adapters, timeout.DefaultConfig())
	ctx := context.Background()

	id, err := f.service.Start(ctx, []string{"Acme"}, []string{"q1"}, []string{"openai"})
	require.NoError(t, err)

	_, err = f.service.GetResult(ctx, id)
	assert.ErrorIs(t, err, diagnosis.ErrResultNotReady)

	close(release)
	waitForTerminal(t, f, id)

	result, err := f.service.GetResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
}

func TestHistoryReceivesWrites(t *testing.T) {
	adapters := platform.NewRegistry()
	adapters.Register("openai", okAdapter("Acme is great"))
	f := setupService(t, adapters, timeout.DefaultConfig())

	id, err := f.service.Start(context.Background(), []string{"Acme"}, []string{"q1"}, []string{"openai"})
	require.NoError(t, err)
	waitForTerminal(t, f, id)

	recorded, ok := f.history.StateFor(id)
	require.True(t, ok)
	assert.Equal(t, diagnosis.StageCompleted, recorded.Stage)
	assert.Equal(t, 1, f.history.SaveOutcomesCalls)
	assert.Equal(t, 1, f.history.SaveResultCalls)
}

func TestHistoryFailureDoesNotStopExecution(t *testing.T) {
	adapters := platform.NewRegistry()
	adapters.Register("openai", okAdapter("Acme is great"))
	f := setupService(t, adapters, timeout.DefaultConfig())
	f.history.SaveStateError = errors.New("postgres down")
	f.history.SaveOutcomesError = errors.New("postgres down")
	f.history.SaveResultError = errors.New("postgres down")

	id, err := f.service.Start(context.Background(), []string{"Acme"}, []string{"q1"}, []string{"openai"})
	require.NoError(t, err)

	state := waitForTerminal(t, f, id)
	assert.Equal(t, diagnosis.StageCompleted, state.Stage)
}

type countingNotifier struct {
	calls atomic.Int64
	last  atomic.Value
}

func (n *countingNotifier) ExecutionFinished(ctx context.Context, state diagnosis.ExecutionState, result aggregate.Result) error {
	n.calls.Add(1)
	n.last.Store(state.Stage)
	return nil
}

func TestNotifierCalledOnCompletion(t *testing.T) {
	adapters := platform.NewRegistry()
	adapters.Register("openai", okAdapter("Acme is great"))
	f := setupService(t, adapters, timeout.DefaultConfig())

	notifier := &countingNotifier{}
	f.service.SetNotifier(notifier)

	id, err := f.service.Start(context.Background(), []string{"Acme"}, []string{"q1"}, []string{"openai"})
	require.NoError(t, err)
	waitForTerminal(t, f, id)

	require.Eventually(t, func() bool {
		return notifier.calls.Load() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, diagnosis.StageCompleted, notifier.last.Load())
}
