// Package engine runs a task matrix against the AI platforms through a
// bounded worker pool. Failures stay contained at the task boundary: one
// misbehaving platform or prompt can never abort the batch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brandlens/brandlens/internal/metrics"
	"github.com/brandlens/brandlens/internal/platform"
	"github.com/brandlens/brandlens/internal/task"
)

const (
	// ErrCircuitOpen tags outcomes for tasks skipped without contacting the
	// platform because its breaker was open.
	ErrCircuitOpen = task.ErrCircuitOpen

	// ErrBatchTimeout tags outcomes synthesized when the batch deadline
	// elapsed before the task finished.
	ErrBatchTimeout = task.ErrBatchTimeout
)

// Breaker is the per-platform failure isolation the engine consults before
// and after every platform call.
type Breaker interface {
	Allow(platform string) bool
	RecordSuccess(platform string)
	RecordFailure(platform string)
	ReleaseProbe(platform string)
}

// Timeouts derives the per-task deadline.
type Timeouts interface {
	For(question, platform string) time.Duration
}

type Config struct {
	// Workers bounds the number of in-flight platform calls.
	Workers int

	// BatchTimeout bounds the whole batch. When it elapses, unfinished tasks
	// are abandoned and reported as timed out.
	BatchTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:      8,
		BatchTimeout: 35 * time.Second,
	}
}

// ProgressFunc is called after every task completion with the number of
// completed tasks so far and the total. Calls are serialized and
// completed is monotonically non-decreasing.
type ProgressFunc func(completed, total int)

// Result is what one batch run produced. Outcomes always holds exactly one
// entry per submitted task.
type Result struct {
	Outcomes []task.Outcome
	TimedOut bool
}

type Engine struct {
	adapters *platform.Registry
	breaker  Breaker
	timeouts Timeouts
	config   Config
}

func New(adapters *platform.Registry, breaker Breaker, timeouts Timeouts, config Config) *Engine {
	defaults := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = defaults.BatchTimeout
	}

	return &Engine{
		adapters: adapters,
		breaker:  breaker,
		timeouts: timeouts,
		config:   config,
	}
}

// batch tracks per-task finalization so a late platform response can never
// overwrite an outcome the batch already reported.
type batch struct {
	mu         sync.Mutex
	outcomes   []task.Outcome
	finalized  []bool
	completed  int
	onProgress ProgressFunc
	done       chan struct{}
}

// start marks task index i as dispatched unless the batch already finalized
// it, in which case the task must not run at all.
func (b *batch) start(i int, t *task.Task) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finalized[i] {
		return false
	}
	now := time.Now()
	t.Status = task.StatusRunning
	t.StartedAt = &now
	t.AttemptCount++

	return true
}

// finalize records the outcome and final status for task index i unless it
// was already finalized. Returns false for late arrivals, which are
// discarded; the task struct is left exactly as abandonUnfinished set it.
func (b *batch) finalize(i int, t *task.Task, status task.TaskStatus, o task.Outcome) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finalized[i] {
		return false
	}
	b.finalized[i] = true
	b.outcomes[i] = o
	t.Status = status
	if status == task.StatusSuccess || status == task.StatusFailed {
		now := time.Now()
		t.CompletedAt = &now
	}
	b.completed++
	if b.onProgress != nil {
		b.onProgress(b.completed, len(b.outcomes))
	}
	if b.completed == len(b.outcomes) {
		close(b.done)
	}

	return true
}

// Run executes every task and returns one outcome per task. A per-task
// failure is captured in its outcome; only an empty adapter registry entry is
// treated the same way, so Run itself never fails.
func (e *Engine) Run(ctx context.Context, tasks []*task.Task, onProgress ProgressFunc) Result {
	if len(tasks) == 0 {
		return Result{Outcomes: []task.Outcome{}}
	}

	b := &batch{
		outcomes:   make([]task.Outcome, len(tasks)),
		finalized:  make([]bool, len(tasks)),
		onProgress: onProgress,
		done:       make(chan struct{}),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan int, len(tasks))
	for i := range tasks {
		queue <- i
	}
	close(queue)

	workers := e.config.Workers
	if workers > len(tasks) {
		workers = len(tasks)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				e.execute(runCtx, b, i, tasks[i])
			}
		}()
	}

	timer := time.NewTimer(e.config.BatchTimeout)
	defer timer.Stop()

	timedOut := false
	select {
	case <-b.done:
	case <-timer.C:
		timedOut = true
		metrics.RecordBatchTimeout()
		cancel()
		e.abandonUnfinished(b, tasks)
	case <-ctx.Done():
		timedOut = true
		cancel()
		e.abandonUnfinished(b, tasks)
	}

	if !timedOut {
		wg.Wait()
	}

	return Result{Outcomes: b.outcomes, TimedOut: timedOut}
}

func (e *Engine) execute(ctx context.Context, b *batch, i int, t *task.Task) {
	if err := ctx.Err(); err != nil {
		// Batch already over; the deadline path fills in the outcome.
		return
	}

	if !e.breaker.Allow(t.Platform) {
		metrics.RecordTaskSkipped(t.Platform)
		b.finalize(i, t, task.StatusSkippedCircuitOpen, task.Outcome{
			TaskID:   t.ID,
			Brand:    t.Brand,
			Platform: t.Platform,
			Success:  false,
			Error:    ErrCircuitOpen,
		})
		return
	}

	adapter, ok := e.adapters.Get(t.Platform)
	if !ok {
		e.breaker.ReleaseProbe(t.Platform)
		b.finalize(i, t, task.StatusFailed, task.Outcome{
			TaskID:   t.ID,
			Brand:    t.Brand,
			Platform: t.Platform,
			Success:  false,
			Error:    fmt.Sprintf("no adapter registered for platform %q", t.Platform),
		})
		return
	}

	if !b.start(i, t) {
		// Abandoned between the breaker check and dispatch.
		e.breaker.ReleaseProbe(t.Platform)
		return
	}
	metrics.RecordTaskDispatched(t.Platform)

	started := time.Now()
	callCtx, callCancel := context.WithTimeout(ctx, e.timeouts.For(t.Question, t.Platform))
	defer callCancel()

	resp, err := adapter.Send(callCtx, t.Question)
	latency := time.Since(started)

	outcome := task.Outcome{
		TaskID:    t.ID,
		Brand:     t.Brand,
		Platform:  t.Platform,
		LatencyMs: latency.Milliseconds(),
	}

	if err != nil {
		outcome.Error = err.Error()
		outcome.TimedOut = errors.Is(err, context.DeadlineExceeded)
		if errors.Is(err, context.Canceled) {
			// The batch deadline cancelled this call mid-flight.
			outcome.Error = ErrBatchTimeout
			outcome.TimedOut = true
		}
		b.finalize(i, t, task.StatusFailed, outcome)

		if errors.Is(err, context.Canceled) {
			// A cancellation is the engine's doing, not the platform's; the
			// breaker learns nothing from it, but the call must hand back a
			// reserved half-open probe or the platform stays blocked.
			e.breaker.ReleaseProbe(t.Platform)
			return
		}
		e.breaker.RecordFailure(t.Platform)
		metrics.RecordTaskFailed(t.Platform, latency)
		return
	}

	outcome.Success = true
	outcome.Content = resp.Content
	b.finalize(i, t, task.StatusSuccess, outcome)
	e.breaker.RecordSuccess(t.Platform)
	metrics.RecordTaskSucceeded(t.Platform, latency)
}

// abandonUnfinished fills in a timed-out outcome for every task the deadline
// caught mid-flight or still queued. The breaker is left alone here: it only
// learns from calls that actually resolved.
func (e *Engine) abandonUnfinished(b *batch, tasks []*task.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, t := range tasks {
		if b.finalized[i] {
			continue
		}
		b.finalized[i] = true
		t.Status = task.StatusFailed
		b.outcomes[i] = task.Outcome{
			TaskID:   t.ID,
			Brand:    t.Brand,
			Platform: t.Platform,
			Success:  false,
			Error:    ErrBatchTimeout,
			TimedOut: true,
		}
	}
	b.completed = len(b.outcomes)
}
