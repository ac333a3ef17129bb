// Package breaker implements per-platform circuit breaking so a misbehaving
// AI platform stops consuming worker capacity until it recovers.
package breaker

import (
	"sync"
	"time"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

type Config struct {
	// FailureThreshold is the number of consecutive failures before the
	// breaker opens.
	FailureThreshold int

	// Cooldown is how long an open breaker rejects callers before it lets a
	// single probe through.
	Cooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

type platformBreaker struct {
	state               State
	consecutiveFailures int
	lastFailureAt       time.Time
	openedAt            time.Time
	probeInFlight       bool
}

// Registry tracks one breaker per platform. It is shared by every worker in
// the pool and lives for the process lifetime, not for one execution.
type Registry struct {
	mu       sync.Mutex
	config   Config
	breakers map[string]*platformBreaker
	now      func() time.Time
}

func NewRegistry(config Config) *Registry {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultConfig().Cooldown
	}

	return &Registry{
		config:   config,
		breakers: make(map[string]*platformBreaker),
		now:      time.Now,
	}
}

// SetClock replaces the time source. Tests use it to simulate cooldowns.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *Registry) get(platform string) *platformBreaker {
	b, ok := r.breakers[platform]
	if !ok {
		b = &platformBreaker{state: StateClosed}
		r.breakers[platform] = b
	}

	return b
}

// Allow reports whether a task for the platform may be dispatched. After the
// cooldown elapses on an open breaker, exactly one caller gets true as the
// half-open probe; everyone else is rejected until the probe resolves.
func (r *Registry) Allow(platform string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(platform)
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if r.now().Sub(b.openedAt) < r.config.Cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.probeInFlight = true
		return true
	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess resets the platform's failure streak. A successful half-open
// probe closes the breaker.
func (r *Registry) RecordSuccess(platform string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(platform)
	b.consecutiveFailures = 0
	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.probeInFlight = false
	}
}

// RecordFailure counts a failure against the platform. Enough consecutive
// failures open the breaker; a failed half-open probe reopens it and restarts
// the cooldown clock.
func (r *Registry) RecordFailure(platform string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	b := r.get(platform)
	b.lastFailureAt = now

	switch b.state {
	case StateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= r.config.FailureThreshold {
			b.state = StateOpen
			b.openedAt = now
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = now
		b.probeInFlight = false
	case StateOpen:
		b.consecutiveFailures++
	}
}

// ReleaseProbe gives back a reserved half-open probe whose call never
// resolved, e.g. because it was cancelled by a batch deadline. The breaker
// reopens and the cooldown restarts, so the next probe happens one cooldown
// later instead of never. No-op unless a probe is reserved.
func (r *Registry) ReleaseProbe(platform string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(platform)
	if b.state != StateHalfOpen || !b.probeInFlight {
		return
	}
	b.state = StateOpen
	b.openedAt = r.now()
	b.probeInFlight = false
}

// Snapshot is a point-in-time view of one platform's breaker, used by the
// dashboard and the metrics collector.
type Snapshot struct {
	Platform            string    `json:"platform"`
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailureAt       time.Time `json:"last_failure_at,omitzero"`
	OpenedAt            time.Time `json:"opened_at,omitzero"`
}

func (r *Registry) State(platform string) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.get(platform).state
}

func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshots := make([]Snapshot, 0, len(r.breakers))
	for platform, b := range r.breakers {
		snapshots = append(snapshots, Snapshot{
			Platform:            platform,
			State:               b.state,
			ConsecutiveFailures: b.consecutiveFailures,
			LastFailureAt:       b.lastFailureAt,
			OpenedAt:            b.openedAt,
		})
	}

	return snapshots
}
