package resilience

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// State is the position of a breaker in its state machine.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds the thresholds for one breaker.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// DefaultBreakerConfig trips after 5 consecutive failures and probes again after a minute.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, RecoveryTimeout: time.Minute}
}

// CircuitState is a point-in-time copy of a breaker.
type CircuitState struct {
	Name             string        `json:"name"`
	State            State         `json:"-"`
	StateName        string        `json:"state"`
	Failures         int           `json:"failures"`
	LastFailure      time.Time     `json:"last_failure,omitempty"`
	OpenedAt         time.Time     `json:"opened_at,omitempty"`
	FailureThreshold int           `json:"failure_threshold"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout"`
}

// CircuitBreaker fails fast while a downstream is unhealthy.
// All state lives behind mu; the protected call never runs under it.
type CircuitBreaker struct {
	name   string
	cfg    BreakerConfig
	now    func() time.Time
	logger *slog.Logger

	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	openedAt      time.Time
	trialInFlight bool
}

// NewBreaker creates a closed breaker. A nil clock means time.Now.
func NewBreaker(name string, cfg BreakerConfig, now func() time.Time, logger *slog.Logger) *CircuitBreaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreaker{name: name, cfg: cfg, now: now, logger: logger}
}

// Name returns the downstream this breaker protects.
func (b *CircuitBreaker) Name() string { return b.name }

// Execute runs fn if the breaker admits the call and records its outcome.
// Only transient failures count against the downstream.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	trial, ok := b.admit()
	if !ok {
		return CircuitOpen(b.name)
	}
	err := fn(ctx)
	b.record(err, trial)
	return err
}

// admit decides whether a call may proceed and whether it is the half-open trial.
func (b *CircuitBreaker) admit() (trial bool, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.RecoveryTimeout {
			return false, false
		}
		b.transition(StateHalfOpen)
		b.trialInFlight = true
		return true, true
	case StateHalfOpen:
		if b.trialInFlight {
			return false, false
		}
		b.trialInFlight = true
		return true, true
	}
	return false, false
}

func (b *CircuitBreaker) record(err error, trial bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.trialInFlight = false
	}

	if !IsTransient(err) {
		b.failures = 0
		if b.state == StateHalfOpen && trial {
			b.transition(StateClosed)
		}
		return
	}

	now := b.now()
	b.failures++
	b.lastFailure = now

	switch b.state {
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = now
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		if trial {
			b.openedAt = now
			b.transition(StateOpen)
		}
	}
}

// transition must be called with mu held.
func (b *CircuitBreaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.logger.Info("circuit breaker transition",
		slog.String("breaker", b.name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.Int("failures", b.failures),
	)
}

// State returns the stored state. An open breaker whose recovery timeout has
// elapsed still reports open until the next call moves it to half-open.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot copies the breaker's counters.
func (b *CircuitBreaker) Snapshot() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return CircuitState{
		Name:             b.name,
		State:            b.state,
		StateName:        b.state.String(),
		Failures:         b.failures,
		LastFailure:      b.lastFailure,
		OpenedAt:         b.openedAt,
		FailureThreshold: b.cfg.FailureThreshold,
		RecoveryTimeout:  b.cfg.RecoveryTimeout,
	}
}

// Reset forces the breaker closed with a zero counter.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.trialInFlight = false
	b.transition(StateClosed)
}

// Registry hands out one breaker per downstream name.
type Registry struct {
	defaults  BreakerConfig
	overrides map[string]BreakerConfig
	now       func() time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates an empty registry. Per-name overrides take precedence
// over defaults when a breaker is first created.
func NewRegistry(defaults BreakerConfig, overrides map[string]BreakerConfig, now func() time.Time, logger *slog.Logger) *Registry {
	return &Registry{
		defaults:  defaults,
		overrides: overrides,
		now:       now,
		logger:    logger,
		breakers:  make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	cfg := r.defaults
	if o, ok := r.overrides[name]; ok {
		cfg = o
	}
	b := NewBreaker(name, cfg, r.now, r.logger)
	r.breakers[name] = b
	return b
}

// Snapshots returns every breaker's state ordered by name.
func (r *Registry) Snapshots() []CircuitState {
	r.mu.Lock()
	list := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.Unlock()

	out := make([]CircuitState, 0, len(list))
	for _, b := range list {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
