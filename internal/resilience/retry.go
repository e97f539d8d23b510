package resilience

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Attempt describes one scheduled retry. It is never persisted.
type Attempt struct {
	N        int           // the attempt that just failed, 1-indexed
	Computed time.Duration // pre-jitter delay
	Delay    time.Duration // delay actually waited
	Jittered bool
}

// RetryPolicy retries transient failures with exponential backoff.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	UseJitter    bool

	// OnRetry, when set, is called before each backoff pause.
	OnRetry func(Attempt, error)

	sleep  func(context.Context, time.Duration) error
	random func() float64
	logger *slog.Logger
}

// DefaultRetryPolicy makes three attempts starting at one second.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		UseJitter:    true,
	}
}

// WithLogger sets the logger used for retry notices.
func (p *RetryPolicy) WithLogger(logger *slog.Logger) *RetryPolicy {
	p.logger = logger
	return p
}

// WithSleeper replaces the backoff wait, mainly for tests.
func (p *RetryPolicy) WithSleeper(sleep func(context.Context, time.Duration) error) *RetryPolicy {
	p.sleep = sleep
	return p
}

// WithRandom replaces the jitter source; fn must return values in [0, 1).
func (p *RetryPolicy) WithRandom(fn func() float64) *RetryPolicy {
	p.random = fn
	return p
}

// Delay returns the pre-jitter pause after failed attempt n:
// min(MaxDelay, InitialDelay * Multiplier^(n-1)).
func (p *RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	d := float64(p.InitialDelay) * math.Pow(mult, float64(n-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func (p *RetryPolicy) backoff(n int) Attempt {
	computed := p.Delay(n)
	a := Attempt{N: n, Computed: computed, Delay: computed}
	if p.UseJitter && computed > 0 {
		rnd := p.random
		if rnd == nil {
			rnd = rand.Float64
		}
		a.Delay = time.Duration(rnd() * float64(computed))
		a.Jittered = true
	}
	return a
}

// Execute runs fn until it succeeds, fails with a non-transient error, or
// MaxAttempts is used up. The last error is returned as-is.
func (p *RetryPolicy) Execute(ctx context.Context, op string, fn func(context.Context) error) error {
	limit := p.MaxAttempts
	if limit < 1 {
		limit = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for n := 1; ; n++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) || n >= limit {
			return err
		}

		a := p.backoff(n)
		if p.OnRetry != nil {
			p.OnRetry(a, err)
		}
		if p.logger != nil {
			p.logger.Warn("retrying after transient failure",
				slog.String("op", op),
				slog.Int("attempt", n),
				slog.Int("max_attempts", limit),
				slog.Duration("delay", a.Delay),
				slog.String("error", err.Error()),
			)
		}
		if serr := sleep(ctx, a.Delay); serr != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn as retry(breaker(fn)) and returns its value. Either guard may be nil.
func Do[T any](ctx context.Context, op string, retry *RetryPolicy, breaker *CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	var out T
	call := func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}
	guarded := call
	if breaker != nil {
		guarded = func(ctx context.Context) error { return breaker.Execute(ctx, call) }
	}
	var err error
	if retry != nil {
		err = retry.Execute(ctx, op, guarded)
	} else {
		err = guarded(ctx)
	}
	return out, err
}
