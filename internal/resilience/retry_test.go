package resilience

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetryPolicy_Delay(t *testing.T) {
	tests := []struct {
		name     string
		policy   RetryPolicy
		attempts int
	}{
		{"doubling", RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: 10 * time.Second, Multiplier: 2}, 8},
		{"capped early", RetryPolicy{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 3}, 5},
		{"flat", RetryPolicy{InitialDelay: 250 * time.Millisecond, MaxDelay: time.Second, Multiplier: 1}, 4},
		{"one and a half", RetryPolicy{InitialDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second, Multiplier: 1.5}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for n := 1; n <= tt.attempts; n++ {
				want := time.Duration(math.Min(
					float64(tt.policy.MaxDelay),
					float64(tt.policy.InitialDelay)*math.Pow(tt.policy.Multiplier, float64(n-1)),
				))
				if got := tt.policy.Delay(n); got != want {
					t.Errorf("Delay(%d) = %v, want %v", n, got, want)
				}
			}
		})
	}
}

func TestRetryPolicy_JitterWithinBounds(t *testing.T) {
	for _, r := range []float64{0, 0.25, 0.5, 0.999999} {
		p := &RetryPolicy{
			MaxAttempts:  5,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2,
			UseJitter:    true,
		}
		rnd := r
		p.WithSleeper(noSleep).WithRandom(func() float64 { return rnd })

		var seen []Attempt
		p.OnRetry = func(a Attempt, _ error) { seen = append(seen, a) }

		_ = p.Execute(context.Background(), "op", fail)

		if len(seen) != 4 {
			t.Fatalf("retries = %d, want 4", len(seen))
		}
		for _, a := range seen {
			if !a.Jittered {
				t.Errorf("attempt %d not marked jittered", a.N)
			}
			if a.Computed != p.Delay(a.N) {
				t.Errorf("attempt %d computed = %v, want %v", a.N, a.Computed, p.Delay(a.N))
			}
			if a.Delay < 0 || a.Delay > a.Computed {
				t.Errorf("attempt %d delay %v outside [0, %v]", a.N, a.Delay, a.Computed)
			}
		}
	}
}

func TestRetryPolicy_DefaultJitterSourceWithinBounds(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 50, InitialDelay: time.Millisecond, MaxDelay: 20 * time.Millisecond, Multiplier: 2, UseJitter: true}
	p.WithSleeper(noSleep)
	p.OnRetry = func(a Attempt, _ error) {
		if a.Delay < 0 || a.Delay > a.Computed {
			t.Errorf("attempt %d delay %v outside [0, %v]", a.N, a.Delay, a.Computed)
		}
	}
	_ = p.Execute(context.Background(), "op", fail)
}

func TestRetryPolicy_ExhaustsAndReturnsLastError(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}
	p.WithSleeper(noSleep)

	var calls int
	last := Transient("call", errors.New("third failure"))
	err := p.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		if calls == 3 {
			return last
		}
		return Transient("call", errors.New("earlier failure"))
	})

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if err != last {
		t.Errorf("err = %v, want the last error unchanged", err)
	}
}

func TestRetryPolicy_DoesNotRetryNonTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"permanent", Permanent("call", errors.New("bad request"))},
		{"circuit open", CircuitOpen("inference")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond, Multiplier: 2}
			p.WithSleeper(func(context.Context, time.Duration) error {
				t.Error("slept before a non-retryable error")
				return nil
			})

			var calls int
			err := p.Execute(context.Background(), "op", func(context.Context) error {
				calls++
				return tt.err
			})
			if calls != 1 {
				t.Errorf("calls = %d, want 1", calls)
			}
			if err != tt.err {
				t.Errorf("err = %v, want %v", err, tt.err)
			}
		})
	}
}

func TestRetryPolicy_SucceedsAfterTransient(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}
	p.WithSleeper(noSleep)

	var calls int
	err := p.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 2 {
			return errDown
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDo_CircuitOpenStopsRetries(t *testing.T) {
	b := NewBreaker("inference", BreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour}, nil, quietLogger())
	p := &RetryPolicy{MaxAttempts: 10, InitialDelay: time.Millisecond, Multiplier: 2}
	p.WithSleeper(noSleep)

	var calls int
	_, err := Do(context.Background(), "analyze", p, b, func(context.Context) (string, error) {
		calls++
		return "", errDown
	})

	if calls != 2 {
		t.Errorf("downstream calls = %d, want 2 (breaker opens, retry stops)", calls)
	}
	if !IsCircuitOpen(err) {
		t.Errorf("err = %v, want circuit open", err)
	}
}

func TestDo_ReturnsValue(t *testing.T) {
	got, err := Do(context.Background(), "op", DefaultRetryPolicy(), nil, func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Errorf("Do() = %d, %v", got, err)
	}
}
