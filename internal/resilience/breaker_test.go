package resilience

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errDown = Transient("call", errors.New("connection refused"))

func fail(context.Context) error    { return errDown }
func succeed(context.Context) error { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
	}{
		{"threshold 1", 1},
		{"threshold 3", 3},
		{"threshold 5", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			b := NewBreaker("svc", BreakerConfig{FailureThreshold: tt.threshold, RecoveryTimeout: time.Minute}, clock.Now, quietLogger())

			for i := 0; i < tt.threshold; i++ {
				if b.State() != StateClosed {
					t.Fatalf("state after %d failures = %v, want closed", i, b.State())
				}
				_ = b.Execute(context.Background(), fail)
			}
			if b.State() != StateOpen {
				t.Fatalf("state = %v, want open", b.State())
			}

			var calls int
			err := b.Execute(context.Background(), func(context.Context) error {
				calls++
				return nil
			})
			if calls != 0 {
				t.Errorf("downstream invoked %d times while open", calls)
			}
			if !errors.Is(err, ErrCircuitOpen) || !IsCircuitOpen(err) {
				t.Errorf("err = %v, want circuit open", err)
			}
		})
	}
}

func TestBreaker_SuccessResetsConsecutiveCount(t *testing.T) {
	b := NewBreaker("svc", BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute}, nil, quietLogger())

	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), succeed)
	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), fail)

	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed (failures were not consecutive)", b.State())
	}
	if got := b.Snapshot().Failures; got != 2 {
		t.Errorf("failures = %d, want 2", got)
	}
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker("svc", BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute}, nil, quietLogger())

	err := b.Execute(context.Background(), func(context.Context) error {
		return Permanent("call", errors.New("bad request"))
	})
	if err == nil {
		t.Fatal("expected the permanent error to be returned")
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenTrialSuccessCloses(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker("svc", BreakerConfig{FailureThreshold: 2, RecoveryTimeout: 30 * time.Second}, clock.Now, quietLogger())

	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), fail)

	clock.Advance(29 * time.Second)
	if err := b.Execute(context.Background(), succeed); !IsCircuitOpen(err) {
		t.Fatalf("before recovery timeout err = %v, want circuit open", err)
	}

	clock.Advance(time.Second)
	if err := b.Execute(context.Background(), succeed); err != nil {
		t.Fatalf("trial call err = %v", err)
	}

	snap := b.Snapshot()
	if snap.State != StateClosed {
		t.Errorf("state = %v, want closed", snap.State)
	}
	if snap.Failures != 0 {
		t.Errorf("failures = %d, want 0", snap.Failures)
	}
}

func TestBreaker_HalfOpenTrialFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker("svc", BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 10 * time.Second}, clock.Now, quietLogger())

	_ = b.Execute(context.Background(), fail)
	firstOpen := b.Snapshot().OpenedAt

	clock.Advance(10 * time.Second)
	if err := b.Execute(context.Background(), fail); !errors.Is(err, errDown) {
		t.Fatalf("trial err = %v, want downstream error", err)
	}

	snap := b.Snapshot()
	if snap.State != StateOpen {
		t.Fatalf("state = %v, want open", snap.State)
	}
	if !snap.OpenedAt.After(firstOpen) {
		t.Errorf("opened_at not reset: %v vs %v", snap.OpenedAt, firstOpen)
	}

	clock.Advance(5 * time.Second)
	if err := b.Execute(context.Background(), succeed); !IsCircuitOpen(err) {
		t.Errorf("err = %v, want circuit open within new recovery window", err)
	}
}

func TestBreaker_HalfOpenAllowsExactlyOneTrial(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker("svc", BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Second}, clock.Now, quietLogger())
	_ = b.Execute(context.Background(), fail)
	clock.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	var downstream int32

	go func() {
		_ = b.Execute(context.Background(), func(context.Context) error {
			atomic.AddInt32(&downstream, 1)
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	var wg sync.WaitGroup
	var rejected int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Execute(context.Background(), func(context.Context) error {
				atomic.AddInt32(&downstream, 1)
				return nil
			})
			if IsCircuitOpen(err) {
				atomic.AddInt32(&rejected, 1)
			}
		}()
	}
	wg.Wait()
	close(release)

	if got := atomic.LoadInt32(&downstream); got != 1 {
		t.Errorf("downstream calls = %d, want 1", got)
	}
	if got := atomic.LoadInt32(&rejected); got != 10 {
		t.Errorf("rejected = %d, want 10", got)
	}
}

func TestRegistry_OneBreakerPerName(t *testing.T) {
	reg := NewRegistry(DefaultBreakerConfig(), map[string]BreakerConfig{
		"inference": {FailureThreshold: 2, RecoveryTimeout: time.Second},
	}, nil, quietLogger())

	a := reg.Get("inference")
	if a != reg.Get("inference") {
		t.Error("Get returned different breakers for the same name")
	}
	other := reg.Get("thumbnails")
	if a == other {
		t.Error("different names share a breaker")
	}

	_ = a.Execute(context.Background(), fail)
	_ = a.Execute(context.Background(), fail)
	if a.State() != StateOpen {
		t.Errorf("override threshold not applied, state = %v", a.State())
	}
	if other.State() != StateClosed {
		t.Errorf("independent breaker affected, state = %v", other.State())
	}

	snaps := reg.Snapshots()
	if len(snaps) != 2 || snaps[0].Name != "inference" || snaps[1].Name != "thumbnails" {
		t.Errorf("Snapshots() = %+v", snaps)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"transient", Transient("op", errors.New("x")), KindTransient},
		{"permanent", Permanent("op", errors.New("x")), KindPermanent},
		{"circuit open", CircuitOpen("svc"), KindCircuitOpen},
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"plain", errors.New("boom"), KindPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
