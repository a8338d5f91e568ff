package breaker

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *time.Time) {
	b := New("researcher", threshold, cooldown, zerolog.Nop())
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if got := b.State(); got != StateClosed {
			t.Fatalf("after %d failures state = %v, want closed", i+1, got)
		}
	}

	b.RecordFailure()
	if got := b.State(); got != StateOpen {
		t.Fatalf("after threshold failures state = %v, want open", got)
	}
	if err := b.Allow(); err != ErrOpen {
		t.Errorf("Allow() = %v, want ErrOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if got := b.State(); got != StateClosed {
		t.Errorf("state = %v, want closed (failure count should reset on success)", got)
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	// Cooldown not elapsed yet
	if err := b.Allow(); err != ErrOpen {
		t.Fatalf("Allow() before cooldown = %v, want ErrOpen", err)
	}

	// Cooldown elapsed: one probe admitted, concurrent calls rejected
	*now = now.Add(2 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after cooldown = %v, want nil (probe)", err)
	}
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("state = %v, want half_open", got)
	}
	if err := b.Allow(); err != ErrOpen {
		t.Errorf("second Allow() during probe = %v, want ErrOpen", err)
	}

	// Successful probe closes the breaker
	b.RecordSuccess()
	if got := b.State(); got != StateClosed {
		t.Errorf("state after successful probe = %v, want closed", got)
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	*now = now.Add(2 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after cooldown = %v, want nil", err)
	}

	probeStart := *now
	b.RecordFailure()
	if got := b.State(); got != StateOpen {
		t.Fatalf("state after failed probe = %v, want open", got)
	}

	// Full cooldown applies again from the probe failure
	*now = probeStart.Add(30 * time.Second)
	if err := b.Allow(); err != ErrOpen {
		t.Errorf("Allow() mid-cooldown after failed probe = %v, want ErrOpen", err)
	}
	*now = probeStart.Add(2 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Errorf("Allow() after second cooldown = %v, want nil", err)
	}
}

func TestRegistry_ReturnsSameBreakerPerAgent(t *testing.T) {
	r := NewRegistry(5, time.Minute, zerolog.Nop())

	a := r.For("planner")
	b := r.For("planner")
	c := r.For("summarizer")

	if a != b {
		t.Error("For() returned different breakers for the same agent")
	}
	if a == c {
		t.Error("For() returned the same breaker for different agents")
	}
}
