package resilience

import (
	"errors"
	"testing"
	"time"
)

type fakeBackend struct {
	name  string
	calls int
	err   error
}

func (f *fakeBackend) do() (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.name, nil
}

func TestExecuteWithResultPrimarySucceeds(t *testing.T) {
	t.Parallel()

	primary := &fakeBackend{name: "primary"}
	fallback := &fakeBackend{name: "fallback"}

	fg := NewFallbackGroup(primary, "primary", FallbackConfig{})
	fg.AddFallback("fallback", fallback)

	got, err := ExecuteWithResult(fg, func(b *fakeBackend) (string, error) { return b.do() })
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != "primary" {
		t.Errorf("result = %q, want primary", got)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback called %d times, want 0", fallback.calls)
	}
}

func TestFallbackGroupSkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	primary := &fakeBackend{name: "primary", err: errors.New("down")}
	fallback := &fakeBackend{name: "fallback"}

	fg := NewFallbackGroup(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	fg.AddFallback("fallback", fallback)

	fn := func(b *fakeBackend) (string, error) { return b.do() }

	// Trip the primary's breaker, then confirm subsequent calls never reach it.
	for range 3 {
		if _, err := ExecuteWithResult(fg, fn); err != nil {
			t.Fatalf("ExecuteWithResult: %v", err)
		}
	}
	callsAfterTrip := primary.calls

	if _, err := ExecuteWithResult(fg, fn); err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if primary.calls != callsAfterTrip {
		t.Errorf("primary called while breaker open: %d → %d calls", callsAfterTrip, primary.calls)
	}

	if fg.entries[0].breaker.State() != StateOpen {
		t.Errorf("primary breaker state = %v, want open", fg.entries[0].breaker.State())
	}
}
