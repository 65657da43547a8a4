package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

var errBoom = errors.New("boom")

func failing(context.Context) error { return errBoom }
func passing(context.Context) error { return nil }

// TestCircuitBreaker_OpensAfterThreshold verifies consecutive failures open
// the breaker and that open calls fail fast without running fn.
func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := New(Config{FailureThreshold: 3, Timeout: time.Minute, Component: "forecast", Clock: clock})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Call(ctx, failing); !errors.Is(err, errBoom) {
			t.Fatalf("call %d err = %v, want errBoom", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	called := false
	err := cb.Call(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn should not run while open")
	}
}

// TestCircuitBreaker_HalfOpenRecovery verifies the breaker admits trial calls
// after the timeout and closes after enough of them succeed.
func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var transitions []State
	cb := New(Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Second,
		Component:        "alerts",
		Clock:            clock,
		OnStateChange: func(component string, from, to State) {
			if component != "alerts" {
				t.Errorf("component = %q, want alerts", component)
			}
			transitions = append(transitions, to)
		},
	})
	ctx := context.Background()

	_ = cb.Call(ctx, failing)
	clock.Advance(11 * time.Second)

	if err := cb.Call(ctx, passing); err != nil {
		t.Fatalf("trial call err = %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("state after one trial call = %v, want half_open", cb.State())
	}
	_ = cb.Call(ctx, passing)
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %v, want %v", i, transitions[i], want[i])
		}
	}
}

// TestCircuitBreaker_HalfOpenFailureReopens verifies a failed trial call reopens immediately.
func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := New(Config{FailureThreshold: 2, Timeout: time.Second, Clock: clock})
	ctx := context.Background()

	_ = cb.Call(ctx, failing)
	_ = cb.Call(ctx, failing)
	clock.Advance(2 * time.Second)
	_ = cb.Call(ctx, failing)

	if cb.State() != StateOpen {
		t.Errorf("state = %v, want open", cb.State())
	}
}

// TestCircuitBreaker_IsFailureFilter verifies ignored errors do not count.
func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	errIgnored := errors.New("ignored")
	cb := New(Config{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return err != nil && !errors.Is(err, errIgnored) },
	})

	_ = cb.Call(context.Background(), func(context.Context) error { return errIgnored })
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

// TestCircuitBreaker_Nil verifies a nil breaker is a pass-through.
func TestCircuitBreaker_Nil(t *testing.T) {
	var cb *CircuitBreaker
	if err := cb.Call(context.Background(), failing); !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want errBoom", err)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half_open",
		State(9):      "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
