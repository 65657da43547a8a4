package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrOpen is returned by Call while the breaker is rejecting calls.
var ErrOpen = errors.New("circuit breaker open")

// State is the circuit breaker state (Closed, Open, HalfOpen).
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

// CircuitBreaker guards one upstream source. It opens after FailureThreshold
// consecutive failures, rejects calls for Timeout, then lets trial calls through
// in half-open state until SuccessThreshold of them succeed.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            State
	failureCount     int
	successCount     int
	openedAt         time.Time
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	component        string
	clock            clockwork.Clock
	isFailure        func(error) bool
	onStateChange    func(component string, from, to State)
}

// Config holds circuit breaker parameters.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	// Component names the guarded source in errors and state callbacks.
	Component string
	// IsFailure decides which errors count against the breaker. Defaults to
	// every non-nil error.
	IsFailure     func(error) bool
	OnStateChange func(component string, from, to State)
	Clock         clockwork.Clock
}

// New creates a new CircuitBreaker with the given config.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
		component:        cfg.Component,
		clock:            cfg.Clock,
		isFailure:        cfg.IsFailure,
		onStateChange:    cfg.OnStateChange,
	}
}

// Call runs fn when the circuit allows it and records the result. A nil
// breaker always calls fn.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if cb == nil {
		return fn(ctx)
	}
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	if cb.state != StateOpen {
		cb.mu.Unlock()
		return nil
	}
	if cb.clock.Since(cb.openedAt) < cb.timeout {
		cb.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrOpen, cb.component)
	}
	cb.successCount = 0
	notify := cb.transition(StateHalfOpen)
	cb.mu.Unlock()
	notify()
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	notify := func() {}
	if cb.isFailure(err) {
		cb.failureCount++
		if cb.state == StateHalfOpen || cb.failureCount >= cb.failureThreshold {
			cb.failureCount = 0
			cb.openedAt = cb.clock.Now()
			notify = cb.transition(StateOpen)
		}
	} else {
		cb.failureCount = 0
		if cb.state == StateHalfOpen {
			cb.successCount++
			if cb.successCount >= cb.successThreshold {
				cb.successCount = 0
				notify = cb.transition(StateClosed)
			}
		}
	}
	cb.mu.Unlock()
	notify()
}

// transition must be called with mu held; the returned func runs the
// callback after the lock is released.
func (cb *CircuitBreaker) transition(to State) func() {
	from := cb.state
	cb.state = to
	if cb.onStateChange == nil || from == to {
		return func() {}
	}
	return func() { cb.onStateChange(cb.component, from, to) }
}

// State returns the current state (for metrics).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
