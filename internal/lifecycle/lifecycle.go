// Package lifecycle holds the process-wide draining flag read by /health.
package lifecycle

import "sync"

// Drain reasons reported by /health.
const (
	ReasonSignal            = "signal"
	ReasonRecoveryExhausted = "recovery_exhausted"
)

var (
	mu     sync.RWMutex
	reason string
)

// Drain marks the process as shutting down. The first reason wins; later
// calls keep the instance draining without overwriting why.
func Drain(why string) {
	if why == "" {
		why = ReasonSignal
	}
	mu.Lock()
	defer mu.Unlock()
	if reason == "" {
		reason = why
	}
}

// SetShuttingDown sets or clears the flag with the signal reason.
func SetShuttingDown(v bool) {
	if v {
		Drain(ReasonSignal)
		return
	}
	mu.Lock()
	reason = ""
	mu.Unlock()
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return Reason() != ""
}

// Reason returns why the process is draining, or "" when it is not.
func Reason() string {
	mu.RLock()
	defer mu.RUnlock()
	return reason
}
