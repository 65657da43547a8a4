// Package traffic keeps sliding windows of request outcomes. It is the single
// source for the overload, degraded and idle health signals.
package traffic

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Kind classifies a recorded event.
type Kind int

const (
	Success  Kind = iota // request produced primary data
	Error                // both primary sources failed
	Denied               // rejected by the rate limiter
	Activity             // any dashboard or weather request, for idle detection
	numKinds
)

// maxAge bounds how long events are kept; the widest configured window must fit.
const maxAge = 30 * time.Minute

var defaultTracker = NewTracker(clockwork.NewRealClock())

func RecordSuccess()  { defaultTracker.Record(Success) }
func RecordError()    { defaultTracker.Record(Error) }
func RecordDenied()   { defaultTracker.Record(Denied) }
func RecordActivity() { defaultTracker.Record(Activity) }

// RequestCount returns success + error + denied events within the window.
func RequestCount(window time.Duration) int {
	return defaultTracker.Count(window, Success, Error, Denied)
}

func DenialCount(window time.Duration) int {
	return defaultTracker.Count(window, Denied)
}

func ActivityCount(window time.Duration) int {
	return defaultTracker.Count(window, Activity)
}

// ErrorRate returns (errors, successes + errors) within the window. Denials are excluded.
func ErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// Reset clears all recorded events.
func Reset() {
	defaultTracker.Reset()
}

// Tracker holds event timestamps per Kind, oldest first.
type Tracker struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	events [numKinds][]time.Time
}

func NewTracker(clock clockwork.Clock) *Tracker {
	return &Tracker{clock: clock}
}

func (t *Tracker) Record(k Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	t.events[k] = append(t.events[k], now)
	t.pruneLocked(now)
}

// Count returns the number of events of the given kinds within window ending now.
func (t *Tracker) Count(window time.Duration, kinds ...Kind) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock.Now().Add(-window)
	n := 0
	for _, k := range kinds {
		n += countSince(t.events[k], cutoff)
	}
	return n
}

func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	errors = t.Count(window, Error)
	return errors, errors + t.Count(window, Success)
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = [numKinds][]time.Time{}
}

// countSince counts timestamps strictly after cutoff.
func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for i := len(times) - 1; i >= 0 && times[i].After(cutoff); i-- {
		n++
	}
	return n
}

func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	for k := range t.events {
		times := t.events[k]
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			t.events[k] = append(times[:0], times[i:]...)
		}
	}
}
