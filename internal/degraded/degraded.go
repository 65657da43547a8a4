// Package degraded tracks how often requests end without primary data and
// drives recovery probing when that rate breaches the health threshold.
package degraded

import (
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/traffic"
)

// RecordSuccess records a request that produced forecast or air-quality data.
func RecordSuccess() {
	traffic.RecordSuccess()
}

// RecordError records a request where both primary sources failed.
func RecordError() {
	traffic.RecordError()
}

// ErrorRate returns (errorCount, totalCount) within the window. totalCount = successes + errors.
func ErrorRate(window time.Duration) (errors, total int) {
	return traffic.ErrorRate(window)
}

// Breached reports whether errors reach pct percent of outcomes in window.
// A non-positive window or pct, or no outcomes at all, never breaches.
func Breached(window time.Duration, pct int) bool {
	if window <= 0 || pct <= 0 {
		return false
	}
	errs, total := ErrorRate(window)
	if total == 0 {
		return false
	}
	return errs*100 >= pct*total
}

// Reset clears all recorded data.
func Reset() {
	traffic.Reset()
}
