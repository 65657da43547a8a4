// Package idle reports whether the service has seen too little traffic to be
// worth keeping, once it has outlived its minimum lifespan.
package idle

import (
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/traffic"
)

// RecordRequest records a dashboard or weather request.
func RecordRequest() {
	traffic.RecordActivity()
}

// RequestCount returns the number of requests within the window.
func RequestCount(window time.Duration) int {
	return traffic.ActivityCount(window)
}

// IsIdle reports whether fewer than threshold requests arrived in window,
// ignoring processes younger than minLifespan.
func IsIdle(window time.Duration, threshold int, started time.Time, minLifespan time.Duration) bool {
	if window <= 0 || minLifespan <= 0 || time.Since(started) < minLifespan {
		return false
	}
	return RequestCount(window) < threshold
}

// Reset clears recorded traffic.
func Reset() {
	traffic.Reset()
}
