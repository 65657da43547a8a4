// Package overload tracks rate-limit pressure for the health check.
package overload

import (
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/traffic"
)

// RecordDenial records a rate-limit denial (429). Call from middleware when returning 429.
func RecordDenial() {
	traffic.RecordDenied()
}

// RequestCount returns the number of requests (success + error + denied) within the window.
func RequestCount(window time.Duration) int {
	return traffic.RequestCount(window)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return traffic.DenialCount(window)
}

// Exceeded reports whether requests in window exceed thresholdPct of what
// the limiter admits at rps over the same window.
func Exceeded(window time.Duration, rps, thresholdPct int) bool {
	if window <= 0 || rps <= 0 {
		return false
	}
	threshold := float64(rps) * window.Seconds() * float64(thresholdPct) / 100
	return float64(RequestCount(window)) > threshold
}

// Reset clears all recorded data.
func Reset() {
	traffic.Reset()
}
