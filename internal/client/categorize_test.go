package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kjstillabower/weather-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/weather-dashboard/internal/schema"
)

// TestCategorizeError verifies that CategorizeError maps errors to the correct ErrorCategory
// for metrics labeling, including sentinel errors, wrapped errors, and message-based heuristics.
func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"timeout context", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"canceled context", context.Canceled, ErrorCategoryTimeout},
		{"unauthorized", ErrUnauthorized, ErrorCategoryUnauthorized},
		{"not found", fmt.Errorf("lookup: %w", ErrNotFound), ErrorCategoryNotFound},
		{"rate limited", ErrRateLimited, ErrorCategoryRateLimited},
		{"upstream failure", fmt.Errorf("%w: HTTP 502", ErrUpstreamFailure), ErrorCategoryUpstream5xx},
		{"rejected", fmt.Errorf("%w: HTTP 422", ErrRejected), ErrorCategoryRejected},
		{"circuit open", fmt.Errorf("%w: forecast", circuitbreaker.ErrOpen), ErrorCategoryCircuitOpen},
		{"schema violation", &schema.SchemaViolation{Source: "news", Path: "$", Rule: "syntax"}, ErrorCategorySchema},
		{"configuration", fmt.Errorf("%w: missing key", ErrConfiguration), ErrorCategoryConfiguration},
		{"timeout in message", fmt.Errorf("request timeout: %w", context.DeadlineExceeded), ErrorCategoryTimeout},
		{"network in message", errors.New("dial tcp: connection refused"), ErrorCategoryNetwork},
		{"transport wrapper", errors.New("http request failed: EOF"), ErrorCategoryNetwork},
		{"cache in message", errors.New("cache get failed"), ErrorCategoryCache},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CategorizeError(tt.err)
			if got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBreakerFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled by caller", fmt.Errorf("request timeout: %w", context.Canceled), false},
		{"deadline", fmt.Errorf("request timeout: %w", context.DeadlineExceeded), true},
		{"5xx", fmt.Errorf("%w: HTTP 503", ErrUpstreamFailure), true},
		{"429", ErrRateLimited, true},
		{"404", ErrNotFound, false},
		{"400", fmt.Errorf("%w: HTTP 400", ErrRejected), false},
		{"422", fmt.Errorf("%w: HTTP 422", ErrRejected), false},
		{"schema", &schema.SchemaViolation{Source: "alerts", Path: "features", Rule: "required"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BreakerFailure(tt.err); got != tt.want {
				t.Errorf("BreakerFailure() = %v, want %v", got, tt.want)
			}
		})
	}
}
