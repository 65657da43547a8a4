// Package client holds one adapter per upstream source. Adapters take a
// context and return a models.Outcome; network, HTTP and payload problems
// never escape as errors. Constructors return ErrConfiguration when the
// adapter cannot be built at all.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/schema"
)

var (
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRejected        = errors.New("upstream rejected request")
	ErrRateLimited     = errors.New("rate limited")
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrConfiguration   = errors.New("configuration error")
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20
)

// Options configures the transport shared by every adapter.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
	Breaker    *circuitbreaker.CircuitBreaker
	Logger     *zap.Logger
}

// fetcher performs a single GET attempt against one upstream and records it.
type fetcher struct {
	source  string
	baseURL *url.URL
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
	headers http.Header
}

func newFetcher(source string, opts Options) (*fetcher, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, fmt.Errorf("%w: %s base URL is required", ErrConfiguration, source)
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %s base URL %q is invalid", ErrConfiguration, source, opts.BaseURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	headers := http.Header{}
	headers.Set("Accept", "application/json")
	if opts.UserAgent != "" {
		headers.Set("User-Agent", opts.UserAgent)
	}

	return &fetcher{
		source:  source,
		baseURL: base,
		timeout: timeout,
		client:  httpClient,
		breaker: opts.Breaker,
		logger:  logger.With(zap.String("source", source)),
		headers: headers,
	}, nil
}

// get returns the body of a 2xx response. Any other result is an error
// wrapping one of the package sentinels, a context error, or a transport error.
func (f *fetcher) get(ctx context.Context, params url.Values) ([]byte, error) {
	var body []byte
	err := f.breaker.Call(ctx, func(ctx context.Context) error {
		b, err := f.do(ctx, params)
		body = b
		return err
	})
	if err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues(f.source, string(CategorizeError(err))).Inc()
		return nil, err
	}
	return body, nil
}

func (f *fetcher) do(ctx context.Context, params url.Values) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	u := *f.baseURL
	u.RawQuery = params.Encode()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(f.source, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range f.headers {
		req.Header[k] = v
	}
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.UpstreamCallsTotal.WithLabelValues(f.source, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(f.source, "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(f.source, status).Inc()
	observability.UpstreamDuration.WithLabelValues(f.source, status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

// rejected logs and counts a payload that failed structural validation.
func (f *fetcher) rejected(err error) {
	var v *schema.SchemaViolation
	if errors.As(err, &v) {
		observability.SchemaViolationsTotal.WithLabelValues(f.source).Inc()
		f.logger.Warn("upstream payload rejected",
			zap.String("path", v.Path),
			zap.String("rule", v.Rule),
		)
		return
	}
	f.logger.Warn("upstream payload rejected", zap.Error(err))
}

// unavailable logs a transport or HTTP failure.
func (f *fetcher) unavailable(err error) {
	f.logger.Warn("upstream unavailable",
		zap.String("category", string(CategorizeError(err))),
		zap.Error(err),
	)
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: HTTP %d", ErrRejected, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

// BreakerFailure reports whether err should count against a source's
// circuit breaker. Only upstream-side trouble does, 429 included; other 4xx
// answers and cancellations by the caller do not.
func BreakerFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch CategorizeError(err) {
	case ErrorCategoryTimeout, ErrorCategoryNetwork, ErrorCategoryRateLimited, ErrorCategoryUpstream5xx:
		return true
	}
	return false
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
