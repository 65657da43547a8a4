// Package relay serves same-origin pass-through endpoints for upstreams a
// browser cannot call directly (no CORS): the NHC storm list and GDELT search.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

var ErrInvalidUpstream = errors.New("relay upstream must be an absolute http(s) URL")

const defaultTimeout = 10 * time.Second

// Relay forwards GET requests to one fixed upstream URL. The inbound query
// string is passed through unchanged; the upstream body and status are
// returned as-is.
type Relay struct {
	target   string
	upstream string
	client   *resty.Client
	logger   *zap.Logger
}

// Options configures a Relay. Zero Timeout uses 10s.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Logger    *zap.Logger
	// HTTPClient overrides the transport; tests use httptest clients.
	HTTPClient *http.Client
}

// New returns a relay named target for upstream.
func New(target, upstream string, opts Options) (*Relay, error) {
	u, err := url.Parse(upstream)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%s: %w", target, ErrInvalidUpstream)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	var c *resty.Client
	if opts.HTTPClient != nil {
		c = resty.NewWithClient(opts.HTTPClient)
	} else {
		c = resty.New()
	}
	c.SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")
	if opts.UserAgent != "" {
		c.SetHeader("User-Agent", opts.UserAgent)
	}

	return &Relay{
		target:   target,
		upstream: upstream,
		client:   c,
		logger:   opts.Logger.With(zap.String("relay", target)),
	}, nil
}

func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := rl.logger
	if l, ok := r.Context().Value("logger").(*zap.Logger); ok && l != nil {
		logger = l.With(zap.String("relay", rl.target))
	}

	req := rl.client.R().
		SetContext(r.Context()).
		SetQueryString(r.URL.RawQuery)
	if corrID, ok := r.Context().Value("correlation_id").(string); ok && corrID != "" {
		req.SetHeader("X-Correlation-ID", corrID)
	}

	resp, err := req.Get(rl.upstream)
	if err != nil {
		observability.RelayRequestsTotal.WithLabelValues(rl.target, "error").Inc()
		logger.Warn("relay request failed", zap.Error(err))
		writeUnavailable(w, r)
		return
	}

	status := resp.StatusCode()
	observability.RelayRequestsTotal.WithLabelValues(rl.target, fmt.Sprintf("%dxx", status/100)).Inc()
	if status >= 400 {
		logger.Debug("relay upstream returned error status", zap.Int("status", status))
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body())
}

func writeUnavailable(w http.ResponseWriter, r *http.Request) {
	corrID, _ := r.Context().Value("correlation_id").(string)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":      "UPSTREAM_UNAVAILABLE",
			"message":   "Relay upstream unreachable",
			"requestId": corrID,
		},
	})
}
