package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/weather-dashboard/internal/degraded"
	"github.com/kjstillabower/weather-dashboard/internal/idle"
	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/overload"
	"github.com/kjstillabower/weather-dashboard/internal/service"
	"github.com/kjstillabower/weather-dashboard/internal/validation"
)

// Dashboard is the aggregation surface the handlers drive.
type Dashboard interface {
	SetLocation(ctx context.Context, q models.LocationQuery) uint64
	Snapshot() service.View
	Run(ctx context.Context, q models.LocationQuery) models.Snapshot
}

// BreakerState reports a circuit breaker's state for the health check.
type BreakerState interface {
	State() circuitbreaker.State
}

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	RateLimitRPS           int
	DegradedWindow         time.Duration
	DegradedErrorPct       int
	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration
	StartTime              time.Time
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	// Breakers are reported per upstream under checks.
	Breakers map[string]BreakerState
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	dashboard        Dashboard
	healthConfig     *HealthConfig
	logger           *zap.Logger
	locationMinLen   int
	locationMaxLen   int
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. Non-positive length limits fall back to 1 and 100.
func NewHandler(dashboard Dashboard, healthConfig *HealthConfig, logger *zap.Logger, locationMinLen, locationMaxLen int) *Handler {
	if locationMinLen <= 0 {
		locationMinLen = 1
	}
	if locationMaxLen <= 0 {
		locationMaxLen = 100
	}
	return &Handler{
		dashboard:      dashboard,
		healthConfig:   healthConfig,
		logger:         logger,
		locationMinLen: locationMinLen,
		locationMaxLen: locationMaxLen,
	}
}

// GetDashboard handles GET /dashboard.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dashboard.Snapshot())
}

type locationRequest struct {
	Query     string   `json:"query"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Name      string   `json:"name"`
}

// PutLocation handles PUT /dashboard/location. The cycle runs in the
// background; the response carries the generation to watch for on /dashboard.
func (h *Handler) PutLocation(w http.ResponseWriter, r *http.Request) {
	var body locationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be a JSON object")
		return
	}

	var q models.LocationQuery
	switch {
	case body.Latitude != nil || body.Longitude != nil:
		if body.Latitude == nil || body.Longitude == nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", "latitude and longitude are both required")
			return
		}
		if err := validation.ValidateCoordinates(*body.Latitude, *body.Longitude); err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
			return
		}
		q = models.CoordinateQuery(*body.Latitude, *body.Longitude, strings.TrimSpace(body.Name))
	default:
		text, err := validation.ValidateLocation(body.Query, h.locationMinLen, h.locationMaxLen)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
			return
		}
		q = models.TextQuery(text)
	}

	idle.RecordRequest()
	gen := h.dashboard.SetLocation(r.Context(), q)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"generation": gen,
		"query":      q,
	})
}

// GetWeather handles GET /weather/{location} and GET /weather?lat=&lon=.
// It runs one cycle synchronously and never touches the dashboard state.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	q, code, err := h.weatherQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, code, err.Error())
		return
	}

	idle.RecordRequest()
	snap := h.dashboard.Run(r.Context(), q)
	if snap.PrimaryFailed() {
		degraded.RecordError()
		degraded.NotifyDegraded()
		writeServiceError(w, r, errors.Join(snap.Forecast.Cause, snap.AirQuality.Cause))
		return
	}
	degraded.RecordSuccess()
	writeJSON(w, http.StatusOK, snap)
}

var errCoordinatesRequired = errors.New("lat and lon query parameters are required")

func (h *Handler) weatherQuery(r *http.Request) (models.LocationQuery, string, error) {
	if location, ok := mux.Vars(r)["location"]; ok {
		text, err := validation.ValidateLocation(location, h.locationMinLen, h.locationMaxLen)
		if err != nil {
			return models.LocationQuery{}, "INVALID_LOCATION", err
		}
		return models.TextQuery(text), "", nil
	}

	params := r.URL.Query()
	latStr, lonStr := params.Get("lat"), params.Get("lon")
	if latStr == "" || lonStr == "" {
		return models.LocationQuery{}, "INVALID_COORDINATES", errCoordinatesRequired
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return models.LocationQuery{}, "INVALID_COORDINATES", errors.New("lat must be a number")
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return models.LocationQuery{}, "INVALID_COORDINATES", errors.New("lon must be a number")
	}
	if err := validation.ValidateCoordinates(lat, lon); err != nil {
		return models.LocationQuery{}, "INVALID_COORDINATES", err
	}
	return models.CoordinateQuery(lat, lon, strings.TrimSpace(params.Get("name"))), "", nil
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if h.healthConfig != nil {
		for name, b := range h.healthConfig.Breakers {
			switch b.State() {
			case circuitbreaker.StateOpen:
				checks[name] = "unhealthy"
			case circuitbreaker.StateHalfOpen:
				checks[name] = "recovering"
			default:
				checks[name] = "healthy"
			}
		}
		if h.healthConfig.CachePing != nil {
			if h.healthConfig.CachePing() == nil {
				checks["cache"] = "healthy"
			} else {
				checks["cache"] = "unhealthy"
			}
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > idle > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if reason := lifecycle.Reason(); reason != "" {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, reason}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if overload.Exceeded(h.healthConfig.OverloadWindow, h.healthConfig.RateLimitRPS, h.healthConfig.OverloadThresholdPct) {
		return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
	}
	if idle.IsIdle(h.healthConfig.IdleWindow, h.healthConfig.IdleThresholdReqPerMin, h.healthConfig.StartTime, h.healthConfig.MinimumLifespan) {
		return healthResult{"idle", http.StatusOK, "low_traffic"}
	}
	if degraded.Breached(h.healthConfig.DegradedWindow, h.healthConfig.DegradedErrorPct) {
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID, _ := r.Context().Value("correlation_id").(string)
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError writes a 503 when neither primary source produced data.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("upstream error", zap.Error(err))
	}
}
