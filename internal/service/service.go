// Package service runs aggregation cycles: resolve the location, fan out to
// every source, join, and publish one immutable snapshot per cycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

type ForecastSource interface {
	Fetch(ctx context.Context, loc models.Location) models.Outcome[models.DailyForecastSeries]
}

type AirQualitySource interface {
	Fetch(ctx context.Context, loc models.Location) models.Outcome[models.AirQualitySnapshot]
}

type AlertsSource interface {
	Fetch(ctx context.Context, loc models.Location) models.Outcome[[]models.AlertRecord]
}

type StormsSource interface {
	Fetch(ctx context.Context) models.Outcome[[]models.StormRecord]
}

type NewsSource interface {
	Fetch(ctx context.Context, loc models.Location) models.Outcome[[]models.NewsArticle]
}

type Geocoder interface {
	Geocode(ctx context.Context, text string) models.Outcome[models.Location]
}

// Sources bundles the adapters a cycle fans out to. All are required.
type Sources struct {
	Forecast   ForecastSource
	AirQuality AirQualitySource
	Alerts     AlertsSource
	Storms     StormsSource
	News       NewsSource
	Geocoder   Geocoder
}

var ErrMissingSource = errors.New("missing source")

// Config tunes the coordinator. Zero values get defaults.
type Config struct {
	// CycleTimeout bounds one cycle, geocoding included.
	CycleTimeout time.Duration
	// StormCoalesceTimeout bounds a shared storm call; 0 disables coalescing.
	StormCoalesceTimeout time.Duration
	// DefaultLocation supplies coordinates when the first text query cannot be geocoded.
	DefaultLocation models.Location
	Clock           clockwork.Clock
	Logger          *zap.Logger
}

const (
	defaultCycleTimeout = 20 * time.Second
	stormsKey           = "storms"
)

// State is the dashboard lifecycle: Idle until the first location is set,
// Fetching while the latest generation is in flight, Settled once it published.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
	StateSettled  State = "settled"
)

// View is what consumers render: the latest settled snapshot plus whether a
// newer generation is still loading.
type View struct {
	Snapshot          *models.Snapshot `json:"snapshot"`
	PendingGeneration uint64           `json:"pendingGeneration,omitempty"`
	State             State            `json:"state"`
}

// Coordinator owns the generation counter and the published snapshot.
type Coordinator struct {
	sources Sources
	cfg     Config
	clock   clockwork.Clock
	logger  *zap.Logger
	storms  *requestCoalescer[models.Outcome[[]models.StormRecord]]

	mu      sync.Mutex
	latest  uint64
	active  *models.LocationQuery
	current *models.Snapshot

	// cycles tracks background cycles so Close can wait for them.
	cycles   sync.WaitGroup
	shutdown context.Context
	stop     context.CancelFunc
}

// NewCoordinator validates sources and applies defaults.
func NewCoordinator(sources Sources, cfg Config) (*Coordinator, error) {
	missing := map[string]bool{
		models.SourceForecast:   sources.Forecast == nil,
		models.SourceAirQuality: sources.AirQuality == nil,
		models.SourceAlerts:     sources.Alerts == nil,
		models.SourceStorms:     sources.Storms == nil,
		models.SourceNews:       sources.News == nil,
		models.SourceGeocode:    sources.Geocoder == nil,
	}
	for name, isMissing := range missing {
		if isMissing {
			return nil, errors.Join(ErrMissingSource, errors.New(name))
		}
	}

	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = defaultCycleTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	c := &Coordinator{
		sources: sources,
		cfg:     cfg,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}
	if cfg.StormCoalesceTimeout > 0 {
		c.storms = newRequestCoalescer[models.Outcome[[]models.StormRecord]](cfg.StormCoalesceTimeout)
	}
	c.shutdown, c.stop = context.WithCancel(context.Background())
	return c, nil
}

// loggerFromContext returns the request-scoped logger put in ctx by middleware.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

func (c *Coordinator) loggerFor(ctx context.Context) *zap.Logger {
	if l := loggerFromContext(ctx); l != nil {
		return l
	}
	return c.logger
}

// SetLocation issues a new generation for q and starts its cycle in the
// background. The cycle is detached from ctx cancellation; it keeps ctx
// values (correlation ID, logger) and is bounded by CycleTimeout. Any cycle
// still running for an older generation keeps running but will not publish.
func (c *Coordinator) SetLocation(ctx context.Context, q models.LocationQuery) uint64 {
	c.mu.Lock()
	c.latest++
	gen := c.latest
	c.active = &q
	fallback := c.fallbackLocationLocked()
	c.mu.Unlock()

	observability.RecordLocationQuery(q.String())

	c.cycles.Add(1)
	go func() {
		defer c.cycles.Done()

		cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CycleTimeout)
		defer cancel()
		stopOnShutdown := context.AfterFunc(c.shutdown, cancel)
		defer stopOnShutdown()

		snap := c.cycle(cycleCtx, gen, q, fallback)
		c.publish(cycleCtx, snap)
	}()
	return gen
}

// Refresh re-issues the active query, if any.
func (c *Coordinator) Refresh(ctx context.Context) (uint64, bool) {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active == nil {
		return 0, false
	}
	return c.SetLocation(ctx, *active), true
}

// Snapshot returns the current view. The snapshot pointer is shared and must
// not be modified.
func (c *Coordinator) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{Snapshot: c.current}
	var published uint64
	if c.current != nil {
		published = c.current.Generation
	}
	switch {
	case c.latest > published:
		v.PendingGeneration = c.latest
		v.State = StateFetching
	case c.current == nil:
		v.State = StateIdle
	default:
		v.State = StateSettled
	}
	return v
}

// Run performs one cycle synchronously and returns its snapshot without
// publishing it. Generation is 0; ctx cancellation aborts the fetches.
func (c *Coordinator) Run(ctx context.Context, q models.LocationQuery) models.Snapshot {
	cycleCtx, cancel := context.WithTimeout(ctx, c.cfg.CycleTimeout)
	defer cancel()

	snap := c.cycle(cycleCtx, 0, q, c.cfg.DefaultLocation)
	observability.CyclesTotal.WithLabelValues("oneshot").Inc()
	return snap
}

// Close stops background cycles and waits for them to finish.
func (c *Coordinator) Close() {
	c.stop()
	c.cycles.Wait()
}

// fallbackLocationLocked is where a text query lands when it cannot be
// geocoded: the published location, else the configured default.
func (c *Coordinator) fallbackLocationLocked() models.Location {
	if c.current != nil {
		return c.current.Location
	}
	return c.cfg.DefaultLocation
}

func (c *Coordinator) cycle(ctx context.Context, gen uint64, q models.LocationQuery, fallback models.Location) models.Snapshot {
	logger := c.loggerFor(ctx).With(zap.Uint64("generation", gen))
	start := c.clock.Now()
	wallStart := time.Now()

	snap := models.Snapshot{Generation: gen, Query: q, StartedAt: start}
	snap.Location, snap.Resolved = c.resolve(ctx, logger, q, fallback)
	loc := snap.Location

	var wg sync.WaitGroup
	wg.Add(5)
	go func() {
		defer wg.Done()
		snap.Forecast = settle(logger, models.SourceForecast, func() models.Outcome[models.DailyForecastSeries] {
			return c.sources.Forecast.Fetch(ctx, loc)
		})
	}()
	go func() {
		defer wg.Done()
		snap.AirQuality = settle(logger, models.SourceAirQuality, func() models.Outcome[models.AirQualitySnapshot] {
			return c.sources.AirQuality.Fetch(ctx, loc)
		})
	}()
	go func() {
		defer wg.Done()
		snap.Alerts = settle(logger, models.SourceAlerts, func() models.Outcome[[]models.AlertRecord] {
			return c.sources.Alerts.Fetch(ctx, loc)
		})
	}()
	go func() {
		defer wg.Done()
		snap.Storms = settle(logger, models.SourceStorms, func() models.Outcome[[]models.StormRecord] {
			return c.fetchStorms(ctx, logger)
		})
	}()
	go func() {
		defer wg.Done()
		snap.News = settle(logger, models.SourceNews, func() models.Outcome[[]models.NewsArticle] {
			return c.sources.News.Fetch(ctx, loc)
		})
	}()
	wg.Wait()

	snap.SettledAt = c.clock.Now()
	observability.CycleDuration.Observe(time.Since(wallStart).Seconds())

	recordOutcome(logger, models.SourceForecast, snap.Forecast)
	recordOutcome(logger, models.SourceAirQuality, snap.AirQuality)
	recordOutcome(logger, models.SourceAlerts, snap.Alerts)
	recordOutcome(logger, models.SourceStorms, snap.Storms)
	recordOutcome(logger, models.SourceNews, snap.News)

	logger.Debug("cycle settled",
		zap.String("query", q.String()),
		zap.String("location", loc.DisplayName),
		zap.Bool("resolved", snap.Resolved),
		zap.Any("sources", snap.SourceStatuses()),
		zap.Duration("duration", time.Since(wallStart)),
	)
	return snap
}

// resolve turns q into coordinates. Coordinates pass through; text is
// geocoded, and when that fails the raw text is shown at the fallback
// coordinates.
func (c *Coordinator) resolve(ctx context.Context, logger *zap.Logger, q models.LocationQuery, fallback models.Location) (models.Location, bool) {
	if !q.IsText() {
		loc := *q.Coordinates
		if loc.DisplayName == "" {
			loc.DisplayName = q.String()
		}
		return loc, true
	}

	out := settle(logger, models.SourceGeocode, func() models.Outcome[models.Location] {
		return c.sources.Geocoder.Geocode(ctx, q.Text)
	})
	if out.OK() {
		return out.Value, true
	}
	logger.Info("location not resolved, keeping previous coordinates",
		zap.String("query", q.Text),
		zap.Float64("latitude", fallback.Latitude),
		zap.Float64("longitude", fallback.Longitude),
		zap.NamedError("cause", out.Cause),
	)
	return models.Location{
		Latitude:    fallback.Latitude,
		Longitude:   fallback.Longitude,
		DisplayName: q.Text,
	}, false
}

func (c *Coordinator) fetchStorms(ctx context.Context, logger *zap.Logger) models.Outcome[[]models.StormRecord] {
	if c.storms == nil {
		return c.sources.Storms.Fetch(ctx)
	}
	out, shared, err := c.storms.GetOrDo(ctx, stormsKey, c.sources.Storms.Fetch)
	if shared {
		observability.StormCallsCoalescedTotal.Inc()
	}
	var pe *panicError
	if errors.As(err, &pe) {
		logger.Error("source panicked", zap.String("source", models.SourceStorms), zap.Error(err))
		return models.Failed[[]models.StormRecord](err)
	}
	if err != nil {
		return models.EmptyBecause[[]models.StormRecord](err)
	}
	return out
}

// settle runs one adapter call. A panicking adapter settles as Failed so the
// rest of the cycle still completes.
func settle[T any](logger *zap.Logger, source string, fetch func() models.Outcome[T]) (out models.Outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			err := &panicError{source: source, value: r}
			logger.Error("source panicked", zap.String("source", source), zap.Error(err), zap.Stack("stack"))
			out = models.Failed[T](err)
		}
	}()
	return fetch()
}

// panicError carries a recovered adapter panic.
type panicError struct {
	source string
	value  any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("%s adapter panic: %v", e.source, e.value)
}

// publish installs snap if its generation is still the latest issued.
func (c *Coordinator) publish(ctx context.Context, snap models.Snapshot) bool {
	c.mu.Lock()
	if snap.Generation != c.latest {
		latest := c.latest
		c.mu.Unlock()
		observability.CyclesTotal.WithLabelValues("stale").Inc()
		c.loggerFor(ctx).Info("discarding stale cycle",
			zap.Uint64("generation", snap.Generation),
			zap.Uint64("latest", latest),
		)
		return false
	}
	c.current = &snap
	c.mu.Unlock()

	observability.CyclesTotal.WithLabelValues("published").Inc()
	return true
}

func recordOutcome[T any](logger *zap.Logger, source string, o models.Outcome[T]) {
	observability.RecordOutcome(source, string(o.Status))
	if !o.Degraded() {
		return
	}
	if o.Status == models.StatusFailed {
		logger.Warn("source failed", zap.String("source", source), zap.Error(o.Cause))
		return
	}
	logger.Debug("source degraded to empty", zap.String("source", source), zap.Error(o.Cause))
}
