package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// Resolver is implemented by client.Geocoder. Declared here so the warmer
// does not depend on the client package.
type Resolver interface {
	Geocode(ctx context.Context, text string) models.Outcome[models.Location]
}

// CacheWarmer resolves a list of place names at startup so their first
// dashboard search is served from cache.
type CacheWarmer struct {
	resolver Resolver
	logger   *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer. logger may be nil.
func NewCacheWarmer(resolver Resolver, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{resolver: resolver, logger: logger}
}

// Warm resolves every location concurrently. Locations that did not resolve
// are reported together in the returned error.
func (w *CacheWarmer) Warm(ctx context.Context, locations []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming geocode cache", zap.Int("locations", len(locations)))

	var wg sync.WaitGroup
	errCh := make(chan error, len(locations))
	for _, loc := range locations {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := w.resolver.Geocode(ctx, loc)
			switch {
			case out.OK():
			case out.Cause != nil:
				errCh <- fmt.Errorf("warm %s: %w", loc, out.Cause)
			default:
				errCh <- fmt.Errorf("warm %s: no match", loc)
			}
		}()
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("geocode cache warming complete",
		zap.Int("locations", len(locations)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration),
	)
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval until ctx is done.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, locations []string, interval time.Duration) error {
	if err := w.Warm(ctx, locations); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, locations); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
