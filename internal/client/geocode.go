package client

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/schema"
)

const DefaultGeocodeTTL = 24 * time.Hour

// Geocoder resolves free text to coordinates with the Open-Meteo geocoding
// search, remembering answers in a cache.Cache.
type Geocoder struct {
	f         *fetcher
	cache     cache.Cache
	cacheType string
	ttl       time.Duration
}

// NewGeocoder returns a Geocoder. c may be nil to disable caching.
func NewGeocoder(opts Options, c cache.Cache, cacheType string, ttl time.Duration) (*Geocoder, error) {
	f, err := newFetcher(models.SourceGeocode, opts)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultGeocodeTTL
	}
	return &Geocoder{f: f, cache: c, cacheType: cacheType, ttl: ttl}, nil
}

// Geocode returns the best match for text. No match is Empty; a failed
// lookup is Empty with the cause retained. Callers fall back to the raw text.
func (g *Geocoder) Geocode(ctx context.Context, text string) models.Outcome[models.Location] {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Empty[models.Location]()
	}

	key := cache.Key(text)
	if loc, ok := g.cached(ctx, key); ok {
		return models.Success(loc)
	}

	params := url.Values{}
	params.Set("name", text)
	params.Set("count", "1")
	params.Set("language", "en")
	params.Set("format", "json")

	body, err := g.f.get(ctx, params)
	if err != nil {
		g.f.unavailable(err)
		return models.EmptyBecause[models.Location](err)
	}

	payload, err := schema.DecodeGeocode(body)
	if err != nil {
		g.f.rejected(err)
		return models.EmptyBecause[models.Location](err)
	}
	if len(payload.Results) == 0 {
		g.f.logger.Debug("no geocode match", zap.String("query", text))
		return models.Empty[models.Location]()
	}

	r := payload.Results[0]
	loc := models.Location{
		Latitude:    *r.Latitude,
		Longitude:   *r.Longitude,
		DisplayName: DisplayName(r.Name, r.Admin1, r.CountryCode),
	}
	g.store(ctx, key, loc)
	return models.Success(loc)
}

// DisplayName joins the non-empty parts with ", ".
func DisplayName(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

func (g *Geocoder) cached(ctx context.Context, key string) (models.Location, bool) {
	if g.cache == nil {
		return models.Location{}, false
	}
	loc, ok, err := g.cache.Get(ctx, key)
	switch {
	case err != nil:
		observability.CacheErrorsTotal.WithLabelValues(g.cacheType).Inc()
		g.f.logger.Warn("geocode cache get failed", zap.String("key", key), zap.Error(err))
		return models.Location{}, false
	case ok:
		observability.CacheHitsTotal.WithLabelValues(g.cacheType).Inc()
		return loc, true
	default:
		observability.CacheMissesTotal.WithLabelValues(g.cacheType).Inc()
		return models.Location{}, false
	}
}

func (g *Geocoder) store(ctx context.Context, key string, loc models.Location) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, key, loc, g.ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues(g.cacheType).Inc()
		g.f.logger.Warn("geocode cache set failed", zap.String("key", key), zap.Error(err))
	}
}
