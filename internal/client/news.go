package client

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/schema"
)

const (
	DefaultNewsMaxRecords = 12

	newsTopics    = "(weather OR hurricane OR storm OR flood OR tornado OR wildfire OR evacuation OR advisory)"
	gdeltSeenDate = "20060102T150405Z"
)

// NewsClient searches the GDELT article index for weather news near a place.
type NewsClient struct {
	f          *fetcher
	maxRecords int
}

func NewNewsClient(opts Options, maxRecords int) (*NewsClient, error) {
	f, err := newFetcher(models.SourceNews, opts)
	if err != nil {
		return nil, err
	}
	if maxRecords <= 0 {
		maxRecords = DefaultNewsMaxRecords
	}
	return &NewsClient{f: f, maxRecords: maxRecords}, nil
}

// NewsQuery builds the search expression; an empty place searches globally.
func NewsQuery(place string) string {
	place = strings.TrimSpace(place)
	if place == "" {
		return newsTopics
	}
	return `("` + place + `") AND ` + newsTopics
}

// Fetch returns articles newest first, deduplicated by URL. Any failure is
// Empty with the cause retained.
func (c *NewsClient) Fetch(ctx context.Context, loc models.Location) models.Outcome[[]models.NewsArticle] {
	params := url.Values{}
	params.Set("query", NewsQuery(loc.ShortName()))
	params.Set("mode", "ArtList")
	params.Set("format", "json")
	params.Set("maxrecords", strconv.Itoa(c.maxRecords))
	params.Set("sort", "datedesc")

	body, err := c.f.get(ctx, params)
	if err != nil {
		c.f.unavailable(err)
		return models.EmptyBecause[[]models.NewsArticle](err)
	}

	payload, err := schema.DecodeNews(body)
	if err != nil {
		c.f.rejected(err)
		return models.EmptyBecause[[]models.NewsArticle](err)
	}

	seen := make(map[string]struct{}, len(payload.Articles))
	articles := make([]models.NewsArticle, 0, len(payload.Articles))
	for _, a := range payload.Articles {
		if _, dup := seen[a.URL]; dup {
			continue
		}
		seen[a.URL] = struct{}{}
		articles = append(articles, models.NewsArticle{
			Title:    a.Title,
			URL:      a.URL,
			Domain:   a.Domain,
			Language: a.Language,
			SeenAt:   parseSeenDate(a.SeenDate),
		})
	}
	if len(articles) == 0 {
		return models.Empty[[]models.NewsArticle]()
	}
	return models.Success(articles)
}

// parseSeenDate accepts GDELT's compact UTC stamp or RFC 3339; anything else is the zero time.
func parseSeenDate(s string) time.Time {
	for _, layout := range []string{gdeltSeenDate, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
