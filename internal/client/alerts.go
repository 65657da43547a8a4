package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/schema"
)

const DefaultAlertsCap = 6

// AlertsClient reads active NWS alerts for a point. NWS rejects requests
// without a User-Agent, so one is mandatory.
type AlertsClient struct {
	f     *fetcher
	limit int
}

func NewAlertsClient(opts Options, limit int) (*AlertsClient, error) {
	if opts.UserAgent == "" {
		return nil, fmt.Errorf("%w: alerts User-Agent is required", ErrConfiguration)
	}
	f, err := newFetcher(models.SourceAlerts, opts)
	if err != nil {
		return nil, err
	}
	f.headers.Set("Accept", "application/geo+json")
	if limit <= 0 {
		limit = DefaultAlertsCap
	}
	return &AlertsClient{f: f, limit: limit}, nil
}

// Fetch returns alerts in source order, capped. Every failure is Empty with
// the cause retained.
func (c *AlertsClient) Fetch(ctx context.Context, loc models.Location) models.Outcome[[]models.AlertRecord] {
	params := url.Values{}
	params.Set("point", formatCoord(loc.Latitude)+","+formatCoord(loc.Longitude))

	body, err := c.f.get(ctx, params)
	if err != nil {
		c.f.unavailable(err)
		return models.EmptyBecause[[]models.AlertRecord](err)
	}

	payload, err := schema.DecodeAlerts(body)
	if err != nil {
		c.f.rejected(err)
		return models.EmptyBecause[[]models.AlertRecord](err)
	}
	if len(payload.Features) == 0 {
		return models.Empty[[]models.AlertRecord]()
	}

	n := min(len(payload.Features), c.limit)
	alerts := make([]models.AlertRecord, 0, n)
	for _, feat := range payload.Features[:n] {
		p := feat.Properties
		expires := p.Ends
		if expires == "" {
			expires = p.Expires
		}
		alerts = append(alerts, models.AlertRecord{
			ID:          alertID(feat),
			EventType:   p.Event,
			Headline:    p.Headline,
			Severity:    p.Severity,
			Onset:       p.Onset,
			Expires:     expires,
			Description: p.Description,
			Instruction: p.Instruction,
		})
	}
	return models.Success(alerts)
}

func alertID(feat schema.AlertFeature) string {
	if feat.ID != "" {
		return feat.ID
	}
	if feat.Properties.ID != "" {
		return feat.Properties.ID
	}
	return uuid.NewString()
}
