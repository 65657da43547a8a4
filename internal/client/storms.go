package client

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/schema"
)

// StormsClient reads the active tropical cyclone list. The feed has shipped
// several layouts over time; schema.DecodeStorms folds them together.
type StormsClient struct {
	f *fetcher
}

func NewStormsClient(opts Options) (*StormsClient, error) {
	f, err := newFetcher(models.SourceStorms, opts)
	if err != nil {
		return nil, err
	}
	return &StormsClient{f: f}, nil
}

// Fetch is location independent. Any failure is Empty with the cause retained.
func (c *StormsClient) Fetch(ctx context.Context) models.Outcome[[]models.StormRecord] {
	body, err := c.f.get(ctx, url.Values{})
	if err != nil {
		c.f.unavailable(err)
		return models.EmptyBecause[[]models.StormRecord](err)
	}

	payload, err := schema.DecodeStorms(body)
	if err != nil {
		c.f.rejected(err)
		return models.EmptyBecause[[]models.StormRecord](err)
	}
	c.f.logger.Debug("storms decoded",
		zap.String("shape", string(payload.Shape)),
		zap.Int("count", len(payload.Storms)),
	)
	if len(payload.Storms) == 0 {
		return models.Empty[[]models.StormRecord]()
	}

	storms := make([]models.StormRecord, 0, len(payload.Storms))
	for _, s := range payload.Storms {
		rec := models.StormRecord{
			ID:       s.ID,
			Name:     s.Name,
			Basin:    s.Basin,
			Advisory: s.Advisory,
			Status:   s.Status,
		}
		if s.Lat != nil && s.Lon != nil {
			rec.Position = &models.Coordinates{Lat: *s.Lat, Lon: *s.Lon}
		}
		storms = append(storms, rec)
	}
	return models.Success(storms)
}
