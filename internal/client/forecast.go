package client

import (
	"context"
	"net/url"
	"sort"

	"github.com/kjstillabower/weather-dashboard/internal/derive"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/schema"
)

const (
	DefaultForecastDays = 5
	forecastDailyFields = "temperature_2m_max,temperature_2m_min,precipitation_sum,weathercode"
)

// ForecastClient reads the Open-Meteo daily forecast.
type ForecastClient struct {
	f    *fetcher
	days int
}

// NewForecastClient returns a client that exposes at most days days; days <= 0 uses DefaultForecastDays.
func NewForecastClient(opts Options, days int) (*ForecastClient, error) {
	f, err := newFetcher(models.SourceForecast, opts)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = DefaultForecastDays
	}
	return &ForecastClient{f: f, days: days}, nil
}

// Fetch returns the first days of the daily forecast in date order.
// Transport failure is Failed; a payload without the daily arrays is Empty.
func (c *ForecastClient) Fetch(ctx context.Context, loc models.Location) models.Outcome[models.DailyForecastSeries] {
	params := url.Values{}
	params.Set("latitude", formatCoord(loc.Latitude))
	params.Set("longitude", formatCoord(loc.Longitude))
	params.Set("timezone", "auto")
	params.Set("daily", forecastDailyFields)

	body, err := c.f.get(ctx, params)
	if err != nil {
		c.f.unavailable(err)
		return models.Failed[models.DailyForecastSeries](err)
	}

	payload, err := schema.DecodeForecast(body)
	if err != nil {
		c.f.rejected(err)
		return models.EmptyBecause[models.DailyForecastSeries](err)
	}

	series := projectForecast(payload.Daily)
	sort.SliceStable(series, func(i, j int) bool { return series[i].Date < series[j].Date })
	if len(series) > c.days {
		series = series[:c.days]
	}
	return models.Success(series)
}

// projectForecast zips the validated parallel arrays into records.
func projectForecast(d *schema.ForecastDaily) models.DailyForecastSeries {
	series := make(models.DailyForecastSeries, 0, len(d.Time))
	for i := range d.Time {
		code := *d.WeatherCode[i]
		cat := derive.CategoryForCode(code)
		series = append(series, models.DailyForecast{
			Date:            *d.Time[i],
			HighC:           *d.TemperatureMax[i],
			LowC:            *d.TemperatureMin[i],
			WeatherCode:     code,
			Category:        cat,
			Shorthand:       cat.Shorthand(),
			PrecipitationMm: d.PrecipitationSum[i],
		})
	}
	return series
}
