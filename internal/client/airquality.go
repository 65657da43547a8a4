package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/kjstillabower/weather-dashboard/internal/derive"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/schema"
)

const (
	SourceNameOpenMeteo = "open-meteo"
	SourceNameOpenAQ    = "openaq"

	DefaultStationRadiusMeters = 3000

	airQualityHourlyFields = "us_aqi,pm2_5,pm10,ozone,nitrogen_dioxide,sulphur_dioxide"
	stationParameters      = "pm25,pm10,o3,no2,so2,co"
	stationSearchLimit     = "50"
)

// AirQualitySource is either air-quality variant.
type AirQualitySource interface {
	Fetch(ctx context.Context, loc models.Location) models.Outcome[models.AirQualitySnapshot]
}

// CoordinateAirQualityClient reads the modeled Open-Meteo hourly series and
// reports the most recent hour.
type CoordinateAirQualityClient struct {
	f *fetcher
}

func NewCoordinateAirQualityClient(opts Options) (*CoordinateAirQualityClient, error) {
	f, err := newFetcher(models.SourceAirQuality, opts)
	if err != nil {
		return nil, err
	}
	return &CoordinateAirQualityClient{f: f}, nil
}

func (c *CoordinateAirQualityClient) Fetch(ctx context.Context, loc models.Location) models.Outcome[models.AirQualitySnapshot] {
	params := url.Values{}
	params.Set("latitude", formatCoord(loc.Latitude))
	params.Set("longitude", formatCoord(loc.Longitude))
	params.Set("hourly", airQualityHourlyFields)
	params.Set("timezone", "auto")

	body, err := c.f.get(ctx, params)
	if err != nil {
		c.f.unavailable(err)
		return models.Failed[models.AirQualitySnapshot](err)
	}

	payload, err := schema.DecodeAirQuality(body)
	if err != nil {
		c.f.rejected(err)
		return models.EmptyBecause[models.AirQualitySnapshot](err)
	}

	h := payload.Hourly
	pm25 := lastValue(h.PM25)
	return models.Success(models.AirQualitySnapshot{
		AQI:    lastValue(h.USAQI),
		PM25:   pm25,
		PM10:   lastValue(h.PM10),
		O3:     lastValue(h.Ozone),
		NO2:    lastValue(h.NitrogenDioxide),
		SO2:    lastValue(h.SulphurDioxide),
		Level:  derive.LevelForPM25(pm25),
		Source: SourceNameOpenMeteo,
	})
}

// lastValue returns the final element of a series; nil for an absent or
// empty series or a null final element.
func lastValue(series []*float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	return series[len(series)-1]
}

// StationAirQualityClient reads the nearest OpenAQ monitoring station.
type StationAirQualityClient struct {
	f      *fetcher
	radius int
}

// NewStationAirQualityClient requires an OpenAQ API key; radiusMeters <= 0
// uses DefaultStationRadiusMeters.
func NewStationAirQualityClient(opts Options, apiKey string, radiusMeters int) (*StationAirQualityClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: OpenAQ API key is required for the station air-quality source", ErrConfiguration)
	}
	f, err := newFetcher(models.SourceAirQuality, opts)
	if err != nil {
		return nil, err
	}
	f.headers.Set("X-API-Key", apiKey)
	if radiusMeters <= 0 {
		radiusMeters = DefaultStationRadiusMeters
	}
	return &StationAirQualityClient{f: f, radius: radiusMeters}, nil
}

// Fetch uses only the nearest station. No station in range is Empty.
func (c *StationAirQualityClient) Fetch(ctx context.Context, loc models.Location) models.Outcome[models.AirQualitySnapshot] {
	params := url.Values{}
	params.Set("coordinates", formatCoord(loc.Latitude)+","+formatCoord(loc.Longitude))
	params.Set("radius", strconv.Itoa(c.radius))
	params.Set("parameter", stationParameters)
	params.Set("limit", stationSearchLimit)
	params.Set("order_by", "distance")
	params.Set("sort", "asc")

	body, err := c.f.get(ctx, params)
	if err != nil {
		c.f.unavailable(err)
		return models.Failed[models.AirQualitySnapshot](err)
	}

	payload, err := schema.DecodeStationSearch(body)
	if err != nil {
		c.f.rejected(err)
		return models.EmptyBecause[models.AirQualitySnapshot](err)
	}
	if len(payload.Results) == 0 {
		return models.Empty[models.AirQualitySnapshot]()
	}

	nearest := payload.Results[0]
	pick := func(parameter string) *float64 {
		for _, m := range nearest.Measurements {
			if strings.EqualFold(m.Parameter, parameter) {
				return m.Value
			}
		}
		return nil
	}

	pm25 := pick("pm25")
	return models.Success(models.AirQualitySnapshot{
		PM25:   pm25,
		PM10:   pick("pm10"),
		O3:     pick("o3"),
		NO2:    pick("no2"),
		SO2:    pick("so2"),
		CO:     pick("co"),
		Level:  derive.LevelForPM25(pm25),
		Source: SourceNameOpenAQ,
	})
}

// Unavailable stands in for an air-quality source that could not be
// configured. Every fetch reports Failed with the construction error.
type Unavailable struct {
	Err error
}

func (u Unavailable) Fetch(context.Context, models.Location) models.Outcome[models.AirQualitySnapshot] {
	return models.Failed[models.AirQualitySnapshot](u.Err)
}
