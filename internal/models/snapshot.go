package models

import "time"

// Source names used in snapshots, logs and metric labels.
const (
	SourceForecast   = "forecast"
	SourceAirQuality = "air_quality"
	SourceAlerts     = "alerts"
	SourceStorms     = "storms"
	SourceNews       = "news"
	SourceGeocode    = "geocode"
)

// Snapshot is the consolidated result of one settled cycle. It is built once
// and never mutated; a newer cycle replaces it wholesale.
type Snapshot struct {
	Generation uint64        `json:"generation"`
	Query      LocationQuery `json:"query"`
	Location   Location      `json:"location"`
	// Resolved is false when a text query could not be geocoded and the
	// previous coordinates were kept.
	Resolved bool `json:"resolved"`

	Forecast   Outcome[DailyForecastSeries] `json:"forecast"`
	AirQuality Outcome[AirQualitySnapshot]  `json:"airQuality"`
	Alerts     Outcome[[]AlertRecord]       `json:"alerts"`
	Storms     Outcome[[]StormRecord]       `json:"storms"`
	News       Outcome[[]NewsArticle]       `json:"news"`

	StartedAt time.Time `json:"startedAt"`
	SettledAt time.Time `json:"settledAt"`
}

// PrimaryFailed reports whether both primary sources (forecast and air
// quality) failed, leaving nothing but secondary content.
func (s Snapshot) PrimaryFailed() bool {
	return s.Forecast.Status == StatusFailed && s.AirQuality.Status == StatusFailed
}

// SourceStatuses returns the status of every source, keyed by source name.
func (s Snapshot) SourceStatuses() map[string]OutcomeStatus {
	return map[string]OutcomeStatus{
		SourceForecast:   s.Forecast.Status,
		SourceAirQuality: s.AirQuality.Status,
		SourceAlerts:     s.Alerts.Status,
		SourceStorms:     s.Storms.Status,
		SourceNews:       s.News.Status,
	}
}
