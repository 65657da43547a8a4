package models

import (
	"strconv"
	"time"
)

// WeatherCategory is the short label a weather code maps to.
type WeatherCategory string

const (
	CategoryClear        WeatherCategory = "clear"
	CategoryCloudy       WeatherCategory = "cloudy"
	CategoryFog          WeatherCategory = "fog"
	CategoryDrizzle      WeatherCategory = "drizzle"
	CategoryRain         WeatherCategory = "rain"
	CategorySnow         WeatherCategory = "snow"
	CategoryShowers      WeatherCategory = "showers"
	CategoryThunderstorm WeatherCategory = "thunderstorm"
	CategoryUnknown      WeatherCategory = "unknown"
)

var categoryShorthand = map[WeatherCategory]string{
	CategoryClear:        "CLR",
	CategoryCloudy:       "CLD",
	CategoryFog:          "FG",
	CategoryDrizzle:      "DRZ",
	CategoryRain:         "RN",
	CategorySnow:         "SN",
	CategoryShowers:      "SHW",
	CategoryThunderstorm: "TS",
}

// Shorthand returns the compact strip label (CLR, RN, ...); "—" for unknown.
func (c WeatherCategory) Shorthand() string {
	if s, ok := categoryShorthand[c]; ok {
		return s
	}
	return "—"
}

// AQILevel is the categorical air-quality level derived from pm2.5.
type AQILevel string

const (
	LevelGood               AQILevel = "good"
	LevelModerate           AQILevel = "moderate"
	LevelUnhealthySensitive AQILevel = "unhealthy_sensitive"
	LevelUnhealthy          AQILevel = "unhealthy"
	LevelVeryUnhealthy      AQILevel = "very_unhealthy"
	LevelHazardous          AQILevel = "hazardous"
	LevelUnknown            AQILevel = "unknown"
)

// DailyForecast is one calendar day of the forecast strip.
type DailyForecast struct {
	Date            string          `json:"date"` // YYYY-MM-DD, local to the location
	HighC           float64         `json:"highC"`
	LowC            float64         `json:"lowC"`
	WeatherCode     int             `json:"weatherCode"`
	Category        WeatherCategory `json:"category"`
	Shorthand       string          `json:"shorthand"`
	PrecipitationMm *float64        `json:"precipitationMm"`
}

// DailyForecastSeries is ordered by date ascending with unique dates.
type DailyForecastSeries []DailyForecast

// AirQualitySnapshot holds one reading per pollutant. nil means the source
// did not report it, which is different from a measured zero.
type AirQualitySnapshot struct {
	AQI   *float64 `json:"aqi"`
	PM25  *float64 `json:"pm25"`
	PM10  *float64 `json:"pm10"`
	O3    *float64 `json:"o3"`
	NO2   *float64 `json:"no2"`
	SO2   *float64 `json:"so2"`
	CO    *float64 `json:"co"`
	Level AQILevel `json:"level"`
	// Source names the upstream variant ("open-meteo" or "openaq").
	Source string `json:"source"`
}

type AlertRecord struct {
	ID          string `json:"id"`
	EventType   string `json:"event"`
	Headline    string `json:"headline,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Onset       string `json:"onset,omitempty"`
	Expires     string `json:"expires,omitempty"`
	Description string `json:"description,omitempty"`
	Instruction string `json:"instruction,omitempty"`
}

// Coordinates is a bare lat/lon pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type StormRecord struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Basin    string       `json:"basin"`
	Advisory string       `json:"advisory,omitempty"`
	Position *Coordinates `json:"position,omitempty"`
	Status   string       `json:"status,omitempty"`
}

type NewsArticle struct {
	Title    string    `json:"title"`
	URL      string    `json:"url"`
	Domain   string    `json:"domain"`
	Language string    `json:"language"`
	SeenAt   time.Time `json:"seenAt"`
}

func formatCoords(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', 4, 64) + "," + strconv.FormatFloat(lon, 'f', 4, 64)
}
