// Package derive holds the pure rules that compute secondary fields from raw
// upstream values. Every function here is total: no I/O, no errors, no panics.
package derive

import (
	"math"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// WMO weather interpretation codes as used by Open-Meteo.
var codeCategories = map[int]models.WeatherCategory{
	0:  models.CategoryClear,
	1:  models.CategoryCloudy,
	2:  models.CategoryCloudy,
	3:  models.CategoryCloudy,
	45: models.CategoryFog,
	48: models.CategoryFog,
	51: models.CategoryDrizzle,
	53: models.CategoryDrizzle,
	55: models.CategoryDrizzle,
	56: models.CategoryDrizzle,
	57: models.CategoryDrizzle,
	61: models.CategoryRain,
	63: models.CategoryRain,
	65: models.CategoryRain,
	66: models.CategoryRain,
	67: models.CategoryRain,
	71: models.CategorySnow,
	73: models.CategorySnow,
	75: models.CategorySnow,
	77: models.CategorySnow,
	80: models.CategoryShowers,
	81: models.CategoryShowers,
	82: models.CategoryShowers,
	95: models.CategoryThunderstorm,
	96: models.CategoryThunderstorm,
	99: models.CategoryThunderstorm,
}

// CategoryForCode maps a weather code to its category; unmatched codes are unknown.
func CategoryForCode(code int) models.WeatherCategory {
	if c, ok := codeCategories[code]; ok {
		return c
	}
	return models.CategoryUnknown
}

// pm25Breakpoints are inclusive upper bounds in µg/m³ (US EPA 24h pm2.5 scale).
var pm25Breakpoints = []struct {
	upper float64
	level models.AQILevel
}{
	{12, models.LevelGood},
	{35.4, models.LevelModerate},
	{55.4, models.LevelUnhealthySensitive},
	{150.4, models.LevelUnhealthy},
	{250.4, models.LevelVeryUnhealthy},
}

// LevelForPM25 derives the air-quality level from a pm2.5 concentration.
// nil, NaN and negative readings are unknown.
func LevelForPM25(pm25 *float64) models.AQILevel {
	if pm25 == nil || math.IsNaN(*pm25) || *pm25 < 0 {
		return models.LevelUnknown
	}
	v := *pm25
	for _, bp := range pm25Breakpoints {
		if v <= bp.upper {
			return bp.level
		}
	}
	return models.LevelHazardous
}
