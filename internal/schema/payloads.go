package schema

import (
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// ForecastPayload is the Open-Meteo daily forecast response.
type ForecastPayload struct {
	Latitude  *float64       `json:"latitude"`
	Longitude *float64       `json:"longitude"`
	Timezone  string         `json:"timezone"`
	Daily     *ForecastDaily `json:"daily" validate:"required"`
}

// ForecastDaily holds parallel arrays, one entry per calendar day.
type ForecastDaily struct {
	Time             []*string  `json:"time" validate:"required,min=1,dive,required,datetime=2006-01-02"`
	TemperatureMax   []*float64 `json:"temperature_2m_max" validate:"required,min=1,dive,required"`
	TemperatureMin   []*float64 `json:"temperature_2m_min" validate:"required,min=1,dive,required"`
	PrecipitationSum []*float64 `json:"precipitation_sum" validate:"required,min=1"` // null entries allowed
	WeatherCode      []*int     `json:"weathercode" validate:"required,min=1,dive,required"`
}

// forecastDailyRules enforces equal-length arrays and unique dates.
func forecastDailyRules(sl validator.StructLevel) {
	d := sl.Current().Interface().(ForecastDaily)
	n := len(d.Time)
	lengths := []struct {
		json, field string
		n           int
	}{
		{"temperature_2m_max", "TemperatureMax", len(d.TemperatureMax)},
		{"temperature_2m_min", "TemperatureMin", len(d.TemperatureMin)},
		{"precipitation_sum", "PrecipitationSum", len(d.PrecipitationSum)},
		{"weathercode", "WeatherCode", len(d.WeatherCode)},
	}
	for _, l := range lengths {
		if l.n != n {
			sl.ReportError(l.n, l.json, l.field, "eqlen", strconv.Itoa(n))
		}
	}
	seen := make(map[string]struct{}, n)
	for i, t := range d.Time {
		if t == nil {
			continue
		}
		if _, dup := seen[*t]; dup {
			sl.ReportError(*t, fmt.Sprintf("time[%d]", i), fmt.Sprintf("Time[%d]", i), "unique", "")
			return
		}
		seen[*t] = struct{}{}
	}
}

// DecodeForecast validates an Open-Meteo daily forecast payload.
func DecodeForecast(raw []byte) (ForecastPayload, error) {
	return decode[ForecastPayload]("forecast", raw)
}

// AirQualityPayload is the Open-Meteo hourly air-quality response. Every
// series is optional; absent and short series are read as "no value".
type AirQualityPayload struct {
	Hourly *AirQualityHourly `json:"hourly" validate:"required"`
}

type AirQualityHourly struct {
	Time            []string   `json:"time"`
	USAQI           []*float64 `json:"us_aqi"`
	PM25            []*float64 `json:"pm2_5"`
	PM10            []*float64 `json:"pm10"`
	Ozone           []*float64 `json:"ozone"`
	NitrogenDioxide []*float64 `json:"nitrogen_dioxide"`
	SulphurDioxide  []*float64 `json:"sulphur_dioxide"`
}

// DecodeAirQuality validates an Open-Meteo hourly air-quality payload.
func DecodeAirQuality(raw []byte) (AirQualityPayload, error) {
	return decode[AirQualityPayload]("air_quality", raw)
}

// StationSearchPayload is the OpenAQ latest-measurements response, ranked
// by distance when queried with order_by=distance&sort=asc.
type StationSearchPayload struct {
	Results []StationResult `json:"results" validate:"required,dive"`
}

type StationResult struct {
	Location     string               `json:"location"`
	Coordinates  *StationCoordinates  `json:"coordinates"`
	Measurements []StationMeasurement `json:"measurements" validate:"required,dive"`
}

type StationCoordinates struct {
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
}

type StationMeasurement struct {
	Parameter string   `json:"parameter" validate:"required"`
	Value     *float64 `json:"value" validate:"required"`
	Unit      string   `json:"unit"`
}

// DecodeStationSearch validates an OpenAQ station search payload.
func DecodeStationSearch(raw []byte) (StationSearchPayload, error) {
	return decode[StationSearchPayload]("air_quality_station", raw)
}

// AlertsPayload is the NWS active-alerts GeoJSON feature collection.
type AlertsPayload struct {
	Features []AlertFeature `json:"features" validate:"required,dive"`
}

type AlertFeature struct {
	ID         string           `json:"id"`
	Properties *AlertProperties `json:"properties" validate:"required"`
}

type AlertProperties struct {
	ID          string `json:"id"`
	Event       string `json:"event" validate:"required"`
	Headline    string `json:"headline"`
	Severity    string `json:"severity"`
	Onset       string `json:"onset"`
	Ends        string `json:"ends"`
	Expires     string `json:"expires"`
	Description string `json:"description"`
	Instruction string `json:"instruction"`
}

// DecodeAlerts validates an NWS alerts payload.
func DecodeAlerts(raw []byte) (AlertsPayload, error) {
	return decode[AlertsPayload]("alerts", raw)
}

// NewsPayload is the GDELT DOC 2.1 ArtList response. GDELT answers "{}"
// when nothing matched, so articles may be absent.
type NewsPayload struct {
	Articles []NewsItem `json:"articles" validate:"omitempty,dive"`
}

type NewsItem struct {
	Title    string `json:"title" validate:"required"`
	URL      string `json:"url" validate:"required"`
	Domain   string `json:"domain"`
	Language string `json:"language"`
	SeenDate string `json:"seendate"`
}

// DecodeNews validates a GDELT article list payload.
func DecodeNews(raw []byte) (NewsPayload, error) {
	return decode[NewsPayload]("news", raw)
}

// GeocodePayload is the Open-Meteo geocoding search response. "results" is
// omitted entirely when nothing matched.
type GeocodePayload struct {
	Results []GeocodeResult `json:"results" validate:"omitempty,dive"`
}

type GeocodeResult struct {
	Name        string   `json:"name" validate:"required"`
	Latitude    *float64 `json:"latitude" validate:"required"`
	Longitude   *float64 `json:"longitude" validate:"required"`
	Admin1      string   `json:"admin1"`
	Country     string   `json:"country"`
	CountryCode string   `json:"country_code"`
}

// DecodeGeocode validates a geocoder search payload.
func DecodeGeocode(raw []byte) (GeocodePayload, error) {
	return decode[GeocodePayload]("geocode", raw)
}
