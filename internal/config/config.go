package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-dashboard/internal/validation"
)

const (
	VariantCoordinates = "coordinates"
	VariantStation     = "station"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	ForecastURL     string
	AirQualityURL   string
	OpenAQURL       string
	AlertsURL       string
	StormsURL       string
	NewsURL         string
	GeocodeURL      string
	UpstreamTimeout time.Duration
	UserAgent       string

	OpenAQAPIKey string

	ForecastDays         int
	AlertsLimit          int
	NewsMaxRecords       int
	AirQualityVariant    string // "coordinates" or "station"
	StationRadiusMeters  int
	DefaultLatitude      float64
	DefaultLongitude     float64
	DefaultLocationName  string
	CycleTimeout         time.Duration
	StormCoalesceTimeout time.Duration
	RefreshInterval      time.Duration

	RequestTimeout    time.Duration
	LocationMinLength int
	LocationMaxLength int

	CacheTTL     time.Duration
	CacheBackend string // "in_memory" or "memcached"
	WarmCache    bool
	WarmInterval time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	IdleThresholdReqPerMin int
	IdleWindow             time.Duration
	MinimumLifespan        time.Duration
	DegradedWindow         time.Duration
	DegradedErrorPct       int
	DegradedRetryInitial   time.Duration
	DegradedRetryMax       time.Duration

	TrackedLocations []string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Upstreams struct {
		ForecastURL   string `yaml:"forecast_url"`
		AirQualityURL string `yaml:"air_quality_url"`
		OpenAQURL     string `yaml:"openaq_url"`
		AlertsURL     string `yaml:"alerts_url"`
		StormsURL     string `yaml:"storms_url"`
		NewsURL       string `yaml:"news_url"`
		GeocodeURL    string `yaml:"geocode_url"`
		Timeout       string `yaml:"timeout"`
		UserAgent     string `yaml:"user_agent"`
	} `yaml:"upstreams"`

	Dashboard struct {
		ForecastDays        int    `yaml:"forecast_days"`
		AlertsLimit         int    `yaml:"alerts_limit"`
		NewsMaxRecords      int    `yaml:"news_max_records"`
		AirQualityVariant   string `yaml:"air_quality_variant"`
		StationRadiusMeters int    `yaml:"station_radius_m"`
		DefaultLocation     struct {
			Latitude  *float64 `yaml:"latitude"`
			Longitude *float64 `yaml:"longitude"`
			Name      string   `yaml:"name"`
		} `yaml:"default_location"`
		CycleTimeout         string `yaml:"cycle_timeout"`
		StormCoalesceTimeout string `yaml:"storm_coalesce_timeout"`
		RefreshInterval      string `yaml:"refresh_interval"`
	} `yaml:"dashboard"`

	Request struct {
		Timeout           string `yaml:"timeout"`
		LocationMinLength int    `yaml:"location_min_length"`
		LocationMaxLength int    `yaml:"location_max_length"`
	} `yaml:"request"`

	Cache struct {
		Backend      string `yaml:"backend"`
		TTL          string `yaml:"ttl"`
		Warm         bool   `yaml:"warm"`
		WarmInterval string `yaml:"warm_interval"`
		Memcached    struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow         string `yaml:"overload_window"`
		OverloadThresholdPct   int    `yaml:"overload_threshold_pct"`
		IdleThresholdReqPerMin int    `yaml:"idle_threshold_req_per_min"`
		IdleWindow             string `yaml:"idle_window"`
		MinimumLifespan        string `yaml:"minimum_lifespan"`
		DegradedWindow         string `yaml:"degraded_window"`
		DegradedErrorPct       int    `yaml:"degraded_error_pct"`
		DegradedRetryInitial   string `yaml:"degraded_retry_initial"`
		DegradedRetryMax       string `yaml:"degraded_retry_max"`
	} `yaml:"lifecycle"`

	Metrics struct {
		TrackedLocations []string `yaml:"tracked_locations"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	OpenAQAPIKey string `yaml:"openaq_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// A .env file in the working directory is loaded first; it never overrides variables
// already set. The OpenAQ key comes from OPENAQ_API_KEY or the secrets file and is
// only required for the station air-quality variant. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	cfg.ServerPort = orDefault(fc.Server.Port, "8080")

	cfg.ForecastURL = orDefault(fc.Upstreams.ForecastURL, "https://api.open-meteo.com/v1/forecast")
	cfg.AirQualityURL = orDefault(fc.Upstreams.AirQualityURL, "https://air-quality-api.open-meteo.com/v1/air-quality")
	cfg.OpenAQURL = orDefault(fc.Upstreams.OpenAQURL, "https://api.openaq.org/v2/latest")
	cfg.AlertsURL = orDefault(fc.Upstreams.AlertsURL, "https://api.weather.gov/alerts/active")
	cfg.StormsURL = orDefault(fc.Upstreams.StormsURL, "https://www.nhc.noaa.gov/CurrentStorms.json")
	cfg.NewsURL = orDefault(fc.Upstreams.NewsURL, "https://api.gdeltproject.org/api/v2/doc/doc")
	cfg.GeocodeURL = orDefault(fc.Upstreams.GeocodeURL, "https://geocoding-api.open-meteo.com/v1/search")
	cfg.UpstreamTimeout = parseDurationOrZero(fc.Upstreams.Timeout, 8*time.Second)
	cfg.UserAgent = strings.TrimSpace(os.Getenv("NWS_USER_AGENT"))
	if cfg.UserAgent == "" {
		cfg.UserAgent = orDefault(fc.Upstreams.UserAgent, "weather-dashboard (ops@example.com)")
	}

	cfg.AirQualityVariant = strings.TrimSpace(strings.ToLower(os.Getenv("AIR_QUALITY_VARIANT")))
	if cfg.AirQualityVariant == "" {
		cfg.AirQualityVariant = strings.TrimSpace(strings.ToLower(fc.Dashboard.AirQualityVariant))
	}
	if cfg.AirQualityVariant == "" {
		cfg.AirQualityVariant = VariantCoordinates
	}
	cfg.OpenAQAPIKey, err = loadOpenAQKey(cwd)
	if err != nil {
		return nil, err
	}

	cfg.ForecastDays = positiveOr(fc.Dashboard.ForecastDays, 5)
	cfg.AlertsLimit = positiveOr(fc.Dashboard.AlertsLimit, 6)
	cfg.NewsMaxRecords = positiveOr(fc.Dashboard.NewsMaxRecords, 12)
	cfg.StationRadiusMeters = positiveOr(fc.Dashboard.StationRadiusMeters, 25000)
	cfg.DefaultLatitude = 27.7704
	if fc.Dashboard.DefaultLocation.Latitude != nil {
		cfg.DefaultLatitude = *fc.Dashboard.DefaultLocation.Latitude
	}
	cfg.DefaultLongitude = -82.6695
	if fc.Dashboard.DefaultLocation.Longitude != nil {
		cfg.DefaultLongitude = *fc.Dashboard.DefaultLocation.Longitude
	}
	cfg.DefaultLocationName = orDefault(fc.Dashboard.DefaultLocation.Name, "St. Petersburg, Florida, US")
	cfg.CycleTimeout = parseDuration(fc.Dashboard.CycleTimeout, 20*time.Second)
	cfg.StormCoalesceTimeout = parseDurationOrZero(fc.Dashboard.StormCoalesceTimeout, 10*time.Second)
	cfg.RefreshInterval = parseDurationOrZero(fc.Dashboard.RefreshInterval, 0)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)
	cfg.LocationMinLength = positiveOr(fc.Request.LocationMinLength, 1)
	cfg.LocationMaxLength = positiveOr(fc.Request.LocationMaxLength, 100)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 24*time.Hour)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.WarmCache = fc.Cache.Warm
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 0)
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = orDefault(fc.Cache.Memcached.Addrs, "localhost:11211")
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(fc.Cache.Memcached.MaxIdleConns, 2)

	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 100)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 250)
	cfg.CircuitBreakerEnabled = true
	if fc.Reliability.CircuitBreaker.Enabled != nil {
		cfg.CircuitBreakerEnabled = *fc.Reliability.CircuitBreaker.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = positiveOr(fc.Reliability.CircuitBreaker.FailureThreshold, 5)
	cfg.CircuitBreakerSuccessThreshold = positiveOr(fc.Reliability.CircuitBreaker.SuccessThreshold, 2)
	cfg.CircuitBreakerTimeout = parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = positiveOr(fc.Lifecycle.OverloadThresholdPct, 80)
	cfg.IdleThresholdReqPerMin = positiveOr(fc.Lifecycle.IdleThresholdReqPerMin, 5)
	cfg.IdleWindow = parseDuration(fc.Lifecycle.IdleWindow, 5*time.Minute)
	cfg.MinimumLifespan = parseDuration(fc.Lifecycle.MinimumLifespan, 5*time.Minute)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = positiveOr(fc.Lifecycle.DegradedErrorPct, 50)
	cfg.DegradedRetryInitial = parseDuration(fc.Lifecycle.DegradedRetryInitial, 1*time.Minute)
	cfg.DegradedRetryMax = parseDuration(fc.Lifecycle.DegradedRetryMax, 20*time.Minute)
	cfg.TrackedLocations = fc.Metrics.TrackedLocations

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadOpenAQKey(cwd string) (string, error) {
	if key := strings.TrimSpace(os.Getenv("OPENAQ_API_KEY")); key != "" {
		return key, nil
	}
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	data, err := os.ReadFile(secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.OpenAQAPIKey), nil
}

func orDefault(s, defaultVal string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return defaultVal
}

func positiveOr(n, defaultVal int) int {
	if n <= 0 {
		return defaultVal
	}
	return n
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero and negative durations are returned as-is; "0s" is how optional features are switched off.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// RequestTimeout is raised above CycleTimeout so one-shot requests can settle.
func validate(cfg *Config) error {
	if cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstreams.timeout must be positive")
	}
	if cfg.CycleTimeout < cfg.UpstreamTimeout {
		return fmt.Errorf("dashboard.cycle_timeout (%s) must be at least upstreams.timeout (%s)", cfg.CycleTimeout, cfg.UpstreamTimeout)
	}
	if cfg.RequestTimeout <= cfg.CycleTimeout {
		cfg.RequestTimeout = cfg.CycleTimeout + time.Second
	}
	if cfg.ForecastDays > 16 {
		return fmt.Errorf("dashboard.forecast_days must be at most 16, got %d", cfg.ForecastDays)
	}
	if cfg.LocationMinLength > cfg.LocationMaxLength {
		return fmt.Errorf("request.location_min_length (%d) exceeds location_max_length (%d)", cfg.LocationMinLength, cfg.LocationMaxLength)
	}
	switch cfg.AirQualityVariant {
	case VariantCoordinates:
	case VariantStation:
		if cfg.OpenAQAPIKey == "" {
			return fmt.Errorf("OPENAQ_API_KEY required for air_quality_variant %q (set env or config/secrets.yaml openaq_api_key)", VariantStation)
		}
	default:
		return fmt.Errorf("dashboard.air_quality_variant must be coordinates or station, got %q", cfg.AirQualityVariant)
	}
	if err := validation.ValidateCoordinates(cfg.DefaultLatitude, cfg.DefaultLongitude); err != nil {
		return fmt.Errorf("dashboard.default_location: %w", err)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	return nil
}
