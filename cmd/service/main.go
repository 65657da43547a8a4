package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/config"
	"github.com/kjstillabower/weather-dashboard/internal/degraded"
	httphandler "github.com/kjstillabower/weather-dashboard/internal/http"
	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/relay"
	"github.com/kjstillabower/weather-dashboard/internal/scheduler"
	"github.com/kjstillabower/weather-dashboard/internal/service"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case cache.BackendMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		mem := cache.NewInMemoryCache()
		observability.RegisterCacheSizeGauge(cache.BackendInMemory, mem.Len)
		cacheSvc = mem
		logger.Info("cache backend: in_memory")
	}

	breakers := newBreakers(cfg, logger)
	opts := func(source, baseURL string) client.Options {
		return client.Options{
			BaseURL:   baseURL,
			Timeout:   cfg.UpstreamTimeout,
			UserAgent: cfg.UserAgent,
			Breaker:   breakers[source],
			Logger:    logger,
		}
	}

	forecast, err := client.NewForecastClient(opts(models.SourceForecast, cfg.ForecastURL), cfg.ForecastDays)
	if err != nil {
		logger.Fatal("forecast client", zap.Error(err))
	}
	alerts, err := client.NewAlertsClient(opts(models.SourceAlerts, cfg.AlertsURL), cfg.AlertsLimit)
	if err != nil {
		logger.Fatal("alerts client", zap.Error(err))
	}
	storms, err := client.NewStormsClient(opts(models.SourceStorms, cfg.StormsURL))
	if err != nil {
		logger.Fatal("storms client", zap.Error(err))
	}
	news, err := client.NewNewsClient(opts(models.SourceNews, cfg.NewsURL), cfg.NewsMaxRecords)
	if err != nil {
		logger.Fatal("news client", zap.Error(err))
	}
	geocoder, err := client.NewGeocoder(opts(models.SourceGeocode, cfg.GeocodeURL), cacheSvc, cfg.CacheBackend, cfg.CacheTTL)
	if err != nil {
		logger.Fatal("geocoder", zap.Error(err))
	}
	airQuality := newAirQuality(cfg, opts(models.SourceAirQuality, ""), logger)

	defaultLocation := models.Location{
		Latitude:    cfg.DefaultLatitude,
		Longitude:   cfg.DefaultLongitude,
		DisplayName: cfg.DefaultLocationName,
	}

	coordinator, err := service.NewCoordinator(service.Sources{
		Forecast:   forecast,
		AirQuality: airQuality,
		Alerts:     alerts,
		Storms:     storms,
		News:       news,
		Geocoder:   geocoder,
	}, service.Config{
		CycleTimeout:         cfg.CycleTimeout,
		StormCoalesceTimeout: cfg.StormCoalesceTimeout,
		DefaultLocation:      defaultLocation,
		Logger:               logger,
	})
	if err != nil {
		logger.Fatal("coordinator", zap.Error(err))
	}
	defaultQuery := models.CoordinateQuery(defaultLocation.Latitude, defaultLocation.Longitude, defaultLocation.DisplayName)
	coordinator.SetLocation(appCtx, defaultQuery)

	observability.RegisterRateLimitGauges(cfg.OverloadWindow)
	if len(cfg.TrackedLocations) > 0 {
		observability.SetTrackedLocations(cfg.TrackedLocations)
	}

	if cfg.WarmCache && len(cfg.TrackedLocations) > 0 {
		warmer := cache.NewCacheWarmer(geocoder, logger)
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(appCtx, cfg.TrackedLocations, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		} else {
			warmCtx, warmCancel := context.WithTimeout(appCtx, 30*time.Second)
			if err := warmer.Warm(warmCtx, cfg.TrackedLocations); err != nil {
				logger.Warn("cache warming failed", zap.Error(err))
			}
			warmCancel()
		}
	}

	refresher := scheduler.New(coordinator, cfg.RefreshInterval, logger)
	if err := refresher.Start(); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	check := func(ctx context.Context) error {
		snap := coordinator.Run(ctx, defaultQuery)
		if snap.PrimaryFailed() {
			return errors.New("forecast and air quality still failing")
		}
		return nil
	}
	degraded.StartRecoveryListener(appCtx, check, cfg.DegradedRetryInitial, cfg.DegradedRetryMax, func() {
		logger.Error("recovery exhausted; marking instance for replacement")
		lifecycle.Drain(lifecycle.ReasonRecoveryExhausted)
	})

	relayOpts := relay.Options{Timeout: cfg.UpstreamTimeout, UserAgent: cfg.UserAgent, Logger: logger}
	nhcRelay, err := relay.New("nhc", cfg.StormsURL, relayOpts)
	if err != nil {
		logger.Fatal("nhc relay", zap.Error(err))
	}
	gdeltRelay, err := relay.New("gdelt", cfg.NewsURL, relayOpts)
	if err != nil {
		logger.Fatal("gdelt relay", zap.Error(err))
	}

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:         cfg.OverloadWindow,
		OverloadThresholdPct:   cfg.OverloadThresholdPct,
		RateLimitRPS:           cfg.RateLimitRPS,
		DegradedWindow:         cfg.DegradedWindow,
		DegradedErrorPct:       cfg.DegradedErrorPct,
		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
		StartTime:              time.Now(),
		Breakers:               make(map[string]httphandler.BreakerState, len(breakers)),
	}
	for source, cb := range breakers {
		healthConfig.Breakers[source] = cb
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(coordinator, healthConfig, logger, cfg.LocationMinLength, cfg.LocationMaxLength)

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	router.HandleFunc("/dashboard", handler.GetDashboard).Methods("GET")
	router.HandleFunc("/dashboard/location", handler.PutLocation).Methods("PUT")

	weatherRouter := router.PathPrefix("/weather").Subrouter()
	weatherRouter.Use(httphandler.RateLimitMiddleware(limiter))
	weatherRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	weatherRouter.HandleFunc("", handler.GetWeather).Methods("GET")
	weatherRouter.HandleFunc("/{location}", handler.GetWeather).Methods("GET")

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	apiRouter.Handle("/nhc", nhcRelay).Methods("GET")
	apiRouter.Handle("/gdelt", gdeltRelay).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.Drain(lifecycle.ReasonSignal)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	refresher.Stop()
	appCancel()
	coordinator.Close()

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// newBreakers returns one breaker per upstream, or an empty map when breakers are disabled.
func newBreakers(cfg *config.Config, logger *zap.Logger) map[string]*circuitbreaker.CircuitBreaker {
	breakers := make(map[string]*circuitbreaker.CircuitBreaker)
	if !cfg.CircuitBreakerEnabled {
		return breakers
	}
	sources := []string{
		models.SourceForecast,
		models.SourceAirQuality,
		models.SourceAlerts,
		models.SourceStorms,
		models.SourceNews,
		models.SourceGeocode,
	}
	for _, source := range sources {
		breakers[source] = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        source,
			IsFailure:        client.BreakerFailure,
			OnStateChange: func(component string, from, to circuitbreaker.State) {
				observability.CircuitBreakerState.WithLabelValues(component).Set(float64(to))
				logger.Warn("circuit breaker transition",
					zap.String("source", component),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
		observability.CircuitBreakerState.WithLabelValues(source).Set(0)
	}
	logger.Info("circuit breakers enabled",
		zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
		zap.Duration("timeout", cfg.CircuitBreakerTimeout),
	)
	return breakers
}

// newAirQuality picks the configured air-quality variant. A variant that cannot
// be built degrades to a source that always reports unavailable.
func newAirQuality(cfg *config.Config, opts client.Options, logger *zap.Logger) service.AirQualitySource {
	var (
		src service.AirQualitySource
		err error
	)
	switch cfg.AirQualityVariant {
	case config.VariantStation:
		opts.BaseURL = cfg.OpenAQURL
		src, err = client.NewStationAirQualityClient(opts, cfg.OpenAQAPIKey, cfg.StationRadiusMeters)
	default:
		opts.BaseURL = cfg.AirQualityURL
		src, err = client.NewCoordinateAirQualityClient(opts)
	}
	if err != nil {
		logger.Error("air quality source unavailable", zap.String("variant", cfg.AirQualityVariant), zap.Error(err))
		return client.Unavailable{Err: err}
	}
	return src
}
