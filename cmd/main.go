package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/valkey-io/valkey-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/pashuarogyam/vetai/advisor"
	"github.com/pashuarogyam/vetai/backoff"
	"github.com/pashuarogyam/vetai/cache"
	"github.com/pashuarogyam/vetai/config"
	"github.com/pashuarogyam/vetai/monitoring"
	"github.com/pashuarogyam/vetai/orchestrator"
	"github.com/pashuarogyam/vetai/provider/gemini"
	"github.com/pashuarogyam/vetai/quota"
	"github.com/pashuarogyam/vetai/rate"
	"github.com/pashuarogyam/vetai/server"
	"github.com/pashuarogyam/vetai/utils"
)

const serviceName = "vetai"

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

// setupStorage returns the response cache and, with Valkey, the quota store.
func setupStorage(config *config.Config) (cache.Cache, quota.Store, func(), error) {
	if config.ValkeyEndpoint == "" {
		memoryCache, cleanup := cache.NewMemoryCache(config.CacheTTLDuration(), config.CacheMaxEntries)
		return memoryCache, nil, cleanup, nil
	}

	valkeyClient, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{config.ValkeyEndpoint},
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create Valkey client: %v", err)
	}
	return cache.NewValkeyCache(valkeyClient, config.CacheTTLDuration()),
		quota.NewValkeyStore(valkeyClient),
		valkeyClient.Close,
		nil
}

func main() {
	logger := utils.Must(zap.NewProduction())
	defer logger.Sync()
	sugar := logger.Sugar()

	// A local .env file is optional.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		sugar.Warnw("Failed to load .env file", "error", err)
	}

	configPath := flag.String("config", "", "path or URL of the config file")
	flag.Parse()
	config, err := config.LoadConfig(*configPath, sugar)
	if err != nil {
		sugar.Fatalw("Failed to load config", "error", err)
	}
	if config.GeminiApiKey == "" {
		sugar.Warnw("No Gemini API key configured; requests must carry their own key or fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetry, err := monitoring.SetupTelemetry(ctx, monitoring.TelemetryConfig{
		TraceEndpoint:  config.OtlpEndpoint,
		MetricEndpoint: config.OtlpMetricsEndpoint,
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    os.Getenv("ENVIRONMENT"),
		SampleRatio:    1,
		Insecure:       true,
	}, sugar)
	if err != nil {
		sugar.Fatalw("Failed to set up telemetry", "error", err)
	}

	responseCache, quotaStore, cleanup, err := setupStorage(config)
	if err != nil {
		sugar.Fatalw("Failed to set up storage", "error", err)
	}

	location := utils.Must(config.Location())
	metrics := monitoring.NewMetrics()

	limiterOptions := []rate.Option{rate.WithWaitObserver(metrics.RecordBackoffWait)}
	if quotaStore != nil {
		limiterOptions = append(limiterOptions, rate.WithStore(quotaStore, quota.Fingerprint(config.GeminiApiKey)))
	}
	limiter := rate.NewLimiter(
		quota.NewClock(config.DailyCallLimit, location),
		backoff.NewController(config.Backoff()),
		sugar,
		limiterOptions...,
	)
	if err := limiter.Restore(ctx); err != nil {
		sugar.Warnw("Failed to restore quota state", "error", err)
	}
	metrics.SetQuotaExceeded(limiter.IsQuotaExceeded())

	endpoint := gemini.NewEndpoint(config.GeminiApiKey, gemini.WithHTTPClient(&http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}))
	orch := orchestrator.NewOrchestrator(
		limiter, endpoint, responseCache, metrics, config.NetworkRetryStepDuration(), sugar)
	service := advisor.NewService(orch, limiter, endpoint, advisor.Settings{
		PreferredModel: config.PreferredModel,
		FallbackModels: config.FallbackModels,
		MaxRetries:     config.MaxRetries,
	}, metrics, sugar)

	sugar.Infow("Loaded config",
		"port", config.Port,
		"preferred_model", config.PreferredModel,
		"fallback_models", config.FallbackModels,
		"daily_call_limit", config.DailyCallLimit,
		"ask_rate_limit_per_min", config.AskRateLimitPerMin,
		"valkey", config.ValkeyEndpoint != "",
	)

	if config.RunHealthCheck {
		health := service.HealthCheck(ctx)
		sugar.Infow("Startup health check", "healthy", health.Healthy, "message", health.Message)
	} else {
		sugar.Infow("Skipping startup health check to save daily quota; set RUN_GEMINI_HEALTH_CHECK=true to enable")
	}

	router := mux.NewRouter()
	server.NewServer(service, config.VetaiApiKey, sugar,
		server.WithAskRateLimit(config.AskRateLimitPerMin),
	).RegisterRoutes(router)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		Debug:          false,
	})

	address := fmt.Sprintf(":%d", config.Port)
	httpServer := &http.Server{
		Addr:    address,
		Handler: otelhttp.NewHandler(corsMiddleware.Handler(router), serviceName),
	}

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, os.Interrupt, syscall.SIGTERM)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-shutdownSignal
		sugar.Infow("Shutting down server...")
		cancel()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			sugar.Errorw("Server forced to shutdown", "error", err)
		}
		if cleanup != nil {
			cleanup()
		}
		if err := telemetry.Shutdown(ctx); err != nil {
			sugar.Warnw("Failed to flush telemetry", "error", err)
		}
	}()

	sugar.Infow("Starting server", "address", address)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		sugar.Fatalw("Failed to start server", "error", err)
	}
	<-stopped

	sugar.Infow("Server exited gracefully")
}
