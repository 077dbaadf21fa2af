package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"signwise/adapters/jsonfile"
	mem "signwise/adapters/memory"
	redisAdapter "signwise/adapters/redis"
	sqlxAdapter "signwise/adapters/sqlx"
	"signwise/api/httpapi"
	"signwise/config"
	"signwise/engine"
	"signwise/integrations/webhook"
	"signwise/notify"
	"signwise/realtime"
	"signwise/streaks"
)

// App aggregates the assembled server components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Hub     *realtime.Hub
	Service *streaks.Service
	Handler http.Handler
	Server  *http.Server
}

// configFileEnv names a JSON config file to load before environment overrides.
const configFileEnv = "SIGNWISE_CONFIG_FILE"

func provideConfig(ctx context.Context) (*config.Config, error) {
	if path := os.Getenv(configFileEnv); path != "" {
		return config.LoadFromFile(path)
	}
	if profile := os.Getenv("SIGNWISE_PROFILE"); profile != "" {
		return config.LoadProfile(profile)
	}
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideStorage(ctx context.Context, cfg *config.Config) (engine.KeyValueStore, func(), error) {
	return setupStorage(ctx, cfg)
}

func provideSinks(cfg *config.Config, logger *slog.Logger) []notify.NotificationSink {
	var sinks []notify.NotificationSink
	if cfg.Notifications.LogSink {
		sinks = append(sinks, notify.NewLogSink(logger))
	}
	if len(cfg.Notifications.Webhooks) > 0 {
		sinks = append(sinks, webhook.New(cfg.Notifications.Webhooks,
			webhook.WithClient(&http.Client{Timeout: cfg.Notifications.WebhookTimeout})))
	}
	return sinks
}

func provideService(ctx context.Context, cfg *config.Config, logger *slog.Logger, hub *realtime.Hub, store engine.KeyValueStore, sinks []notify.NotificationSink) (*streaks.Service, func(), error) {
	loc, err := cfg.Clock.Location()
	if err != nil {
		return nil, nil, err
	}
	mode := engine.DispatchAsync
	if cfg.Clock.Dispatch == "sync" {
		mode = engine.DispatchSync
	}
	opts := []streaks.Option{
		streaks.WithStorage(store),
		streaks.WithClock(engine.SystemClock{Location: loc}),
		streaks.WithDispatchMode(mode),
		streaks.WithRealtime(hub),
		streaks.WithSinks(sinks...),
		streaks.WithLogger(logger),
	}
	if cfg.Notifications.ReminderEnabled {
		opts = append(opts,
			streaks.WithReminder(cfg.Notifications.ReminderTime, loc),
			streaks.WithMotivation(cfg.Notifications.MotivationTime),
		)
	}
	svc, err := streaks.New(opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := svc.Start(ctx); err != nil {
		svc.Close()
		return nil, nil, err
	}
	return svc, svc.Close, nil
}

func provideHandler(svc *streaks.Service, cfg *config.Config) http.Handler {
	return httpapi.NewMux(httpapi.Deps{
		Registry:   svc.Registry,
		Hub:        svc.Hub,
		Board:      svc.Board,
		Metrics:    svc.Metrics,
		Clock:      svc.Clock,
		Dispatcher: svc.Dispatcher,
	}, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	var handler slog.Handler
	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func convertAttributes(attrs map[string]string) []slog.Attr {
	result := make([]slog.Attr, 0, len(attrs))
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage creates the storage adapter named by configuration. The
// returned func releases its connections.
func setupStorage(_ context.Context, cfg *config.Config) (engine.KeyValueStore, func(), error) {
	noop := func() {}
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), noop, nil
	case "redis":
		s, err := redisAdapter.New(cfg.Storage.Redis)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "sql":
		s, err := sqlxAdapter.New(cfg.Storage.SQL)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "file":
		s, err := jsonfile.New(cfg.Storage.File.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
