package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/city-weather/internal/api/http"
	"github.com/i474232898/city-weather/internal/config"
	"github.com/i474232898/city-weather/internal/metrics"
	"github.com/i474232898/city-weather/internal/proxy"
	"github.com/i474232898/city-weather/internal/scheduler"
	"github.com/i474232898/city-weather/internal/store"
	"github.com/i474232898/city-weather/internal/weather"
	"github.com/i474232898/city-weather/internal/weather/providers"
	"github.com/i474232898/city-weather/internal/weather/proxyclient"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the weather proxy and session API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			return serve(cfg, logger)
		},
	}
}

func serve(cfg *config.AppConfig, logger *zap.Logger) error {
	m := metrics.New()

	px, err := newProxy(cfg, m, logger)
	if err != nil {
		return err
	}

	// The session core only talks to the proxy, never to the provider.
	client := proxyclient.New(proxyclient.Config{
		BaseURL:    cfg.ProxyURL(),
		Timeout:    cfg.Proxy.Timeout,
		RetryCount: cfg.Proxy.RetryCount,
	}, logger)
	agg := weather.NewAggregator(client, logger,
		weather.WithLocation(cfg.Location()),
		weather.WithRecorder(m))
	resolver := weather.NewResolver(client, logger)

	sessionOpts := weather.SessionOptions{
		FutureCount:  cfg.Session.FutureCount,
		GeocodeLimit: cfg.Session.GeocodeLimit,
		Position:     weather.DefaultPositionOptions,
	}
	sessions := store.NewMemoryStore(func(id string) *weather.Session {
		return weather.NewSession(id, agg, resolver, logger, sessionOpts)
	}, cfg.Session.MaxSessions)
	defer sessions.CloseAll()

	var limiterOpts []proxy.LimiterOption
	if cfg.RateLimit.ExemptLoopback {
		limiterOpts = append(limiterOpts, proxy.ExemptLoopback())
	}
	limiter := proxy.NewRateLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst, limiterOpts...)

	targets := []scheduler.Target{
		{Name: "sessions", Sweeper: sessions, MaxIdle: cfg.Session.IdleTimeout},
	}
	if cfg.RateLimit.Enabled {
		targets = append(targets, scheduler.Target{Name: "rate-limiter", Sweeper: limiter, MaxIdle: cfg.RateLimit.MaxIdle})
	}
	sched := scheduler.New(cfg.Session.SweepInterval, logger, targets...)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "city-weather",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		ErrorHandler:          errorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New())
	app.Use(fiberlogger.New())
	app.Use(func(c *fiber.Ctx) error {
		err := c.Next()
		status := c.Response().StatusCode()
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}
		m.SetSessions(sessions.Len())
		m.ObserveRequest(c.Route().Path, c.Method(), strconv.Itoa(status))
		return err
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"service":  "city-weather",
			"sessions": sessions.Len(),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	api := app.Group("/api")
	if cfg.RateLimit.Enabled {
		// Per-client limits apply where end users enter: the session API and direct proxy calls.
		api.Use("/weather", limiter.Middleware())
		api.Use("/v1", limiter.Middleware())
	}
	px.Register(api)

	httpapi.RegisterRoutes(app, sessions, logger)

	go func() {
		addr := ":" + cfg.Server.Port
		logger.Info("starting server", zap.String("address", addr), zap.String("proxy", cfg.ProxyURL()))
		if err := app.Listen(addr); err != nil {
			logger.Error("fiber server stopped", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}
	return nil
}

func newProxy(cfg *config.AppConfig, m *metrics.Metrics, logger *zap.Logger) (*proxy.Proxy, error) {
	httpClient := &http.Client{Timeout: cfg.Upstream.HTTPTimeout}

	upstream := providers.NewOpenWeatherProvider(httpClient, cfg.Upstream.APIKey, providers.OpenWeatherURLs{
		Geo:  cfg.Upstream.GeoURL,
		Data: cfg.Upstream.DataURL,
		Pro:  cfg.Upstream.ProURL,
	}, logger)

	opts := []proxy.Option{
		proxy.WithGeocoder(newGeocoder(cfg.Geocoding, httpClient, logger)),
		proxy.WithRecorder(m),
	}

	if cfg.Redis.Enabled {
		rdb := proxy.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		opts = append(opts, proxy.WithCache(proxy.NewRedisCache(rdb, cfg.Redis.CacheTTL, logger)))
	}

	return proxy.New(upstream, logger, opts...), nil
}

// newGeocoder returns nil for the default backend, which leaves geocoding on the upstream provider.
func newGeocoder(cfg config.GeocodingConfig, client *http.Client, logger *zap.Logger) proxy.Geocoder {
	switch cfg.Backend {
	case "openmeteo":
		return providers.NewOpenMeteoGeocoder(client, cfg.OpenMeteoURL, logger)
	case "weatherapi":
		return providers.NewWeatherAPIGeocoder(client, cfg.WeatherAPIKey, cfg.WeatherAPIURL, logger)
	case "google":
		return providers.NewGoogleGeocoder(cfg.GoogleAPIKey, logger)
	default:
		return nil
	}
}

func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("http error",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err))
		}
		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
}
