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
	_ "time/tzdata"

	"barbershop/internal/api"
	"barbershop/internal/booking"
	"barbershop/internal/cache"
	"barbershop/internal/config"
	"barbershop/internal/database"
	"barbershop/internal/digest"
	"barbershop/internal/events"
	"barbershop/internal/metrics"
	"barbershop/internal/models"
	"barbershop/internal/notify"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(config.Path())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}
	slots := cache.NewSlotCache(rdb, cfg.CacheTTL(), &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus(&logger)
	svc := booking.NewService(db, slots, bus, booking.Options{
		Location:           cfg.Location(),
		GranularityMinutes: cfg.SlotGranularity(),
		MinAdvance:         cfg.MinAdvance(),
		MaxAdvance:         cfg.MaxAdvance(),
	}, &logger)
	bus.Subscribe(svc.InvalidateCache, events.AllScheduleEvents()...)

	if cfg.Telegram.BotToken != "" {
		botAPI, err := notify.NewBotAPI(cfg.Telegram.BotToken, cfg.Telegram.Debug)
		if err != nil {
			logger.Error().Err(err).Msg("telegram disabled")
		} else {
			notifier := notify.NewNotifier(botAPI, notify.Config{
				ChatID:   cfg.Telegram.AdminChatID,
				Location: cfg.Location(),
			}, &logger)
			notifier.Subscribe(bus)
			go notifier.Run(ctx)

			if cfg.Telegram.DigestTime != "" {
				at, err := models.ParseClock(cfg.Telegram.DigestTime)
				if err != nil {
					logger.Fatal().Err(err).Msg("invalid telegram.digest_time")
				}
				daily := digest.NewScheduler(digest.Config{Location: cfg.Location(), At: at}, svc, notifier.Enqueue, &logger)
				go daily.Start(ctx)
			}
		}
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	health := api.HealthHandler(map[string]api.Pinger{
		"db":    db,
		"redis": api.PingFunc(slots.Ping),
	})
	go serveAux(ctx, "health", cfg.Monitoring.HealthCheckPort, health, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		metrics.Subscribe(bus)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go serveAux(ctx, "metrics", cfg.Monitoring.PrometheusPort, mux, &logger)
	}

	go database.NewBackupService(db, cfg.Backup, cfg.BackupInterval(), &logger).Start(ctx)

	perMinute, burst := cfg.RateLimit()
	httpAPI := api.NewHTTPServer(svc, api.Config{
		AdminKey:        cfg.API.AdminKey,
		MaxBodyBytes:    cfg.MaxBodyBytes(),
		RateLimitPerMin: perMinute,
		RateLimitBurst:  burst,
		TrustProxy:      cfg.Server.TrustProxy,
	}, &logger)
	if cfg.API.AdminKey == "" {
		logger.Warn().Msg("api.admin_key is empty; admin endpoints will reject every request")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      httpAPI.Handler(),
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("api server shutdown error")
		}
	}()

	logger.Info().
		Str("address", srv.Addr).
		Str("shop", cfg.Shop.Name).
		Str("timezone", cfg.Location().String()).
		Bool("cache", slots.Enabled()).
		Msg("Barbershop API started")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("api server error")
	}
	logger.Info().Msg("Barbershop API stopped")
}

func serveAux(ctx context.Context, name string, port int, handler http.Handler, logger *zerolog.Logger) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Str("server", name).Msg("auxiliary server error")
	}
}
