package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"venuebook/internal/api"
	"venuebook/internal/cache"
	"venuebook/internal/calendar"
	"venuebook/internal/config"
	"venuebook/internal/database"
	"venuebook/internal/lifecycle"
	"venuebook/internal/metrics"
	"venuebook/internal/notify"
	"venuebook/internal/outbox"
	"venuebook/internal/payments"
)

func main() {
	_ = godotenv.Load()

	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("VENUEBOOK_CONFIG_PATH"))
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
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	c := cache.New(rdb, cfg.CacheTTL())

	lifecycleSvc := lifecycle.NewService(db, db, c, &logger)
	reconciler := payments.NewReconciler(db, c, cfg.Payments.LinkBaseURL, &logger)

	mailer := notify.NewMailer(cfg.SMTP)
	fanout := notify.NewFanOut(db, mailer, cfg.Notify.RatePerSecond, &logger)

	workerCfg := outbox.DefaultWorkerConfig()
	workerCfg.PollInterval = cfg.OutboxPollInterval()
	if cfg.Outbox.MaxRetries > 0 {
		workerCfg.MaxRetries = cfg.Outbox.MaxRetries
	}
	worker := outbox.NewWorker(db, workerCfg, &logger)
	registerHandlers(worker, db, fanout, cfg, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	go worker.Start(ctx)
	go db.RunBackups(ctx, cfg.Database.Backup)

	e := api.NewRouter(api.NewHandler(lifecycleSvc, reconciler, db, c, &logger))
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = e.Shutdown(ctxShutdown)
	}()

	logger.Info().Int("port", cfg.Server.Port).Msg("venuebook started")
	if err := e.Start(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server error")
	}
}

// registerHandlers binds the outbox task types to their executors.
func registerHandlers(worker *outbox.Worker, db *database.DB, fanout *notify.FanOut, cfg *config.Config, logger *zerolog.Logger) {
	if cfg.Calendar.Enabled && cfg.Calendar.CredentialsFile != "" {
		gapi, err := calendar.NewGoogleAPI(context.Background(), cfg.Calendar.CredentialsFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create calendar client")
		}
		sync := calendar.NewSynchronizer(db, gapi, logger)

		worker.Register(outbox.TaskCalendarSync, func(ctx context.Context, task outbox.Task) error {
			return sync.Sync(ctx, task.SubjectID)
		})
		worker.Register(outbox.TaskCalendarDrop, func(ctx context.Context, task outbox.Task) error {
			var payload lifecycle.DropPayload
			if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
				return fmt.Errorf("decode drop payload: %w", err)
			}
			return sync.Drop(ctx, payload.OccurrenceID, payload.CalendarID, payload.EventID)
		})
	} else {
		logger.Warn().Msg("calendar sync disabled, approved occurrences will not be mirrored")
		worker.Register(outbox.TaskCalendarSync, func(context.Context, outbox.Task) error { return nil })
		worker.Register(outbox.TaskCalendarDrop, func(context.Context, outbox.Task) error { return nil })
	}

	worker.Register(outbox.TaskNotifyCreated, func(ctx context.Context, task outbox.Task) error {
		res, err := db.GetReservation(ctx, task.SubjectID)
		if err == database.ErrNotFound {
			return nil // reservation deleted before the notification went out
		}
		if err != nil {
			return err
		}
		return fanout.NotifyCreated(ctx, res)
	})
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
