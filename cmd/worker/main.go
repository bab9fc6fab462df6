// Command worker persists queued audit events and runs the scheduled orphan
// sweep.
package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/kiabasekou/ged-project/internal/app"
	"github.com/kiabasekou/ged-project/internal/audit"
	"github.com/kiabasekou/ged-project/internal/config"
	"github.com/kiabasekou/ged-project/internal/logging"
	"github.com/kiabasekou/ged-project/internal/queue"
	"github.com/kiabasekou/ged-project/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		os.Stderr.WriteString("load .env: " + err.Error() + "\n")
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The worker is the audit consumer, so its own events are only logged
	// instead of being queued back to itself.
	a, err := app.New(ctx, cfg, log, app.Options{AuditSink: audit.NewLogSink(logging.Component(log, "audit"))})
	if err != nil {
		log.Fatal().Err(err).Msg("init application")
	}
	defer a.Close()

	redis := app.RedisOpt(cfg)
	server := asynq.NewServer(redis, asynq.Config{
		Concurrency: cfg.Workers,
		Queues: map[string]int{
			queue.AuditQueue:       6,
			queue.MaintenanceQueue: 1,
		},
		Logger: logging.NewAsynqLogger(logging.Component(log, "asynq")),
	})
	processor := worker.NewProcessor(audit.NewRecordSink(a.Store), a.Collector, cfg.GCGrace, logging.Component(log, "worker"))

	scheduler := asynq.NewScheduler(redis, &asynq.SchedulerOpts{
		Logger: logging.NewAsynqLogger(logging.Component(log, "scheduler")),
	})
	task, err := queue.NewCollectOrphansTask(queue.CollectOrphansPayload{GracePeriod: cfg.GCGrace})
	if err != nil {
		log.Fatal().Err(err).Msg("build gc task")
	}
	if _, err := scheduler.Register(cfg.GCInterval, task); err != nil {
		log.Fatal().Err(err).Str("interval", cfg.GCInterval).Msg("schedule orphan sweep")
	}
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("start scheduler")
	}
	defer scheduler.Shutdown()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	log.Info().Str("redis", cfg.RedisAddr).Msg("worker started")
	if err := server.Run(processor.Handler()); err != nil {
		log.Error().Err(err).Msg("worker stopped")
		os.Exit(1)
	}
}
