// Command server runs the document store HTTP API.
package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/kiabasekou/ged-project/internal/api"
	"github.com/kiabasekou/ged-project/internal/app"
	"github.com/kiabasekou/ged-project/internal/config"
	"github.com/kiabasekou/ged-project/internal/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		bootLog().Fatal().Err(err).Msg("load .env")
	}
	cfg, err := config.Load()
	if err != nil {
		bootLog().Fatal().Err(err).Msg("load config")
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.New(ctx, cfg, log, app.Options{Registerer: reg})
	if err != nil {
		log.Fatal().Err(err).Msg("init application")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	srv := api.New(api.Deps{
		Documents:      a.Documents,
		Folders:        a.Folders,
		Signer:         a.Signer,
		Audit:          a.Store,
		Metrics:        a.Metrics,
		Gatherer:       reg,
		Logger:         logging.Component(log, "api"),
		Address:        cfg.Address,
		MaxUploadBytes: cfg.MaxUploadBytes,
		CORSOrigins:    cfg.CORSOrigins,
	})
	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

func bootLog() *zerolog.Logger {
	l := logging.New(logging.Config{Level: "info"})
	return &l
}
