// Package app wires configuration into the components shared by the API
// server, the worker and gedctl.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/kiabasekou/ged-project/internal/audit"
	"github.com/kiabasekou/ged-project/internal/blobstore"
	"github.com/kiabasekou/ged-project/internal/cipher"
	"github.com/kiabasekou/ged-project/internal/config"
	"github.com/kiabasekou/ged-project/internal/database"
	"github.com/kiabasekou/ged-project/internal/document"
	"github.com/kiabasekou/ged-project/internal/folder"
	"github.com/kiabasekou/ged-project/internal/gc"
	"github.com/kiabasekou/ged-project/internal/logging"
	"github.com/kiabasekou/ged-project/internal/media"
	"github.com/kiabasekou/ged-project/internal/metrics"
	"github.com/kiabasekou/ged-project/internal/processing"
	"github.com/kiabasekou/ged-project/internal/queue"
	"github.com/kiabasekou/ged-project/internal/repository"
	"github.com/kiabasekou/ged-project/internal/repository/memory"
	"github.com/kiabasekou/ged-project/internal/repository/postgres"
	"github.com/kiabasekou/ged-project/internal/repository/sqlite"
	"github.com/kiabasekou/ged-project/internal/s3storage"
	"github.com/kiabasekou/ged-project/internal/signing"
)

// App holds the assembled components.
type App struct {
	Config    *config.Config
	Log       zerolog.Logger
	Metrics   *metrics.Metrics
	Keyring   *cipher.Keyring
	Store     repository.Store
	Medium    blobstore.Medium
	Blobs     *blobstore.EncryptedStore
	Notifier  *audit.Notifier
	Folders   *folder.Service
	Documents *document.Manager
	Signer    *signing.Signer
	Collector *gc.Collector

	cancel  context.CancelFunc
	workers []interface{ Wait() }
	closers []func() error
}

// Options customize New.
type Options struct {
	// Registerer receives the metrics. Nil means a private registry.
	Registerer prometheus.Registerer
	// Cases overrides the case directory. Nil accepts any case id.
	Cases folder.CaseDirectory
	// AuditSink replaces the sink chosen by GED_AUDIT_MODE.
	AuditSink audit.Sink
}

// New builds every component from cfg. On error, whatever was opened is
// closed again.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts Options) (_ *App, err error) {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	a := &App{Config: cfg, Log: log, Metrics: metrics.New(reg)}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.Keyring, err = cipher.NewKeyring(cfg.EncryptionKey, cfg.PreviousKeys...); err != nil {
		return nil, fmt.Errorf("load encryption keys: %w", err)
	}
	if a.Store, err = OpenStore(ctx, cfg, log); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Store.Close)
	if a.Medium, err = OpenMedium(ctx, cfg); err != nil {
		return nil, err
	}
	a.Blobs = blobstore.NewEncryptedStore(a.Medium, a.Keyring)

	sink := opts.AuditSink
	if sink == nil {
		if sink, err = a.auditSink(ctx); err != nil {
			return nil, err
		}
	}
	a.Notifier = audit.NewNotifier(sink, logging.Component(log, "audit"), a.Metrics)

	a.Folders = folder.NewService(a.Store, opts.Cases, a.Notifier, logging.Component(log, "folder"))
	a.Documents = document.NewManager(document.Deps{
		Repo:     a.Store,
		Blobs:    a.Blobs,
		Folders:  a.Folders,
		Policy:   media.Policy{MaxSize: cfg.MaxUploadBytes, Extensions: media.DefaultExtensions},
		Notifier: a.Notifier,
		Metrics:  a.Metrics,
		Logger:   logging.Component(log, "document"),
	})

	secret, err := a.Keyring.DeriveKey(signing.Purpose, 32)
	if err != nil {
		return nil, err
	}
	a.Signer = signing.NewSigner(secret, cfg.SignedURLTTL)
	a.Collector = gc.NewCollector(a.Medium, a.Store, logging.Component(log, "gc"), a.Metrics)
	return a, nil
}

// auditSink assembles the delivery chain for the configured mode. The log
// sink is always part of it.
func (a *App) auditSink(ctx context.Context) (audit.Sink, error) {
	logSink := audit.NewLogSink(logging.Component(a.Log, "audit"))
	switch a.Config.AuditMode {
	case config.AuditLog:
		return logSink, nil
	case config.AuditQueue:
		client := asynq.NewClient(RedisOpt(a.Config))
		a.closers = append(a.closers, client.Close)
		return audit.MultiSink{logSink, queue.NewAuditSink(client)}, nil
	default:
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		d := processing.New(audit.NewRecordSink(a.Store), a.Config.AuditWorkers, logging.Component(a.Log, "audit"), a.Metrics)
		d.Start(runCtx)
		a.cancel = cancel
		a.workers = append(a.workers, d)
		return audit.MultiSink{logSink, d}, nil
	}
}

// Close flushes the audit dispatcher and releases every resource.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	for _, w := range a.workers {
		w.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenStore selects the relational backend: Postgres, then SQLite, then
// memory.
func OpenStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (repository.Store, error) {
	switch {
	case cfg.DatabaseURL != "":
		pool, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return postgres.New(pool, logging.Component(log, "postgres")), nil
	case cfg.SQLitePath != "":
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		log.Warn().Msg("no database configured, metadata is kept in memory")
		return memory.New(), nil
	}
}

// OpenMedium selects where encrypted payloads live.
func OpenMedium(ctx context.Context, cfg *config.Config) (blobstore.Medium, error) {
	switch cfg.StorageBackend {
	case config.StorageS3:
		s, err := s3storage.New(cfg)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageMemory:
		return blobstore.NewMemoryMedium(), nil
	default:
		m, err := blobstore.NewFSMedium(cfg.StorageRoot)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// RedisOpt returns the asynq connection options.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}
