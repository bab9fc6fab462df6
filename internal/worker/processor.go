// Package worker holds the asynq handlers run by cmd/worker.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/kiabasekou/ged-project/internal/audit"
	"github.com/kiabasekou/ged-project/internal/gc"
	"github.com/kiabasekou/ged-project/internal/queue"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	records   audit.Sink
	collector *gc.Collector
	grace     time.Duration
	log       zerolog.Logger
}

// NewProcessor constructs a worker processor. records persists audit events;
// grace applies to sweeps whose payload leaves it unset.
func NewProcessor(records audit.Sink, collector *gc.Collector, grace time.Duration, log zerolog.Logger) *Processor {
	if grace <= 0 {
		grace = gc.DefaultGracePeriod
	}
	return &Processor{records: records, collector: collector, grace: grace, log: log}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.AuditRecordTask, p.handleAuditRecord)
	mux.HandleFunc(queue.CollectOrphansTask, p.handleCollectOrphans)
	return mux
}

func (p *Processor) handleAuditRecord(ctx context.Context, task *asynq.Task) error {
	ev, err := queue.DecodeAuditTask(task)
	if err != nil {
		// A payload that cannot be decoded never will be.
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err := p.records.Notify(ctx, ev); err != nil {
		p.log.Warn().Err(err).Str("event_id", ev.ID).Str("action", string(ev.Action)).Msg("persist audit record failed")
		return err
	}
	return nil
}

func (p *Processor) handleCollectOrphans(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeCollectOrphansTask(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	grace := payload.GracePeriod
	if grace <= 0 {
		grace = p.grace
	}
	report, err := p.collector.Run(ctx, grace, payload.DryRun)
	if err != nil {
		return err
	}
	p.log.Info().Int("deleted", report.Deleted).Int64("bytes", report.BytesReclaimed).Msg("scheduled orphan sweep done")
	return nil
}
