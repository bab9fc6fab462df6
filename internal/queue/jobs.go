// Package queue defines the asynq tasks shared by the API server and the
// worker: durable audit delivery and periodic orphan collection.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kiabasekou/ged-project/internal/audit"
)

const (
	// AuditRecordTask carries one audit event to the worker, which persists it.
	AuditRecordTask = "audit:record"
	// CollectOrphansTask asks the worker to sweep unreferenced payloads.
	CollectOrphansTask = "blob:collect-orphans"

	// AuditQueue is kept separate so a GC backlog never delays audit writes.
	AuditQueue       = "audit"
	MaintenanceQueue = "maintenance"
)

// CollectOrphansPayload parameterizes an orphan sweep.
type CollectOrphansPayload struct {
	GracePeriod time.Duration `json:"grace_period"`
	DryRun      bool          `json:"dry_run"`
}

// NewAuditTask serializes ev into a task.
func NewAuditTask(ev audit.Event) (*asynq.Task, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal audit event: %w", err)
	}
	return asynq.NewTask(AuditRecordTask, data, asynq.Queue(AuditQueue), asynq.MaxRetry(10)), nil
}

// DecodeAuditTask is the inverse of NewAuditTask.
func DecodeAuditTask(task *asynq.Task) (audit.Event, error) {
	var ev audit.Event
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return ev, fmt.Errorf("decode audit payload: %w", err)
	}
	return ev, nil
}

// NewCollectOrphansTask builds a sweep task. Unique prevents overlapping
// sweeps from piling up behind a slow one.
func NewCollectOrphansTask(payload CollectOrphansPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal gc payload: %w", err)
	}
	return asynq.NewTask(CollectOrphansTask, data,
		asynq.Queue(MaintenanceQueue),
		asynq.MaxRetry(1),
		asynq.Unique(time.Hour),
	), nil
}

// DecodeCollectOrphansTask is the inverse of NewCollectOrphansTask.
func DecodeCollectOrphansTask(task *asynq.Task) (CollectOrphansPayload, error) {
	var p CollectOrphansPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode gc payload: %w", err)
	}
	return p, nil
}

// Enqueuer is the part of *asynq.Client the sink needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AuditSink forwards events to Redis through asynq so they survive a process
// restart before they are persisted.
type AuditSink struct {
	client Enqueuer
}

var _ audit.Sink = (*AuditSink)(nil)

// NewAuditSink builds an AuditSink on top of an asynq client.
func NewAuditSink(client Enqueuer) *AuditSink {
	return &AuditSink{client: client}
}

func (s *AuditSink) Notify(ctx context.Context, ev audit.Event) error {
	task, err := NewAuditTask(ev)
	if err != nil {
		return err
	}
	if _, err := s.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue audit task: %w", err)
	}
	return nil
}

// EnqueueCollectOrphans schedules a one-off sweep.
func EnqueueCollectOrphans(ctx context.Context, client Enqueuer, payload CollectOrphansPayload) error {
	task, err := NewCollectOrphansTask(payload)
	if err != nil {
		return err
	}
	if _, err := client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue gc task: %w", err)
	}
	return nil
}
