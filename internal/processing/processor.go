// Package processing delivers audit events on a pool of background
// goroutines so request handlers never wait on a slow audit backend.
package processing

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kiabasekou/ged-project/internal/audit"
	"github.com/kiabasekou/ged-project/internal/metrics"
)

// ErrQueueFull is returned by Notify when the buffer has no room left.
var ErrQueueFull = errors.New("audit dispatch queue full")

// Job is one queued delivery.
type Job struct {
	Event audit.Event
}

// Dispatcher is an audit.Sink that buffers events and forwards them to the
// wrapped sink from worker goroutines.
type Dispatcher struct {
	next    audit.Sink
	queue   chan Job
	workers int
	log     zerolog.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

var _ audit.Sink = (*Dispatcher)(nil)

// New builds a Dispatcher with queue capacity tied to worker count.
func New(next audit.Sink, workers int, log zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		next:    next,
		queue:   make(chan Job, workers*64),
		workers: workers,
		log:     log,
		metrics: m,
	}
}

// Start launches worker goroutines. They stop once ctx is done, after
// flushing whatever is still buffered.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Wait blocks until every worker has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Notify queues ev. It never blocks: when the buffer is full the event is
// dropped and counted.
func (d *Dispatcher) Notify(_ context.Context, ev audit.Event) error {
	select {
	case d.queue <- Job{Event: ev}:
		return nil
	default:
		d.metrics.AuditDrop()
		d.log.Warn().Str("action", string(ev.Action)).Str("subject_id", ev.Subject.ID).Msg("audit queue full, dropping event")
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case job := <-d.queue:
			d.process(context.WithoutCancel(ctx), job)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case job := <-d.queue:
			d.process(context.Background(), job)
		default:
			return
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, job Job) {
	if err := d.next.Notify(ctx, job.Event); err != nil {
		d.metrics.AuditFailure(string(job.Event.Action))
		d.log.Error().Err(err).Str("action", string(job.Event.Action)).Msg("audit delivery failed")
	}
}
