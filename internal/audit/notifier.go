package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kiabasekou/ged-project/internal/metrics"
)

// Notifier is what store components hold. It stamps events and hands them to
// a Sink, logging and counting failures instead of returning them.
type Notifier struct {
	sink    Sink
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewNotifier wraps sink. A nil sink discards events.
func NewNotifier(sink Sink, log zerolog.Logger, m *metrics.Metrics) *Notifier {
	if sink == nil {
		sink = Discard
	}
	return &Notifier{sink: sink, log: log, metrics: m, now: time.Now}
}

// Notify delivers one event. It never fails and never panics out to the
// caller; it also detaches from ctx cancellation so a request that ends right
// after its store operation still gets audited.
func (n *Notifier) Notify(ctx context.Context, actor string, subject Subject, action Action, description string, metadata map[string]any) {
	if n == nil {
		return
	}
	ev := Event{
		ID:          uuid.NewString(),
		Actor:       actor,
		Subject:     subject,
		Action:      action,
		Description: description,
		Metadata:    metadata,
		Timestamp:   n.now().UTC(),
	}
	if err := n.deliver(context.WithoutCancel(ctx), ev); err != nil {
		n.metrics.AuditFailure(string(action))
		n.log.Warn().
			Err(err).
			Str("action", string(action)).
			Str("subject_type", subject.Type).
			Str("subject_id", subject.ID).
			Msg("audit notification failed")
	}
}

func (n *Notifier) deliver(ctx context.Context, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audit sink panic: %v", r)
		}
	}()
	return n.sink.Notify(ctx, ev)
}
