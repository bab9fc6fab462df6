package audit

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// LogSink writes events as structured log lines.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Notify(_ context.Context, ev Event) error {
	level := zerolog.InfoLevel
	if ev.Action == ActionIntegrityFailure {
		level = zerolog.ErrorLevel
	}
	anonymized, _ := Anonymize(ev.Metadata)
	s.log.WithLevel(level).
		Str("audit_id", ev.ID).
		Str("actor", ev.Actor).
		Str("action", string(ev.Action)).
		Str("subject_type", ev.Subject.Type).
		Str("subject_id", ev.Subject.ID).
		Time("at", ev.Timestamp).
		Fields(anonymized).
		Msg(ev.Description)
	return nil
}

// MultiSink fans an event out to every sink. All sinks are tried; their
// errors are joined.
type MultiSink []Sink

func (m MultiSink) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
