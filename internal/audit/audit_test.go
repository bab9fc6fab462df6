package audit

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiabasekou/ged-project/internal/metrics"
)

type recordingStore struct {
	mu      sync.Mutex
	records []Record
}

func (s *recordingStore) InsertAuditRecord(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingStore) ListAuditRecords(_ context.Context, subject Subject) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if r.Subject == subject {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestAnonymize(t *testing.T) {
	in := map[string]any{"email": "a@b.c", "phone_primary": "", "version": 2}
	out, hashes := Anonymize(in)

	assert.Equal(t, Redacted, out["email"])
	assert.Equal(t, "", out["phone_primary"], "empty values stay empty")
	assert.Equal(t, 2, out["version"])
	assert.Equal(t, "a@b.c", in["email"], "input untouched")
	assert.Len(t, hashes, 2)

	rec := Record{SensitiveHashes: hashes}
	assert.True(t, rec.MatchesSensitive("email", "a@b.c"))
	assert.False(t, rec.MatchesSensitive("email", "x@y.z"))
	assert.False(t, rec.MatchesSensitive("password", "a@b.c"))
}

func TestRecordSinkPersistsAnonymized(t *testing.T) {
	store := &recordingStore{}
	n := NewNotifier(NewRecordSink(store), zerolog.Nop(), nil)
	subject := Subject{Type: SubjectDocument, ID: "doc-1"}

	n.Notify(context.Background(), "alice", subject, ActionDownload, "downloaded", map[string]any{"email": "a@b.c"})

	recs, err := store.ListAuditRecords(context.Background(), subject)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.NotEmpty(t, recs[0].ID)
	assert.False(t, recs[0].Timestamp.IsZero())
	assert.Equal(t, ActionDownload, recs[0].Action)
	assert.Equal(t, Redacted, recs[0].Metadata["email"])
}

func TestNotifierSwallowsSinkFailures(t *testing.T) {
	var buf bytes.Buffer
	m := metrics.New(prometheus.NewRegistry())
	failing := SinkFunc(func(context.Context, Event) error { return errors.New("database down") })
	panicking := SinkFunc(func(context.Context, Event) error { panic("bad sink") })

	n := NewNotifier(MultiSink{failing, panicking}, zerolog.New(&buf), m)
	assert.NotPanics(t, func() {
		n.Notify(context.Background(), "bob", Subject{Type: SubjectDocument, ID: "d"}, ActionCreate, "", nil)
	})
	assert.Contains(t, buf.String(), "audit notification failed")
	assert.Contains(t, buf.String(), "database down")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditFailures.WithLabelValues("CREATE")))
}

func TestNotifierIgnoresCancelledContext(t *testing.T) {
	var got context.Context
	sink := SinkFunc(func(ctx context.Context, _ Event) error {
		got = ctx
		return ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewNotifier(sink, zerolog.Nop(), nil).Notify(ctx, "a", Subject{}, ActionCreate, "", nil)
	require.NotNil(t, got)
	assert.NoError(t, got.Err())
}

func TestLogSinkRedacts(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))
	require.NoError(t, sink.Notify(context.Background(), Event{
		Action:   ActionIntegrityFailure,
		Subject:  Subject{Type: SubjectDocument, ID: "d"},
		Metadata: map[string]any{"password": "hunter2"},
	}))
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), Redacted)
	assert.NotContains(t, buf.String(), "hunter2")
}

func TestNilNotifier(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() {
		n.Notify(context.Background(), "a", Subject{}, ActionCreate, "", nil)
	})
}
