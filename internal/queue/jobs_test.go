package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiabasekou/ged-project/internal/audit"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type()}, nil
}

func TestAuditSinkEnqueuesEvent(t *testing.T) {
	f := &fakeEnqueuer{}
	ev := audit.Event{
		ID:        "e1",
		Actor:     "alice",
		Subject:   audit.Subject{Type: audit.SubjectDocument, ID: "d1"},
		Action:    audit.ActionRestore,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, NewAuditSink(f).Notify(context.Background(), ev))
	require.Len(t, f.tasks, 1)
	assert.Equal(t, AuditRecordTask, f.tasks[0].Type())

	decoded, err := DecodeAuditTask(f.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, ev, decoded)
}

func TestAuditSinkPropagatesEnqueueError(t *testing.T) {
	f := &fakeEnqueuer{err: errors.New("redis unavailable")}
	err := NewAuditSink(f).Notify(context.Background(), audit.Event{})
	assert.ErrorContains(t, err, "redis unavailable")
}

func TestCollectOrphansTask(t *testing.T) {
	f := &fakeEnqueuer{}
	require.NoError(t, EnqueueCollectOrphans(context.Background(), f, CollectOrphansPayload{GracePeriod: time.Hour, DryRun: true}))
	require.Len(t, f.tasks, 1)
	p, err := DecodeCollectOrphansTask(f.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, time.Hour, p.GracePeriod)
	assert.True(t, p.DryRun)

	_, err = DecodeCollectOrphansTask(asynq.NewTask(CollectOrphansTask, []byte("{")))
	assert.Error(t, err)
}
