package gc

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiabasekou/ged-project/internal/blobstore"
)

type staticRefs map[string]struct{}

func (s staticRefs) ReferencedLocators(context.Context) (map[string]struct{}, error) {
	return s, nil
}

func putAt(t *testing.T, m *blobstore.MemoryMedium, at time.Time) string {
	t.Helper()
	m.SetClock(func() time.Time { return at })
	loc, err := blobstore.NewLocator()
	require.NoError(t, err)
	require.NoError(t, m.Put(context.Background(), loc, []byte("sealed")))
	return loc
}

func TestCollectorDeletesOldOrphansOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	medium := blobstore.NewMemoryMedium()
	referenced := putAt(t, medium, now.Add(-48*time.Hour))
	orphan := putAt(t, medium, now.Add(-48*time.Hour))
	young := putAt(t, medium, now.Add(-time.Minute))

	c := NewCollector(medium, staticRefs{referenced: {}}, zerolog.Nop(), nil)
	c.now = func() time.Time { return now }

	dry, err := c.Run(context.Background(), DefaultGracePeriod, true)
	require.NoError(t, err)
	assert.Equal(t, []string{orphan}, dry.Orphans)
	assert.Zero(t, dry.Deleted)
	assert.Equal(t, 3, medium.Len())

	report, err := c.Run(context.Background(), DefaultGracePeriod, false)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 1, report.Referenced)
	assert.Equal(t, 1, report.Young)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, int64(len("sealed")), report.BytesReclaimed)

	_, err = medium.Get(context.Background(), orphan)
	assert.ErrorIs(t, err, blobstore.ErrObjectNotFound)
	for _, keep := range []string{referenced, young} {
		_, err = medium.Get(context.Background(), keep)
		assert.NoError(t, err)
	}
}
