package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiabasekou/ged-project/internal/model"
	"github.com/kiabasekou/ged-project/internal/repository"
	"github.com/kiabasekou/ged-project/internal/repository/repotest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ged.db"))
	require.NoError(t, err)
	return s
}

func TestConformance(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.Store { return openTemp(t) })
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ged.db")
	s, err := Open(path)
	require.NoError(t, err)
	doc := repotest.NewDocument("C1", "doc.txt", "h1")
	require.NoError(t, s.InsertDocument(context.Background(), doc))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "doc.txt", got.OriginalName)
}

func TestSchemaRejectsBrokenChainLink(t *testing.T) {
	s := openTemp(t)
	defer s.Close()
	doc := repotest.NewDocument("C1", "doc.txt", "h1")
	doc.Version = 2 // version 2 without a previous version
	err := s.InsertDocument(context.Background(), doc)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrDuplicateContent)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "a.db?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on", dsn("a.db"))
	assert.Equal(t, "file:a.db?cache=shared&_txlock=immediate&_busy_timeout=5000&_foreign_keys=on", dsn("file:a.db?cache=shared"))
}
