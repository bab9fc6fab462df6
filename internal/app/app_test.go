package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiabasekou/ged-project/internal/audit"
	"github.com/kiabasekou/ged-project/internal/blobstore"
	"github.com/kiabasekou/ged-project/internal/cipher"
	"github.com/kiabasekou/ged-project/internal/config"
	"github.com/kiabasekou/ged-project/internal/document"
	"github.com/kiabasekou/ged-project/internal/repository/memory"
	"github.com/kiabasekou/ged-project/internal/repository/sqlite"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	key, err := cipher.GenerateKey()
	require.NoError(t, err)
	return &config.Config{
		EncryptionKey:  key,
		StorageBackend: config.StorageMemory,
		AuditMode:      config.AuditDatabase,
		AuditWorkers:   1,
	}
}

func TestNewPersistsAuditRecords(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), zerolog.Nop(), Options{})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, a.Store)
	assert.IsType(t, &blobstore.MemoryMedium{}, a.Medium)

	doc, err := a.Documents.CreateInitial(ctx, "alice", "C1", nil,
		document.Upload{Filename: "a.txt", Content: []byte("hello")}, document.Metadata{})
	require.NoError(t, err)
	store := a.Store
	require.NoError(t, a.Close(), "close flushes the dispatcher")

	recs, err := store.ListAuditRecords(ctx, audit.Subject{Type: audit.SubjectDocument, ID: doc.ID})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, audit.ActionCreate, recs[0].Action)
}

func TestOpenStoreSelection(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.SQLitePath = filepath.Join(t.TempDir(), "ged.db")
	s, err := OpenStore(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &sqlite.Store{}, s)
}

func TestOpenMediumFS(t *testing.T) {
	cfg := testConfig(t)
	cfg.StorageBackend = config.StorageFS
	cfg.StorageRoot = t.TempDir()
	m, err := OpenMedium(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &blobstore.FSMedium{}, m)
}

func TestNewRejectsBadKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.EncryptionKey = "short"
	_, err := New(context.Background(), cfg, zerolog.Nop(), Options{})
	assert.ErrorIs(t, err, cipher.ErrMalformedKey)
}
