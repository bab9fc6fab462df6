package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiabasekou/ged-project/internal/database"
	"github.com/kiabasekou/ged-project/internal/model"
	"github.com/kiabasekou/ged-project/internal/repository"
	"github.com/kiabasekou/ged-project/internal/repository/repotest"
)

// openTest connects to GED_TEST_DATABASE_URL and empties the tables.
func openTest(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("GED_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("GED_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.Connect(ctx, dsn, 16)
	require.NoError(t, err)
	require.NoError(t, database.EnsureSchema(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE audit_records, documents, folders`)
	require.NoError(t, err)
	return New(pool, zerolog.Nop())
}

func TestConformance(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.Store { return openTest(t) })
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	s := openTest(t)
	defer s.Close()
	ctx := context.Background()

	_, err := s.GetDocument(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.GetFolder(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, s.MoveFolder(ctx, "x", nil), model.ErrNotFound)
}

func TestExecTxRollsBack(t *testing.T) {
	s := openTest(t)
	defer s.Close()
	ctx := context.Background()
	doc := repotest.NewDocument("C1", "doc.txt", "h1")
	boom := errors.New("boom")

	err := s.ExecTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.InsertDocument(ctx, doc))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = s.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestClassifyDocumentError(t *testing.T) {
	doc := repotest.NewDocument("C1", "doc.txt", "h1")
	violation := func(name string) error {
		return &pgconn.PgError{Code: "23505", ConstraintName: name}
	}

	var dup *model.DuplicateContentError
	require.ErrorAs(t, classifyDocumentError(violation(database.ConstraintContentHash), doc, ""), &dup)
	assert.Equal(t, "h1", dup.ContentHash)

	assert.ErrorIs(t, classifyDocumentError(violation(database.ConstraintCurrent), doc, ""), model.ErrCurrentVersionExists)
	assert.ErrorIs(t, classifyDocumentError(violation(database.ConstraintCurrent), doc, "prev"), model.ErrVersionConflict)
	assert.ErrorIs(t, classifyDocumentError(violation(database.ConstraintPrevious), doc, "prev"), model.ErrVersionConflict)

	other := &pgconn.PgError{Code: "23503"}
	assert.Same(t, error(other), classifyDocumentError(other, doc, ""))
	assert.ErrorIs(t, classifyFolderError(violation(database.ConstraintFolderName)), model.ErrFolderNameTaken)
}
