// Package postgres implements the repository contract on PostgreSQL with
// pgx. The chain invariants are enforced by partial unique indexes declared
// in internal/database; this package maps their violations back onto model
// errors.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/kiabasekou/ged-project/internal/database"
	"github.com/kiabasekou/ged-project/internal/model"
	"github.com/kiabasekou/ged-project/internal/repository"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// Store wraps all SQL used by the API, the worker and gedctl.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

var _ repository.Store = (*Store)(nil)

// New constructs a Store on an open pool.
func New(pool *pgxpool.Pool, log zerolog.Logger) *Store {
	return &Store{pool: pool, log: log}
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// executor returns the transaction stored in ctx, or the pool.
func (s *Store) executor(ctx context.Context) DBTX {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// ExecTx runs fn in a transaction. Store methods called with the context
// passed to fn join that transaction.
func (s *Store) ExecTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback after a successful commit is a no-op.
	defer func() {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.log.Warn().Err(err).Msg("rollback failed")
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// validID reports whether id can be compared with a UUID column. Anything
// else cannot exist and is treated as not found.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// constraintViolated returns the name of the violated unique constraint.
func constraintViolated(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName
	}
	return ""
}

func classifyDocumentError(err error, doc *model.Document, prevID string) error {
	switch constraintViolated(err) {
	case database.ConstraintContentHash:
		return &model.DuplicateContentError{ContentHash: doc.ContentHash}
	case database.ConstraintPrevious:
		return &model.VersionConflictError{DocumentID: prevID, Key: doc.ChainKey()}
	case database.ConstraintCurrent:
		if prevID != "" {
			return &model.VersionConflictError{DocumentID: prevID, Key: doc.ChainKey()}
		}
		return model.ErrCurrentVersionExists
	}
	return err
}

func classifyFolderError(err error) error {
	if constraintViolated(err) == database.ConstraintFolderName {
		return model.ErrFolderNameTaken
	}
	return err
}
