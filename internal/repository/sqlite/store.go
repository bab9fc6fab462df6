// Package sqlite is a single-node metadata backend on SQLite. Writes are
// serialized through one connection and BEGIN IMMEDIATE transactions, which
// makes the conditional version flip race free.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/kiabasekou/ged-project/internal/model"
	"github.com/kiabasekou/ged-project/internal/repository"
)

//go:embed schema.sql
var schemaSQL string

// Store implements repository.Store.
type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

// Open creates or opens a database at path and applies the schema. Use
// ":memory:" for a throwaway database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - immediate transactions so a writer takes the lock up front
//   - 5-second busy timeout for lock contention
//   - foreign key enforcement
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite only supports one writer at a time; one connection also keeps a
	// ":memory:" database alive for the life of the pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// execTx runs fn inside a transaction, rolling back on any error.
func (s *Store) execTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// uniqueViolation returns the constraint text of a UNIQUE failure, or "".
func uniqueViolation(err error) string {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return sqliteErr.Error()
	}
	return ""
}

// classifyDocumentError turns constraint failures on documents into model
// errors. prevID is set for transitions.
func classifyDocumentError(err error, doc *model.Document, prevID string) error {
	msg := uniqueViolation(err)
	switch {
	case msg == "":
		return err
	case strings.Contains(msg, "content_hash"):
		return &model.DuplicateContentError{ContentHash: doc.ContentHash}
	case strings.Contains(msg, "previous_version_id"):
		return &model.VersionConflictError{DocumentID: prevID, Key: doc.ChainKey()}
	case strings.Contains(msg, "original_name"):
		if prevID != "" {
			return &model.VersionConflictError{DocumentID: prevID, Key: doc.ChainKey()}
		}
		return model.ErrCurrentVersionExists
	}
	return err
}

func classifyFolderError(err error) error {
	if msg := uniqueViolation(err); msg != "" {
		return model.ErrFolderNameTaken
	}
	return err
}
