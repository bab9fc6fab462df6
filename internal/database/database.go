// Package database opens the Postgres pool and owns the relational schema.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Constraint names the repository maps back onto domain errors.
const (
	ConstraintContentHash  = "ux_documents_content_hash"
	ConstraintCurrent      = "ux_documents_current"
	ConstraintPrevious     = "ux_documents_previous"
	ConstraintFolderName   = "ux_folders_sibling_name"
	ConstraintChainLinkage = "ck_documents_chain_linkage"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 8
	}
	cfg.MaxConns = maxConns
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Schema is the full DDL. Every chain invariant that can be stated
// declaratively lives here so that no writer, however it reaches the
// database, can break it.
const Schema = `
CREATE TABLE IF NOT EXISTS folders (
	id          UUID PRIMARY KEY,
	case_id     TEXT NOT NULL,
	parent_id   UUID REFERENCES folders(id),
	name        TEXT NOT NULL CHECK (char_length(name) BETWEEN 1 AND 150),
	created_by  TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	CONSTRAINT ck_folders_not_own_parent CHECK (parent_id IS NULL OR parent_id <> id)
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_folders_sibling_name
	ON folders (case_id, COALESCE(parent_id::text, ''), name);
CREATE INDEX IF NOT EXISTS ix_folders_parent ON folders (parent_id);

CREATE TABLE IF NOT EXISTS documents (
	id                  UUID PRIMARY KEY,
	case_id             TEXT NOT NULL,
	folder_id           UUID REFERENCES folders(id),
	title               TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	original_name       TEXT NOT NULL,
	extension           TEXT NOT NULL,
	byte_size           BIGINT NOT NULL CHECK (byte_size >= 0),
	media_type          TEXT NOT NULL,
	content_hash        TEXT NOT NULL,
	version             INTEGER NOT NULL CHECK (version >= 1),
	is_current          BOOLEAN NOT NULL,
	previous_version_id UUID REFERENCES documents(id),
	restored_from_id    UUID REFERENCES documents(id),
	sensitivity         TEXT NOT NULL CHECK (sensitivity IN ('public', 'internal', 'confidential', 'secret')),
	retention_until     TIMESTAMPTZ,
	storage_locator     TEXT NOT NULL UNIQUE,
	uploaded_by         TEXT NOT NULL,
	uploaded_at         TIMESTAMPTZ NOT NULL,
	CONSTRAINT ck_documents_chain_linkage CHECK ((version = 1) = (previous_version_id IS NULL))
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_documents_content_hash
	ON documents (content_hash) WHERE restored_from_id IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS ux_documents_current
	ON documents (case_id, original_name) WHERE is_current;
CREATE UNIQUE INDEX IF NOT EXISTS ux_documents_previous
	ON documents (previous_version_id) WHERE previous_version_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS ix_documents_case ON documents (case_id, original_name, version);
CREATE INDEX IF NOT EXISTS ix_documents_folder ON documents (folder_id) WHERE is_current;

CREATE TABLE IF NOT EXISTS audit_records (
	id               UUID PRIMARY KEY,
	actor            TEXT NOT NULL,
	subject_type     TEXT NOT NULL,
	subject_id       TEXT NOT NULL,
	action           TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	metadata         JSONB NOT NULL DEFAULT '{}',
	sensitive_hashes JSONB NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_audit_subject ON audit_records (subject_type, subject_id, created_at DESC);
CREATE INDEX IF NOT EXISTS ix_audit_created ON audit_records (created_at);`

// EnsureSchema creates the tables if needed. Keeping the migration in code
// lets gedctl migrate and the server bootstrap an empty database.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
