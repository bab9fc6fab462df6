package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kiabasekou/ged-project/internal/model"
)

const documentColumns = `id, case_id, folder_id, title, description, original_name, extension,
	byte_size, media_type, content_hash, version, is_current, previous_version_id,
	restored_from_id, sensitivity, retention_until, storage_locator, uploaded_by, uploaded_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*model.Document, error) {
	var (
		doc       model.Document
		folderID  sql.NullString
		prevID    sql.NullString
		restored  sql.NullString
		retention sql.NullTime
	)
	err := row.Scan(&doc.ID, &doc.CaseID, &folderID, &doc.Title, &doc.Description, &doc.OriginalName,
		&doc.Extension, &doc.ByteSize, &doc.MediaType, &doc.ContentHash, &doc.Version, &doc.IsCurrent,
		&prevID, &restored, &doc.Sensitivity, &retention, &doc.StorageLocator, &doc.UploadedBy, &doc.UploadedAt)
	if err != nil {
		return nil, err
	}
	doc.FolderID = nullString(folderID)
	doc.PreviousVersionID = nullString(prevID)
	doc.RestoredFromID = nullString(restored)
	if retention.Valid {
		t := retention.Time.UTC()
		doc.RetentionUntil = &t
	}
	doc.UploadedAt = doc.UploadedAt.UTC()
	return &doc, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func (s *Store) queryDocument(ctx context.Context, where string, args ...any) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE `+where, args...)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select document: %w", err)
	}
	return doc, nil
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]*model.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	var out []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *Store) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	return s.queryDocument(ctx, `id = ?`, id)
}

func (s *Store) CurrentDocument(ctx context.Context, key model.ChainKey) (*model.Document, error) {
	return s.queryDocument(ctx, `case_id = ? AND original_name = ? AND is_current = 1`, key.CaseID, key.OriginalName)
}

func (s *Store) FindByContentHash(ctx context.Context, hash string) (*model.Document, error) {
	return s.queryDocument(ctx, `content_hash = ? AND restored_from_id IS NULL`, hash)
}

func insertDocument(ctx context.Context, tx *sql.Tx, doc *model.Document) error {
	var retention any
	if doc.RetentionUntil != nil {
		retention = doc.RetentionUntil.UTC()
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.CaseID, doc.FolderID, doc.Title, doc.Description, doc.OriginalName, doc.Extension,
		doc.ByteSize, doc.MediaType, doc.ContentHash, doc.Version, doc.IsCurrent, doc.PreviousVersionID,
		doc.RestoredFromID, string(doc.Sensitivity), retention, doc.StorageLocator, doc.UploadedBy, doc.UploadedAt.UTC())
	return err
}

func (s *Store) InsertDocument(ctx context.Context, doc *model.Document) error {
	return s.execTx(ctx, func(tx *sql.Tx) error {
		if err := insertDocument(ctx, tx, doc); err != nil {
			return classifyDocumentError(fmt.Errorf("insert document: %w", err), doc, "")
		}
		return nil
	})
}

func (s *Store) TransitionVersion(ctx context.Context, prevID string, next *model.Document) error {
	return s.execTx(ctx, func(tx *sql.Tx) error {
		var (
			caseID, name string
			version      int
		)
		err := tx.QueryRowContext(ctx, `SELECT case_id, original_name, version FROM documents WHERE id = ?`, prevID).
			Scan(&caseID, &name, &version)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("select previous version: %w", err)
		}
		key := model.ChainKey{CaseID: caseID, OriginalName: name}
		if next.CaseID != caseID || next.Version != version+1 || next.PreviousVersionID == nil || *next.PreviousVersionID != prevID {
			return fmt.Errorf("%w: document does not continue chain of %s", model.ErrValidation, prevID)
		}

		res, err := tx.ExecContext(ctx, `UPDATE documents SET is_current = 0 WHERE id = ? AND is_current = 1`, prevID)
		if err != nil {
			return fmt.Errorf("clear current flag: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("clear current flag: %w", err)
		}
		if n == 0 {
			return &model.VersionConflictError{DocumentID: prevID, Key: key}
		}
		if err := insertDocument(ctx, tx, next); err != nil {
			return classifyDocumentError(fmt.Errorf("insert document: %w", err), next, prevID)
		}
		return nil
	})
}

func (s *Store) ListCurrent(ctx context.Context, caseID string, folderID *string) ([]*model.Document, error) {
	if folderID == nil {
		return s.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents
			WHERE case_id = ? AND is_current = 1 ORDER BY original_name`, caseID)
	}
	return s.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE case_id = ? AND folder_id = ? AND is_current = 1 ORDER BY original_name`, caseID, *folderID)
}

func (s *Store) ListByCase(ctx context.Context, caseID string) ([]*model.Document, error) {
	return s.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE case_id = ? ORDER BY original_name, version`, caseID)
}

func (s *Store) ReferencedLocators(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT storage_locator FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("list locators: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, fmt.Errorf("scan locator: %w", err)
		}
		out[loc] = struct{}{}
	}
	return out, rows.Err()
}

func (s *Store) PayloadDigests(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT storage_locator, content_hash FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("list payload digests: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var loc, hash string
		if err := rows.Scan(&loc, &hash); err != nil {
			return nil, fmt.Errorf("scan payload digest: %w", err)
		}
		out[loc] = hash
	}
	return out, rows.Err()
}
