package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kiabasekou/ged-project/internal/model"
)

const documentColumns = `id, case_id, folder_id, title, description, original_name, extension,
	byte_size, media_type, content_hash, version, is_current, previous_version_id,
	restored_from_id, sensitivity, retention_until, storage_locator, uploaded_by, uploaded_at`

func scanDocument(row pgx.Row) (*model.Document, error) {
	var doc model.Document
	err := row.Scan(&doc.ID, &doc.CaseID, &doc.FolderID, &doc.Title, &doc.Description, &doc.OriginalName,
		&doc.Extension, &doc.ByteSize, &doc.MediaType, &doc.ContentHash, &doc.Version, &doc.IsCurrent,
		&doc.PreviousVersionID, &doc.RestoredFromID, &doc.Sensitivity, &doc.RetentionUntil,
		&doc.StorageLocator, &doc.UploadedBy, &doc.UploadedAt)
	if err != nil {
		return nil, err
	}
	doc.UploadedAt = doc.UploadedAt.UTC()
	if doc.RetentionUntil != nil {
		t := doc.RetentionUntil.UTC()
		doc.RetentionUntil = &t
	}
	return &doc, nil
}

func (s *Store) queryDocument(ctx context.Context, where string, args ...any) (*model.Document, error) {
	row := s.executor(ctx).QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE `+where, args...)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select document: %w", err)
	}
	return doc, nil
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]*model.Document, error) {
	rows, err := s.executor(ctx).Query(ctx, query, args...)
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
	if !validID(id) {
		return nil, model.ErrNotFound
	}
	return s.queryDocument(ctx, `id = $1`, id)
}

func (s *Store) CurrentDocument(ctx context.Context, key model.ChainKey) (*model.Document, error) {
	return s.queryDocument(ctx, `case_id = $1 AND original_name = $2 AND is_current`, key.CaseID, key.OriginalName)
}

func (s *Store) FindByContentHash(ctx context.Context, hash string) (*model.Document, error) {
	return s.queryDocument(ctx, `content_hash = $1 AND restored_from_id IS NULL`, hash)
}

func (s *Store) insertDocument(ctx context.Context, doc *model.Document) error {
	_, err := s.executor(ctx).Exec(ctx, `INSERT INTO documents (`+documentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		doc.ID, doc.CaseID, doc.FolderID, doc.Title, doc.Description, doc.OriginalName, doc.Extension,
		doc.ByteSize, doc.MediaType, doc.ContentHash, doc.Version, doc.IsCurrent, doc.PreviousVersionID,
		doc.RestoredFromID, string(doc.Sensitivity), doc.RetentionUntil, doc.StorageLocator, doc.UploadedBy, doc.UploadedAt)
	return err
}

func (s *Store) InsertDocument(ctx context.Context, doc *model.Document) error {
	if err := s.insertDocument(ctx, doc); err != nil {
		return classifyDocumentError(fmt.Errorf("insert document: %w", err), doc, "")
	}
	return nil
}

// TransitionVersion flips the previous version with a conditional UPDATE.
// Under READ COMMITTED a concurrent transaction blocks on the row lock and
// then re-evaluates the predicate, so exactly one of them sees a row.
func (s *Store) TransitionVersion(ctx context.Context, prevID string, next *model.Document) error {
	if !validID(prevID) {
		return model.ErrNotFound
	}
	return s.ExecTx(ctx, func(ctx context.Context) error {
		var (
			caseID, name string
			version      int
		)
		err := s.executor(ctx).QueryRow(ctx,
			`SELECT case_id, original_name, version FROM documents WHERE id = $1`, prevID).
			Scan(&caseID, &name, &version)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("select previous version: %w", err)
		}
		key := model.ChainKey{CaseID: caseID, OriginalName: name}
		if next.CaseID != caseID || next.Version != version+1 || next.PreviousVersionID == nil || *next.PreviousVersionID != prevID {
			return fmt.Errorf("%w: document does not continue chain of %s", model.ErrValidation, prevID)
		}

		tag, err := s.executor(ctx).Exec(ctx,
			`UPDATE documents SET is_current = false WHERE id = $1 AND is_current`, prevID)
		if err != nil {
			return fmt.Errorf("clear current flag: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return &model.VersionConflictError{DocumentID: prevID, Key: key}
		}
		if err := s.insertDocument(ctx, next); err != nil {
			return classifyDocumentError(fmt.Errorf("insert document: %w", err), next, prevID)
		}
		return nil
	})
}

func (s *Store) ListCurrent(ctx context.Context, caseID string, folderID *string) ([]*model.Document, error) {
	if folderID == nil {
		return s.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents
			WHERE case_id = $1 AND is_current ORDER BY original_name`, caseID)
	}
	if !validID(*folderID) {
		return nil, nil
	}
	return s.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE case_id = $1 AND folder_id = $2 AND is_current ORDER BY original_name`, caseID, *folderID)
}

func (s *Store) ListByCase(ctx context.Context, caseID string) ([]*model.Document, error) {
	return s.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE case_id = $1 ORDER BY original_name, version`, caseID)
}

func (s *Store) ReferencedLocators(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.executor(ctx).Query(ctx, `SELECT storage_locator FROM documents`)
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
	rows, err := s.executor(ctx).Query(ctx, `SELECT storage_locator, content_hash FROM documents`)
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
