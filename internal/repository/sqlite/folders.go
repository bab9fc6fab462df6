package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kiabasekou/ged-project/internal/model"
)

const folderColumns = `id, case_id, parent_id, name, created_by, created_at`

func scanFolder(row scanner) (*model.Folder, error) {
	var (
		f      model.Folder
		parent sql.NullString
	)
	if err := row.Scan(&f.ID, &f.CaseID, &parent, &f.Name, &f.CreatedBy, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.ParentID = nullString(parent)
	f.CreatedAt = f.CreatedAt.UTC()
	return &f, nil
}

func (s *Store) InsertFolder(ctx context.Context, f *model.Folder) error {
	return s.execTx(ctx, func(tx *sql.Tx) error {
		if f.ParentID != nil {
			depth, _, err := ancestry(ctx, tx, *f.ParentID, "")
			if err != nil {
				return err
			}
			if depth+1 > model.MaxFolderDepth {
				return model.ErrFolderTooDeep
			}
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO folders (`+folderColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			f.ID, f.CaseID, f.ParentID, f.Name, f.CreatedBy, f.CreatedAt.UTC())
		if err != nil {
			return classifyFolderError(fmt.Errorf("insert folder: %w", err))
		}
		return nil
	})
}

func (s *Store) GetFolder(ctx context.Context, id string) (*model.Folder, error) {
	f, err := scanFolder(s.db.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM folders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select folder: %w", err)
	}
	return f, nil
}

func (s *Store) queryFolders(ctx context.Context, query string, args ...any) ([]*model.Folder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()
	var out []*model.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) ListChildFolders(ctx context.Context, parentID string) ([]*model.Folder, error) {
	return s.queryFolders(ctx, `SELECT `+folderColumns+` FROM folders WHERE parent_id = ? ORDER BY name`, parentID)
}

func (s *Store) ListRootFolders(ctx context.Context, caseID string) ([]*model.Folder, error) {
	return s.queryFolders(ctx, `SELECT `+folderColumns+` FROM folders WHERE case_id = ? AND parent_id IS NULL ORDER BY name`, caseID)
}

// ancestorQuery walks from a folder to its root, bounded by the maximum depth.
const ancestorQuery = `
WITH RECURSIVE ancestors(id, parent_id, depth) AS (
	SELECT id, parent_id, 0 FROM folders WHERE id = ?
	UNION ALL
	SELECT f.id, f.parent_id, a.depth + 1
	FROM folders f JOIN ancestors a ON f.id = a.parent_id
	WHERE a.depth < ?
)
SELECT COUNT(*) FILTER (WHERE id = ?), MAX(depth) FROM ancestors`

// heightQuery counts the levels of the subtree rooted at a folder.
const heightQuery = `
WITH RECURSIVE descendants(id, depth) AS (
	SELECT id, 1 FROM folders WHERE id = ?
	UNION ALL
	SELECT f.id, d.depth + 1
	FROM folders f JOIN descendants d ON f.parent_id = d.id
	WHERE d.depth <= ?
)
SELECT COALESCE(MAX(depth), 0) FROM descendants`

// ancestry returns the depth of folderID (a root is 1) and whether
// descendantID appears on its path to the root.
func ancestry(ctx context.Context, tx *sql.Tx, folderID, descendantID string) (depth int, onPath bool, err error) {
	var (
		hits    int
		deepest sql.NullInt64
	)
	if err := tx.QueryRowContext(ctx, ancestorQuery, folderID, model.MaxFolderDepth, descendantID).Scan(&hits, &deepest); err != nil {
		return 0, false, fmt.Errorf("walk ancestors: %w", err)
	}
	if !deepest.Valid {
		return 0, false, model.ErrNotFound
	}
	if deepest.Int64 >= model.MaxFolderDepth {
		return 0, false, model.ErrFolderCycle
	}
	return int(deepest.Int64) + 1, hits > 0, nil
}

func (s *Store) MoveFolder(ctx context.Context, id string, parentID *string) error {
	return s.execTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM folders WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("select folder: %w", err)
		}
		if exists == 0 {
			return model.ErrNotFound
		}
		if parentID != nil {
			depth, cycle, err := ancestry(ctx, tx, *parentID, id)
			if err != nil {
				return err
			}
			if cycle {
				return model.ErrFolderCycle
			}
			var height int
			if err := tx.QueryRowContext(ctx, heightQuery, id, model.MaxFolderDepth).Scan(&height); err != nil {
				return fmt.Errorf("measure subtree: %w", err)
			}
			if depth+height > model.MaxFolderDepth {
				return model.ErrFolderTooDeep
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE folders SET parent_id = ? WHERE id = ?`, parentID, id); err != nil {
			return classifyFolderError(fmt.Errorf("move folder: %w", err))
		}
		return nil
	})
}

func (s *Store) CountCurrentDocuments(ctx context.Context, folderID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE folder_id = ? AND is_current = 1`, folderID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}
