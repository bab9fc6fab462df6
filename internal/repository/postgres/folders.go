package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kiabasekou/ged-project/internal/model"
)

const folderColumns = `id, case_id, parent_id, name, created_by, created_at`

func scanFolder(row pgx.Row) (*model.Folder, error) {
	var f model.Folder
	if err := row.Scan(&f.ID, &f.CaseID, &f.ParentID, &f.Name, &f.CreatedBy, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.CreatedAt = f.CreatedAt.UTC()
	return &f, nil
}

// InsertFolder takes the same case lock as MoveFolder so a concurrent move
// cannot deepen the parent between the depth check and the insert.
func (s *Store) InsertFolder(ctx context.Context, f *model.Folder) error {
	if f.ParentID != nil && !validID(*f.ParentID) {
		return model.ErrNotFound
	}
	return s.ExecTx(ctx, func(ctx context.Context) error {
		db := s.executor(ctx)
		if f.ParentID != nil {
			if err := lockCaseFolders(ctx, db, f.CaseID); err != nil {
				return err
			}
			depth, _, err := ancestry(ctx, db, *f.ParentID, f.ID)
			if err != nil {
				return err
			}
			if depth+1 > model.MaxFolderDepth {
				return model.ErrFolderTooDeep
			}
		}
		_, err := db.Exec(ctx, `INSERT INTO folders (`+folderColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
			f.ID, f.CaseID, f.ParentID, f.Name, f.CreatedBy, f.CreatedAt)
		if err != nil {
			return classifyFolderError(fmt.Errorf("insert folder: %w", err))
		}
		return nil
	})
}

func (s *Store) GetFolder(ctx context.Context, id string) (*model.Folder, error) {
	if !validID(id) {
		return nil, model.ErrNotFound
	}
	f, err := scanFolder(s.executor(ctx).QueryRow(ctx, `SELECT `+folderColumns+` FROM folders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select folder: %w", err)
	}
	return f, nil
}

func (s *Store) queryFolders(ctx context.Context, query string, args ...any) ([]*model.Folder, error) {
	rows, err := s.executor(ctx).Query(ctx, query, args...)
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
	if !validID(parentID) {
		return nil, nil
	}
	return s.queryFolders(ctx, `SELECT `+folderColumns+` FROM folders WHERE parent_id = $1 ORDER BY name`, parentID)
}

func (s *Store) ListRootFolders(ctx context.Context, caseID string) ([]*model.Folder, error) {
	return s.queryFolders(ctx, `SELECT `+folderColumns+` FROM folders
		WHERE case_id = $1 AND parent_id IS NULL ORDER BY name`, caseID)
}

const ancestorQuery = `
WITH RECURSIVE ancestors(id, parent_id, depth) AS (
	SELECT id, parent_id, 0 FROM folders WHERE id = $1
	UNION ALL
	SELECT f.id, f.parent_id, a.depth + 1
	FROM folders f JOIN ancestors a ON f.id = a.parent_id
	WHERE a.depth < $2
)
SELECT COUNT(*) FILTER (WHERE id = $3), MAX(depth) FROM ancestors`

const heightQuery = `
WITH RECURSIVE descendants(id, depth) AS (
	SELECT id, 1 FROM folders WHERE id = $1
	UNION ALL
	SELECT f.id, d.depth + 1
	FROM folders f JOIN descendants d ON f.parent_id = d.id
	WHERE d.depth <= $2
)
SELECT COALESCE(MAX(depth), 0) FROM descendants`

func lockCaseFolders(ctx context.Context, db DBTX, caseID string) error {
	if _, err := db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('ged.folders:' || $1))`, caseID); err != nil {
		return fmt.Errorf("lock case folders: %w", err)
	}
	return nil
}

// ancestry returns the depth of folderID (a root is 1) and whether
// descendantID appears on its path to the root.
func ancestry(ctx context.Context, db DBTX, folderID, descendantID string) (depth int, onPath bool, err error) {
	var (
		hits    int
		deepest *int
	)
	if err := db.QueryRow(ctx, ancestorQuery, folderID, model.MaxFolderDepth, descendantID).Scan(&hits, &deepest); err != nil {
		return 0, false, fmt.Errorf("walk ancestors: %w", err)
	}
	if deepest == nil {
		return 0, false, model.ErrNotFound
	}
	if *deepest >= model.MaxFolderDepth {
		return 0, false, model.ErrFolderCycle
	}
	return *deepest + 1, hits > 0, nil
}

// MoveFolder serializes moves within a case on an advisory lock so that two
// concurrent moves cannot each pass the ancestor check and close a loop.
func (s *Store) MoveFolder(ctx context.Context, id string, parentID *string) error {
	if !validID(id) || (parentID != nil && !validID(*parentID)) {
		return model.ErrNotFound
	}
	return s.ExecTx(ctx, func(ctx context.Context) error {
		db := s.executor(ctx)
		var caseID string
		err := db.QueryRow(ctx, `SELECT case_id FROM folders WHERE id = $1`, id).Scan(&caseID)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("select folder: %w", err)
		}
		if err := lockCaseFolders(ctx, db, caseID); err != nil {
			return err
		}
		if parentID != nil {
			depth, cycle, err := ancestry(ctx, db, *parentID, id)
			if err != nil {
				return err
			}
			if cycle {
				return model.ErrFolderCycle
			}
			var height int
			if err := db.QueryRow(ctx, heightQuery, id, model.MaxFolderDepth).Scan(&height); err != nil {
				return fmt.Errorf("measure subtree: %w", err)
			}
			if depth+height > model.MaxFolderDepth {
				return model.ErrFolderTooDeep
			}
		}
		if _, err := db.Exec(ctx, `UPDATE folders SET parent_id = $1 WHERE id = $2`, parentID, id); err != nil {
			return classifyFolderError(fmt.Errorf("move folder: %w", err))
		}
		return nil
	})
}

func (s *Store) CountCurrentDocuments(ctx context.Context, folderID string) (int, error) {
	if !validID(folderID) {
		return 0, nil
	}
	var n int
	err := s.executor(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE folder_id = $1 AND is_current`, folderID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}
