package postgres

import (
	"context"
	"fmt"

	"github.com/kiabasekou/ged-project/internal/audit"
)

// InsertAuditRecord stores metadata as JSONB. pgx encodes the maps with
// encoding/json, so numbers come back as float64.
func (s *Store) InsertAuditRecord(ctx context.Context, rec audit.Record) error {
	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	hashes := rec.SensitiveHashes
	if hashes == nil {
		hashes = map[string]string{}
	}
	_, err := s.executor(ctx).Exec(ctx, `INSERT INTO audit_records
		(id, actor, subject_type, subject_id, action, description, metadata, sensitive_hashes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.Actor, rec.Subject.Type, rec.Subject.ID, string(rec.Action), rec.Description,
		metadata, hashes, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *Store) ListAuditRecords(ctx context.Context, subject audit.Subject) ([]audit.Record, error) {
	rows, err := s.executor(ctx).Query(ctx, `SELECT id, actor, subject_type, subject_id, action, description,
		metadata, sensitive_hashes, created_at
		FROM audit_records WHERE subject_type = $1 AND subject_id = $2
		ORDER BY created_at DESC, id DESC`, subject.Type, subject.ID)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()
	var out []audit.Record
	for rows.Next() {
		var (
			rec    audit.Record
			action string
		)
		if err := rows.Scan(&rec.ID, &rec.Actor, &rec.Subject.Type, &rec.Subject.ID, &action,
			&rec.Description, &rec.Metadata, &rec.SensitiveHashes, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Action = audit.Action(action)
		rec.Timestamp = rec.Timestamp.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
