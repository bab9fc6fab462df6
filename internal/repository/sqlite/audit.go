package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kiabasekou/ged-project/internal/audit"
)

func (s *Store) InsertAuditRecord(ctx context.Context, rec audit.Record) error {
	metadata, err := json.Marshal(orEmpty(rec.Metadata))
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	hashes, err := json.Marshal(orEmptyHashes(rec.SensitiveHashes))
	if err != nil {
		return fmt.Errorf("encode audit hashes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO audit_records
		(id, actor, subject_type, subject_id, action, description, metadata, sensitive_hashes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Actor, rec.Subject.Type, rec.Subject.ID, string(rec.Action), rec.Description,
		string(metadata), string(hashes), rec.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *Store) ListAuditRecords(ctx context.Context, subject audit.Subject) ([]audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, actor, subject_type, subject_id, action, description,
		metadata, sensitive_hashes, created_at
		FROM audit_records WHERE subject_type = ? AND subject_id = ?
		ORDER BY created_at DESC, rowid DESC`, subject.Type, subject.ID)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()
	var out []audit.Record
	for rows.Next() {
		var (
			rec              audit.Record
			action           string
			metadata, hashes string
		)
		if err := rows.Scan(&rec.ID, &rec.Actor, &rec.Subject.Type, &rec.Subject.ID, &action,
			&rec.Description, &metadata, &hashes, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Action = audit.Action(action)
		rec.Timestamp = rec.Timestamp.UTC()
		if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata: %w", err)
		}
		if err := json.Unmarshal([]byte(hashes), &rec.SensitiveHashes); err != nil {
			return nil, fmt.Errorf("decode audit hashes: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptyHashes(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
