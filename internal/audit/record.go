package audit

import (
	"context"
	"encoding/hex"
	"fmt"
	"maps"

	"github.com/minio/sha256-simd"
)

// Redacted replaces sensitive metadata values in persisted records.
const Redacted = "***REDACTED***"

// SensitiveFields are metadata keys that never reach storage in clear text.
var SensitiveFields = []string{
	"ni_number", "nif", "rccm", "date_of_birth", "place_of_birth",
	"email", "phone_primary", "phone_secondary", "address_line",
	"password", "social_security", "bank_account",
}

// Record is an event as persisted: anonymized metadata plus the SHA-256 of
// each sensitive value, so a value can later be matched without storing it.
type Record struct {
	Event
	SensitiveHashes map[string]string `json:"sensitiveHashes,omitempty" yaml:"sensitive_hashes,omitempty"`
}

// MatchesSensitive reports whether value hashes to the stored digest of field.
func (r *Record) MatchesSensitive(field, value string) bool {
	h, ok := r.SensitiveHashes[field]
	return ok && h == hashValue(value)
}

// Anonymize returns a copy of metadata with sensitive values redacted, plus
// the hashes of the redacted values. The input map is not modified.
func Anonymize(metadata map[string]any) (map[string]any, map[string]string) {
	if len(metadata) == 0 {
		return metadata, nil
	}
	out := maps.Clone(metadata)
	var hashes map[string]string
	for _, field := range SensitiveFields {
		v, ok := out[field]
		if !ok {
			continue
		}
		s := fmt.Sprint(v)
		if hashes == nil {
			hashes = make(map[string]string)
		}
		hashes[field] = hashValue(s)
		if s != "" {
			out[field] = Redacted
		}
	}
	return out, hashes
}

func hashValue(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// RecordStore persists audit records. The relational repositories implement it.
type RecordStore interface {
	InsertAuditRecord(ctx context.Context, rec Record) error
	ListAuditRecords(ctx context.Context, subject Subject) ([]Record, error)
}

// RecordSink anonymizes events and writes them to a RecordStore.
type RecordSink struct {
	store RecordStore
}

// NewRecordSink builds a RecordSink.
func NewRecordSink(store RecordStore) *RecordSink {
	return &RecordSink{store: store}
}

func (s *RecordSink) Notify(ctx context.Context, ev Event) error {
	rec := Record{Event: ev}
	rec.Metadata, rec.SensitiveHashes = Anonymize(ev.Metadata)
	if err := s.store.InsertAuditRecord(ctx, rec); err != nil {
		return fmt.Errorf("persist audit record: %w", err)
	}
	return nil
}
