// Package model contains the entities shared across the document store: the
// versioned Document, the Folder tree node and the error taxonomy.
package model

import (
	"path"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Sensitivity is policy metadata attached to a document. The store never
// interprets it beyond validating the value.
type Sensitivity string

const (
	SensitivityPublic       Sensitivity = "public"
	SensitivityInternal     Sensitivity = "internal"
	SensitivityConfidential Sensitivity = "confidential"
	SensitivitySecret       Sensitivity = "secret"
)

// Valid reports whether s is one of the known sensitivity levels.
func (s Sensitivity) Valid() bool {
	switch s {
	case SensitivityPublic, SensitivityInternal, SensitivityConfidential, SensitivitySecret:
		return true
	}
	return false
}

// Document is one stored version of an artifact. Versions of the same
// artifact are linked through PreviousVersionID and share a ChainKey.
type Document struct {
	ID                string      `json:"id" yaml:"id"`
	CaseID            string      `json:"caseId" yaml:"case_id"`
	FolderID          *string     `json:"folderId,omitempty" yaml:"folder_id,omitempty"`
	Title             string      `json:"title" yaml:"title"`
	Description       string      `json:"description,omitempty" yaml:"description,omitempty"`
	OriginalName      string      `json:"originalName" yaml:"original_name"`
	Extension         string      `json:"extension" yaml:"extension"`
	ByteSize          int64       `json:"byteSize" yaml:"byte_size"`
	MediaType         string      `json:"mediaType" yaml:"media_type"`
	ContentHash       string      `json:"contentHash" yaml:"content_hash"`
	Version           int         `json:"version" yaml:"version"`
	IsCurrent         bool        `json:"isCurrent" yaml:"is_current"`
	PreviousVersionID *string     `json:"previousVersionId,omitempty" yaml:"previous_version_id,omitempty"`
	RestoredFromID    *string     `json:"restoredFromId,omitempty" yaml:"restored_from_id,omitempty"`
	Sensitivity       Sensitivity `json:"sensitivity" yaml:"sensitivity"`
	RetentionUntil    *time.Time  `json:"retentionUntil,omitempty" yaml:"retention_until,omitempty"`
	// StorageLocator is internal to the encrypted backend and never leaves
	// the process in API responses.
	StorageLocator string    `json:"-" yaml:"-"`
	UploadedBy     string    `json:"uploadedBy" yaml:"uploaded_by"`
	UploadedAt     time.Time `json:"uploadedAt" yaml:"uploaded_at"`
}

// ChainKey identifies one version lineage.
type ChainKey struct {
	CaseID       string
	OriginalName string
}

// ChainKey returns the lineage the document belongs to.
func (d *Document) ChainKey() ChainKey {
	return ChainKey{CaseID: d.CaseID, OriginalName: d.OriginalName}
}

// Clone returns a deep copy so callers cannot alias repository state.
func (d *Document) Clone() *Document {
	c := *d
	c.FolderID = cloneString(d.FolderID)
	c.PreviousVersionID = cloneString(d.PreviousVersionID)
	c.RestoredFromID = cloneString(d.RestoredFromID)
	if d.RetentionUntil != nil {
		t := *d.RetentionUntil
		c.RetentionUntil = &t
	}
	return &c
}

// NormalizeName reduces a client supplied filename to its base name in
// Unicode NFC so that the same name typed on different systems maps to the
// same chain key.
func NormalizeName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	return norm.NFC.String(name)
}

// Extension returns the lower-cased extension of name including the dot.
func Extension(name string) string {
	return strings.ToLower(path.Ext(name))
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr is a small helper for optional string fields.
func StringPtr(s string) *string {
	return &s
}
