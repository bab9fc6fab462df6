// Package repository declares the relational persistence contract shared by
// the Postgres, SQLite and in-memory backends.
package repository

import (
	"context"

	"github.com/kiabasekou/ged-project/internal/audit"
	"github.com/kiabasekou/ged-project/internal/model"
)

// DocumentRepository stores document versions. Implementations enforce the
// chain invariants themselves (unique content hash among originals, one
// current document per chain key, no branching) so that a racing writer is
// rejected even when it bypasses the manager's pre-checks.
type DocumentRepository interface {
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	// CurrentDocument returns the current version for a chain key or
	// model.ErrNotFound.
	CurrentDocument(ctx context.Context, key model.ChainKey) (*model.Document, error)
	// FindByContentHash returns the original (non-restored) document holding
	// hash, or model.ErrNotFound.
	FindByContentHash(ctx context.Context, hash string) (*model.Document, error)
	// InsertDocument stores a version 1 document. It fails with
	// *model.DuplicateContentError or model.ErrCurrentVersionExists.
	InsertDocument(ctx context.Context, doc *model.Document) error
	// TransitionVersion atomically clears IsCurrent on prevID, provided it is
	// still set, and inserts next. A lost race yields
	// *model.VersionConflictError and leaves nothing changed.
	TransitionVersion(ctx context.Context, prevID string, next *model.Document) error
	// ListCurrent returns current documents of a case ordered by name. A nil
	// folderID means every folder.
	ListCurrent(ctx context.Context, caseID string, folderID *string) ([]*model.Document, error)
	// ListByCase returns every version stored for a case.
	ListByCase(ctx context.Context, caseID string) ([]*model.Document, error)
	// ReferencedLocators returns the storage locator of every document.
	ReferencedLocators(ctx context.Context) (map[string]struct{}, error)
	// PayloadDigests maps the storage locator of every document to the
	// content hash its plaintext must match.
	PayloadDigests(ctx context.Context) (map[string]string, error)
}

// FolderRepository stores the folder tree.
type FolderRepository interface {
	// InsertFolder fails with model.ErrFolderNameTaken when a sibling has the
	// same name and with model.ErrFolderTooDeep when the folder would sit
	// below model.MaxFolderDepth.
	InsertFolder(ctx context.Context, f *model.Folder) error
	GetFolder(ctx context.Context, id string) (*model.Folder, error)
	ListChildFolders(ctx context.Context, parentID string) ([]*model.Folder, error)
	ListRootFolders(ctx context.Context, caseID string) ([]*model.Folder, error)
	// MoveFolder re-parents id. The ancestor check runs atomically with the
	// update and fails with model.ErrFolderCycle when parentID is id or one of
	// its descendants, and with model.ErrFolderTooDeep when the parent's depth
	// plus the height of id's subtree exceeds model.MaxFolderDepth.
	MoveFolder(ctx context.Context, id string, parentID *string) error
	CountCurrentDocuments(ctx context.Context, folderID string) (int, error)
}

// Store is a complete backend.
type Store interface {
	DocumentRepository
	FolderRepository
	audit.RecordStore
	Close() error
}
