// Package memory contains the in-memory metadata backend. It enforces the
// same constraints as the relational schemas and is used by tests and by
// servers started without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kiabasekou/ged-project/internal/audit"
	"github.com/kiabasekou/ged-project/internal/model"
	"github.com/kiabasekou/ged-project/internal/repository"
)

// Store keeps metadata in maps guarded by a RWMutex: lookups take the read
// lock, every mutation takes the write lock so check-then-write is atomic.
type Store struct {
	mu        sync.RWMutex
	documents map[string]*model.Document
	current   map[model.ChainKey]string
	hashes    map[string]string // content hash -> original document id
	successor map[string]string // previous_version_id -> id
	folders   map[string]*model.Folder
	audit     []audit.Record
}

var _ repository.Store = (*Store)(nil)

// New constructs an empty Store.
func New() *Store {
	return &Store{
		documents: make(map[string]*model.Document),
		current:   make(map[model.ChainKey]string),
		hashes:    make(map[string]string),
		successor: make(map[string]string),
		folders:   make(map[string]*model.Folder),
	}
}

func (s *Store) Close() error { return nil }

// GetDocument returns a copy so callers cannot mutate stored state.
func (s *Store) GetDocument(_ context.Context, id string) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *Store) CurrentDocument(_ context.Context, key model.ChainKey) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.current[key]
	if !ok {
		return nil, model.ErrNotFound
	}
	return s.documents[id].Clone(), nil
}

func (s *Store) FindByContentHash(_ context.Context, hash string) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.hashes[hash]
	if !ok {
		return nil, model.ErrNotFound
	}
	return s.documents[id].Clone(), nil
}

func (s *Store) InsertDocument(_ context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkInsertLocked(doc); err != nil {
		return err
	}
	if _, ok := s.current[doc.ChainKey()]; ok && doc.IsCurrent {
		return model.ErrCurrentVersionExists
	}
	s.insertLocked(doc)
	return nil
}

func (s *Store) TransitionVersion(_ context.Context, prevID string, next *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.documents[prevID]
	if !ok {
		return model.ErrNotFound
	}
	if next.CaseID != prev.CaseID || next.Version != prev.Version+1 ||
		next.PreviousVersionID == nil || *next.PreviousVersionID != prevID {
		return fmt.Errorf("%w: document does not continue chain of %s", model.ErrValidation, prevID)
	}
	if !prev.IsCurrent {
		return &model.VersionConflictError{DocumentID: prevID, Key: prev.ChainKey()}
	}
	if _, taken := s.successor[prevID]; taken {
		return &model.VersionConflictError{DocumentID: prevID, Key: prev.ChainKey()}
	}
	if err := s.checkInsertLocked(next); err != nil {
		return err
	}
	if next.ChainKey() != prev.ChainKey() {
		// Another chain's current flag would be affected.
		if _, ok := s.current[next.ChainKey()]; ok {
			return model.ErrCurrentVersionExists
		}
	}
	prev.IsCurrent = false
	delete(s.current, prev.ChainKey())
	s.insertLocked(next)
	return nil
}

func (s *Store) checkInsertLocked(doc *model.Document) error {
	if _, ok := s.documents[doc.ID]; ok {
		return model.ErrVersionConflict
	}
	if doc.RestoredFromID == nil {
		if existing, ok := s.hashes[doc.ContentHash]; ok {
			return &model.DuplicateContentError{ContentHash: doc.ContentHash, ExistingID: s.sameCase(existing, doc.CaseID)}
		}
	}
	if doc.PreviousVersionID != nil {
		if _, ok := s.successor[*doc.PreviousVersionID]; ok {
			return &model.VersionConflictError{DocumentID: *doc.PreviousVersionID, Key: doc.ChainKey()}
		}
	}
	return nil
}

func (s *Store) sameCase(id, caseID string) string {
	if d, ok := s.documents[id]; ok && d.CaseID == caseID {
		return id
	}
	return ""
}

func (s *Store) insertLocked(doc *model.Document) {
	stored := doc.Clone()
	s.documents[stored.ID] = stored
	if stored.IsCurrent {
		s.current[stored.ChainKey()] = stored.ID
	}
	if stored.RestoredFromID == nil {
		s.hashes[stored.ContentHash] = stored.ID
	}
	if stored.PreviousVersionID != nil {
		s.successor[*stored.PreviousVersionID] = stored.ID
	}
}

func (s *Store) ListCurrent(_ context.Context, caseID string, folderID *string) ([]*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Document
	for key, id := range s.current {
		if key.CaseID != caseID {
			continue
		}
		doc := s.documents[id]
		if folderID != nil && (doc.FolderID == nil || *doc.FolderID != *folderID) {
			continue
		}
		out = append(out, doc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OriginalName < out[j].OriginalName })
	return out, nil
}

func (s *Store) ListByCase(_ context.Context, caseID string) ([]*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Document
	for _, doc := range s.documents {
		if doc.CaseID == caseID {
			out = append(out, doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OriginalName != out[j].OriginalName {
			return out[i].OriginalName < out[j].OriginalName
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

func (s *Store) ReferencedLocators(_ context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.documents))
	for _, doc := range s.documents {
		out[doc.StorageLocator] = struct{}{}
	}
	return out, nil
}

func (s *Store) PayloadDigests(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.documents))
	for _, doc := range s.documents {
		out[doc.StorageLocator] = doc.ContentHash
	}
	return out, nil
}

func (s *Store) InsertFolder(_ context.Context, f *model.Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ParentID != nil {
		depth, err := s.depthLocked(*f.ParentID)
		if err != nil {
			return err
		}
		if depth+1 > model.MaxFolderDepth {
			return model.ErrFolderTooDeep
		}
	}
	if s.siblingNameTakenLocked(f.CaseID, f.ParentID, f.Name, "") {
		return model.ErrFolderNameTaken
	}
	s.folders[f.ID] = f.Clone()
	return nil
}

// depthLocked returns the depth of id, counting a root folder as 1.
func (s *Store) depthLocked(id string) (int, error) {
	f, ok := s.folders[id]
	if !ok {
		return 0, model.ErrNotFound
	}
	depth := 1
	for f.ParentID != nil {
		if depth >= model.MaxFolderDepth {
			return 0, model.ErrFolderCycle
		}
		if f, ok = s.folders[*f.ParentID]; !ok {
			break
		}
		depth++
	}
	return depth, nil
}

// heightLocked returns the number of levels in the subtree rooted at id,
// 1 for a folder without children.
func (s *Store) heightLocked(id string) int {
	children := make(map[string][]string)
	for _, f := range s.folders {
		if f.ParentID != nil {
			children[*f.ParentID] = append(children[*f.ParentID], f.ID)
		}
	}
	height := 0
	level := []string{id}
	for len(level) > 0 && height <= model.MaxFolderDepth {
		height++
		var next []string
		for _, fid := range level {
			next = append(next, children[fid]...)
		}
		level = next
	}
	return height
}

func (s *Store) siblingNameTakenLocked(caseID string, parentID *string, name, exceptID string) bool {
	for _, other := range s.folders {
		if other.ID == exceptID || other.CaseID != caseID || other.Name != name {
			continue
		}
		if sameParent(other.ParentID, parentID) {
			return true
		}
	}
	return false
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *Store) GetFolder(_ context.Context, id string) (*model.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.folders[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return f.Clone(), nil
}

func (s *Store) ListChildFolders(_ context.Context, parentID string) ([]*model.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Folder
	for _, f := range s.folders {
		if f.ParentID != nil && *f.ParentID == parentID {
			out = append(out, f.Clone())
		}
	}
	sortFolders(out)
	return out, nil
}

func (s *Store) ListRootFolders(_ context.Context, caseID string) ([]*model.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Folder
	for _, f := range s.folders {
		if f.CaseID == caseID && f.ParentID == nil {
			out = append(out, f.Clone())
		}
	}
	sortFolders(out)
	return out, nil
}

func sortFolders(fs []*model.Folder) {
	sort.Slice(fs, func(i, j int) bool { return fs[i].Name < fs[j].Name })
}

func (s *Store) MoveFolder(_ context.Context, id string, parentID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.folders[id]
	if !ok {
		return model.ErrNotFound
	}
	if parentID != nil {
		if _, ok := s.folders[*parentID]; !ok {
			return model.ErrNotFound
		}
		// Walk up from the new parent; meeting id means a cycle.
		cur := parentID
		for depth := 0; cur != nil; depth++ {
			if *cur == id || depth > model.MaxFolderDepth {
				return model.ErrFolderCycle
			}
			next, ok := s.folders[*cur]
			if !ok {
				break
			}
			cur = next.ParentID
		}
		depth, err := s.depthLocked(*parentID)
		if err != nil {
			return err
		}
		if depth+s.heightLocked(id) > model.MaxFolderDepth {
			return model.ErrFolderTooDeep
		}
	}
	if s.siblingNameTakenLocked(f.CaseID, parentID, f.Name, id) {
		return model.ErrFolderNameTaken
	}
	if parentID != nil {
		p := *parentID
		parentID = &p
	}
	f.ParentID = parentID
	return nil
}

func (s *Store) CountCurrentDocuments(_ context.Context, folderID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, id := range s.current {
		if doc := s.documents[id]; doc.FolderID != nil && *doc.FolderID == folderID {
			n++
		}
	}
	return n, nil
}

func (s *Store) InsertAuditRecord(_ context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, rec)
	return nil
}

// ListAuditRecords returns records for subject, newest first.
func (s *Store) ListAuditRecords(_ context.Context, subject audit.Subject) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Record
	for i := len(s.audit) - 1; i >= 0; i-- {
		if s.audit[i].Subject == subject {
			out = append(out, s.audit[i])
		}
	}
	return out, nil
}
