// Package repotest is a conformance suite run against every repository
// backend so they all enforce the same chain and folder constraints.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiabasekou/ged-project/internal/audit"
	"github.com/kiabasekou/ged-project/internal/model"
	"github.com/kiabasekou/ged-project/internal/repository"
)

// Opener returns a fresh, empty store for one subtest.
type Opener func(t *testing.T) repository.Store

// Run executes the suite.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s repository.Store)
	}{
		{"InsertAndGet", testInsertAndGet},
		{"DuplicateContent", testDuplicateContent},
		{"SingleCurrentPerChain", testSingleCurrent},
		{"Transition", testTransition},
		{"TransitionOnStaleVersion", testTransitionStale},
		{"ConcurrentTransitions", testConcurrentTransitions},
		{"RestoredCopySharesHash", testRestoredCopy},
		{"Listings", testListings},
		{"Folders", testFolders},
		{"FolderMoves", testFolderMoves},
		{"FolderDepthLimit", testFolderDepthLimit},
		{"AuditRecords", testAuditRecords},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

var epoch = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

// NewDocument builds a valid version 1 document.
func NewDocument(caseID, name, hash string) *model.Document {
	return &model.Document{
		ID:             uuid.NewString(),
		CaseID:         caseID,
		Title:          name,
		OriginalName:   name,
		Extension:      model.Extension(name),
		ByteSize:       10,
		MediaType:      "text/plain",
		ContentHash:    hash,
		Version:        1,
		IsCurrent:      true,
		Sensitivity:    model.SensitivityInternal,
		StorageLocator: "ab/" + uuid.NewString() + ".enc",
		UploadedBy:     "alice",
		UploadedAt:     epoch,
	}
}

// NextVersion builds the successor of prev.
func NextVersion(prev *model.Document, hash string) *model.Document {
	next := prev.Clone()
	next.ID = uuid.NewString()
	next.ContentHash = hash
	next.Version = prev.Version + 1
	next.PreviousVersionID = model.StringPtr(prev.ID)
	next.RestoredFromID = nil
	next.IsCurrent = true
	next.StorageLocator = "cd/" + uuid.NewString() + ".enc"
	next.UploadedAt = prev.UploadedAt.Add(time.Minute)
	return next
}

func newFolder(caseID, name string, parent *string) *model.Folder {
	return &model.Folder{
		ID:        uuid.NewString(),
		CaseID:    caseID,
		ParentID:  parent,
		Name:      name,
		CreatedBy: "alice",
		CreatedAt: epoch,
	}
}

func testInsertAndGet(t *testing.T, s repository.Store) {
	ctx := context.Background()
	folder := newFolder("C1", "Pleadings", nil)
	require.NoError(t, s.InsertFolder(ctx, folder))

	doc := NewDocument("C1", "doc.txt", "h1")
	doc.FolderID = model.StringPtr(folder.ID)
	doc.Description = "first draft"
	doc.Sensitivity = model.SensitivitySecret
	retention := epoch.AddDate(5, 0, 0)
	doc.RetentionUntil = &retention
	require.NoError(t, s.InsertDocument(ctx, doc))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, folder.ID, *got.FolderID)
	assert.Equal(t, "first draft", got.Description)
	assert.Equal(t, model.SensitivitySecret, got.Sensitivity)
	assert.True(t, retention.Equal(*got.RetentionUntil))
	assert.True(t, epoch.Equal(got.UploadedAt))
	assert.Equal(t, doc.StorageLocator, got.StorageLocator)
	assert.Nil(t, got.PreviousVersionID)
	assert.Nil(t, got.RestoredFromID)

	cur, err := s.CurrentDocument(ctx, model.ChainKey{CaseID: "C1", OriginalName: "doc.txt"})
	require.NoError(t, err)
	assert.Equal(t, doc.ID, cur.ID)

	byHash, err := s.FindByContentHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, byHash.ID)

	_, err = s.GetDocument(ctx, uuid.NewString())
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.CurrentDocument(ctx, model.ChainKey{CaseID: "C1", OriginalName: "other.txt"})
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.FindByContentHash(ctx, "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func testDuplicateContent(t *testing.T, s repository.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertDocument(ctx, NewDocument("C1", "a.txt", "same")))
	err := s.InsertDocument(ctx, NewDocument("C2", "b.txt", "same"))
	assert.ErrorIs(t, err, model.ErrDuplicateContent)
}

func testSingleCurrent(t *testing.T, s repository.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertDocument(ctx, NewDocument("C1", "doc.txt", "h1")))
	err := s.InsertDocument(ctx, NewDocument("C1", "doc.txt", "h2"))
	assert.ErrorIs(t, err, model.ErrCurrentVersionExists)

	// Same name in another case is an independent chain.
	require.NoError(t, s.InsertDocument(ctx, NewDocument("C2", "doc.txt", "h3")))
	// Another name in the same case too.
	require.NoError(t, s.InsertDocument(ctx, NewDocument("C1", "other.txt", "h4")))
}

func testTransition(t *testing.T, s repository.Store) {
	ctx := context.Background()
	v1 := NewDocument("C1", "doc.txt", "h1")
	require.NoError(t, s.InsertDocument(ctx, v1))
	v2 := NextVersion(v1, "h2")
	require.NoError(t, s.TransitionVersion(ctx, v1.ID, v2))

	old, err := s.GetDocument(ctx, v1.ID)
	require.NoError(t, err)
	assert.False(t, old.IsCurrent)

	cur, err := s.CurrentDocument(ctx, v1.ChainKey())
	require.NoError(t, err)
	assert.Equal(t, v2.ID, cur.ID)
	assert.Equal(t, 2, cur.Version)
	assert.Equal(t, v1.ID, *cur.PreviousVersionID)
}

func testTransitionStale(t *testing.T, s repository.Store) {
	ctx := context.Background()
	v1 := NewDocument("C1", "doc.txt", "h1")
	require.NoError(t, s.InsertDocument(ctx, v1))
	require.NoError(t, s.TransitionVersion(ctx, v1.ID, NextVersion(v1, "h2")))

	stale := NextVersion(v1, "h3")
	err := s.TransitionVersion(ctx, v1.ID, stale)
	assert.ErrorIs(t, err, model.ErrVersionConflict)

	_, err = s.GetDocument(ctx, stale.ID)
	assert.ErrorIs(t, err, model.ErrNotFound, "losing insert must not persist")
}

func testConcurrentTransitions(t *testing.T, s repository.Store) {
	ctx := context.Background()
	v1 := NewDocument("C1", "doc.txt", "h1")
	require.NoError(t, s.InsertDocument(ctx, v1))

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		next := NextVersion(v1, "h2-"+uuid.NewString())
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.TransitionVersion(ctx, v1.ID, next)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case assert.ErrorIs(t, err, model.ErrVersionConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, conflicts)

	all, err := s.ListByCase(ctx, "C1")
	require.NoError(t, err)
	assert.Len(t, all, 2, "the chain never branches")
}

func testRestoredCopy(t *testing.T, s repository.Store) {
	ctx := context.Background()
	v1 := NewDocument("C1", "doc.txt", "h1")
	require.NoError(t, s.InsertDocument(ctx, v1))
	v2 := NextVersion(v1, "h2")
	require.NoError(t, s.TransitionVersion(ctx, v1.ID, v2))

	v3 := NextVersion(v2, "h1")
	v3.RestoredFromID = model.StringPtr(v1.ID)
	require.NoError(t, s.TransitionVersion(ctx, v2.ID, v3))

	got, err := s.GetDocument(ctx, v3.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, *got.RestoredFromID)

	byHash, err := s.FindByContentHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, v1.ID, byHash.ID, "hash lookup finds the original, not the copy")
}

func testListings(t *testing.T, s repository.Store) {
	ctx := context.Background()
	folder := newFolder("C1", "Evidence", nil)
	require.NoError(t, s.InsertFolder(ctx, folder))

	a := NewDocument("C1", "b.txt", "ha")
	a.FolderID = model.StringPtr(folder.ID)
	require.NoError(t, s.InsertDocument(ctx, a))
	b := NewDocument("C1", "a.txt", "hb")
	require.NoError(t, s.InsertDocument(ctx, b))
	require.NoError(t, s.InsertDocument(ctx, NewDocument("C2", "c.txt", "hc")))
	a2 := NextVersion(a, "ha2")
	require.NoError(t, s.TransitionVersion(ctx, a.ID, a2))

	cur, err := s.ListCurrent(ctx, "C1", nil)
	require.NoError(t, err)
	require.Len(t, cur, 2)
	assert.Equal(t, "a.txt", cur[0].OriginalName)
	assert.Equal(t, a2.ID, cur[1].ID)

	inFolder, err := s.ListCurrent(ctx, "C1", model.StringPtr(folder.ID))
	require.NoError(t, err)
	require.Len(t, inFolder, 1)
	assert.Equal(t, a2.ID, inFolder[0].ID)

	n, err := s.CountCurrentDocuments(ctx, folder.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := s.ListByCase(ctx, "C1")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	locs, err := s.ReferencedLocators(ctx)
	require.NoError(t, err)
	assert.Len(t, locs, 4)
	assert.Contains(t, locs, a.StorageLocator)

	digests, err := s.PayloadDigests(ctx)
	require.NoError(t, err)
	assert.Len(t, digests, 4)
	assert.Equal(t, "ha", digests[a.StorageLocator])
	assert.Equal(t, "ha2", digests[a2.StorageLocator])
}

func testFolders(t *testing.T, s repository.Store) {
	ctx := context.Background()
	root := newFolder("C1", "Root", nil)
	require.NoError(t, s.InsertFolder(ctx, root))
	child := newFolder("C1", "Child", model.StringPtr(root.ID))
	require.NoError(t, s.InsertFolder(ctx, child))
	require.NoError(t, s.InsertFolder(ctx, newFolder("C1", "Another", model.StringPtr(root.ID))))

	assert.ErrorIs(t, s.InsertFolder(ctx, newFolder("C1", "Child", model.StringPtr(root.ID))), model.ErrFolderNameTaken)
	assert.ErrorIs(t, s.InsertFolder(ctx, newFolder("C1", "Root", nil)), model.ErrFolderNameTaken)
	require.NoError(t, s.InsertFolder(ctx, newFolder("C2", "Root", nil)), "names are scoped per case")

	got, err := s.GetFolder(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, *got.ParentID)
	assert.Equal(t, "C1", got.CaseID)

	children, err := s.ListChildFolders(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "Another", children[0].Name)

	roots, err := s.ListRootFolders(ctx, "C1")
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, root.ID, roots[0].ID)

	_, err = s.GetFolder(ctx, uuid.NewString())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func testFolderMoves(t *testing.T, s repository.Store) {
	ctx := context.Background()
	a := newFolder("C1", "A", nil)
	b := newFolder("C1", "B", model.StringPtr(a.ID))
	c := newFolder("C1", "C", model.StringPtr(b.ID))
	d := newFolder("C1", "D", nil)
	for _, f := range []*model.Folder{a, b, c, d} {
		require.NoError(t, s.InsertFolder(ctx, f))
	}

	assert.ErrorIs(t, s.MoveFolder(ctx, a.ID, model.StringPtr(a.ID)), model.ErrFolderCycle)
	assert.ErrorIs(t, s.MoveFolder(ctx, a.ID, model.StringPtr(c.ID)), model.ErrFolderCycle)
	assert.ErrorIs(t, s.MoveFolder(ctx, a.ID, model.StringPtr(uuid.NewString())), model.ErrNotFound)

	require.NoError(t, s.MoveFolder(ctx, c.ID, model.StringPtr(d.ID)))
	got, err := s.GetFolder(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, *got.ParentID)

	require.NoError(t, s.MoveFolder(ctx, b.ID, nil))
	got, err = s.GetFolder(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ParentID)

	// A root named "D" already exists.
	dup := newFolder("C1", "D", model.StringPtr(a.ID))
	require.NoError(t, s.InsertFolder(ctx, dup))
	assert.ErrorIs(t, s.MoveFolder(ctx, dup.ID, nil), model.ErrFolderNameTaken)
}

// nestFolders creates a chain of n folders under parent and returns them
// top-down.
func nestFolders(t *testing.T, s repository.Store, caseID, prefix string, parent *string, n int) []*model.Folder {
	t.Helper()
	ctx := context.Background()
	chain := make([]*model.Folder, 0, n)
	for i := 0; i < n; i++ {
		f := newFolder(caseID, fmt.Sprintf("%s-%d", prefix, i+1), parent)
		require.NoError(t, s.InsertFolder(ctx, f), "level %d", i+1)
		chain = append(chain, f)
		parent = model.StringPtr(f.ID)
	}
	return chain
}

func testFolderDepthLimit(t *testing.T, s repository.Store) {
	ctx := context.Background()
	deep := nestFolders(t, s, "C1", "deep", nil, model.MaxFolderDepth)
	bottom := deep[len(deep)-1]

	err := s.InsertFolder(ctx, newFolder("C1", "too-deep", model.StringPtr(bottom.ID)))
	assert.ErrorIs(t, err, model.ErrFolderTooDeep)
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.NotErrorIs(t, err, model.ErrFolderCycle)

	// A two-level subtree fits under depth 62 but not under depth 63.
	sub := nestFolders(t, s, "C1", "sub", nil, 2)
	require.NoError(t, s.MoveFolder(ctx, sub[0].ID, model.StringPtr(deep[61].ID)))
	err = s.MoveFolder(ctx, sub[0].ID, model.StringPtr(deep[62].ID))
	assert.ErrorIs(t, err, model.ErrFolderTooDeep)
	assert.NotErrorIs(t, err, model.ErrFolderCycle)

	got, err := s.GetFolder(ctx, sub[0].ID)
	require.NoError(t, err)
	assert.Equal(t, deep[61].ID, *got.ParentID, "a rejected move leaves the folder in place")
}

func testAuditRecords(t *testing.T, s repository.Store) {
	ctx := context.Background()
	subject := audit.Subject{Type: audit.SubjectDocument, ID: uuid.NewString()}
	for i, action := range []audit.Action{audit.ActionCreate, audit.ActionDownload} {
		rec := audit.Record{
			Event: audit.Event{
				ID:          uuid.NewString(),
				Actor:       "alice",
				Subject:     subject,
				Action:      action,
				Description: string(action),
				Metadata:    map[string]any{"version": float64(i + 1)},
				Timestamp:   epoch.Add(time.Duration(i) * time.Second),
			},
			SensitiveHashes: map[string]string{"email": "abc"},
		}
		require.NoError(t, s.InsertAuditRecord(ctx, rec))
	}
	require.NoError(t, s.InsertAuditRecord(ctx, audit.Record{Event: audit.Event{
		ID: uuid.NewString(), Subject: audit.Subject{Type: audit.SubjectFolder, ID: "f"}, Action: audit.ActionCreate, Timestamp: epoch,
	}}))

	recs, err := s.ListAuditRecords(ctx, subject)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, audit.ActionDownload, recs[0].Action, "newest first")
	assert.Equal(t, float64(2), recs[0].Metadata["version"])
	assert.Equal(t, "abc", recs[0].SensitiveHashes["email"])
	assert.Equal(t, "alice", recs[0].Actor)
}
