package document

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiabasekou/ged-project/internal/audit"
	"github.com/kiabasekou/ged-project/internal/blobstore"
	"github.com/kiabasekou/ged-project/internal/cipher"
	"github.com/kiabasekou/ged-project/internal/folder"
	"github.com/kiabasekou/ged-project/internal/media"
	"github.com/kiabasekou/ged-project/internal/metrics"
	"github.com/kiabasekou/ged-project/internal/model"
	"github.com/kiabasekou/ged-project/internal/repository"
	"github.com/kiabasekou/ged-project/internal/repository/memory"
)

type captured struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captured) Notify(_ context.Context, ev audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captured) actions() []audit.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audit.Action, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Action
	}
	return out
}

// failingMedium rejects writes while fail is set and reads while failGet is
// set.
type failingMedium struct {
	blobstore.Medium
	mu      sync.Mutex
	fail    bool
	failGet bool
}

func (f *failingMedium) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset by peer")
	}
	return f.Medium.Get(ctx, key)
}

func (f *failingMedium) Put(ctx context.Context, key string, data []byte) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.Medium.Put(ctx, key, data)
}

type fixture struct {
	mgr     *Manager
	repo    *memory.Store
	medium  *blobstore.MemoryMedium
	failing *failingMedium
	keyring *cipher.Keyring
	folders *folder.Service
	sink    *captured
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, wrap func(repository.DocumentRepository) repository.DocumentRepository) *fixture {
	t.Helper()
	key, err := cipher.GenerateKey()
	require.NoError(t, err)
	kr, err := cipher.NewKeyring(key)
	require.NoError(t, err)

	f := &fixture{
		repo:    memory.New(),
		medium:  blobstore.NewMemoryMedium(),
		keyring: kr,
		sink:    &captured{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.failing = &failingMedium{Medium: f.medium}
	notifier := audit.NewNotifier(f.sink, zerolog.Nop(), f.metrics)
	f.folders = folder.NewService(f.repo, nil, notifier, zerolog.Nop())
	var repo repository.DocumentRepository = f.repo
	if wrap != nil {
		repo = wrap(repo)
	}
	f.mgr = NewManager(Deps{
		Repo:     repo,
		Blobs:    blobstore.NewEncryptedStore(f.failing, kr),
		Folders:  f.folders,
		Policy:   media.DefaultPolicy(),
		Notifier: notifier,
		Metrics:  f.metrics,
		Logger:   zerolog.Nop(),
	})
	return f
}

func upload(content string) Upload {
	return Upload{Filename: "notes.txt", Content: []byte(content), MediaType: "text/plain"}
}

func TestCreateInitial(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	title := "Meeting notes"
	doc, err := f.mgr.CreateInitial(ctx, "alice", "C1", nil, Upload{Filename: `C:\tmp\notes.txt`, Content: []byte("hello")}, Metadata{Title: &title})
	require.NoError(t, err)

	assert.Equal(t, 1, doc.Version)
	assert.True(t, doc.IsCurrent)
	assert.Nil(t, doc.PreviousVersionID)
	assert.Equal(t, "notes.txt", doc.OriginalName)
	assert.Equal(t, "Meeting notes", doc.Title)
	assert.Equal(t, ".txt", doc.Extension)
	assert.Equal(t, int64(5), doc.ByteSize)
	assert.Equal(t, model.SensitivityInternal, doc.Sensitivity)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", doc.ContentHash)
	assert.True(t, blobstore.ValidLocator(doc.StorageLocator))

	raw, err := f.medium.Get(ctx, doc.StorageLocator)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hello")

	assert.Equal(t, []audit.Action{audit.ActionCreate}, f.sink.actions())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OperationsTotal.WithLabelValues("create", "ok")))
}

func TestCreateInitialRejects(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.mgr.CreateInitial(ctx, "alice", "C1", nil, upload("v1"), Metadata{})
	require.NoError(t, err)

	_, err = f.mgr.CreateInitial(ctx, "alice", "C1", nil, Upload{Filename: "other.txt", Content: []byte("v1")}, Metadata{})
	var dup *model.DuplicateContentError
	require.ErrorAs(t, err, &dup)
	assert.NotEmpty(t, dup.ExistingID)

	_, err = f.mgr.CreateInitial(ctx, "alice", "C2", nil, Upload{Filename: "other.txt", Content: []byte("v1")}, Metadata{})
	require.ErrorAs(t, err, &dup)
	assert.Empty(t, dup.ExistingID, "other case ids are not disclosed")

	_, err = f.mgr.CreateInitial(ctx, "alice", "C1", nil, upload("different"), Metadata{})
	assert.ErrorIs(t, err, model.ErrCurrentVersionExists)

	_, err = f.mgr.CreateInitial(ctx, "alice", "", nil, upload("x"), Metadata{})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.mgr.CreateInitial(ctx, "alice", "C1", nil, Upload{Filename: "evil.exe", Content: []byte("MZ")}, Metadata{})
	assert.ErrorIs(t, err, model.ErrValidation)

	bad := model.Sensitivity("top")
	_, err = f.mgr.CreateInitial(ctx, "alice", "C1", nil, Upload{Filename: "a.txt", Content: []byte("a")}, Metadata{Sensitivity: &bad})
	assert.ErrorIs(t, err, model.ErrValidation)

	other, err := f.folders.Create(ctx, "alice", "C2", "Elsewhere", nil)
	require.NoError(t, err)
	_, err = f.mgr.CreateInitial(ctx, "alice", "C1", &other.ID, Upload{Filename: "a.txt", Content: []byte("a")}, Metadata{})
	assert.ErrorIs(t, err, model.ErrValidation)

	assert.Equal(t, 1, f.medium.Len(), "rejected uploads store nothing")
}

func TestVersionRestoreScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	v1, err := f.mgr.CreateInitial(ctx, "alice", "C1", nil, upload("first draft"), Metadata{})
	require.NoError(t, err)
	desc := "second pass"
	v2, err := f.mgr.CreateNewVersion(ctx, "bob", v1.ID, Upload{Filename: "renamed.txt", Content: []byte("second draft")}, Metadata{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, v1.ID, *v2.PreviousVersionID)
	assert.Equal(t, "notes.txt", v2.OriginalName, "chain key fixes the name")
	assert.Equal(t, "bob", v2.UploadedBy)

	_, err = f.mgr.CreateNewVersion(ctx, "bob", v1.ID, upload("stale"), Metadata{})
	assert.ErrorIs(t, err, model.ErrNotCurrentVersion)
	_, err = f.mgr.Restore(ctx, "carol", v2.ID)
	assert.ErrorIs(t, err, model.ErrAlreadyCurrent)

	v3, err := f.mgr.Restore(ctx, "carol", v1.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, v3.Version)
	assert.Equal(t, v2.ID, *v3.PreviousVersionID)
	assert.Equal(t, v1.ID, *v3.RestoredFromID)
	assert.Equal(t, v1.ContentHash, v3.ContentHash)
	assert.NotEqual(t, v1.StorageLocator, v3.StorageLocator)

	chain, err := f.mgr.GetChain(ctx, v3.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{chain[0].Version, chain[1].Version, chain[2].Version})
	assert.True(t, chain[0].IsCurrent)
	assert.False(t, chain[1].IsCurrent)
	assert.False(t, chain[2].IsCurrent)

	history, err := f.mgr.History(ctx, v1.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	dl, err := f.mgr.Download(ctx, "dave", v3.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "first draft", string(dl.Content))
	assert.Equal(t, "notes.txt", dl.Filename)
	assert.Equal(t, "text/plain", dl.MediaType)

	current, err := f.mgr.ListCurrent(ctx, "C1", nil)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, v3.ID, current[0].ID)

	assert.Equal(t, []audit.Action{
		audit.ActionCreate, audit.ActionUpdate, audit.ActionRestore, audit.ActionDownload,
	}, f.sink.actions())
}

// barrierRepo holds every TransitionVersion until n callers have arrived so
// that they all race on the same current version.
type barrierRepo struct {
	repository.DocumentRepository
	wg *sync.WaitGroup
}

func (b barrierRepo) TransitionVersion(ctx context.Context, prevID string, next *model.Document) error {
	b.wg.Done()
	b.wg.Wait()
	return b.DocumentRepository.TransitionVersion(ctx, prevID, next)
}

func TestConcurrentNewVersions(t *testing.T) {
	var wg sync.WaitGroup
	f := newFixture(t, func(r repository.DocumentRepository) repository.DocumentRepository {
		return barrierRepo{DocumentRepository: r, wg: &wg}
	})
	ctx := context.Background()
	wg.Add(1)
	v1, err := f.mgr.CreateInitial(ctx, "alice", "C1", nil, upload("v1"), Metadata{})
	require.NoError(t, err)
	v2, err := f.mgr.CreateNewVersion(ctx, "alice", v1.ID, upload("v2"), Metadata{})
	require.NoError(t, err)

	wg.Add(2)
	errs := make([]error, 2)
	var done sync.WaitGroup
	for i := range errs {
		done.Add(1)
		go func(i int) {
			defer done.Done()
			_, errs[i] = f.mgr.CreateNewVersion(ctx, "alice", v2.ID, upload([]string{"v3-a", "v3-b"}[i]), Metadata{})
		}(i)
	}
	done.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, model.ErrVersionConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	chain, err := f.mgr.History(ctx, v2.ID)
	require.NoError(t, err)
	assert.Len(t, chain, 3)
	assert.Equal(t, 3, f.medium.Len(), "the losing payload is removed")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VersionConflicts))
}

func TestStorageFailureLeavesTargetCurrent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	v1, err := f.mgr.CreateInitial(ctx, "alice", "C1", nil, upload("v1"), Metadata{})
	require.NoError(t, err)

	f.failing.fail = true
	_, err = f.mgr.CreateNewVersion(ctx, "alice", v1.ID, upload("v2"), Metadata{})
	require.Error(t, err)

	got, err := f.mgr.Get(ctx, v1.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCurrent)
	chain, err := f.mgr.GetChain(ctx, v1.ID)
	require.NoError(t, err)
	assert.Len(t, chain, 1)
}

func TestTamperDetection(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc, err := f.mgr.CreateInitial(ctx, "alice", "C1", nil, upload("evidence"), Metadata{})
	require.NoError(t, err)

	ok, err := f.mgr.Verify(ctx, "auditor", doc.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.True(t, f.medium.Tamper(doc.StorageLocator, 40))
	ok, err = f.mgr.Verify(ctx, "auditor", doc.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.mgr.Download(ctx, "auditor", doc.ID, false)
	assert.ErrorIs(t, err, model.ErrDecryption)
	assert.True(t, model.IsIntegrityFailure(err))

	_, err = f.mgr.Verify(ctx, "auditor", "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	assert.Equal(t, []audit.Action{
		audit.ActionCreate,
		audit.ActionIntegrityCheck,
		audit.ActionIntegrityCheck, audit.ActionIntegrityFailure,
		audit.ActionIntegrityFailure,
	}, f.sink.actions())
}

func TestUnreadablePayloadIsNotTampering(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	v1, err := f.mgr.CreateInitial(ctx, "alice", "C1", nil, upload("first"), Metadata{})
	require.NoError(t, err)
	_, err = f.mgr.CreateNewVersion(ctx, "alice", v1.ID, upload("second"), Metadata{})
	require.NoError(t, err)

	f.failing.mu.Lock()
	f.failing.failGet = true
	f.failing.mu.Unlock()

	ok, err := f.mgr.Verify(ctx, "auditor", v1.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	report, err := f.mgr.VerifyCase(ctx, "auditor", "C1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	require.Len(t, report.Failures, 2)
	assert.Contains(t, report.Failures[0].Reason, "connection reset by peer")

	_, err = f.mgr.Restore(ctx, "alice", v1.ID)
	require.Error(t, err)
	assert.False(t, model.IsIntegrityFailure(err))

	_, err = f.mgr.Download(ctx, "alice", v1.ID, true)
	require.Error(t, err)
	assert.False(t, model.IsIntegrityFailure(err))

	assert.NotContains(t, f.sink.actions(), audit.ActionIntegrityFailure)
	assert.Zero(t, testutil.ToFloat64(f.metrics.IntegrityFailures))
}

func TestDigestMismatch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc, err := f.mgr.CreateInitial(ctx, "alice", "C1", nil, upload("original"), Metadata{})
	require.NoError(t, err)

	sealed, err := f.keyring.Encrypt([]byte("substituted"))
	require.NoError(t, err)
	require.NoError(t, f.medium.Put(ctx, doc.StorageLocator, sealed))

	_, err = f.mgr.Download(ctx, "alice", doc.ID, true)
	var mismatch *model.IntegrityMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, doc.ID, mismatch.DocumentID)
	assert.Equal(t, doc.ContentHash, mismatch.Expected)

	dl, err := f.mgr.Download(ctx, "alice", doc.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "substituted", string(dl.Content))

	_, err = f.mgr.CreateNewVersion(ctx, "alice", doc.ID, upload("v2"), Metadata{})
	require.NoError(t, err)
	_, err = f.mgr.Restore(ctx, "alice", doc.ID)
	assert.ErrorIs(t, err, model.ErrIntegrityMismatch)
}

func TestVerifyCase(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a, err := f.mgr.CreateInitial(ctx, "alice", "C1", nil, Upload{Filename: "a.txt", Content: []byte("a")}, Metadata{})
	require.NoError(t, err)
	_, err = f.mgr.CreateNewVersion(ctx, "alice", a.ID, Upload{Content: []byte("a2")}, Metadata{})
	require.NoError(t, err)
	b, err := f.mgr.CreateInitial(ctx, "alice", "C1", nil, Upload{Filename: "b.txt", Content: []byte("b")}, Metadata{})
	require.NoError(t, err)
	require.NoError(t, f.medium.Delete(ctx, b.StorageLocator))

	report, err := f.mgr.VerifyCase(ctx, "auditor", "C1")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, 2, report.Intact)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, b.ID, report.Failures[0].DocumentID)
	assert.Equal(t, "payload missing", report.Failures[0].Reason)
}

// skewedRepo reports a different version number for selected documents.
type skewedRepo struct {
	repository.DocumentRepository
	versions map[string]int
}

func (r skewedRepo) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	doc, err := r.DocumentRepository.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if v, ok := r.versions[id]; ok {
		doc.Version = v
	}
	return doc, nil
}

func TestGetChainRejectsVersionGap(t *testing.T) {
	skew := skewedRepo{versions: map[string]int{}}
	f := newFixture(t, func(r repository.DocumentRepository) repository.DocumentRepository {
		skew.DocumentRepository = r
		return skew
	})
	ctx := context.Background()
	v1, err := f.mgr.CreateInitial(ctx, "alice", "C1", nil, upload("one"), Metadata{})
	require.NoError(t, err)
	v2, err := f.mgr.CreateNewVersion(ctx, "alice", v1.ID, upload("two"), Metadata{})
	require.NoError(t, err)

	chain, err := f.mgr.GetChain(ctx, v2.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)

	skew.versions[v2.ID] = 3
	_, err = f.mgr.GetChain(ctx, v2.ID)
	assert.ErrorContains(t, err, "corrupt chain")
}

func TestRekeySkipsTamperedContent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	good, err := f.mgr.CreateInitial(ctx, "alice", "C1", nil, upload("keep me"), Metadata{})
	require.NoError(t, err)
	bad, err := f.mgr.CreateInitial(ctx, "alice", "C1", nil, Upload{Filename: "other.txt", Content: []byte("genuine")}, Metadata{})
	require.NoError(t, err)

	substituted, err := f.keyring.Encrypt([]byte("forged"))
	require.NoError(t, err)
	require.NoError(t, f.medium.Put(ctx, bad.StorageLocator, substituted))

	report, err := f.mgr.Rekey(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rewritten)
	assert.Equal(t, []string{bad.StorageLocator}, report.Failed)

	stored, err := f.medium.Get(ctx, bad.StorageLocator)
	require.NoError(t, err)
	assert.Equal(t, substituted, stored, "a payload failing its digest is not re-sealed")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IntegrityFailures))

	dl, err := f.mgr.Download(ctx, "alice", good.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(dl.Content))
}

func TestRekey(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc, err := f.mgr.CreateInitial(ctx, "alice", "C1", nil, upload("rotate me"), Metadata{})
	require.NoError(t, err)

	report, err := f.mgr.Rekey(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rewritten)
	assert.Empty(t, report.Failed)

	dl, err := f.mgr.Download(ctx, "alice", doc.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "rotate me", string(dl.Content))
}
