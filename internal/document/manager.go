// Package document implements the version chain: uploads, new versions,
// restores, history, integrity checks and downloads. It owns the ordering of
// blob writes and metadata commits; the repository owns the atomic flip of
// the current flag.
package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kiabasekou/ged-project/internal/audit"
	"github.com/kiabasekou/ged-project/internal/blobstore"
	"github.com/kiabasekou/ged-project/internal/integrity"
	"github.com/kiabasekou/ged-project/internal/media"
	"github.com/kiabasekou/ged-project/internal/metrics"
	"github.com/kiabasekou/ged-project/internal/model"
	"github.com/kiabasekou/ged-project/internal/repository"
)

// Upload is the file part of a create or new-version request.
type Upload struct {
	Filename  string
	Content   []byte
	MediaType string
}

// Metadata carries the optional descriptive fields of a request. Nil fields
// keep their default on create and the previous version's value on update.
type Metadata struct {
	Title          *string
	Description    *string
	Sensitivity    *model.Sensitivity
	RetentionUntil *time.Time
	FolderID       *string
}

// Validate checks the fields that are set.
func (m Metadata) Validate() error {
	err := validation.ValidateStruct(&m,
		validation.Field(&m.Title, validation.RuneLength(0, 255)),
		validation.Field(&m.Description, validation.RuneLength(0, 4000)),
		validation.Field(&m.Sensitivity, validation.In(
			model.SensitivityPublic, model.SensitivityInternal,
			model.SensitivityConfidential, model.SensitivitySecret,
		).Error("unknown sensitivity")),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	return nil
}

// FolderChecker is the ownership contract the manager needs from the folder
// hierarchy and the case directory behind it.
type FolderChecker interface {
	CaseExists(ctx context.Context, caseID string) (bool, error)
	BelongsToCase(ctx context.Context, folderID, caseID string) (bool, error)
}

// Deps groups the collaborators of a Manager.
type Deps struct {
	Repo     repository.DocumentRepository
	Blobs    *blobstore.EncryptedStore
	Folders  FolderChecker
	Policy   media.Policy
	Notifier *audit.Notifier
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// Manager runs the document operations.
type Manager struct {
	repo     repository.DocumentRepository
	blobs    *blobstore.EncryptedStore
	verifier *integrity.Verifier
	folders  FolderChecker
	policy   media.Policy
	notify   *audit.Notifier
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
}

// NewManager builds a Manager.
func NewManager(d Deps) *Manager {
	return &Manager{
		repo:     d.Repo,
		blobs:    d.Blobs,
		verifier: integrity.NewVerifier(d.Blobs),
		folders:  d.Folders,
		policy:   d.Policy,
		notify:   d.Notifier,
		metrics:  d.Metrics,
		log:      d.Logger,
		now:      time.Now,
	}
}

// CreateInitial stores the first version of a new document.
func (m *Manager) CreateInitial(ctx context.Context, actor, caseID string, folderID *string, up Upload, meta Metadata) (doc *model.Document, err error) {
	defer m.observe("create", time.Now(), &err)

	caseID = strings.TrimSpace(caseID)
	if err := m.requireCase(ctx, caseID); err != nil {
		return nil, err
	}
	if folderID == nil {
		folderID = meta.FolderID
	}
	if err := m.requireFolder(ctx, folderID, caseID); err != nil {
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	report, err := m.policy.Inspect(up.Filename, up.MediaType, up.Content)
	if err != nil {
		return nil, err
	}
	hash := integrity.Digest(up.Content)
	if err := m.rejectDuplicate(ctx, hash, caseID); err != nil {
		return nil, err
	}
	key := model.ChainKey{CaseID: caseID, OriginalName: report.Name}
	if _, err := m.repo.CurrentDocument(ctx, key); err == nil {
		return nil, fmt.Errorf("%w: %q in case %s", model.ErrCurrentVersionExists, report.Name, caseID)
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("look up current version: %w", err)
	}

	locator, err := m.blobs.Save(ctx, up.Content)
	if err != nil {
		return nil, fmt.Errorf("store payload: %w", err)
	}
	doc = &model.Document{
		ID:             uuid.NewString(),
		CaseID:         caseID,
		FolderID:       folderID,
		Title:          report.Name,
		OriginalName:   report.Name,
		Extension:      report.Extension,
		ByteSize:       report.Size,
		MediaType:      report.MediaType,
		ContentHash:    hash,
		Version:        1,
		IsCurrent:      true,
		Sensitivity:    model.SensitivityInternal,
		StorageLocator: locator,
		UploadedBy:     actor,
		UploadedAt:     m.now().UTC(),
	}
	applyMetadata(doc, meta)
	if err := m.repo.InsertDocument(ctx, doc); err != nil {
		m.discard(ctx, locator)
		return nil, m.fillDuplicate(ctx, err, caseID)
	}

	m.log.Info().Str("document_id", doc.ID).Str("case_id", caseID).Str("name", doc.OriginalName).Msg("document created")
	m.notify.Notify(ctx, actor, documentSubject(doc.ID), audit.ActionCreate,
		fmt.Sprintf("uploaded %q", doc.OriginalName), uploadMetadata(doc, report))
	return doc.Clone(), nil
}

// CreateNewVersion appends a version after currentID. The payload is written
// before the metadata transaction, so a storage failure leaves the chain
// untouched and a failed commit leaves only an orphan blob.
func (m *Manager) CreateNewVersion(ctx context.Context, actor, currentID string, up Upload, meta Metadata) (doc *model.Document, err error) {
	defer m.observe("new_version", time.Now(), &err)

	target, err := m.repo.GetDocument(ctx, currentID)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", currentID, err)
	}
	if !target.IsCurrent {
		return nil, fmt.Errorf("document %s: %w", currentID, model.ErrNotCurrentVersion)
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if err := m.requireFolder(ctx, meta.FolderID, target.CaseID); err != nil {
		return nil, err
	}
	// The chain key fixes the name; the uploaded filename only matters for
	// the audit trail.
	report, err := m.policy.Inspect(target.OriginalName, up.MediaType, up.Content)
	if err != nil {
		return nil, err
	}
	hash := integrity.Digest(up.Content)
	if err := m.rejectDuplicate(ctx, hash, target.CaseID); err != nil {
		return nil, err
	}

	locator, err := m.blobs.Save(ctx, up.Content)
	if err != nil {
		return nil, fmt.Errorf("store payload: %w", err)
	}
	next := successor(target, actor, m.now())
	next.ContentHash = hash
	next.ByteSize = report.Size
	next.MediaType = report.MediaType
	next.StorageLocator = locator
	applyMetadata(next, meta)

	if err := m.repo.TransitionVersion(ctx, target.ID, next); err != nil {
		m.discard(ctx, locator)
		return nil, m.fillDuplicate(ctx, err, target.CaseID)
	}

	m.log.Info().Str("document_id", next.ID).Int("version", next.Version).Str("previous_id", target.ID).Msg("document version created")
	md := uploadMetadata(next, report)
	md["previous_version_id"] = target.ID
	if name := model.NormalizeName(up.Filename); name != "" && name != next.OriginalName {
		md["uploaded_name"] = name
	}
	m.notify.Notify(ctx, actor, documentSubject(next.ID), audit.ActionUpdate,
		fmt.Sprintf("new version %d of %q", next.Version, next.OriginalName), md)
	return next.Clone(), nil
}

// Restore makes the content of an older version current again by appending
// a copy of it to the chain.
func (m *Manager) Restore(ctx context.Context, actor, oldID string) (doc *model.Document, err error) {
	defer m.observe("restore", time.Now(), &err)

	old, err := m.repo.GetDocument(ctx, oldID)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", oldID, err)
	}
	if old.IsCurrent {
		return nil, fmt.Errorf("document %s: %w", oldID, model.ErrAlreadyCurrent)
	}
	current, err := m.repo.CurrentDocument(ctx, old.ChainKey())
	if err != nil {
		return nil, fmt.Errorf("get current version of %q: %w", old.OriginalName, err)
	}
	plaintext, err := m.verifier.Read(ctx, old.StorageLocator, old.ContentHash)
	if err != nil {
		err = withDocument(err, old.ID)
		if model.IsIntegrityFailure(err) {
			m.integrityFailed(ctx, actor, old, err)
		}
		return nil, fmt.Errorf("read version %d: %w", old.Version, err)
	}

	locator, err := m.blobs.Save(ctx, plaintext)
	if err != nil {
		return nil, fmt.Errorf("store payload: %w", err)
	}
	next := successor(current, actor, m.now())
	next.Title = old.Title
	next.Description = old.Description
	next.ContentHash = old.ContentHash
	next.ByteSize = old.ByteSize
	next.MediaType = old.MediaType
	next.StorageLocator = locator
	next.RestoredFromID = model.StringPtr(old.ID)

	if err := m.repo.TransitionVersion(ctx, current.ID, next); err != nil {
		m.discard(ctx, locator)
		return nil, err
	}

	m.log.Info().Str("document_id", next.ID).Int("version", next.Version).Str("restored_from", old.ID).Msg("document version restored")
	m.notify.Notify(ctx, actor, documentSubject(next.ID), audit.ActionRestore,
		fmt.Sprintf("restored version %d of %q as version %d", old.Version, next.OriginalName, next.Version),
		map[string]any{
			"version":               next.Version,
			"restored_from_id":      old.ID,
			"restored_from_version": old.Version,
			"previous_version_id":   current.ID,
			"content_hash":          next.ContentHash,
		})
	return next.Clone(), nil
}

// successor copies prev into the next chain position.
func successor(prev *model.Document, actor string, now time.Time) *model.Document {
	next := prev.Clone()
	next.ID = uuid.NewString()
	next.Version = prev.Version + 1
	next.IsCurrent = true
	next.PreviousVersionID = model.StringPtr(prev.ID)
	next.RestoredFromID = nil
	next.UploadedBy = actor
	next.UploadedAt = now.UTC()
	return next
}

func applyMetadata(doc *model.Document, meta Metadata) {
	if meta.Title != nil && strings.TrimSpace(*meta.Title) != "" {
		doc.Title = strings.TrimSpace(*meta.Title)
	}
	if meta.Description != nil {
		doc.Description = *meta.Description
	}
	if meta.Sensitivity != nil {
		doc.Sensitivity = *meta.Sensitivity
	}
	if meta.RetentionUntil != nil {
		t := meta.RetentionUntil.UTC()
		doc.RetentionUntil = &t
	}
	if meta.FolderID != nil {
		doc.FolderID = model.StringPtr(*meta.FolderID)
	}
}

func (m *Manager) requireCase(ctx context.Context, caseID string) error {
	if caseID == "" {
		return fmt.Errorf("%w: case id is required", model.ErrValidation)
	}
	ok, err := m.folders.CaseExists(ctx, caseID)
	if err != nil {
		return fmt.Errorf("look up case: %w", err)
	}
	if !ok {
		return fmt.Errorf("case %q: %w", caseID, model.ErrNotFound)
	}
	return nil
}

func (m *Manager) requireFolder(ctx context.Context, folderID *string, caseID string) error {
	if folderID == nil {
		return nil
	}
	ok, err := m.folders.BelongsToCase(ctx, *folderID, caseID)
	if err != nil {
		return fmt.Errorf("look up folder: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: folder %s does not belong to case %s", model.ErrValidation, *folderID, caseID)
	}
	return nil
}

func (m *Manager) rejectDuplicate(ctx context.Context, hash, caseID string) error {
	existing, err := m.repo.FindByContentHash(ctx, hash)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up content hash: %w", err)
	}
	dup := &model.DuplicateContentError{ContentHash: hash}
	if existing.CaseID == caseID {
		dup.ExistingID = existing.ID
	}
	return dup
}

// fillDuplicate resolves the existing document for a duplicate reported by
// the repository after a lost race.
func (m *Manager) fillDuplicate(ctx context.Context, err error, caseID string) error {
	var dup *model.DuplicateContentError
	if !errors.As(err, &dup) || dup.ExistingID != "" {
		return err
	}
	if existing, ferr := m.repo.FindByContentHash(ctx, dup.ContentHash); ferr == nil && existing.CaseID == caseID {
		dup.ExistingID = existing.ID
	}
	return err
}

// discard removes a payload whose metadata never committed. Failures are
// left to the orphan collector.
func (m *Manager) discard(ctx context.Context, locator string) {
	if err := m.blobs.Delete(context.WithoutCancel(ctx), locator); err != nil {
		m.log.Warn().Err(err).Str("locator", locator).Msg("failed to delete uncommitted payload")
	}
}

func (m *Manager) observe(op string, start time.Time, err *error) {
	m.metrics.ObserveOperation(op, start, *err)
	if *err != nil {
		m.log.Debug().Err(*err).Str("op", op).Msg("document operation failed")
	}
}

func documentSubject(id string) audit.Subject {
	return audit.Subject{Type: audit.SubjectDocument, ID: id}
}

func uploadMetadata(doc *model.Document, report *media.Report) map[string]any {
	md := map[string]any{
		"case_id":      doc.CaseID,
		"version":      doc.Version,
		"content_hash": doc.ContentHash,
		"byte_size":    doc.ByteSize,
		"media_type":   doc.MediaType,
		"sensitivity":  string(doc.Sensitivity),
	}
	if report != nil && report.Pages > 0 {
		md["pages"] = report.Pages
	}
	return md
}
