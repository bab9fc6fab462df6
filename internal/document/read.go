package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kiabasekou/ged-project/internal/audit"
	"github.com/kiabasekou/ged-project/internal/model"
)

// Download is the result of a successful read.
type Download struct {
	Document  *model.Document
	Content   []byte
	MediaType string
	Filename  string
}

// VerifyFailure describes one version that failed a case sweep.
type VerifyFailure struct {
	DocumentID   string `json:"documentId" yaml:"document_id"`
	OriginalName string `json:"originalName" yaml:"original_name"`
	Version      int    `json:"version" yaml:"version"`
	Reason       string `json:"reason" yaml:"reason"`
}

// VerifyReport summarizes a case sweep.
type VerifyReport struct {
	CaseID   string          `json:"caseId" yaml:"case_id"`
	Checked  int             `json:"checked" yaml:"checked"`
	Intact   int             `json:"intact" yaml:"intact"`
	Failures []VerifyFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Get returns one document version.
func (m *Manager) Get(ctx context.Context, id string) (*model.Document, error) {
	return m.repo.GetDocument(ctx, id)
}

// ListCurrent returns the current documents of a case, optionally limited to
// one folder.
func (m *Manager) ListCurrent(ctx context.Context, caseID string, folderID *string) ([]*model.Document, error) {
	return m.repo.ListCurrent(ctx, caseID, folderID)
}

// GetChain returns id and its predecessors, newest first. Each predecessor
// must be exactly one version older and in the same case; anything else is
// reported as corruption rather than followed.
func (m *Manager) GetChain(ctx context.Context, id string) ([]*model.Document, error) {
	doc, err := m.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	chain := []*model.Document{doc}
	for doc.PreviousVersionID != nil {
		prev, err := m.repo.GetDocument(ctx, *doc.PreviousVersionID)
		if err != nil {
			return nil, fmt.Errorf("get version %d of %q: %w", doc.Version-1, doc.OriginalName, err)
		}
		if prev.Version+1 != doc.Version || prev.CaseID != doc.CaseID {
			return nil, fmt.Errorf("corrupt chain at document %s: version %d follows %d", doc.ID, doc.Version, prev.Version)
		}
		chain = append(chain, prev)
		doc = prev
	}
	return chain, nil
}

// History returns the full chain of the lineage id belongs to, newest first,
// even when id is an older version.
func (m *Manager) History(ctx context.Context, id string) ([]*model.Document, error) {
	doc, err := m.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	if !doc.IsCurrent {
		if cur, err := m.repo.CurrentDocument(ctx, doc.ChainKey()); err == nil {
			id = cur.ID
		}
	}
	return m.GetChain(ctx, id)
}

// Verify reports whether the stored payload of id still decrypts and hashes
// to its recorded digest. Only a missing document is an error.
func (m *Manager) Verify(ctx context.Context, actor, id string) (bool, error) {
	start := time.Now()
	doc, err := m.repo.GetDocument(ctx, id)
	if err != nil {
		m.metrics.ObserveOperation("verify", start, err)
		return false, fmt.Errorf("get document %s: %w", id, err)
	}
	cause, err := m.verify(ctx, actor, doc)
	m.metrics.ObserveOperation("verify", start, err)
	return err == nil && cause == nil, err
}

// verify runs one check and audits it. It returns the reason the payload is
// not intact, or an error only when ctx ended first. Only a decryption
// failure or a digest mismatch is reported as tampering; a payload that
// could not be read is logged as an operational failure.
func (m *Manager) verify(ctx context.Context, actor string, doc *model.Document) (cause, err error) {
	cause = m.verifier.Check(ctx, doc.StorageLocator, doc.ContentHash)
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return nil, cause
	}
	meta := map[string]any{"version": doc.Version, "intact": cause == nil}
	if cause != nil {
		meta["reason"] = failureReason(cause)
	}
	m.notify.Notify(ctx, actor, documentSubject(doc.ID), audit.ActionIntegrityCheck,
		fmt.Sprintf("integrity check of %q version %d", doc.OriginalName, doc.Version), meta)
	if cause == nil {
		return nil, nil
	}
	cause = withDocument(cause, doc.ID)
	if model.IsIntegrityFailure(cause) {
		m.metrics.IntegrityFailure()
		m.integrityFailed(ctx, actor, doc, cause)
	} else {
		m.log.Error().Err(cause).Str("document_id", doc.ID).Int("version", doc.Version).Msg("payload could not be checked")
	}
	return cause, nil
}

// Download returns the plaintext of id. With verify set, the digest is
// checked before any byte is handed out.
func (m *Manager) Download(ctx context.Context, actor, id string, verify bool) (dl *Download, err error) {
	defer m.observe("download", time.Now(), &err)

	doc, err := m.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	var content []byte
	if verify {
		content, err = m.verifier.Read(ctx, doc.StorageLocator, doc.ContentHash)
	} else {
		content, err = m.blobs.Open(ctx, doc.StorageLocator)
	}
	if err != nil {
		err = withDocument(err, doc.ID)
		if model.IsIntegrityFailure(err) {
			m.integrityFailed(ctx, actor, doc, err)
		}
		return nil, fmt.Errorf("read document %s: %w", doc.ID, err)
	}

	m.notify.Notify(ctx, actor, documentSubject(doc.ID), audit.ActionDownload,
		fmt.Sprintf("downloaded %q version %d", doc.OriginalName, doc.Version),
		map[string]any{"version": doc.Version, "verified": verify, "byte_size": len(content)})
	return &Download{
		Document:  doc,
		Content:   content,
		MediaType: doc.MediaType,
		Filename:  doc.OriginalName,
	}, nil
}

// VerifyCase checks every stored version of a case.
func (m *Manager) VerifyCase(ctx context.Context, actor, caseID string) (*VerifyReport, error) {
	docs, err := m.repo.ListByCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("list case %s: %w", caseID, err)
	}
	report := &VerifyReport{CaseID: caseID}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		cause, err := m.verify(ctx, actor, doc)
		if err != nil {
			return report, err
		}
		if cause == nil {
			report.Intact++
			continue
		}
		report.Failures = append(report.Failures, VerifyFailure{
			DocumentID:   doc.ID,
			OriginalName: doc.OriginalName,
			Version:      doc.Version,
			Reason:       failureReason(cause),
		})
	}
	return report, nil
}

func (m *Manager) integrityFailed(ctx context.Context, actor string, doc *model.Document, cause error) {
	m.log.Error().Err(cause).Str("document_id", doc.ID).Int("version", doc.Version).Msg("integrity check failed")
	m.notify.Notify(ctx, actor, documentSubject(doc.ID), audit.ActionIntegrityFailure,
		fmt.Sprintf("integrity failure on %q version %d", doc.OriginalName, doc.Version),
		map[string]any{"version": doc.Version, "reason": failureReason(cause)})
}

func failureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, model.ErrIntegrityMismatch):
		return "digest mismatch"
	case errors.Is(err, model.ErrDecryption):
		return "decryption failed"
	case errors.Is(err, model.ErrNotFound):
		return "payload missing"
	}
	return err.Error()
}

// withDocument attaches the document id to an integrity mismatch raised by
// the verifier, which only knows locators.
func withDocument(err error, id string) error {
	var mismatch *model.IntegrityMismatchError
	if errors.As(err, &mismatch) && mismatch.DocumentID == "" {
		mismatch.DocumentID = id
	}
	return err
}
