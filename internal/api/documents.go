package api

import (
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kiabasekou/ged-project/internal/audit"
	"github.com/kiabasekou/ged-project/internal/model"
)

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request, actor string) {
	form, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	doc, err := s.deps.Documents.CreateInitial(r.Context(), actor, r.PathValue("caseID"), form.folderID, form.upload, form.meta)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request, _ string) {
	var folderID *string
	if v := r.URL.Query().Get("folder_id"); v != "" {
		folderID = &v
	}
	docs, err := s.deps.Documents.ListCurrent(r.Context(), r.PathValue("caseID"), folderID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if docs == nil {
		docs = []*model.Document{}
	}
	respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleVerifyCase(w http.ResponseWriter, r *http.Request, actor string) {
	report, err := s.deps.Documents.VerifyCase(r.Context(), actor, r.PathValue("caseID"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request, _ string) {
	doc, err := s.deps.Documents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleNewVersion(w http.ResponseWriter, r *http.Request, actor string) {
	form, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	doc, err := s.deps.Documents.CreateNewVersion(r.Context(), actor, r.PathValue("id"), form.upload, form.meta)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, _ string) {
	chain, err := s.deps.Documents.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	respondJSON(w, http.StatusOK, chain)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request, actor string) {
	doc, err := s.deps.Documents.Restore(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request, actor string) {
	id := r.PathValue("id")
	ok, err := s.deps.Documents.Verify(r.Context(), actor, id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	body := map[string]any{"documentId": id, "intact": ok}
	if !ok {
		body["message"] = IntegrityMessage
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, actor string) {
	verify, _ := strconv.ParseBool(r.URL.Query().Get("verify"))
	s.serveDocument(w, r, actor, r.PathValue("id"), verify)
}

func (s *Server) serveDocument(w http.ResponseWriter, r *http.Request, actor, id string, verify bool) {
	dl, err := s.deps.Documents.Download(r.Context(), actor, id, verify)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": dl.Filename})
	w.Header().Set("Content-Type", dl.MediaType)
	w.Header().Set("Content-Length", strconv.Itoa(len(dl.Content)))
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("X-Content-SHA256", dl.Document.ContentHash)
	w.Header().Set("X-Document-Version", strconv.Itoa(dl.Document.Version))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(dl.Content)
}

func (s *Server) handleSignedURL(w http.ResponseWriter, r *http.Request, actor string) {
	id := r.PathValue("id")
	if _, err := s.deps.Documents.Get(r.Context(), id); err != nil {
		writeError(w, s.log, err)
		return
	}
	link := s.deps.Signer.Issue(id, actor)
	q := url.Values{}
	q.Set("document", id)
	q.Set("expires", strconv.FormatInt(link.Expires, 10))
	q.Set("signature", link.Signature)
	respondJSON(w, http.StatusOK, map[string]any{
		"url":       "/download?" + q.Encode(),
		"expiresAt": link.ExpiresAt,
	})
}

// handleSignedDownload serves a link issued by handleSignedURL. The link is
// only valid for the actor it was issued to, and the payload is always
// verified.
func (s *Server) handleSignedDownload(w http.ResponseWriter, r *http.Request, actor string) {
	q := r.URL.Query()
	id, expires, signature := q.Get("document"), q.Get("expires"), q.Get("signature")
	if id == "" || expires == "" || signature == "" {
		respondError(w, http.StatusBadRequest, "invalid", "missing parameters")
		return
	}
	if err := s.deps.Signer.Validate(id, actor, expires, signature); err != nil {
		writeError(w, s.log, err)
		return
	}
	s.serveDocument(w, r, actor, id, true)
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request, _ string) {
	subject := audit.Subject{Type: r.PathValue("subjectType"), ID: r.PathValue("id")}
	if subject.Type != audit.SubjectDocument && subject.Type != audit.SubjectFolder {
		respondError(w, http.StatusNotFound, "not_found", "unknown subject type")
		return
	}
	recs, err := s.deps.Audit.ListAuditRecords(r.Context(), subject)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if recs == nil {
		recs = []audit.Record{}
	}
	respondJSON(w, http.StatusOK, recs)
}
