package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kiabasekou/ged-project/internal/document"
	"github.com/kiabasekou/ged-project/internal/model"
)

// multipartSlack covers form fields and part headers on top of the file.
const multipartSlack = 1 << 20

type uploadForm struct {
	upload   document.Upload
	meta     document.Metadata
	hasFile  bool
	folderID *string
}

// readUpload streams the multipart body, keeping the first "file" part and
// the known metadata fields.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*uploadForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes+multipartSlack)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: expecting multipart form", model.ErrValidation)
	}
	form := &uploadForm{}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		if err := s.readPart(form, part); err != nil {
			part.Close()
			return nil, err
		}
		part.Close()
	}
	if !form.hasFile {
		return nil, fmt.Errorf("%w: missing file part", model.ErrValidation)
	}
	return form, nil
}

func (s *Server) readPart(form *uploadForm, part *multipart.Part) error {
	name := part.FormName()
	if name == "file" {
		if form.hasFile {
			return nil
		}
		data, err := io.ReadAll(io.LimitReader(part, s.deps.MaxUploadBytes+1))
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		if int64(len(data)) > s.deps.MaxUploadBytes {
			return &http.MaxBytesError{Limit: s.deps.MaxUploadBytes}
		}
		form.hasFile = true
		form.upload = document.Upload{
			Filename:  part.FileName(),
			Content:   data,
			MediaType: part.Header.Get("Content-Type"),
		}
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(part, 64<<10))
	if err != nil {
		return fmt.Errorf("read field %s: %w", name, err)
	}
	value := strings.TrimSpace(string(raw))
	if value == "" {
		return nil
	}
	switch name {
	case "title":
		form.meta.Title = &value
	case "description":
		form.meta.Description = &value
	case "sensitivity":
		sens := model.Sensitivity(strings.ToLower(value))
		form.meta.Sensitivity = &sens
	case "retention_until":
		t, err := parseTime(value)
		if err != nil {
			return fmt.Errorf("%w: retention_until: %v", model.ErrValidation, err)
		}
		form.meta.RetentionUntil = &t
	case "folder_id":
		form.folderID = &value
		form.meta.FolderID = &value
	}
	return nil
}

// parseTime accepts RFC 3339 timestamps and plain dates.
func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}
