package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kiabasekou/ged-project/internal/model"
)

type folderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentId"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	return nil
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request, actor string) {
	var req folderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	f, err := s.deps.Folders.Create(r.Context(), actor, r.PathValue("caseID"), req.Name, req.ParentID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, f)
}

func (s *Server) handleListRoots(w http.ResponseWriter, r *http.Request, _ string) {
	folders, err := s.deps.Folders.Roots(r.Context(), r.PathValue("caseID"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	respondFolders(w, folders)
}

func (s *Server) handleGetFolder(w http.ResponseWriter, r *http.Request, _ string) {
	f, err := s.deps.Folders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	respondJSON(w, http.StatusOK, f)
}

func (s *Server) handleFolderChildren(w http.ResponseWriter, r *http.Request, _ string) {
	folders, err := s.deps.Folders.ListChildren(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	respondFolders(w, folders)
}

func (s *Server) handleFolderPath(w http.ResponseWriter, r *http.Request, _ string) {
	path, err := s.deps.Folders.Path(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"path": path})
}

func (s *Server) handleFolderTree(w http.ResponseWriter, r *http.Request, _ string) {
	tree, err := s.deps.Folders.Tree(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	respondJSON(w, http.StatusOK, tree)
}

func (s *Server) handleMoveFolder(w http.ResponseWriter, r *http.Request, actor string) {
	var req struct {
		ParentID *string `json:"parentId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	f, err := s.deps.Folders.Move(r.Context(), actor, r.PathValue("id"), req.ParentID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	respondJSON(w, http.StatusOK, f)
}

func respondFolders(w http.ResponseWriter, folders []*model.Folder) {
	if folders == nil {
		folders = []*model.Folder{}
	}
	respondJSON(w, http.StatusOK, folders)
}
