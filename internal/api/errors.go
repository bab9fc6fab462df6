package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/kiabasekou/ged-project/internal/model"
	"github.com/kiabasekou/ged-project/internal/signing"
)

// IntegrityMessage is the body returned for any payload that fails
// decryption or its digest check.
const IntegrityMessage = "integrity check failed: the stored file may have been tampered with"

type errorBody struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	ExistingID string `json:"existingId,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, errorBody{Error: msg, Code: code})
}

// writeError maps domain errors onto HTTP statuses. Unknown errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var (
		dup      *model.DuplicateContentError
		tooLarge *http.MaxBytesError
	)
	switch {
	case model.IsIntegrityFailure(err):
		respondError(w, http.StatusUnprocessableEntity, "integrity_failure", IntegrityMessage)
	case errors.As(err, &dup):
		respondJSON(w, http.StatusConflict, errorBody{Error: dup.Error(), Code: "duplicate_content", ExistingID: dup.ExistingID})
	case errors.As(err, &tooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
	case errors.Is(err, model.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrFolderCycle):
		respondError(w, http.StatusBadRequest, "invalid", err.Error())
	case errors.Is(err, model.ErrVersionConflict):
		respondError(w, http.StatusConflict, "version_conflict", err.Error())
	case errors.Is(err, model.ErrNotCurrentVersion):
		respondError(w, http.StatusConflict, "not_current", err.Error())
	case errors.Is(err, model.ErrAlreadyCurrent):
		respondError(w, http.StatusConflict, "already_current", err.Error())
	case errors.Is(err, model.ErrCurrentVersionExists):
		respondError(w, http.StatusConflict, "current_exists", err.Error())
	case errors.Is(err, model.ErrFolderNameTaken):
		respondError(w, http.StatusConflict, "name_taken", err.Error())
	case errors.Is(err, signing.ErrExpired):
		respondError(w, http.StatusForbidden, "link_expired", err.Error())
	case errors.Is(err, signing.ErrInvalidSignature):
		respondError(w, http.StatusForbidden, "invalid_signature", err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
