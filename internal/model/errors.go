package model

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below match them through errors.Is so callers
// can branch on the kind without caring about the details.
var (
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("validation failed")
	ErrDuplicateContent     = errors.New("identical content already stored")
	ErrNotCurrentVersion    = errors.New("document is not the current version")
	ErrAlreadyCurrent       = errors.New("document is already the current version")
	ErrVersionConflict      = errors.New("version conflict")
	ErrCurrentVersionExists = errors.New("a current version already exists for this name")
	ErrDecryption           = errors.New("decryption failed")
	ErrIntegrityMismatch    = errors.New("integrity mismatch")
	ErrFolderNameTaken      = errors.New("a sibling folder already has this name")
	ErrFolderCycle          = errors.New("folder cannot be moved below itself")
)

// ErrFolderTooDeep rejects a create or move that would nest a folder deeper than
// MaxFolderDepth. It is a validation error.
var ErrFolderTooDeep = fmt.Errorf("%w: folders nest at most %d levels deep", ErrValidation, MaxFolderDepth)

// DuplicateContentError reports an upload whose plaintext digest is already
// stored. ExistingID is only filled when the existing document lives in the
// same case as the upload.
type DuplicateContentError struct {
	ContentHash string
	ExistingID  string
}

func (e *DuplicateContentError) Error() string {
	if e.ExistingID != "" {
		return fmt.Sprintf("identical content already stored as document %s", e.ExistingID)
	}
	return "identical content already stored"
}

func (e *DuplicateContentError) Is(target error) bool { return target == ErrDuplicateContent }

// VersionConflictError is returned when a concurrent transition won the race
// for the chain. The caller should re-read the chain before retrying.
type VersionConflictError struct {
	DocumentID string
	Key        ChainKey
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on %q in case %s: document %s is no longer current",
		e.Key.OriginalName, e.Key.CaseID, e.DocumentID)
}

func (e *VersionConflictError) Is(target error) bool { return target == ErrVersionConflict }

// DecryptionError means the payload exists but could not be authenticated:
// corrupt ciphertext or a key that does not match. It is never retried.
type DecryptionError struct {
	Locator string
	Err     error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decrypt %s: %v", e.Locator, e.Err)
}

func (e *DecryptionError) Is(target error) bool { return target == ErrDecryption }

func (e *DecryptionError) Unwrap() error { return e.Err }

// IntegrityMismatchError means the decrypted plaintext no longer hashes to the
// digest recorded at upload time.
type IntegrityMismatchError struct {
	DocumentID string
	Expected   string
	Actual     string
}

func (e *IntegrityMismatchError) Error() string {
	if e.DocumentID == "" {
		return fmt.Sprintf("integrity mismatch: expected %s, got %s", e.Expected, e.Actual)
	}
	return fmt.Sprintf("integrity mismatch for document %s: expected %s, got %s", e.DocumentID, e.Expected, e.Actual)
}

func (e *IntegrityMismatchError) Is(target error) bool { return target == ErrIntegrityMismatch }

// IsIntegrityFailure reports whether err indicates possible tampering.
func IsIntegrityFailure(err error) bool {
	return errors.Is(err, ErrDecryption) || errors.Is(err, ErrIntegrityMismatch)
}
