package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"doc.txt", "doc.txt"},
		{"  doc.txt ", "doc.txt"},
		{"a/b/contract.pdf", "contract.pdf"},
		{`C:\Users\me\brief.docx`, "brief.docx"},
		{"", ""},
		{"/", ""},
		// "e" + combining acute accent becomes the precomposed form.
		{"re\u0301sume\u0301.pdf", "r\u00e9sum\u00e9.pdf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeName(tt.in), "input %q", tt.in)
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".pdf", Extension("Contract.PDF"))
	assert.Equal(t, "", Extension("README"))
}

func TestCloneDoesNotAlias(t *testing.T) {
	prev := "v1"
	doc := &Document{ID: "v2", PreviousVersionID: &prev}
	c := doc.Clone()
	*c.PreviousVersionID = "other"
	assert.Equal(t, "v1", *doc.PreviousVersionID)
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
	}{
		{&DuplicateContentError{ContentHash: "h"}, ErrDuplicateContent},
		{&VersionConflictError{DocumentID: "d"}, ErrVersionConflict},
		{&DecryptionError{Locator: "l", Err: errors.New("boom")}, ErrDecryption},
		{&IntegrityMismatchError{Expected: "a", Actual: "b"}, ErrIntegrityMismatch},
	}
	for _, c := range cases {
		wrapped := fmt.Errorf("outer: %w", c.err)
		assert.ErrorIs(t, wrapped, c.sentinel)
	}
	assert.True(t, IsIntegrityFailure(&DecryptionError{}))
	assert.True(t, IsIntegrityFailure(&IntegrityMismatchError{}))
	assert.False(t, IsIntegrityFailure(ErrNotFound))
}

func TestSensitivityValid(t *testing.T) {
	assert.True(t, SensitivitySecret.Valid())
	assert.False(t, Sensitivity("top").Valid())
}
