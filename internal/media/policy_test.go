package media

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiabasekou/ged-project/internal/model"
)

func TestInspectAcceptsText(t *testing.T) {
	r, err := DefaultPolicy().Inspect("notes/Doc.TXT", "", []byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, "Doc.TXT", r.Name)
	assert.Equal(t, ".txt", r.Extension)
	assert.Equal(t, "text/plain", r.MediaType)
	assert.Equal(t, int64(10), r.Size)
	assert.Zero(t, r.Pages)
}

func TestInspectRejects(t *testing.T) {
	small := Policy{MaxSize: 1 << 20}
	tests := []struct {
		name    string
		file    string
		content []byte
		policy  Policy
	}{
		{"empty", "a.txt", nil, DefaultPolicy()},
		{"no name", "", []byte("x"), DefaultPolicy()},
		{"no extension", "README", []byte("x"), DefaultPolicy()},
		{"forbidden extension", "run.exe", []byte("MZ"), DefaultPolicy()},
		{"too large", "big.txt", bytes.Repeat([]byte("a"), 1<<20+1), small},
		{"fake pdf", "brief.pdf", []byte("MZ\x90\x00"), DefaultPolicy()},
		{"fake docx", "contract.docx", []byte("%PDF-1.4"), DefaultPolicy()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.policy.Inspect(tt.file, "", tt.content)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}
}

func TestInspectZipMagic(t *testing.T) {
	r, err := DefaultPolicy().Inspect("contract.docx", "application/octet-stream", []byte("PK\x03\x04rest"))
	require.NoError(t, err)
	assert.Equal(t, knownTypes[".docx"], r.MediaType)
}

func TestInspectUnreadablePDFStillAccepted(t *testing.T) {
	r, err := DefaultPolicy().Inspect("scan.pdf", "", []byte("%PDF-1.7\ngarbage"))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", r.MediaType)
	assert.Zero(t, r.Pages)
}

func TestMediaTypeFallbacks(t *testing.T) {
	assert.Equal(t, "application/x-custom", mediaType(".zzz", "application/x-custom", nil))
	assert.Equal(t, "text/plain; charset=utf-8", mediaType(".zzz", "", []byte("hello")))
}
