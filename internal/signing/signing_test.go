package signing

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiabasekou/ged-project/internal/cipher"
)

func TestSigner(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s := NewSigner([]byte("topsecret"), time.Minute)
	s.now = func() time.Time { return now }

	link := s.Issue("doc-1", "alice")
	assert.Equal(t, now.Add(time.Minute).Unix(), link.Expires)
	exp := strconv.FormatInt(link.Expires, 10)

	assert.NoError(t, s.Validate("doc-1", "alice", exp, link.Signature))
	assert.ErrorIs(t, s.Validate("doc-2", "alice", exp, link.Signature), ErrInvalidSignature)
	assert.ErrorIs(t, s.Validate("doc-1", "bob", exp, link.Signature), ErrInvalidSignature)
	assert.ErrorIs(t, s.Validate("doc-1", "alice", "42", link.Signature), ErrInvalidSignature)
	assert.ErrorIs(t, s.Validate("doc-1", "alice", "soon", link.Signature), ErrInvalidSignature)

	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, s.Validate("doc-1", "alice", exp, link.Signature), ErrExpired)
}

func TestSignatureFieldsAreDelimited(t *testing.T) {
	s := NewSigner([]byte("k"), 0)
	assert.NotEqual(t, s.Sign("a:b", "c", 1), s.Sign("a", "b:c", 1))
}

func TestDerivedSecret(t *testing.T) {
	key, err := cipher.GenerateKey()
	require.NoError(t, err)
	kr, err := cipher.NewKeyring(key)
	require.NoError(t, err)
	secret, err := kr.DeriveKey(Purpose, 32)
	require.NoError(t, err)

	a := NewSigner(secret, time.Minute)
	b := NewSigner(secret, time.Minute)
	link := a.Issue("doc", "alice")
	assert.NoError(t, b.Validate("doc", "alice", strconv.FormatInt(link.Expires, 10), link.Signature))
}
