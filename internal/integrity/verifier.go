// Package integrity detects tampering independently of encryption. Digests
// are taken over plaintext, so rotating the encryption key never invalidates
// a recorded hash.
package integrity

import (
	"context"
	"encoding/hex"

	"github.com/minio/sha256-simd"

	"github.com/kiabasekou/ged-project/internal/model"
)

// Digest returns the lower-case hex SHA-256 of b.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Opener reads plaintext for a locator. *blobstore.EncryptedStore satisfies it.
type Opener interface {
	Open(ctx context.Context, locator string) ([]byte, error)
}

// Verifier recomputes digests of stored payloads.
type Verifier struct {
	store Opener
}

// NewVerifier builds a Verifier reading through store.
func NewVerifier(store Opener) *Verifier {
	return &Verifier{store: store}
}

// Check opens the payload and compares its digest with expected. It returns
// nil on a match, *model.IntegrityMismatchError on a differing digest and the
// store's error (model.ErrNotFound, *model.DecryptionError) otherwise.
func (v *Verifier) Check(ctx context.Context, locator, expected string) error {
	_, err := v.Read(ctx, locator, expected)
	return err
}

// Read is Check that also hands back the verified plaintext.
func (v *Verifier) Read(ctx context.Context, locator, expected string) ([]byte, error) {
	plaintext, err := v.store.Open(ctx, locator)
	if err != nil {
		return nil, err
	}
	if actual := Digest(plaintext); actual != expected {
		return nil, &model.IntegrityMismatchError{Expected: expected, Actual: actual}
	}
	return plaintext, nil
}

// Verify reports whether the payload at locator is intact. Every failure,
// including a decryption failure, counts as false.
func (v *Verifier) Verify(ctx context.Context, locator, expected string) bool {
	return v.Check(ctx, locator, expected) == nil
}
