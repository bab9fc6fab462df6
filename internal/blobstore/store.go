package blobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiabasekou/ged-project/internal/model"
)

// Sealer is the authenticated cipher used for payloads. *cipher.Keyring
// satisfies it.
type Sealer interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(payload []byte) ([]byte, error)
}

// EncryptedStore encrypts payloads before handing them to a Medium and maps
// medium failures onto the model error taxonomy.
type EncryptedStore struct {
	medium Medium
	sealer Sealer
}

// NewEncryptedStore wires a sealer to a medium.
func NewEncryptedStore(medium Medium, sealer Sealer) *EncryptedStore {
	return &EncryptedStore{medium: medium, sealer: sealer}
}

// Medium exposes the underlying medium for maintenance tasks such as orphan
// collection.
func (s *EncryptedStore) Medium() Medium { return s.medium }

// Save encrypts plaintext and writes it under a fresh locator.
func (s *EncryptedStore) Save(ctx context.Context, plaintext []byte) (string, error) {
	sealed, err := s.sealer.Encrypt(plaintext)
	if err != nil {
		return "", fmt.Errorf("encrypt payload: %w", err)
	}
	locator, err := NewLocator()
	if err != nil {
		return "", err
	}
	if err := s.medium.Put(ctx, locator, sealed); err != nil {
		return "", fmt.Errorf("write payload: %w", err)
	}
	return locator, nil
}

// Open reads and decrypts a payload. A missing object yields model.ErrNotFound;
// an object that fails authentication yields *model.DecryptionError. Plaintext
// is returned only when authentication succeeds.
func (s *EncryptedStore) Open(ctx context.Context, locator string) ([]byte, error) {
	sealed, err := s.medium.Get(ctx, locator)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, fmt.Errorf("payload %s: %w", locator, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	plaintext, err := s.sealer.Decrypt(sealed)
	if err != nil {
		return nil, &model.DecryptionError{Locator: locator, Err: err}
	}
	return plaintext, nil
}

// Delete removes a payload. It is idempotent.
func (s *EncryptedStore) Delete(ctx context.Context, locator string) error {
	if err := s.medium.Delete(ctx, locator); err != nil {
		return fmt.Errorf("delete payload: %w", err)
	}
	return nil
}

// Reencrypt rewrites the payload at locator under the sealer's current key.
// The locator does not change, so no metadata needs updating.
func (s *EncryptedStore) Reencrypt(ctx context.Context, locator string) error {
	plaintext, err := s.Open(ctx, locator)
	if err != nil {
		return err
	}
	return s.Reseal(ctx, locator, plaintext)
}

// Reseal overwrites the payload at locator with plaintext sealed under the
// current key. Callers pass plaintext they have already checked.
func (s *EncryptedStore) Reseal(ctx context.Context, locator string, plaintext []byte) error {
	sealed, err := s.sealer.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("encrypt payload: %w", err)
	}
	if err := s.medium.Put(ctx, locator, sealed); err != nil {
		return fmt.Errorf("rewrite payload: %w", err)
	}
	return nil
}
