// Package cipher encrypts document payloads at rest. Payloads are sealed with
// XChaCha20-Poly1305 under the primary key of a Keyring; older keys stay in
// the ring so payloads written before a rotation remain readable.
package cipher

import (
	"bytes"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of a raw encryption key in bytes.
const KeySize = chacha20poly1305.KeySize

var (
	// ErrMissingKey and ErrMalformedKey are startup errors: the process must
	// refuse to serve rather than fail request by request.
	ErrMissingKey   = errors.New("cipher: encryption key is missing")
	ErrMalformedKey = errors.New("cipher: encryption key is malformed")

	// ErrDecrypt covers every way a sealed payload can fail to open.
	ErrDecrypt    = errors.New("cipher: message authentication failed")
	ErrUnknownKey = errors.New("cipher: payload sealed with an unknown key")
)

var magic = []byte("GED1")

const (
	keyIDSize  = 4
	headerSize = len("GED1") + keyIDSize
)

type sealer struct {
	id   uint32
	raw  []byte
	aead stdcipher.AEAD
}

// Keyring holds the primary key used for new payloads and any previous keys
// still needed for decryption. It is safe for concurrent use once built.
type Keyring struct {
	primary *sealer
	byID    map[uint32]*sealer
}

// NewKeyring parses the primary key and any previous keys. Keys are 32 bytes
// encoded in standard or URL-safe base64, with or without padding.
func NewKeyring(primary string, previous ...string) (*Keyring, error) {
	if strings.TrimSpace(primary) == "" {
		return nil, ErrMissingKey
	}
	p, err := newSealer(primary)
	if err != nil {
		return nil, fmt.Errorf("primary key: %w", err)
	}
	kr := &Keyring{primary: p, byID: map[uint32]*sealer{p.id: p}}
	for i, enc := range previous {
		if strings.TrimSpace(enc) == "" {
			continue
		}
		s, err := newSealer(enc)
		if err != nil {
			return nil, fmt.Errorf("previous key %d: %w", i, err)
		}
		if _, ok := kr.byID[s.id]; !ok {
			kr.byID[s.id] = s
		}
	}
	return kr, nil
}

func newSealer(encoded string) (*sealer, error) {
	raw, err := DecodeKey(encoded)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return &sealer{id: fingerprint(raw), raw: raw, aead: aead}, nil
}

// DecodeKey turns the textual form of a key into its raw bytes.
func DecodeKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, ErrMissingKey
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		raw, err := enc.DecodeString(encoded)
		if err != nil {
			continue
		}
		if len(raw) != KeySize {
			return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrMalformedKey, KeySize, len(raw))
		}
		return raw, nil
	}
	return nil, fmt.Errorf("%w: not valid base64", ErrMalformedKey)
}

// GenerateKey returns a fresh random key in the textual form NewKeyring accepts.
func GenerateKey() (string, error) {
	raw := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func fingerprint(raw []byte) uint32 {
	sum := sha256.Sum256(raw)
	return binary.BigEndian.Uint32(sum[:keyIDSize])
}

// PrimaryKeyID identifies the key new payloads are sealed with.
func (k *Keyring) PrimaryKeyID() uint32 {
	return k.primary.id
}

// Encrypt seals plaintext under the primary key. The output layout is
// magic | key id | nonce | ciphertext+tag, with magic and key id bound as
// additional data.
func (k *Keyring) Encrypt(plaintext []byte) ([]byte, error) {
	s := k.primary
	header := make([]byte, headerSize, headerSize+s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	copy(header, magic)
	binary.BigEndian.PutUint32(header[len(magic):], s.id)

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	out := append(header, nonce...)
	return s.aead.Seal(out, nonce, plaintext, header), nil
}

// Decrypt opens a payload produced by Encrypt under any key in the ring.
// It never returns partial plaintext.
func (k *Keyring) Decrypt(payload []byte) ([]byte, error) {
	if len(payload) < headerSize || !bytes.Equal(payload[:len(magic)], magic) {
		return nil, fmt.Errorf("%w: bad header", ErrDecrypt)
	}
	id := binary.BigEndian.Uint32(payload[len(magic):headerSize])
	s, ok := k.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %w (key id %08x)", ErrDecrypt, ErrUnknownKey, id)
	}
	nonceSize := s.aead.NonceSize()
	if len(payload) < headerSize+nonceSize+s.aead.Overhead() {
		return nil, fmt.Errorf("%w: payload too short", ErrDecrypt)
	}
	header := payload[:headerSize]
	nonce := payload[headerSize : headerSize+nonceSize]
	plaintext, err := s.aead.Open(nil, nonce, payload[headerSize+nonceSize:], header)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// KeyID returns the id of the key a payload was sealed with.
func KeyID(payload []byte) (uint32, bool) {
	if len(payload) < headerSize || !bytes.Equal(payload[:len(magic)], magic) {
		return 0, false
	}
	return binary.BigEndian.Uint32(payload[len(magic):headerSize]), true
}

// DeriveKey derives a purpose-bound secret from the primary key with
// HKDF-SHA256. Different purposes yield unrelated keys.
func (k *Keyring) DeriveKey(purpose string, size int) ([]byte, error) {
	out := make([]byte, size)
	r := hkdf.New(sha256.New, k.primary.raw, nil, []byte("ged/"+purpose))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", purpose, err)
	}
	return out, nil
}
