package blobstore

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"

	"github.com/minio/sha256-simd"
)

const tokenBytes = 32

var locatorPattern = regexp.MustCompile(`^[0-9a-f]{2}/[A-Za-z0-9_-]{43}\.enc$`)

// NewLocator returns a fresh two-level locator. The prefix directory is taken
// from a hash of the random token so objects spread evenly across 256
// directories; nothing in the locator depends on the uploaded filename.
func NewLocator() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("generate locator: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:1]) + "/" + token + ".enc", nil
}

// ValidLocator reports whether s has the shape produced by NewLocator.
func ValidLocator(s string) bool {
	return locatorPattern.MatchString(s)
}
