package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiabasekou/ged-project/internal/cipher"
	"github.com/kiabasekou/ged-project/internal/model"
)

func newKeyring(t *testing.T) *cipher.Keyring {
	t.Helper()
	key, err := cipher.GenerateKey()
	require.NoError(t, err)
	kr, err := cipher.NewKeyring(key)
	require.NoError(t, err)
	return kr
}

func TestNewLocatorShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		loc, err := NewLocator()
		require.NoError(t, err)
		assert.True(t, ValidLocator(loc), loc)
		assert.False(t, seen[loc])
		seen[loc] = true
	}
	assert.False(t, ValidLocator("../etc/passwd"))
	assert.False(t, ValidLocator("ab/contract.pdf"))
}

func TestEncryptedStoreOnMedia(t *testing.T) {
	fsMedium, err := NewFSMedium(t.TempDir())
	require.NoError(t, err)

	media := map[string]Medium{
		"memory": NewMemoryMedium(),
		"fs":     fsMedium,
	}
	for name, medium := range media {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := NewEncryptedStore(medium, newKeyring(t))

			loc, err := store.Save(ctx, []byte("plain text body"))
			require.NoError(t, err)

			raw, err := medium.Get(ctx, loc)
			require.NoError(t, err)
			assert.NotContains(t, string(raw), "plain text body")

			got, err := store.Open(ctx, loc)
			require.NoError(t, err)
			assert.Equal(t, "plain text body", string(got))

			require.NoError(t, store.Delete(ctx, loc))
			require.NoError(t, store.Delete(ctx, loc), "delete is idempotent")

			_, err = store.Open(ctx, loc)
			assert.ErrorIs(t, err, model.ErrNotFound)
			assert.NotErrorIs(t, err, model.ErrDecryption)
		})
	}
}

func TestOpenTamperedPayload(t *testing.T) {
	ctx := context.Background()
	medium := NewMemoryMedium()
	store := NewEncryptedStore(medium, newKeyring(t))
	loc, err := store.Save(ctx, []byte("0123456789"))
	require.NoError(t, err)

	require.True(t, medium.Tamper(loc, 40))
	got, err := store.Open(ctx, loc)
	assert.Nil(t, got)
	var decErr *model.DecryptionError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, loc, decErr.Locator)
	assert.NotErrorIs(t, err, model.ErrNotFound)
}

func TestOpenWithForeignKey(t *testing.T) {
	ctx := context.Background()
	medium := NewMemoryMedium()
	loc, err := NewEncryptedStore(medium, newKeyring(t)).Save(ctx, []byte("x"))
	require.NoError(t, err)

	_, err = NewEncryptedStore(medium, newKeyring(t)).Open(ctx, loc)
	assert.ErrorIs(t, err, model.ErrDecryption)
}

func TestReencryptRotatesKey(t *testing.T) {
	ctx := context.Background()
	medium := NewMemoryMedium()

	oldKey, err := cipher.GenerateKey()
	require.NoError(t, err)
	oldRing, err := cipher.NewKeyring(oldKey)
	require.NoError(t, err)
	loc, err := NewEncryptedStore(medium, oldRing).Save(ctx, []byte("archived"))
	require.NoError(t, err)

	newKey, err := cipher.GenerateKey()
	require.NoError(t, err)
	rotated, err := cipher.NewKeyring(newKey, oldKey)
	require.NoError(t, err)
	require.NoError(t, NewEncryptedStore(medium, rotated).Reencrypt(ctx, loc))

	onlyNew, err := cipher.NewKeyring(newKey)
	require.NoError(t, err)
	got, err := NewEncryptedStore(medium, onlyNew).Open(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, "archived", string(got))
}

func TestFSMediumLayout(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	medium, err := NewFSMedium(root)
	require.NoError(t, err)

	loc, err := NewLocator()
	require.NoError(t, err)
	require.NoError(t, medium.Put(ctx, loc, []byte("sealed")))

	info, err := os.Stat(filepath.Join(root, filepath.FromSlash(loc)))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Leftovers from an interrupted write are not objects.
	dir := filepath.Join(root, strings.SplitN(loc, "/", 2)[0])
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-123"), []byte("partial"), 0o600))

	var keys []string
	require.NoError(t, medium.Walk(ctx, func(o ObjectInfo) error {
		keys = append(keys, o.Key)
		assert.WithinDuration(t, time.Now(), o.ModTime, time.Minute)
		return nil
	}))
	assert.Equal(t, []string{loc}, keys)

	assert.Error(t, medium.Put(ctx, "../escape.enc", []byte("x")))
}

func TestFSMediumHonoursCancellation(t *testing.T) {
	medium, err := NewFSMedium(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loc, err := NewLocator()
	require.NoError(t, err)
	assert.ErrorIs(t, medium.Put(ctx, loc, []byte("x")), context.Canceled)
}
