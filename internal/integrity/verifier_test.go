package integrity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiabasekou/ged-project/internal/blobstore"
	"github.com/kiabasekou/ged-project/internal/cipher"
	"github.com/kiabasekou/ged-project/internal/model"
)

func TestDigestIsStable(t *testing.T) {
	// Known SHA-256 of the empty input.
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Digest(nil))
	assert.Equal(t, Digest([]byte("abc")), Digest([]byte("abc")))
	assert.NotEqual(t, Digest([]byte("abc")), Digest([]byte("abd")))
}

func setup(t *testing.T) (*blobstore.MemoryMedium, *blobstore.EncryptedStore) {
	t.Helper()
	key, err := cipher.GenerateKey()
	require.NoError(t, err)
	kr, err := cipher.NewKeyring(key)
	require.NoError(t, err)
	medium := blobstore.NewMemoryMedium()
	return medium, blobstore.NewEncryptedStore(medium, kr)
}

func TestDigestSurvivesEncryption(t *testing.T) {
	ctx := context.Background()
	_, store := setup(t)
	plain := []byte("0123456789")
	loc, err := store.Save(ctx, plain)
	require.NoError(t, err)

	opened, err := store.Open(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, Digest(plain), Digest(opened))
	assert.True(t, NewVerifier(store).Verify(ctx, loc, Digest(plain)))
}

func TestVerifyDetectsEveryFlippedByte(t *testing.T) {
	ctx := context.Background()
	medium, store := setup(t)
	plain := []byte("0123456789")
	loc, err := store.Save(ctx, plain)
	require.NoError(t, err)
	v := NewVerifier(store)
	want := Digest(plain)

	raw, err := medium.Get(ctx, loc)
	require.NoError(t, err)
	for i := range raw {
		require.True(t, medium.Tamper(loc, i))
		assert.False(t, v.Verify(ctx, loc, want), "flipped byte %d", i)
		assert.ErrorIs(t, v.Check(ctx, loc, want), model.ErrDecryption)
		require.True(t, medium.Tamper(loc, i))
	}
	assert.True(t, v.Verify(ctx, loc, want))
}

func TestCheckReportsMismatch(t *testing.T) {
	ctx := context.Background()
	_, store := setup(t)
	loc, err := store.Save(ctx, []byte("actual"))
	require.NoError(t, err)

	err = NewVerifier(store).Check(ctx, loc, Digest([]byte("expected")))
	var mismatch *model.IntegrityMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, Digest([]byte("actual")), mismatch.Actual)
}

func TestCheckMissingPayload(t *testing.T) {
	ctx := context.Background()
	_, store := setup(t)
	loc, err := blobstore.NewLocator()
	require.NoError(t, err)
	v := NewVerifier(store)
	assert.ErrorIs(t, v.Check(ctx, loc, Digest(nil)), model.ErrNotFound)
	assert.False(t, v.Verify(ctx, loc, Digest(nil)))
}
