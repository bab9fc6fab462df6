package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresKey(t *testing.T) {
	t.Setenv("GED_ENCRYPTION_KEY", "")
	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingEncryptionKey)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GED_ENCRYPTION_KEY", "k")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, StorageFS, cfg.StorageBackend)
	assert.Equal(t, AuditDatabase, cfg.AuditMode)
	assert.Equal(t, int64(100<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 5*time.Minute, cfg.SignedURLTTL)
	assert.Equal(t, 24*time.Hour, cfg.GCGrace)
	assert.Empty(t, cfg.PreviousKeys)
	assert.Empty(t, cfg.CORSOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GED_ENCRYPTION_KEY", "k")
	t.Setenv("GED_PREVIOUS_ENCRYPTION_KEYS", "old1, ,old2")
	t.Setenv("GED_STORAGE_BACKEND", "S3")
	t.Setenv("GED_S3_PREFIX", "/tenant/")
	t.Setenv("GED_S3_USE_SSL", "true")
	t.Setenv("GED_WORKERS", "-3")
	t.Setenv("GED_SIGNED_URL_TTL", "90s")
	t.Setenv("GED_MAX_UPLOAD_BYTES", "oops")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"old1", "old2"}, cfg.PreviousKeys)
	assert.Equal(t, StorageS3, cfg.StorageBackend)
	assert.Equal(t, "tenant", cfg.S3Prefix)
	assert.True(t, cfg.S3UseSSL)
	assert.Equal(t, defaultWorkerCount, cfg.Workers)
	assert.Equal(t, 90*time.Second, cfg.SignedURLTTL)
	assert.Equal(t, int64(defaultMaxUpload), cfg.MaxUploadBytes)
}

func TestLoadRejectsUnknownModes(t *testing.T) {
	t.Setenv("GED_ENCRYPTION_KEY", "k")
	t.Setenv("GED_STORAGE_BACKEND", "tape")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("GED_STORAGE_BACKEND", "memory")
	t.Setenv("GED_AUDIT_MODE", "carrier-pigeon")
	_, err = Load()
	assert.Error(t, err)
}
