// Package config reads the GED_ environment variables and exposes them as
// typed values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage media.
const (
	StorageFS     = "fs"
	StorageS3     = "s3"
	StorageMemory = "memory"
)

// Audit delivery modes.
const (
	// AuditLog writes events to the service log only.
	AuditLog = "log"
	// AuditDatabase persists records through the repository in-process.
	AuditDatabase = "database"
	// AuditQueue hands events to the worker through asynq.
	AuditQueue = "queue"
)

// ErrMissingEncryptionKey is returned by Load when GED_ENCRYPTION_KEY is
// unset. The store never starts without a key.
var ErrMissingEncryptionKey = errors.New("GED_ENCRYPTION_KEY is required")

// Config represents runtime configuration for every binary.
type Config struct {
	Address string

	// DatabaseURL selects Postgres. Otherwise SQLitePath, otherwise memory.
	DatabaseURL   string
	DBMaxConns    int32
	SQLitePath    string
	EncryptionKey string
	PreviousKeys  []string

	StorageBackend string
	StorageRoot    string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3UseSSL       bool
	S3Region       string
	S3Bucket       string
	S3Prefix       string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuditMode    string
	AuditWorkers int

	LogLevel  string
	LogPretty bool

	MaxUploadBytes int64
	SignedURLTTL   time.Duration
	Workers        int
	GCGrace        time.Duration
	GCInterval     string
	CORSOrigins    []string
}

const (
	defaultAddress     = ":8080"
	defaultStorageRoot = "./data/blobs"
	defaultMaxUpload   = 100 << 20 // 100 MiB
	defaultSignedTTL   = 5 * time.Minute
	defaultWorkerCount = 4
	defaultGCGrace     = 24 * time.Hour
	// defaultGCInterval is a cron expression for the worker's scheduler.
	defaultGCInterval = "@every 6h"
)

// Load reads configuration from environment variables falling back to
// defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Address:        readEnv("GED_ADDRESS", defaultAddress),
		DatabaseURL:    readEnv("GED_DATABASE_URL", ""),
		DBMaxConns:     int32(parseInt("GED_DB_MAX_CONNS", 8)),
		SQLitePath:     readEnv("GED_SQLITE_PATH", ""),
		EncryptionKey:  readEnv("GED_ENCRYPTION_KEY", ""),
		PreviousKeys:   parseList("GED_PREVIOUS_ENCRYPTION_KEYS", ""),
		StorageBackend: strings.ToLower(readEnv("GED_STORAGE_BACKEND", StorageFS)),
		StorageRoot:    readEnv("GED_STORAGE_ROOT", defaultStorageRoot),
		S3Endpoint:     readEnv("GED_S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:    readEnv("GED_S3_ACCESS_KEY", ""),
		S3SecretKey:    readEnv("GED_S3_SECRET_KEY", ""),
		S3UseSSL:       parseBool("GED_S3_USE_SSL", false),
		S3Region:       readEnv("GED_S3_REGION", "us-east-1"),
		S3Bucket:       readEnv("GED_S3_BUCKET", "ged-documents"),
		S3Prefix:       strings.Trim(readEnv("GED_S3_PREFIX", ""), "/"),
		RedisAddr:      readEnv("GED_REDIS_ADDR", "localhost:6379"),
		RedisPassword:  readEnv("GED_REDIS_PASSWORD", ""),
		RedisDB:        parseInt("GED_REDIS_DB", 0),
		AuditMode:      strings.ToLower(readEnv("GED_AUDIT_MODE", AuditDatabase)),
		AuditWorkers:   parseInt("GED_AUDIT_WORKERS", 2),
		LogLevel:       readEnv("GED_LOG_LEVEL", "info"),
		LogPretty:      parseBool("GED_LOG_PRETTY", false),
		MaxUploadBytes: parseInt64("GED_MAX_UPLOAD_BYTES", defaultMaxUpload),
		SignedURLTTL:   parseDuration("GED_SIGNED_URL_TTL", defaultSignedTTL),
		Workers:        parseInt("GED_WORKERS", defaultWorkerCount),
		GCGrace:        parseDuration("GED_GC_GRACE", defaultGCGrace),
		GCInterval:     readEnv("GED_GC_INTERVAL", defaultGCInterval),
		CORSOrigins:    parseList("GED_CORS_ORIGINS", ""),
	}
	if cfg.EncryptionKey == "" {
		return nil, ErrMissingEncryptionKey
	}
	switch cfg.StorageBackend {
	case StorageFS, StorageS3, StorageMemory:
	default:
		return nil, fmt.Errorf("GED_STORAGE_BACKEND: unknown backend %q", cfg.StorageBackend)
	}
	switch cfg.AuditMode {
	case AuditLog, AuditDatabase, AuditQueue:
	default:
		return nil, fmt.Errorf("GED_AUDIT_MODE: unknown mode %q", cfg.AuditMode)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkerCount
	}
	if cfg.AuditWorkers <= 0 {
		cfg.AuditWorkers = 1
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedTTL
	}
	if cfg.GCGrace < 0 {
		cfg.GCGrace = defaultGCGrace
	}
	return cfg, nil
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// parseList splits a comma separated variable, dropping empty entries.
func parseList(key, def string) []string {
	var out []string
	for _, item := range strings.Split(readEnv(key, def), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
