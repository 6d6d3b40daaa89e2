// Package config reads process configuration from SONGCATALOG_* environment
// variables.
//
//	SONGCATALOG_ADDR: listen address (default :8080)
//	SONGCATALOG_STORAGE_DRIVER: file|sqlite|postgres|blob|memory (default file)
//	SONGCATALOG_FILE_PATH: catalog file when driver=file (default songs.json)
//	SONGCATALOG_SQLITE_PATH: database file when driver=sqlite (default songcatalog.db)
//	SONGCATALOG_POSTGRES_DSN: DSN when driver=postgres
//	SONGCATALOG_BLOB_DRIVER: fs|s3|memory when driver=blob (default fs)
//	SONGCATALOG_BLOB_FS_ROOT: directory root when blob driver=fs (default ./blobdata)
//	SONGCATALOG_BLOB_KEY: object key of the catalog (default catalog/songs.json)
//	SONGCATALOG_BLOB_S3_BUCKET, _REGION, _ENDPOINT, _PATH_STYLE,
//	_ACCESS_KEY_ID, _SECRET_ACCESS_KEY: S3 / MinIO settings
//	SONGCATALOG_SEARCH_IGNORE_CASE: true to match constraints case-insensitively
//	SONGCATALOG_LOG_LEVEL: debug|info|warn|error (default info)
//	SONGCATALOG_TRACE_JSON: true to write one JSON line per operation span to stderr
//	SONGCATALOG_AUDIT_LOG: true to log an audit entry for every insert and play
//	SONGCATALOG_EXPVAR_METRICS: true to also publish operation metrics at /debug/vars
//	SONGCATALOG_SHUTDOWN_TIMEOUT: graceful shutdown deadline (default 10s)
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"songcatalog/internal/blob"
	"songcatalog/internal/persistence"
)

const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
)

// Config is the resolved process configuration.
type Config struct {
	Addr            string
	Storage         persistence.Config
	IgnoreCase      bool
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	TraceJSON       bool
	AuditLog        bool
	ExpvarMetrics   bool
}

// FromEnv resolves configuration from the process environment.
func FromEnv() (Config, error) {
	return Load(os.Getenv)
}

// Load resolves configuration using getenv for lookups.
func Load(getenv func(string) string) (Config, error) {
	cfg := Config{
		Addr:            DefaultAddr,
		ShutdownTimeout: DefaultShutdownTimeout,
		Storage: persistence.Config{
			Driver:      persistence.Driver(strings.ToLower(getenv("SONGCATALOG_STORAGE_DRIVER"))),
			FilePath:    getenv("SONGCATALOG_FILE_PATH"),
			SQLitePath:  getenv("SONGCATALOG_SQLITE_PATH"),
			PostgresDSN: getenv("SONGCATALOG_POSTGRES_DSN"),
			BlobKey:     getenv("SONGCATALOG_BLOB_KEY"),
			Blob: blob.Config{
				Driver: blob.Driver(strings.ToLower(getenv("SONGCATALOG_BLOB_DRIVER"))),
				FSRoot: getenv("SONGCATALOG_BLOB_FS_ROOT"),
				S3: blob.S3Config{
					Bucket:          getenv("SONGCATALOG_BLOB_S3_BUCKET"),
					Region:          getenv("SONGCATALOG_BLOB_S3_REGION"),
					Endpoint:        getenv("SONGCATALOG_BLOB_S3_ENDPOINT"),
					AccessKeyID:     getenv("SONGCATALOG_BLOB_S3_ACCESS_KEY_ID"),
					SecretAccessKey: getenv("SONGCATALOG_BLOB_S3_SECRET_ACCESS_KEY"),
					PathStyle:       strings.EqualFold(getenv("SONGCATALOG_BLOB_S3_PATH_STYLE"), "true"),
				},
			},
		},
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = persistence.DriverFile
	}
	if addr := getenv("SONGCATALOG_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	for key, dst := range map[string]*bool{
		"SONGCATALOG_SEARCH_IGNORE_CASE": &cfg.IgnoreCase,
		"SONGCATALOG_TRACE_JSON":         &cfg.TraceJSON,
		"SONGCATALOG_AUDIT_LOG":          &cfg.AuditLog,
		"SONGCATALOG_EXPVAR_METRICS":     &cfg.ExpvarMetrics,
	} {
		raw := getenv(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", key, err)
		}
		*dst = v
	}
	if raw := getenv("SONGCATALOG_LOG_LEVEL"); raw != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(raw)); err != nil {
			return Config{}, fmt.Errorf("SONGCATALOG_LOG_LEVEL: %w", err)
		}
	}
	if raw := getenv("SONGCATALOG_SHUTDOWN_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("SONGCATALOG_SHUTDOWN_TIMEOUT: %w", err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("SONGCATALOG_SHUTDOWN_TIMEOUT must be positive, got %s", d)
		}
		cfg.ShutdownTimeout = d
	}
	return cfg, nil
}
