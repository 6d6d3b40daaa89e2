package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"songcatalog/internal/blob"
	"songcatalog/internal/persistence"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(envMap(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != DefaultAddr || cfg.ShutdownTimeout != DefaultShutdownTimeout {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Storage.Driver != persistence.DriverFile || cfg.IgnoreCase || cfg.LogLevel != slog.LevelInfo || cfg.TraceJSON || cfg.AuditLog || cfg.ExpvarMetrics {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(envMap(map[string]string{
		"SONGCATALOG_ADDR":               "127.0.0.1:9000",
		"SONGCATALOG_STORAGE_DRIVER":     "BLOB",
		"SONGCATALOG_BLOB_DRIVER":        "s3",
		"SONGCATALOG_BLOB_KEY":           "songs/current.json",
		"SONGCATALOG_BLOB_S3_BUCKET":     "catalog",
		"SONGCATALOG_BLOB_S3_ENDPOINT":   "http://minio:9000",
		"SONGCATALOG_BLOB_S3_PATH_STYLE": "TRUE",
		"SONGCATALOG_SEARCH_IGNORE_CASE": "true",
		"SONGCATALOG_LOG_LEVEL":          "debug",
		"SONGCATALOG_SHUTDOWN_TIMEOUT":   "3s",
		"SONGCATALOG_TRACE_JSON":         "1",
		"SONGCATALOG_AUDIT_LOG":          "true",
		"SONGCATALOG_EXPVAR_METRICS":     "t",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" || cfg.Storage.Driver != persistence.DriverBlob {
		t.Fatalf("unexpected config %+v", cfg)
	}
	s3 := cfg.Storage.Blob.S3
	if cfg.Storage.Blob.Driver != blob.DriverS3 || s3.Bucket != "catalog" || !s3.PathStyle || s3.Endpoint != "http://minio:9000" {
		t.Fatalf("unexpected blob config %+v", cfg.Storage.Blob)
	}
	if cfg.Storage.BlobKey != "songs/current.json" || !cfg.IgnoreCase || cfg.LogLevel != slog.LevelDebug || cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.TraceJSON || !cfg.AuditLog || !cfg.ExpvarMetrics {
		t.Fatalf("expected observability switches on, got %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"SONGCATALOG_SEARCH_IGNORE_CASE": "sometimes",
		"SONGCATALOG_LOG_LEVEL":          "loud",
		"SONGCATALOG_SHUTDOWN_TIMEOUT":   "-1s",
		"SONGCATALOG_TRACE_JSON":         "yes please",
		"SONGCATALOG_AUDIT_LOG":          "on",
		"SONGCATALOG_EXPVAR_METRICS":     "2",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			_, err := Load(envMap(map[string]string{key: value}))
			if err == nil || !strings.Contains(err.Error(), key) {
				t.Fatalf("expected error naming %s, got %v", key, err)
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SONGCATALOG_STORAGE_DRIVER", "sqlite")
	t.Setenv("SONGCATALOG_SQLITE_PATH", "/tmp/catalog.db")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Storage.Driver != persistence.DriverSQLite || cfg.Storage.SQLitePath != "/tmp/catalog.db" {
		t.Fatalf("unexpected storage config %+v", cfg.Storage)
	}
}
