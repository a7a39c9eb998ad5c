package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("expected default port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("expected postgres driver, got %q", cfg.Store.Driver)
	}
	if cfg.Kafka.Topics.IngestionJobs != "ingestion.jobs" {
		t.Errorf("unexpected jobs topic %q", cfg.Kafka.Topics.IngestionJobs)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  port: 4000
store:
  driver: sqlite
sqlite:
  path: /tmp/events.db
jobs:
  retention: 2h
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CHRONO_SERVER_PORT", "4100")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("env override lost: port %d", cfg.Server.Port)
	}
	if cfg.Store.Driver != "sqlite" || cfg.SQLite.Path != "/tmp/events.db" {
		t.Errorf("file values not applied: %+v %+v", cfg.Store, cfg.SQLite)
	}
	if cfg.Jobs.Retention != 2*time.Hour {
		t.Errorf("expected 2h retention, got %v", cfg.Jobs.Retention)
	}
	if cfg.Postgres.Host != "db.internal" {
		t.Errorf("expected DB_HOST fallback, got %q", cfg.Postgres.Host)
	}
	// Untouched defaults survive partial files.
	if cfg.Ingestion.MaxLineBytes != 1<<20 {
		t.Errorf("default max line bytes lost: %d", cfg.Ingestion.MaxLineBytes)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("CHRONO_STORE_DRIVER", "mongo")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	t.Setenv("CHRONO_METRICS_PORT", "ninety")
	t.Setenv("CHRONO_JOBS_RETENTION", "1 day")
	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for malformed overrides")
	}
	for _, key := range []string{"CHRONO_METRICS_PORT", "CHRONO_JOBS_RETENTION"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error should name %s: %v", key, err)
		}
	}
}

func TestCanonicalEnvWinsOverAlias(t *testing.T) {
	t.Setenv("CHRONO_POSTGRES_USER", "chrono")
	t.Setenv("DB_USER", "legacy")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Postgres.User != "chrono" {
		t.Errorf("expected CHRONO_POSTGRES_USER to win, got %q", cfg.Postgres.User)
	}
}
