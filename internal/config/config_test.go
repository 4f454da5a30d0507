package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jkaninda/gitcreds/internal/credstore"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("GITCREDS_SCRATCH_DIR", "")
	t.Setenv("GITCREDS_DATA_DIR", "")
	t.Setenv("GITCREDS_POSTGRES_DSN", "")

	path := writeConfig(t, "config.yaml", `
scratch_dir: /var/lib/ci/scratch
git_credentials:
  enable_user_lookup: true
  fail_build_if_no_user_credential: true
  enable_system_lookup: true
  system_credential_id: sys1
janitor:
  schedule: "@every 30m"
  max_age_minutes: 120
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ScratchDir != "/var/lib/ci/scratch" {
		t.Errorf("ScratchDir = %q", cfg.ScratchDir)
	}
	if !cfg.Job.EnableUserLookup || !cfg.Job.FailBuildIfNoUserCredential || !cfg.Job.EnableSystemLookup {
		t.Errorf("job flags not parsed: %+v", cfg.Job)
	}
	if cfg.Job.SystemCredentialID != "sys1" {
		t.Errorf("SystemCredentialID = %q", cfg.Job.SystemCredentialID)
	}
	if cfg.Janitor.MaxAge() != 2*time.Hour {
		t.Errorf("janitor MaxAge = %v", cfg.Janitor.MaxAge())
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("GITCREDS_SCRATCH_DIR", "/tmp/override-scratch")
	t.Setenv("GITCREDS_POSTGRES_DSN", "postgres://ci@db/creds")

	path := writeConfig(t, "config.yaml", "scratch_dir: /from/file\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ScratchDir != "/tmp/override-scratch" {
		t.Errorf("env override lost: %q", cfg.ScratchDir)
	}
	if cfg.Store == nil || cfg.Store.Driver != credstore.DriverPostgres {
		t.Fatalf("DSN env must select postgres driver: %+v", cfg.Store)
	}
	if cfg.Store.Postgres.DSN != "postgres://ci@db/creds" {
		t.Errorf("DSN = %q", cfg.Store.Postgres.DSN)
	}
}

func TestDefaultStoreConfigDerivedFromDataDir(t *testing.T) {
	t.Setenv("GITCREDS_DATA_DIR", "")

	cfg := Default()
	cfg.DataDir = t.TempDir()

	sc, err := cfg.StoreConfig()
	if err != nil {
		t.Fatalf("StoreConfig: %v", err)
	}
	if sc.Driver != credstore.DriverSQLite {
		t.Errorf("Driver = %q", sc.Driver)
	}
	if want := filepath.Join(cfg.DataDir, "credentials.db"); sc.SQLite.Path != want {
		t.Errorf("SQLite.Path = %q, want %q", sc.SQLite.Path, want)
	}
}

func TestJanitorDefaults(t *testing.T) {
	var j *JanitorConfig
	if j.MaxAge() != 6*time.Hour {
		t.Errorf("nil janitor MaxAge = %v, want 6h", j.MaxAge())
	}
}
