package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for
// LoadConfig and returns its path.
func writeTempConfig(t *testing.T) string {
	t.Helper()
	content := `congressflow:
  name: "TestApp"
  version: "1.0"
ingest:
  mode: tickers
  max_workers: 4
output:
  data_dir: /tmp/congress
  schema: extended
storage:
  s3:
    enabled: false
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Congressflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Congressflow.Name)
	}
	if cfg.Ingest.MaxWorkers != 4 {
		t.Errorf("unexpected max workers: %d", cfg.Ingest.MaxWorkers)
	}
	if cfg.Quiver.Retry.MaxAttempts != 5 {
		t.Errorf("unexpected default retry attempts: %d", cfg.Quiver.Retry.MaxAttempts)
	}
	if cfg.Quiver.RateLimit.Requests != 10 || cfg.Quiver.RateLimit.Window != time.Second {
		t.Errorf("unexpected default rate limit: %+v", cfg.Quiver.RateLimit)
	}
}

func TestLoadConfigTokenFromEnv(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	t.Setenv("QUIVER_API_TOKEN", "env-token")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Quiver.Token != "env-token" {
		t.Errorf("token not taken from environment: %s", cfg.Quiver.Token)
	}
}

func TestLoadConfigInvalidMode(t *testing.T) {
	content := `congressflow:
  name: "TestApp"
  version: "1.0"
ingest:
  mode: stream
  max_workers: 4
output:
  data_dir: /tmp/congress
`
	path := filepath.Join(t.TempDir(), "cfg.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for invalid ingest mode")
	}
}

func TestUniverseValidation(t *testing.T) {
	content := `congressflow:
  name: "TestApp"
  version: "1.0"
output:
  data_dir: /tmp/congress
universe:
  enabled: true
`
	path := filepath.Join(t.TempDir(), "cfg.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for universe without universe_dir")
	}
}

func TestMinListingDateDefault(t *testing.T) {
	cfg := &Config{}
	want := time.Date(1998, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := cfg.MinListingDate(); !got.Equal(want) {
		t.Errorf("MinListingDate() = %v, want %v", got, want)
	}

	cfg.Universe.MinListingDate = "2000-06-15"
	want = time.Date(2000, 6, 15, 0, 0, 0, 0, time.UTC)
	if got := cfg.MinListingDate(); !got.Equal(want) {
		t.Errorf("MinListingDate() = %v, want %v", got, want)
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("APP_ENV", "")
	if got := ResolveConfigPath("", "config/config.yml"); got != "config/config.yml" {
		t.Errorf("unexpected path: %s", got)
	}
	if got := ResolveConfigPath("other.yml", "config/config.yml"); got != "other.yml" {
		t.Errorf("explicit path should win: %s", got)
	}
}
