package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points the workspace at a temp dir and clears porter variables so
// the host environment does not leak into a test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PORTER_PATH", dir)
	for _, key := range []string{
		"PORTER_ENV", "PORTER_LOG_LEVEL", "PORTER_SITE_URL", "PORTER_DOWNLOAD_BASE_URL",
		"PORTER_SESSION_TTL", "PORTER_SESSION_BACKEND", "PORTER_REDIS_URL",
		"PORTER_MEDIA_BACKEND", "PORTER_MEDIA_BASE_URL", "PORTER_S3_BUCKET", "PORTER_S3_PREFIX",
		"PORTER_S3_REGION", "PORTER_S3_ENDPOINT", "AWS_REGION", "PORTER_ALLOW_PRIVATE_FETCH",
		"PORTER_FETCH_TIMEOUT", "PORTER_FETCH_RPS", "PORTER_OPERATOR", "PORTER_OPERATORS",
		"PORTER_SWEEP_SCHEDULE",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func TestResolveDefaults(t *testing.T) {
	dir := isolate(t)

	c, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !c.EnvVarSet || c.Dir != dir {
		t.Errorf("Dir = %q (env %v), want %q from PORTER_PATH", c.Dir, c.EnvVarSet, dir)
	}
	if c.DBPath != filepath.Join(dir, "porter.db") || c.LogPath != filepath.Join(dir, "porter.log") {
		t.Errorf("paths = %q, %q", c.DBPath, c.LogPath)
	}
	if c.Env != "production" || c.SessionBackend != "sqlite" || c.MediaBackend != "local" {
		t.Errorf("env/backends = %s/%s/%s", c.Env, c.SessionBackend, c.MediaBackend)
	}
	if c.SessionTTL != time.Hour || c.FetchTimeout != 30*time.Second {
		t.Errorf("ttl/timeout = %v/%v", c.SessionTTL, c.FetchTimeout)
	}
	if c.SweepSchedule != DefaultSweepSchedule {
		t.Errorf("SweepSchedule = %q", c.SweepSchedule)
	}
}

func TestResolveReadsEnvFile(t *testing.T) {
	dir := isolate(t)
	os.WriteFile(filepath.Join(dir, ".env"), []byte(
		"PORTER_SITE_URL=https://shop.example.com\nPORTER_SESSION_TTL=2h\nPORTER_OPERATORS=alice, bob\n",
	), 0o644)
	t.Setenv("PORTER_SESSION_TTL", "")
	os.Unsetenv("PORTER_SESSION_TTL")
	os.Unsetenv("PORTER_SITE_URL")
	os.Unsetenv("PORTER_OPERATORS")

	c, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.SiteURL != "https://shop.example.com" {
		t.Errorf("SiteURL = %q", c.SiteURL)
	}
	if c.SessionTTL != 2*time.Hour {
		t.Errorf("SessionTTL = %v, want 2h", c.SessionTTL)
	}
	if len(c.Operators) != 2 || c.Operators[1] != "bob" {
		t.Errorf("Operators = %v", c.Operators)
	}
}

func TestResolveValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad env", map[string]string{"PORTER_ENV": "staging"}, "Env"},
		{"bad ttl", map[string]string{"PORTER_SESSION_TTL": "soon"}, "PORTER_SESSION_TTL"},
		{"zero ttl", map[string]string{"PORTER_SESSION_TTL": "0s"}, "SessionTTL"},
		{"redis without url", map[string]string{"PORTER_SESSION_BACKEND": "redis"}, "RedisURL"},
		{"s3 without bucket", map[string]string{"PORTER_MEDIA_BACKEND": "s3", "PORTER_S3_REGION": "eu-west-1"}, "S3Bucket"},
		{"bad site url", map[string]string{"PORTER_SITE_URL": "not a url"}, "SiteURL"},
		{"bad rps", map[string]string{"PORTER_FETCH_RPS": "fast"}, "PORTER_FETCH_RPS"},
		{"bad bool", map[string]string{"PORTER_ALLOW_PRIVATE_FETCH": "maybe"}, "PORTER_ALLOW_PRIVATE_FETCH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Resolve()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestAllowPrivateHostsOnlyInDevelopment(t *testing.T) {
	c := &Config{AllowPrivateFetch: true, Env: "production"}
	if c.AllowPrivateHosts() {
		t.Error("production honoured AllowPrivateFetch")
	}
	c.Env = "development"
	if !c.AllowPrivateHosts() {
		t.Error("development ignored AllowPrivateFetch")
	}
}

func TestCanManageCatalog(t *testing.T) {
	open := &Config{}
	if !open.CanManageCatalog("anyone") {
		t.Error("no allowlist should admit every operator")
	}
	if open.CanManageCatalog("") {
		t.Error("anonymous operator admitted")
	}

	restricted := &Config{Operators: []string{"Alice"}}
	if !restricted.CanManageCatalog("alice") {
		t.Error("allowlisted operator refused")
	}
	if restricted.CanManageCatalog("mallory") {
		t.Error("unlisted operator admitted")
	}
}

func TestEnsureDirsAndExists(t *testing.T) {
	isolate(t)
	c, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if ok, err := c.Exists(); err != nil || ok {
		t.Errorf("Exists before init = %v, %v", ok, err)
	}
	if err := c.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, d := range []string{c.ExportsDir, c.ImportsDir, c.TmpDir, c.MediaDir} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", d, err)
		}
	}
	os.WriteFile(c.DBPath, nil, 0o644)
	if ok, err := c.Exists(); err != nil || !ok {
		t.Errorf("Exists after init = %v, %v", ok, err)
	}
}

func TestOperatorName(t *testing.T) {
	c := &Config{Operator: "ci-bot"}
	if c.OperatorName() != "ci-bot" {
		t.Errorf("OperatorName = %q", c.OperatorName())
	}
	c.Operator = ""
	if c.OperatorName() == "" {
		t.Error("OperatorName fell back to empty")
	}
}
