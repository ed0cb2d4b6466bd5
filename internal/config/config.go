package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	dbFileName  = "porter.db"
	logFileName = "porter.log"
	envFileName = ".env"

	// DefaultSweepSchedule is the cron schedule used by sweep --watch.
	DefaultSweepSchedule = "@every 15m"
)

// Config holds resolved configuration for the porter workspace.
type Config struct {
	Dir        string `validate:"required"` // resolved .porter directory path
	DBPath     string `validate:"required"` // full path to porter.db
	LogPath    string `validate:"required"`
	ExportsDir string `validate:"required"`
	ImportsDir string `validate:"required"`
	TmpDir     string `validate:"required"`
	MediaDir   string `validate:"required"`
	EnvVarSet  bool   // whether PORTER_PATH was used

	Env             string `validate:"oneof=production development"`
	LogLevel        string `validate:"omitempty,oneof=debug info warn error"`
	SiteURL         string `validate:"omitempty,url"`
	DownloadBaseURL string `validate:"omitempty,url"`

	SessionTTL     time.Duration `validate:"gt=0"`
	SessionBackend string        `validate:"oneof=sqlite redis"`
	RedisURL       string        `validate:"required_if=SessionBackend redis"`

	MediaBackend   string `validate:"oneof=local s3"`
	MediaBaseURL   string `validate:"omitempty,url"`
	S3Bucket       string `validate:"required_if=MediaBackend s3"`
	S3Prefix       string
	S3Region       string `validate:"required_if=MediaBackend s3"`
	S3Endpoint     string `validate:"omitempty,url"`
	AWSAccessKeyID string
	AWSSecretKey   string

	AllowPrivateFetch bool
	FetchTimeout      time.Duration `validate:"gt=0"`
	FetchRPS          float64       `validate:"gte=0"`

	Operator      string
	Operators     []string
	SweepSchedule string `validate:"required"`
}

// Resolve returns the current configuration. The workspace is PORTER_PATH,
// falling back to $PWD/.porter. Variables from <workspace>/.env and ./.env
// are loaded first without overriding the process environment.
func Resolve() (*Config, error) {
	var dir string
	var envVarSet bool

	if envPath := os.Getenv("PORTER_PATH"); envPath != "" {
		dir = envPath
		envVarSet = true
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(cwd, ".porter")
	}

	if err := loadEnvFiles(filepath.Join(dir, envFileName), envFileName); err != nil {
		return nil, err
	}

	c := &Config{
		Dir:        dir,
		DBPath:     filepath.Join(dir, dbFileName),
		LogPath:    filepath.Join(dir, logFileName),
		ExportsDir: filepath.Join(dir, "exports"),
		ImportsDir: filepath.Join(dir, "imports"),
		TmpDir:     filepath.Join(dir, "tmp"),
		MediaDir:   filepath.Join(dir, "media"),
		EnvVarSet:  envVarSet,

		Env:             envOr("PORTER_ENV", "production"),
		LogLevel:        os.Getenv("PORTER_LOG_LEVEL"),
		SiteURL:         os.Getenv("PORTER_SITE_URL"),
		DownloadBaseURL: os.Getenv("PORTER_DOWNLOAD_BASE_URL"),
		SessionBackend:  envOr("PORTER_SESSION_BACKEND", "sqlite"),
		RedisURL:        os.Getenv("PORTER_REDIS_URL"),
		MediaBackend:    envOr("PORTER_MEDIA_BACKEND", "local"),
		MediaBaseURL:    os.Getenv("PORTER_MEDIA_BASE_URL"),
		S3Bucket:        os.Getenv("PORTER_S3_BUCKET"),
		S3Prefix:        os.Getenv("PORTER_S3_PREFIX"),
		S3Region:        envOr("PORTER_S3_REGION", os.Getenv("AWS_REGION")),
		S3Endpoint:      os.Getenv("PORTER_S3_ENDPOINT"),
		AWSAccessKeyID:  os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretKey:    os.Getenv("AWS_SECRET_ACCESS_KEY"),
		Operator:        os.Getenv("PORTER_OPERATOR"),
		Operators:       splitList(os.Getenv("PORTER_OPERATORS")),
		SweepSchedule:   envOr("PORTER_SWEEP_SCHEDULE", DefaultSweepSchedule),
	}

	var err error
	if c.SessionTTL, err = envDuration("PORTER_SESSION_TTL", time.Hour); err != nil {
		return nil, err
	}
	if c.FetchTimeout, err = envDuration("PORTER_FETCH_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if c.FetchRPS, err = envFloat("PORTER_FETCH_RPS", 0); err != nil {
		return nil, err
	}
	if c.AllowPrivateFetch, err = envBool("PORTER_ALLOW_PRIVATE_FETCH"); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks the configuration's field constraints.
func (c *Config) Validate() error {
	validateOnce.Do(func() { validate = validator.New() })
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Exists checks if the workspace directory and DB file both exist.
// It returns an error for non-existence failures (e.g. permission errors).
func (c *Config) Exists() (bool, error) {
	if _, err := os.Stat(c.Dir); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if _, err := os.Stat(c.DBPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// EnsureDirs creates the workspace and its working directories.
func (c *Config) EnsureDirs() error {
	for _, d := range []string{c.Dir, c.ExportsDir, c.ImportsDir, c.TmpDir, c.MediaDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", d, err)
		}
	}
	return nil
}

// AllowPrivateHosts reports whether media may be fetched from internal
// addresses. It is only honoured in development.
func (c *Config) AllowPrivateHosts() bool {
	return c.AllowPrivateFetch && c.Env == "development"
}

// OperatorName returns the configured operator, or DefaultOperator.
func (c *Config) OperatorName() string {
	if c.Operator != "" {
		return c.Operator
	}
	return DefaultOperator()
}

// CanManageCatalog reports whether operator holds the catalog management
// capability. Without an allowlist every local operator holds it.
func (c *Config) CanManageCatalog(operator string) bool {
	if operator == "" {
		return false
	}
	if len(c.Operators) == 0 {
		return true
	}
	for _, op := range c.Operators {
		if strings.EqualFold(op, operator) {
			return true
		}
	}
	return false
}

func loadEnvFiles(paths ...string) error {
	var existing []string
	seen := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if info, err := os.Stat(abs); err == nil && info.Mode().IsRegular() {
			existing = append(existing, abs)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("loading env files: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func envBool(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var (
	defaultOperator     string
	defaultOperatorOnce sync.Once
)

// DefaultOperator returns the identity recorded on sessions and activity.
// It tries git config user.name first and falls back to the OS username.
// The result is cached for the lifetime of the process.
func DefaultOperator() string {
	defaultOperatorOnce.Do(func() {
		defaultOperator = resolveOperator()
	})
	return defaultOperator
}

func resolveOperator() string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "git", "config", "user.name").Output()
	if err == nil {
		if name := strings.TrimSpace(string(out)); name != "" {
			return name
		}
	}

	u, err := user.Current()
	if err == nil && u.Username != "" {
		return u.Username
	}

	return "unknown"
}
