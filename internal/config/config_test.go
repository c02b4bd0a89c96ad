package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate runs the test in an empty directory with the config variables
// unset, so neither a stray .env nor the caller's environment leaks in.
func isolate(t *testing.T) string {
	t.Helper()
	for _, name := range []string{
		"GEMINI_API_KEY", "CLICKGENIUS_MODEL", "CLICKGENIUS_STORAGE",
		"CLICKGENIUS_REDIS_ADDR", "CLICKGENIUS_LOG_LEVEL", "CLICKGENIUS_LOG_FORMAT",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Errorf("APIKey = %q", cfg.Gemini.APIKey)
	}
	if cfg.Gemini.Model != "gemini-2.5-flash-image" {
		t.Errorf("Model = %q", cfg.Gemini.Model)
	}
	if cfg.Gemini.Temperature != 0.7 {
		t.Errorf("Temperature = %v", cfg.Gemini.Temperature)
	}
	if cfg.Gemini.AspectRatio != "16:9" {
		t.Errorf("AspectRatio = %q", cfg.Gemini.AspectRatio)
	}
	if cfg.Gemini.Timeout != 120*time.Second {
		t.Errorf("Timeout = %v", cfg.Gemini.Timeout)
	}
	if cfg.Storage.Driver != DriverSQLite {
		t.Errorf("Driver = %q", cfg.Storage.Driver)
	}
	if cfg.LogLevel() != slog.LevelWarn {
		t.Errorf("LogLevel() = %v", cfg.LogLevel())
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "clickgenius.yaml")
	yaml := `gemini:
  api_key: file-key
  model: gemini-3-pro-image-preview
  temperature: 0.4
storage:
  driver: redis
  redis_addr: cache:6379
export:
  s3_bucket: thumbs
log:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CLICKGENIUS_REDIS_ADDR", "override:6380")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gemini.APIKey != "file-key" || cfg.Gemini.Model != "gemini-3-pro-image-preview" {
		t.Errorf("Gemini = %+v", cfg.Gemini)
	}
	if cfg.Storage.Driver != DriverRedis {
		t.Errorf("Driver = %q", cfg.Storage.Driver)
	}
	if cfg.Storage.RedisAddr != "override:6380" {
		t.Errorf("RedisAddr = %q, want env override", cfg.Storage.RedisAddr)
	}
	if cfg.Export.S3Bucket != "thumbs" {
		t.Errorf("S3Bucket = %q", cfg.Export.S3Bucket)
	}
	if cfg.LogLevel() != slog.LevelDebug {
		t.Errorf("LogLevel() = %v", cfg.LogLevel())
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CLICKGENIUS_LOG_LEVEL=error\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want error from .env", cfg.Log.Level)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	isolate(t)
	if _, err := Load("does-not-exist.yaml"); err == nil {
		t.Error("Load() error = nil for missing file")
	}
}

func TestConfig_Validate(t *testing.T) {
	base := func() Config {
		return Config{
			Storage: Storage{Driver: DriverSQLite},
			Log:     Log{Level: "info", Format: "text"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"redis", func(c *Config) { c.Storage.Driver = DriverRedis }, false},
		{"bad driver", func(c *Config) { c.Storage.Driver = "postgres" }, true},
		{"bad level", func(c *Config) { c.Log.Level = "chatty" }, true},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	cfg := base()
	cfg.Storage.Driver = "mongo"
	if err := cfg.Validate(); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("Validate() error = %v, want ErrUnknownDriver", err)
	}
}

func TestConfig_Provider(t *testing.T) {
	cfg := Config{Gemini: Gemini{APIKey: "k", Temperature: 0.5, AspectRatio: "1:1", Timeout: time.Minute}}
	p := cfg.Provider()
	if p.APIKey != "k" || p.Temperature != 0.5 || p.AspectRatio != "1:1" || p.Timeout != time.Minute {
		t.Errorf("Provider() = %+v", p)
	}
	if p.Model != "gemini-2.5-flash-image" {
		t.Errorf("Provider() Model = %q, want default", p.Model)
	}
}

func TestConfig_SQLitePath(t *testing.T) {
	cfg := Config{Storage: Storage{SQLitePath: "/tmp/x.db"}}
	if got, _ := cfg.SQLitePath(); got != "/tmp/x.db" {
		t.Errorf("SQLitePath() = %q", got)
	}
	cfg.Storage.SQLitePath = ""
	got, err := cfg.SQLitePath()
	if err != nil {
		t.Fatalf("SQLitePath() error = %v", err)
	}
	if !strings.HasSuffix(got, filepath.Join(".clickgenius", "projects.db")) {
		t.Errorf("SQLitePath() = %q", got)
	}
}

func TestUsage(t *testing.T) {
	if !strings.Contains(Usage(), "GEMINI_API_KEY") {
		t.Error("Usage() missing GEMINI_API_KEY")
	}
}
