package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"touch-braille-go/internal/config"
	"touch-braille-go/internal/types"
)

func mapLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}
}

func TestLoaderDefaultsAfterValidate(t *testing.T) {
	loader := config.Loader{Lookup: mapLookup(map[string]string{"TOUCH_S3_BUCKET": "touch-ai-braille"})}
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if cfg.Region != config.DefaultRegion {
		t.Fatalf("expected region %q, got %q", config.DefaultRegion, cfg.Region)
	}
	if cfg.Mode != types.ModeOptimized {
		t.Fatalf("expected mode optimized, got %q", cfg.Mode)
	}
	if cfg.OutputPath != config.DefaultOutputPath {
		t.Fatalf("expected output %q, got %q", config.DefaultOutputPath, cfg.OutputPath)
	}
	if cfg.TranscriptionTimeout != config.DefaultTranscriptionTimeout {
		t.Fatalf("expected transcription timeout %s, got %s", config.DefaultTranscriptionTimeout, cfg.TranscriptionTimeout)
	}
	if cfg.HasStaticCredentials() {
		t.Fatal("expected no static credentials")
	}
}

func TestLoaderOverrides(t *testing.T) {
	env := map[string]string{
		"TOUCH_S3_BUCKET":          " my-bucket ",
		"AWS_REGION":               "us-east-1",
		"AWS_ACCESS_KEY_ID":        "AKIA",
		"AWS_SECRET_ACCESS_KEY":    "secret",
		"TOUCH_BRAILLE_MODE":       "UNICODE",
		"TOUCH_TRANSCRIBE_TIMEOUT": "2m",
		"TOUCH_VERBOSE":            "true",
		"TOUCH_MIN_RESPONSE_RATIO": "0.5",
		"TOUCH_KEY_PREFIX":         "/media/",
	}
	cfg, err := config.Loader{Lookup: mapLookup(env)}.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if cfg.Bucket != "my-bucket" {
		t.Fatalf("bucket = %q", cfg.Bucket)
	}
	if cfg.Mode != types.ModeUnicode {
		t.Fatalf("mode = %q", cfg.Mode)
	}
	if cfg.TranscriptionTimeout != 2*time.Minute {
		t.Fatalf("transcription timeout = %s", cfg.TranscriptionTimeout)
	}
	if !cfg.Verbose || !cfg.HasStaticCredentials() {
		t.Fatalf("verbose/credentials not applied: %+v", cfg)
	}
	if cfg.MinResponseRatio != 0.5 {
		t.Fatalf("ratio = %v", cfg.MinResponseRatio)
	}
	if cfg.KeyPrefix != "media" {
		t.Fatalf("key prefix = %q", cfg.KeyPrefix)
	}
}

func TestLoaderRejectsBadDuration(t *testing.T) {
	_, err := config.Loader{Lookup: mapLookup(map[string]string{"TOUCH_RUN_TIMEOUT": "soon"})}.Load()
	if err == nil || !strings.Contains(err.Error(), "TOUCH_RUN_TIMEOUT") {
		t.Fatalf("expected duration error, got %v", err)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := config.Config{
		Mode:        "grade2",
		AccessKeyID: "AKIA",
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, part := range []string{"bucket is required", "unknown braille mode", "must be set together"} {
		if !strings.Contains(err.Error(), part) {
			t.Fatalf("error %q missing %q", err, part)
		}
	}
}

func TestLoadEnvFilesDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TOUCH_TEST_FILE_ONLY=from-file\nTOUCH_TEST_PRESET=from-file\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("TOUCH_TEST_PRESET", "from-env")
	t.Setenv("TOUCH_TEST_FILE_ONLY", "")
	os.Unsetenv("TOUCH_TEST_FILE_ONLY")

	if err := config.LoadEnvFiles(filepath.Join(t.TempDir(), "missing.env"), path); err != nil {
		t.Fatalf("LoadEnvFiles() error = %v", err)
	}
	if got := os.Getenv("TOUCH_TEST_FILE_ONLY"); got != "from-file" {
		t.Fatalf("file-only var = %q", got)
	}
	if got := os.Getenv("TOUCH_TEST_PRESET"); got != "from-env" {
		t.Fatalf("preset var overridden: %q", got)
	}
}
