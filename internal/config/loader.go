package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"touch-braille-go/internal/types"
)

// Loader loads configuration from environment variables. Tests can override
// Lookup to inject deterministic maps.
type Loader struct {
	Lookup func(string) (string, bool)
}

// LoadEnvFiles merges dotenv files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the environment into a Config. It does not validate; callers
// apply flag overrides first and then call Validate.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}

	var cfg Config
	overrideString(l.Lookup, "TOUCH_S3_BUCKET", &cfg.Bucket)
	overrideString(l.Lookup, "AWS_REGION", &cfg.Region)
	overrideString(l.Lookup, "AWS_ACCESS_KEY_ID", &cfg.AccessKeyID)
	overrideString(l.Lookup, "AWS_SECRET_ACCESS_KEY", &cfg.SecretAccessKey)
	overrideString(l.Lookup, "AWS_SESSION_TOKEN", &cfg.SessionToken)
	overrideString(l.Lookup, "TOUCH_KEY_PREFIX", &cfg.KeyPrefix)
	overrideString(l.Lookup, "TOUCH_LANGUAGE_CODE", &cfg.LanguageCode)
	overrideString(l.Lookup, "TOUCH_BEDROCK_MODEL_ID", &cfg.ModelID)
	overrideString(l.Lookup, "TOUCH_OUTPUT", &cfg.OutputPath)
	overrideString(l.Lookup, "TOUCH_TEMP_DIR", &cfg.TempDir)
	overrideString(l.Lookup, "LOG_LEVEL", &cfg.LogLevel)
	overrideString(l.Lookup, "ENVIRONMENT", &cfg.Environment)
	overrideString(l.Lookup, "TOUCH_OTEL_ENDPOINT", &cfg.OTELEndpoint)

	var mode string
	overrideString(l.Lookup, "TOUCH_BRAILLE_MODE", &mode)
	cfg.Mode = types.OutputMode(strings.ToLower(mode))

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"TOUCH_RUN_TIMEOUT", &cfg.RunTimeout},
		{"TOUCH_UPLOAD_TIMEOUT", &cfg.UploadTimeout},
		{"TOUCH_TRANSCRIBE_TIMEOUT", &cfg.TranscriptionTimeout},
		{"TOUCH_CONVERT_TIMEOUT", &cfg.ConversionTimeout},
		{"TOUCH_CLEANUP_TIMEOUT", &cfg.CleanupTimeout},
	}
	for _, d := range durations {
		if err := overrideDuration(l.Lookup, d.key, d.target); err != nil {
			return Config{}, err
		}
	}

	if err := overrideBool(l.Lookup, "TOUCH_VERBOSE", &cfg.Verbose); err != nil {
		return Config{}, err
	}
	if err := overrideBool(l.Lookup, "TOUCH_OTEL_INSECURE", &cfg.OTELInsecure); err != nil {
		return Config{}, err
	}
	if raw, ok := lookupTrimmed(l.Lookup, "TOUCH_MIN_RESPONSE_RATIO"); ok {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: TOUCH_MIN_RESPONSE_RATIO: %w", err)
		}
		cfg.MinResponseRatio = v
	}
	return cfg, nil
}

func lookupTrimmed(lookup func(string) (string, bool), key string) (string, bool) {
	value, ok := lookup(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if lookup == nil || target == nil {
		return
	}
	if value, ok := lookupTrimmed(lookup, key); ok {
		*target = value
	}
}

func overrideDuration(lookup func(string) (string, bool), key string, target *time.Duration) error {
	raw, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	if d <= 0 {
		return fmt.Errorf("config: %s must be positive, got %s", key, raw)
	}
	*target = d
	return nil
}

func overrideBool(lookup func(string) (string, bool), key string, target *bool) error {
	raw, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = v
	return nil
}
