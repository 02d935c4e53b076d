package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"touch-braille-go/internal/types"
)

const (
	DefaultRegion               = "ap-northeast-2"
	DefaultKeyPrefix            = "audio"
	DefaultLanguageCode         = "en-US"
	DefaultModelID              = "anthropic.claude-3-sonnet-20240229-v1:0"
	DefaultOutputPath           = "output.brf"
	DefaultRunTimeout           = 45 * time.Minute
	DefaultUploadTimeout        = 5 * time.Minute
	DefaultTranscriptionTimeout = 30 * time.Minute
	DefaultConversionTimeout    = 90 * time.Second
	DefaultCleanupTimeout       = 30 * time.Second
	DefaultMinResponseRatio     = 0.3
)

// Config is the single, validated configuration value handed to the pipeline.
type Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	KeyPrefix       string
	LanguageCode    string
	ModelID         string

	Mode       types.OutputMode
	OutputPath string
	TempDir    string

	RunTimeout           time.Duration
	UploadTimeout        time.Duration
	TranscriptionTimeout time.Duration
	ConversionTimeout    time.Duration
	CleanupTimeout       time.Duration
	MinResponseRatio     float64

	LogLevel    string
	Environment string
	Verbose     bool

	OTELEndpoint string
	OTELInsecure bool
}

// HasStaticCredentials reports whether an explicit credential pair was configured.
func (c *Config) HasStaticCredentials() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// Validate applies defaults, checks required fields, and rejects out-of-range
// values. All problems are reported together.
func (c *Config) Validate() error {
	c.Bucket = strings.TrimSpace(c.Bucket)
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	c.KeyPrefix = strings.Trim(c.KeyPrefix, "/")
	if c.LanguageCode == "" {
		c.LanguageCode = DefaultLanguageCode
	}
	if c.ModelID == "" {
		c.ModelID = DefaultModelID
	}
	if c.Mode == "" {
		c.Mode = types.ModeOptimized
	}
	if c.OutputPath == "" {
		c.OutputPath = DefaultOutputPath
	}
	if c.RunTimeout == 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	if c.UploadTimeout == 0 {
		c.UploadTimeout = DefaultUploadTimeout
	}
	if c.TranscriptionTimeout == 0 {
		c.TranscriptionTimeout = DefaultTranscriptionTimeout
	}
	if c.ConversionTimeout == 0 {
		c.ConversionTimeout = DefaultConversionTimeout
	}
	if c.CleanupTimeout == 0 {
		c.CleanupTimeout = DefaultCleanupTimeout
	}
	if c.MinResponseRatio == 0 {
		c.MinResponseRatio = DefaultMinResponseRatio
	}

	var errs []error
	if c.Bucket == "" {
		errs = append(errs, errors.New("config: bucket is required (TOUCH_S3_BUCKET)"))
	}
	if _, err := types.ParseMode(string(c.Mode)); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		errs = append(errs, errors.New("config: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together"))
	}
	for name, d := range map[string]time.Duration{
		"run timeout":           c.RunTimeout,
		"upload timeout":        c.UploadTimeout,
		"transcription timeout": c.TranscriptionTimeout,
		"conversion timeout":    c.ConversionTimeout,
		"cleanup timeout":       c.CleanupTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("config: %s must be positive, got %s", name, d))
		}
	}
	if c.MinResponseRatio < 0 || c.MinResponseRatio > 1 {
		errs = append(errs, fmt.Errorf("config: min response ratio must be in (0,1], got %v", c.MinResponseRatio))
	}
	return errors.Join(errs...)
}
