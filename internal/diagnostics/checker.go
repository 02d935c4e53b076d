package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"touch-braille-go/internal/apperr"
	"touch-braille-go/internal/config"
)

type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

type Item struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	HasFailures bool      `json:"has_failures"`
	Items       []Item    `json:"items"`
}

// AccessChecker probes the configured bucket.
type AccessChecker interface {
	CheckAccess(ctx context.Context, runID string) error
}

// Checker validates external tools, the output location, configuration and,
// optionally, bucket access.
type Checker struct {
	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	storage    AccessChecker
}

func NewChecker(storage AccessChecker) *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		storage:    storage,
	}
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	storage AccessChecker,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		storage:    storage,
	}
}

// Run executes all checks. configErr is the result of validating cfg.
func (c *Checker) Run(ctx context.Context, cfg config.Config, configErr error) Report {
	items := []Item{
		c.checkTool("ffmpeg", StatusFail, "Install ffmpeg (macOS: brew install ffmpeg, Debian/Ubuntu: apt install ffmpeg)."),
		c.checkTool("ffprobe", StatusFail, "ffprobe ships with ffmpeg; reinstall ffmpeg so both binaries are on PATH."),
		c.checkTool("yt-dlp", StatusWarn, "Only needed for URL inputs: pip install yt-dlp."),
		checkConfig(configErr),
		c.checkOutputDir(filepath.Dir(cfg.OutputPath)),
	}
	if c.storage != nil {
		items = append(items, c.checkBucket(ctx, cfg.Bucket))
	}

	report := Report{GeneratedAt: time.Now().UTC(), Items: items}
	for _, item := range items {
		if item.Status == StatusFail {
			report.HasFailures = true
			break
		}
	}
	return report
}

func (c *Checker) checkTool(name string, missing Status, hint string) Item {
	path, err := c.lookPath(name)
	if err != nil {
		return Item{
			ID:      "tool_" + name,
			Name:    name,
			Status:  missing,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    hint,
		}
	}
	return Item{
		ID:      "tool_" + name,
		Name:    name,
		Status:  StatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

func checkConfig(err error) Item {
	item := Item{ID: "config", Name: "Configuration"}
	if err != nil {
		item.Status = StatusFail
		item.Message = strings.ReplaceAll(err.Error(), "\n", "; ")
		item.Hint = "Set TOUCH_S3_BUCKET and AWS credentials in the environment or a .env file."
		return item
	}
	item.Status = StatusPass
	item.Message = "Configuration is valid."
	return item
}

func (c *Checker) checkOutputDir(dir string) Item {
	item := Item{ID: "output_dir", Name: "Output directory"}
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Cannot create output directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}
	tmp, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Output directory is not writable: %s", dir)
		item.Hint = "Choose a writable directory for the Braille output."
		return item
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	_ = c.remove(tmpPath)

	item.Status = StatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

func (c *Checker) checkBucket(ctx context.Context, bucket string) Item {
	item := Item{ID: "bucket", Name: "Object store bucket"}
	if err := c.storage.CheckAccess(ctx, "doctor"); err != nil {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Bucket %q failed the access check: %v", bucket, err)
		var ae *apperr.Error
		if errors.As(err, &ae) {
			item.Hint = apperr.Hint(ae.Kind)
		}
		return item
	}
	item.Status = StatusPass
	item.Message = fmt.Sprintf("Bucket %q is reachable and writable.", bucket)
	return item
}
