package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"touch-braille-go/internal/logger"
	"touch-braille-go/internal/types"
)

type Stage string

const (
	StageResolving     Stage = "Resolving"
	StageUploading     Stage = "Uploading"
	StageTranscribing  Stage = "Transcribing"
	StageConverting    Stage = "Converting"
	StageEncoding      Stage = "Encoding"
	StageWritingOutput Stage = "WritingOutput"
	StageCleaningUp    Stage = "CleaningUp"
	StageDone          Stage = "Done"
	StageFailed        Stage = "Failed"
)

// every work stage may bail out to CleaningUp; CleaningUp ends the run
var transitions = map[Stage][]Stage{
	"":                 {StageResolving, StageCleaningUp},
	StageResolving:     {StageUploading, StageCleaningUp},
	StageUploading:     {StageTranscribing, StageCleaningUp},
	StageTranscribing:  {StageConverting, StageCleaningUp},
	StageConverting:    {StageEncoding, StageCleaningUp},
	StageEncoding:      {StageWritingOutput, StageCleaningUp},
	StageWritingOutput: {StageCleaningUp},
	StageCleaningUp:    {StageDone, StageFailed},
}

func isValidTransition(from, to Stage) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the stage ends a run.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

type StageRecord struct {
	Stage    Stage         `json:"stage"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

type ResourceKind string

const (
	ResourceTempFile     ResourceKind = "temp-file"
	ResourceRemoteObject ResourceKind = "remote-object"
	ResourceJob          ResourceKind = "transcription-job"
)

// Resource is something a run acquired and must give back.
type Resource struct {
	Kind    ResourceKind
	ID      string
	release func(ctx context.Context) error
}

// RunContext tracks one conversion: its stage marker, timings and the
// resources it owns. It is not safe for concurrent use.
type RunContext struct {
	ID     string
	Input  string
	Mode   types.OutputMode
	Output string

	stage     Stage
	history   []StageRecord
	resources []Resource
	released  bool
	now       func() time.Time
}

func NewRunContext(input string, mode types.OutputMode, output string) *RunContext {
	return &RunContext{
		ID:     uuid.NewString(),
		Input:  input,
		Mode:   mode,
		Output: output,
		now:    time.Now,
	}
}

func (rc *RunContext) Stage() Stage { return rc.stage }

// Advance moves the marker forward, closing the open stage record.
func (rc *RunContext) Advance(next Stage) error {
	if !isValidTransition(rc.stage, next) {
		return fmt.Errorf("invalid stage transition %q -> %q", rc.stage, next)
	}
	rc.closeStage(nil)
	rc.stage = next
	rc.history = append(rc.history, StageRecord{Stage: next, Started: rc.now()})
	if next.Terminal() {
		rc.closeStage(nil)
	}
	return nil
}

// closeStage stamps the open record; the first error recorded for a stage wins.
func (rc *RunContext) closeStage(err error) {
	if len(rc.history) == 0 {
		return
	}
	last := &rc.history[len(rc.history)-1]
	if err != nil && last.Error == "" {
		last.Error = err.Error()
	}
	if !last.Finished.IsZero() {
		return
	}
	last.Finished = rc.now()
	last.Duration = last.Finished.Sub(last.Started)
}

func (rc *RunContext) History() []StageRecord {
	out := make([]StageRecord, len(rc.history))
	copy(out, rc.history)
	return out
}

// Own registers a resource; release is called at most once by Release.
func (rc *RunContext) Own(kind ResourceKind, id string, release func(ctx context.Context) error) {
	rc.resources = append(rc.resources, Resource{Kind: kind, ID: id, release: release})
}

func (rc *RunContext) Resources() []Resource {
	out := make([]Resource, len(rc.resources))
	copy(out, rc.resources)
	return out
}

// Release gives back every owned resource in reverse order of acquisition.
// Each release gets its own timeout on a context that ignores cancellation of
// ctx. Failures are collected and logged, never returned as a run failure.
func (rc *RunContext) Release(ctx context.Context, timeout time.Duration, log *logger.Logger) []error {
	if rc.released {
		return nil
	}
	rc.released = true
	if log == nil {
		log = logger.Discard()
	}
	base := context.WithoutCancel(ctx)

	var errs []error
	for i := len(rc.resources) - 1; i >= 0; i-- {
		res := rc.resources[i]
		rctx, cancel := base, context.CancelFunc(func() {})
		if timeout > 0 {
			rctx, cancel = context.WithTimeout(base, timeout)
		}
		err := res.release(rctx)
		cancel()
		entry := log.WithError(err).WithFields(map[string]interface{}{"kind": res.Kind, "id": res.ID})
		if err != nil {
			errs = append(errs, fmt.Errorf("release %s %s: %w", res.Kind, res.ID, err))
			entry.Warn("cleanup step failed")
			continue
		}
		entry.Debug("released")
	}
	rc.resources = nil
	return errs
}
