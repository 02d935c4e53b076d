package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"touch-braille-go/internal/apperr"
	"touch-braille-go/internal/braille"
	"touch-braille-go/internal/config"
	"touch-braille-go/internal/logger"
	"touch-braille-go/internal/media"
	"touch-braille-go/internal/types"
)

type Resolver interface {
	Resolve(ctx context.Context, input, runID string) (types.AudioAsset, error)
}

type ObjectStore interface {
	Upload(ctx context.Context, asset types.AudioAsset, runID string) (types.ObjectHandle, error)
	Delete(ctx context.Context, handle types.ObjectHandle) error
}

type Transcriber interface {
	Submit(ctx context.Context, handle types.ObjectHandle, runID string) (*types.TranscriptionJob, error)
	AwaitCompletion(ctx context.Context, job *types.TranscriptionJob, timeout time.Duration) (types.Transcript, error)
	Cleanup(ctx context.Context, job *types.TranscriptionJob) error
}

type Converter interface {
	Convert(ctx context.Context, transcript types.Transcript, mode types.OutputMode) types.BrailleDocument
}

// Recorder receives stage and run outcomes, e.g. for metrics.
type Recorder interface {
	StageFinished(ctx context.Context, stage string, d time.Duration, err error)
	RunFinished(ctx context.Context, verdict, kind string, d time.Duration, degraded bool)
}

type nopRecorder struct{}

func (nopRecorder) StageFinished(context.Context, string, time.Duration, error)     {}
func (nopRecorder) RunFinished(context.Context, string, string, time.Duration, bool) {}

type Deps struct {
	Resolver    Resolver
	Store       ObjectStore
	Transcriber Transcriber
	Converter   Converter
	Recorder    Recorder
}

type Request struct {
	// RunID is generated when empty.
	RunID  string
	Input  string
	Mode   types.OutputMode
	Output string
}

type Result struct {
	RunID         string
	Input         string
	Output        string
	Mode          types.OutputMode
	Stage         Stage
	Document      types.BrailleDocument
	Transcript    types.Transcript
	Cells         int
	Degraded      bool
	Warnings      []string
	Stages        []StageRecord
	CleanupErrors []error
	Duration      time.Duration
	Err           *RunError
}

// Orchestrator drives one run through the fixed stage sequence and releases
// everything the run acquired, whatever the outcome.
type Orchestrator struct {
	deps Deps
	cfg  config.Config
	log  *logger.Logger
}

// NewOrchestrator expects cfg to have passed Validate.
func NewOrchestrator(cfg config.Config, deps Deps, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Discard()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	return &Orchestrator{deps: deps, cfg: cfg, log: log.Component("pipeline")}
}

// Run executes the pipeline. On failure the returned error is a *RunError and
// the Result still carries the stage history and cleanup outcome.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	mode := req.Mode
	if mode == "" {
		mode = o.cfg.Mode
	}
	output := req.Output
	if output == "" {
		output = o.cfg.OutputPath
	}
	rc := NewRunContext(req.Input, mode, output)
	if req.RunID != "" {
		rc.ID = req.RunID
	}

	started := time.Now()
	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}
	log := o.log.WithRun(rc.ID)
	log.WithFields(map[string]interface{}{"input": rc.Input, "mode": rc.Mode, "output": rc.Output}).Info("run started")

	res := Result{RunID: rc.ID, Input: rc.Input, Output: rc.Output, Mode: rc.Mode}
	runErr := o.execute(ctx, rc, &res, log)

	if err := rc.Advance(StageCleaningUp); err != nil {
		log.WithError(err).Error("stage machine rejected cleanup")
	}
	res.CleanupErrors = rc.Release(ctx, o.cfg.CleanupTimeout, log)
	o.deps.Recorder.StageFinished(ctx, string(StageCleaningUp), time.Since(rc.history[len(rc.history)-1].Started), errors.Join(res.CleanupErrors...))

	final := StageDone
	if runErr != nil {
		final = StageFailed
	}
	_ = rc.Advance(final)
	res.Stage = final
	res.Stages = rc.History()
	res.Duration = time.Since(started)

	kind := ""
	if runErr != nil {
		res.Err = runErr
		kind = string(runErr.Kind)
		log.WithError(runErr.Err).WithFields(map[string]interface{}{
			"stage": runErr.Stage,
			"kind":  runErr.Kind,
			"hint":  runErr.Hint,
		}).Error("run failed")
	} else {
		log.WithFields(map[string]interface{}{
			"duration": res.Duration.Round(time.Millisecond).String(),
			"cells":    res.Cells,
			"degraded": res.Degraded,
		}).Info("run complete")
	}
	if len(res.CleanupErrors) > 0 {
		log.WithField("count", len(res.CleanupErrors)).Warn("some resources could not be released")
	}
	o.deps.Recorder.RunFinished(ctx, strings.ToLower(string(final)), kind, res.Duration, res.Degraded)

	if runErr != nil {
		return res, runErr
	}
	return res, nil
}

func (o *Orchestrator) execute(ctx context.Context, rc *RunContext, res *Result, log *logger.Logger) *RunError {
	var (
		asset  types.AudioAsset
		handle types.ObjectHandle
		doc    types.BrailleDocument
	)

	steps := []struct {
		stage   Stage
		timeout time.Duration
		fn      func(ctx context.Context) error
	}{
		{StageResolving, 0, func(ctx context.Context) error {
			var err error
			asset, err = o.deps.Resolver.Resolve(ctx, rc.Input, rc.ID)
			if err != nil {
				return err
			}
			path := asset.Path
			rc.Own(ResourceTempFile, path, func(context.Context) error { return media.RemoveTemp(path) })
			return nil
		}},
		{StageUploading, o.cfg.UploadTimeout, func(ctx context.Context) error {
			var err error
			handle, err = o.deps.Store.Upload(ctx, asset, rc.ID)
			if err != nil {
				return err
			}
			h := handle
			rc.Own(ResourceRemoteObject, h.URI(), func(ctx context.Context) error { return o.deps.Store.Delete(ctx, h) })
			return nil
		}},
		{StageTranscribing, 0, func(ctx context.Context) error {
			job, err := o.deps.Transcriber.Submit(ctx, handle, rc.ID)
			if job != nil {
				rc.Own(ResourceJob, job.ID, func(ctx context.Context) error { return o.deps.Transcriber.Cleanup(ctx, job) })
			}
			if err != nil {
				return err
			}
			res.Transcript, err = o.deps.Transcriber.AwaitCompletion(ctx, job, o.cfg.TranscriptionTimeout)
			if err != nil {
				return err
			}
			if res.Transcript.LowConfidence {
				res.Warnings = append(res.Warnings, fmt.Sprintf("LowConfidence: mean transcript confidence %.2f", res.Transcript.Confidence))
			}
			return nil
		}},
		{StageConverting, o.cfg.ConversionTimeout, func(ctx context.Context) error {
			doc = o.deps.Converter.Convert(ctx, res.Transcript, rc.Mode)
			if doc.Degraded {
				res.Degraded = true
				res.Warnings = append(res.Warnings, "ConversionDegraded: "+doc.DegradedReason)
				log.WithField("reason", doc.DegradedReason).Warn("conversion degraded to raw transcript")
			}
			return nil
		}},
		{StageEncoding, 0, func(context.Context) error {
			if rc.Mode == types.ModeUnicode {
				encoded := braille.Encode(doc.Text)
				encoded.Degraded, encoded.DegradedReason = doc.Degraded, doc.DegradedReason
				doc = encoded
				res.Cells = braille.CellCount(doc.Text)
			} else {
				doc.Mode = rc.Mode
				res.Cells = len([]rune(doc.Text))
			}
			if strings.TrimSpace(doc.Text) == "" {
				return apperr.New(apperr.KindInternal, "pipeline.encode", "document is empty")
			}
			res.Document = doc
			return nil
		}},
		{StageWritingOutput, 0, func(context.Context) error {
			return WriteOutput(rc.Output, doc.Text)
		}},
	}

	for _, step := range steps {
		if err := o.runStage(ctx, rc, step.stage, step.timeout, step.fn, log); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runStage(ctx context.Context, rc *RunContext, stage Stage, timeout time.Duration, fn func(context.Context) error, log *logger.Logger) *RunError {
	if err := ctx.Err(); err != nil {
		return newRunError(stage, apperr.KindCancelled, apperr.Wrap(apperr.KindCancelled, "pipeline", err, "cancelled before %s", stage))
	}
	if err := rc.Advance(stage); err != nil {
		return newRunError(stage, apperr.KindInternal, err)
	}
	log.WithField("stage", stage).Debug("stage started")

	sctx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, timeout)
	}
	start := time.Now()
	err := fn(sctx)
	cancel()
	rc.closeStage(err)
	o.deps.Recorder.StageFinished(ctx, string(stage), time.Since(start), err)

	if err == nil {
		log.WithFields(map[string]interface{}{
			"stage":    stage,
			"duration": time.Since(start).Round(time.Millisecond).String(),
		}).Info("stage complete")
		return nil
	}
	kind := apperr.KindOf(err)
	if ctx.Err() != nil {
		kind = apperr.KindCancelled
	}
	return newRunError(stage, kind, err)
}
