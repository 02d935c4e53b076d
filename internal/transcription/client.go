package transcription

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	ttypes "github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"

	"touch-braille-go/internal/apperr"
	"touch-braille-go/internal/logger"
	"touch-braille-go/internal/types"
)

const transcriptObject = "transcript.json"

// API is the subset of the Transcribe client used here.
type API interface {
	StartTranscriptionJob(ctx context.Context, params *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, params *transcribe.GetTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
	DeleteTranscriptionJob(ctx context.Context, params *transcribe.DeleteTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.DeleteTranscriptionJobOutput, error)
}

// ObjectFetcher reads and removes the job's output document.
type ObjectFetcher interface {
	Get(ctx context.Context, handle types.ObjectHandle) ([]byte, error)
	Delete(ctx context.Context, handle types.ObjectHandle) error
}

type Options struct {
	LanguageCode           string
	PollMin                time.Duration
	PollMax                time.Duration
	PollMultiplier         float64
	SubmitAttempts         int
	RetryInterval          time.Duration
	LowConfidenceThreshold float64
}

type Client struct {
	api     API
	objects ObjectFetcher
	opts    Options
	log     *logger.Logger
}

func NewClient(api API, objects ObjectFetcher, opts Options, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	if opts.LanguageCode == "" {
		opts.LanguageCode = "en-US"
	}
	if opts.PollMin <= 0 {
		opts.PollMin = 2 * time.Second
	}
	if opts.PollMax < opts.PollMin {
		opts.PollMax = 15 * time.Second
		if opts.PollMax < opts.PollMin {
			opts.PollMax = opts.PollMin
		}
	}
	if opts.PollMultiplier < 1 {
		opts.PollMultiplier = 1.5
	}
	if opts.SubmitAttempts <= 0 {
		opts.SubmitAttempts = 4
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Second
	}
	if opts.LowConfidenceThreshold <= 0 {
		opts.LowConfidenceThreshold = 0.6
	}
	return &Client{api: api, objects: objects, opts: opts, log: log.Component("transcription")}
}

// JobName derives the remote job name from the run id.
func JobName(runID string) string {
	return "touch-" + runID
}

// Submit starts a job for media. The transcript is written next to the media
// object so cleanup can find it. When submission fails after an attempt the
// service may have accepted, the job is still returned for cleanup.
func (c *Client) Submit(ctx context.Context, media types.ObjectHandle, runID string) (*types.TranscriptionJob, error) {
	name := JobName(runID)
	output := types.ObjectHandle{Bucket: media.Bucket, Key: path.Join(path.Dir(media.Key), transcriptObject)}
	log := c.log.WithRun(runID).With("job", name)

	input := &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(name),
		LanguageCode:         ttypes.LanguageCode(c.opts.LanguageCode),
		MediaFormat:          ttypes.MediaFormatWav,
		MediaSampleRateHertz: aws.Int32(16000),
		Media:                &ttypes.Media{MediaFileUri: aws.String(media.URI())},
		OutputBucketName:     aws.String(output.Bucket),
		OutputKey:            aws.String(output.Key),
		Settings: &ttypes.Settings{
			ShowSpeakerLabels: aws.Bool(false),
			ShowAlternatives:  aws.Bool(false),
		},
	}

	var remote *ttypes.TranscriptionJob
	attempt := 0
	// set once an attempt fails in a way the service may still have accepted
	mayExist := false
	op := func() error {
		attempt++
		out, err := c.api.StartTranscriptionJob(ctx, input)
		if err == nil {
			remote = out.TranscriptionJob
			return nil
		}
		var conflict *ttypes.ConflictException
		if errors.As(err, &conflict) && attempt > 1 {
			// an earlier attempt reached the service before failing
			got, gerr := c.api.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{TranscriptionJobName: aws.String(name)})
			if gerr != nil {
				return gerr
			}
			log.Info("adopted job created by an earlier attempt")
			remote = got.TranscriptionJob
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		mayExist = true
		return err
	}
	if err := backoff.RetryNotify(op, c.retryPolicy(ctx), func(err error, next time.Duration) {
		log.WithError(err).WithField("retry", next.String()).Warn("transient submit error")
	}); err != nil {
		var orphan *types.TranscriptionJob
		if mayExist {
			orphan = &types.TranscriptionJob{ID: name, State: types.JobSubmitted, Media: media, Output: output}
		}
		if ctx.Err() != nil {
			return orphan, apperr.Wrap(apperr.KindCancelled, "transcription.submit", err, "submission interrupted")
		}
		return orphan, apperr.Wrap(apperr.KindSubmission, "transcription.submit", err, "service rejected job %s", name)
	}

	job := &types.TranscriptionJob{ID: name, State: types.JobSubmitted, Media: media, Output: output}
	if remote != nil {
		job.State = mapState(remote.TranscriptionJobStatus, job.State)
		job.FailureReason = aws.ToString(remote.FailureReason)
	}
	if job.State == types.JobFailed {
		return job, apperr.New(apperr.KindSubmission, "transcription.submit",
			fmt.Sprintf("job %s failed immediately: %s", name, job.FailureReason))
	}
	log.WithField("state", job.State).Info("transcription job submitted")
	return job, nil
}

// Cleanup deletes the remote job and its output document. Both are attempted.
func (c *Client) Cleanup(ctx context.Context, job *types.TranscriptionJob) error {
	if job == nil || job.ID == "" {
		return nil
	}
	var errs []error
	_, err := c.api.DeleteTranscriptionJob(ctx, &transcribe.DeleteTranscriptionJobInput{TranscriptionJobName: aws.String(job.ID)})
	if err != nil && !isNotFound(err) {
		errs = append(errs, fmt.Errorf("delete job %s: %w", job.ID, err))
	}
	if !job.Output.IsZero() && c.objects != nil {
		if err := c.objects.Delete(ctx, job.Output); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) retryPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.SubmitAttempts-1)), ctx)
}

func mapState(status ttypes.TranscriptionJobStatus, current types.JobState) types.JobState {
	switch status {
	case ttypes.TranscriptionJobStatusQueued:
		return types.JobSubmitted
	case ttypes.TranscriptionJobStatusInProgress:
		return types.JobInProgress
	case ttypes.TranscriptionJobStatusCompleted:
		return types.JobCompleted
	case ttypes.TranscriptionJobStatusFailed:
		return types.JobFailed
	default:
		return current
	}
}

func isNotFound(err error) bool {
	var nf *ttypes.NotFoundException
	return errors.As(err, &nf)
}

func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var limit *ttypes.LimitExceededException
	var internal *ttypes.InternalFailureException
	if errors.As(err, &limit) || errors.As(err, &internal) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "Throttling", "ServiceUnavailable", "RequestTimeout":
			return true
		}
		return apiErr.ErrorFault() == smithy.FaultServer
	}
	return true
}
