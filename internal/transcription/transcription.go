package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/cenkalti/backoff/v4"

	"touch-braille-go/internal/apperr"
	"touch-braille-go/internal/types"
)

// transcriptFile mirrors the service's output document.
type transcriptFile struct {
	JobName string `json:"jobName"`
	Results struct {
		Transcripts []struct {
			Transcript string `json:"transcript"`
		} `json:"transcripts"`
		Items []struct {
			Type         string `json:"type"`
			Alternatives []struct {
				Confidence string `json:"confidence"`
				Content    string `json:"content"`
			} `json:"alternatives"`
		} `json:"items"`
	} `json:"results"`
}

// AwaitCompletion polls job until it reaches a terminal state, the timeout
// elapses, or ctx is cancelled. The parent context is checked before every poll.
func (c *Client) AwaitCompletion(ctx context.Context, job *types.TranscriptionJob, timeout time.Duration) (types.Transcript, error) {
	if job == nil || job.ID == "" {
		return types.Transcript{}, apperr.New(apperr.KindInternal, "transcription.await", "no job to wait for")
	}
	waitCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	log := c.log.With("job", job.ID)
	interval := c.pollInterval()
	started := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return types.Transcript{}, apperr.Wrap(apperr.KindCancelled, "transcription.await", err, "stopped waiting for %s", job.ID)
		}
		if waitCtx.Err() != nil {
			return types.Transcript{}, c.timeoutError(job, timeout)
		}

		out, err := c.api.GetTranscriptionJob(waitCtx, &transcribe.GetTranscriptionJobInput{TranscriptionJobName: aws.String(job.ID)})
		switch {
		case err != nil && waitCtx.Err() != nil:
			continue
		case err != nil && isNotFound(err):
			return types.Transcript{}, apperr.Wrap(apperr.KindTranscriptionFailed, "transcription.await", err, "job %s disappeared", job.ID)
		case err != nil && !isTransient(err):
			return types.Transcript{}, apperr.Wrap(apperr.KindTranscriptionFailed, "transcription.await", err, "cannot read status of job %s", job.ID)
		case err != nil:
			log.WithError(err).Warn("poll failed, will retry")
		case out.TranscriptionJob != nil:
			prev := job.State
			job.State = mapState(out.TranscriptionJob.TranscriptionJobStatus, job.State)
			if job.State != prev {
				log.WithField("state", job.State).Info("job state changed")
			}
			if !job.State.Terminal() {
				break
			}
			switch job.State {
			case types.JobCompleted:
				log.WithField("waited", time.Since(started).Round(time.Second).String()).Info("transcription completed")
				return c.fetchTranscript(waitCtx, job)
			case types.JobFailed:
				job.FailureReason = aws.ToString(out.TranscriptionJob.FailureReason)
				return types.Transcript{}, apperr.New(apperr.KindTranscriptionFailed, "transcription.await",
					fmt.Sprintf("job %s failed: %s", job.ID, job.FailureReason))
			}
		}

		timer := time.NewTimer(interval.NextBackOff())
		select {
		case <-waitCtx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (c *Client) timeoutError(job *types.TranscriptionJob, timeout time.Duration) error {
	state := string(job.State)
	if state == "" {
		state = "pending"
	}
	return apperr.New(apperr.KindTranscriptionTimeout, "transcription.await",
		fmt.Sprintf("job %s still %s after %s", job.ID, state, timeout))
}

// pollInterval grows from PollMin to PollMax without jitter and never stops.
func (c *Client) pollInterval() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.opts.PollMin,
		RandomizationFactor: 0,
		Multiplier:          c.opts.PollMultiplier,
		MaxInterval:         c.opts.PollMax,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

func (c *Client) fetchTranscript(ctx context.Context, job *types.TranscriptionJob) (types.Transcript, error) {
	data, err := c.objects.Get(ctx, job.Output)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return types.Transcript{}, apperr.Wrap(apperr.KindCancelled, "transcription.fetch", err, "transcript download interrupted")
		}
		return types.Transcript{}, apperr.Wrap(apperr.KindTranscriptionFailed, "transcription.fetch", err, "cannot read transcript %s", job.Output.URI())
	}
	transcript, err := parseTranscript(data, c.opts.LowConfidenceThreshold)
	if err != nil {
		return types.Transcript{}, apperr.Wrap(apperr.KindTranscriptionFailed, "transcription.fetch", err, "job %s", job.ID)
	}
	if transcript.LowConfidence {
		c.log.With("job", job.ID).WithField("confidence", transcript.Confidence).Warn("low transcript confidence")
	}
	return transcript, nil
}

// parseTranscript extracts the text and the mean confidence of spoken items.
func parseTranscript(data []byte, lowThreshold float64) (types.Transcript, error) {
	var file transcriptFile
	if err := json.Unmarshal(data, &file); err != nil {
		return types.Transcript{}, fmt.Errorf("malformed transcript document: %w", err)
	}
	parts := make([]string, 0, len(file.Results.Transcripts))
	for _, t := range file.Results.Transcripts {
		if s := strings.TrimSpace(t.Transcript); s != "" {
			parts = append(parts, s)
		}
	}
	text := strings.Join(parts, "\n")
	if text == "" {
		return types.Transcript{}, errors.New("transcript is empty")
	}

	var sum float64
	var scored int
	for _, item := range file.Results.Items {
		if item.Type != "pronunciation" || len(item.Alternatives) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(item.Alternatives[0].Confidence, 64)
		if err != nil {
			continue
		}
		sum += v
		scored++
	}
	out := types.Transcript{Text: text}
	if scored > 0 {
		out.Confidence = sum / float64(scored)
		out.LowConfidence = out.Confidence < lowThreshold
	}
	return out, nil
}
