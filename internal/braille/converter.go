package braille

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"

	"touch-braille-go/internal/logger"
	"touch-braille-go/internal/types"
)

const anthropicVersion = "bedrock-2023-05-31"

// ModelAPI is the subset of the Bedrock runtime client used here.
type ModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type Options struct {
	ModelID          string
	MaxTokens        int
	Temperature      float64
	MinResponseRatio float64
	Attempts         int
	RetryInterval    time.Duration
}

// Converter asks a generative model for a Braille-friendly rewrite of a
// transcript and falls back to the transcript itself when that fails.
type Converter struct {
	api  ModelAPI
	opts Options
	log  *logger.Logger
}

func NewConverter(api ModelAPI, opts Options, log *logger.Logger) *Converter {
	if log == nil {
		log = logger.Discard()
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.3
	}
	if opts.MinResponseRatio <= 0 {
		opts.MinResponseRatio = 0.3
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Second
	}
	return &Converter{api: api, opts: opts, log: log.Component("braille.converter")}
}

type messageContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type message struct {
	Role    string           `json:"role"`
	Content []messageContent `json:"content"`
}

type invokeRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      float64   `json:"temperature"`
	Messages         []message `json:"messages"`
}

type invokeResponse struct {
	Content []messageContent `json:"content"`
	// older text-completion models
	Completion string `json:"completion"`
}

// Convert never fails: model errors and rejected responses degrade to the
// original transcript text.
func (c *Converter) Convert(ctx context.Context, transcript types.Transcript, mode types.OutputMode) types.BrailleDocument {
	source := transcript.Text
	if strings.TrimSpace(source) == "" {
		return fallback(source, mode, "transcript is empty")
	}

	text, err := c.invoke(ctx, BuildPrompt(source, mode))
	if err != nil {
		c.log.WithError(err).Warn("model call failed, using raw transcript")
		return fallback(source, mode, fmt.Sprintf("model call failed: %v", err))
	}

	cleaned := cleanResponse(text)
	if reason := c.reject(source, cleaned); reason != "" {
		c.log.WithField("reason", reason).Warn("model response rejected, using raw transcript")
		return fallback(source, mode, reason)
	}
	c.log.WithFields(map[string]interface{}{
		"input_chars":  len([]rune(source)),
		"output_chars": len([]rune(cleaned)),
	}).Info("braille-optimized text received")
	return types.BrailleDocument{Text: cleaned, Mode: mode}
}

func fallback(text string, mode types.OutputMode, reason string) types.BrailleDocument {
	return types.BrailleDocument{Text: text, Mode: mode, Degraded: true, DegradedReason: reason}
}

func (c *Converter) invoke(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(invokeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        c.opts.MaxTokens,
		Temperature:      c.opts.Temperature,
		Messages: []message{{
			Role:    "user",
			Content: []messageContent{{Type: "text", Text: prompt}},
		}},
	})
	if err != nil {
		return "", err
	}

	var text string
	op := func() error {
		out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(c.opts.ModelID),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			if !isTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		text, err = parseResponse(out.Body)
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.Attempts-1)), ctx)
	if err := backoff.RetryNotify(op, policy, func(err error, next time.Duration) {
		c.log.WithError(err).WithField("retry", next.String()).Warn("transient model error")
	}); err != nil {
		return "", err
	}
	return text, nil
}

func parseResponse(body []byte) (string, error) {
	var resp invokeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode model response: %w", err)
	}
	var parts []string
	for _, c := range resp.Content {
		if c.Type == "" || c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ""), nil
	}
	return resp.Completion, nil
}

var transientCodes = map[string]bool{
	"ThrottlingException":         true,
	"ModelTimeoutException":       true,
	"ModelNotReadyException":      true,
	"InternalServerException":     true,
	"ServiceUnavailableException": true,
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return transientCodes[apiErr.ErrorCode()] || apiErr.ErrorFault() == smithy.FaultServer
	}
	return true
}
