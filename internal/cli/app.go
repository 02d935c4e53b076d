package cli

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"

	"touch-braille-go/internal/braille"
	"touch-braille-go/internal/config"
	"touch-braille-go/internal/logger"
	"touch-braille-go/internal/media"
	"touch-braille-go/internal/pipeline"
	"touch-braille-go/internal/storage"
	"touch-braille-go/internal/telemetry"
	"touch-braille-go/internal/transcription"
)

// App holds the wired components for one invocation.
type App struct {
	Config   config.Config
	Log      *logger.Logger
	Gateway  *storage.Gateway
	Recorder *telemetry.Recorder
	Pipeline *pipeline.Orchestrator
}

func loadAWS(ctx context.Context, cfg config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.HasStaticCredentials() {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return awsCfg, nil
}

func newGateway(awsCfg aws.Config, cfg config.Config, log *logger.Logger) *storage.Gateway {
	return storage.NewGateway(s3.NewFromConfig(awsCfg), storage.Options{
		Bucket: cfg.Bucket,
		Prefix: cfg.KeyPrefix,
	}, log)
}

// NewApp wires the pipeline against AWS. cfg must be validated.
func NewApp(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	awsCfg, err := loadAWS(ctx, cfg)
	if err != nil {
		return nil, err
	}
	recorder, err := telemetry.New(ctx, telemetry.Config{Endpoint: cfg.OTELEndpoint, Insecure: cfg.OTELInsecure})
	if err != nil {
		return nil, err
	}

	gateway := newGateway(awsCfg, cfg, log)
	transcriber := transcription.NewClient(transcribe.NewFromConfig(awsCfg), gateway, transcription.Options{
		LanguageCode: cfg.LanguageCode,
	}, log)
	converter := braille.NewConverter(bedrockruntime.NewFromConfig(awsCfg), braille.Options{
		ModelID:          cfg.ModelID,
		MinResponseRatio: cfg.MinResponseRatio,
	}, log)

	orch := pipeline.NewOrchestrator(cfg, pipeline.Deps{
		Resolver:    media.NewResolver(cfg.TempDir, log),
		Store:       gateway,
		Transcriber: transcriber,
		Converter:   converter,
		Recorder:    recorder,
	}, log)

	return &App{Config: cfg, Log: log, Gateway: gateway, Recorder: recorder, Pipeline: orch}, nil
}

func (a *App) Close(ctx context.Context) error {
	if a.Recorder != nil {
		return a.Recorder.Close(ctx)
	}
	return nil
}
