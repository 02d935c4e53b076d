package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"

	"touch-braille-go/internal/apperr"
	"touch-braille-go/internal/logger"
	"touch-braille-go/internal/types"
)

// S3API is the subset of the S3 client the gateway uses.
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Options struct {
	Bucket          string
	Prefix          string
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Now             func() time.Time
}

// Gateway uploads and deletes run-scoped objects in a single bucket.
type Gateway struct {
	client      S3API
	bucket      string
	prefix      string
	maxAttempts int
	initial     time.Duration
	maxInterval time.Duration
	now         func() time.Time
	log         *logger.Logger
}

func NewGateway(client S3API, opts Options, log *logger.Logger) *Gateway {
	if log == nil {
		log = logger.Discard()
	}
	g := &Gateway{
		client:      client,
		bucket:      strings.TrimSpace(opts.Bucket),
		prefix:      strings.Trim(opts.Prefix, "/"),
		maxAttempts: opts.MaxAttempts,
		initial:     opts.InitialInterval,
		maxInterval: opts.MaxInterval,
		now:         opts.Now,
		log:         log.Component("storage.gateway"),
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = 4
	}
	if g.initial <= 0 {
		g.initial = 500 * time.Millisecond
	}
	if g.maxInterval <= 0 {
		g.maxInterval = 8 * time.Second
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// Handle builds the run-namespaced handle for name.
func (g *Gateway) Handle(runID, name string) types.ObjectHandle {
	return types.ObjectHandle{Bucket: g.bucket, Key: path.Join(g.prefix, runID, name)}
}

// CheckAccess verifies the bucket is reachable and writable with a zero-byte probe.
func (g *Gateway) CheckAccess(ctx context.Context, runID string) error {
	if g.bucket == "" {
		return apperr.New(apperr.KindStorageAccess, "storage.check", "no bucket configured")
	}
	err := g.retry(ctx, "head-bucket", func() error {
		_, err := g.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(g.bucket)})
		return err
	})
	if err != nil {
		return apperr.Wrap(apperr.KindStorageAccess, "storage.check", err, "bucket %q is not reachable", g.bucket)
	}

	probe := g.Handle(runID, ".write-probe")
	err = g.retry(ctx, "write-probe", func() error {
		_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(probe.Bucket),
			Key:           aws.String(probe.Key),
			Body:          bytes.NewReader(nil),
			ContentLength: aws.Int64(0),
		})
		return err
	})
	if err != nil {
		return apperr.Wrap(apperr.KindStorageAccess, "storage.check", err, "bucket %q is not writable", g.bucket)
	}
	if err := g.Delete(ctx, probe); err != nil {
		g.log.WithError(err).WithField("key", probe.Key).Warn("write probe left behind")
	}
	return nil
}

// Upload checks access (fail fast) and then puts the asset under the run prefix.
func (g *Gateway) Upload(ctx context.Context, asset types.AudioAsset, runID string) (types.ObjectHandle, error) {
	if err := g.CheckAccess(ctx, runID); err != nil {
		return types.ObjectHandle{}, err
	}

	handle := g.Handle(runID, filepath.Base(asset.Path))
	log := g.log.WithRun(runID).With("uri", handle.URI())
	log.WithField("size_bytes", asset.SizeBytes).Info("uploading audio")

	metadata := map[string]string{
		"source":     metadataValue(asset.Source),
		"run-id":     runID,
		"created-at": g.now().UTC().Format(time.RFC3339),
	}
	err := g.retry(ctx, "put-object", func() error {
		f, err := os.Open(asset.Path)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer f.Close()
		_, err = g.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(handle.Bucket),
			Key:           aws.String(handle.Key),
			Body:          f,
			ContentLength: aws.Int64(asset.SizeBytes),
			ContentType:   aws.String("audio/wav"),
			Metadata:      metadata,
		})
		return err
	})
	if err != nil {
		if isAccessProblem(err) {
			return types.ObjectHandle{}, apperr.Wrap(apperr.KindStorageAccess, "storage.upload", err, "access denied writing %s", handle.URI())
		}
		return types.ObjectHandle{}, apperr.Wrap(apperr.KindStorageUpload, "storage.upload", err, "upload of %s failed", handle.URI())
	}
	log.Info("upload complete")
	return handle, nil
}

// Delete is idempotent: a missing object counts as deleted.
func (g *Gateway) Delete(ctx context.Context, handle types.ObjectHandle) error {
	err := g.retry(ctx, "delete-object", func() error {
		_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(handle.Bucket),
			Key:    aws.String(handle.Key),
		})
		if err != nil && isNotFound(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", handle.URI(), err)
	}
	return nil
}

// Get reads a whole object into memory.
func (g *Gateway) Get(ctx context.Context, handle types.ObjectHandle) ([]byte, error) {
	var data []byte
	err := g.retry(ctx, "get-object", func() error {
		out, err := g.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(handle.Bucket),
			Key:    aws.String(handle.Key),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", handle.URI(), err)
	}
	return data, nil
}

// retry runs fn with bounded exponential backoff; non-transient errors stop immediately.
func (g *Gateway) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.initial
	b.MaxInterval = g.maxInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(g.maxAttempts-1)), ctx)

	return backoff.RetryNotify(func() error {
		err := fn()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, next time.Duration) {
		g.log.WithError(err).WithFields(map[string]interface{}{
			"op":    op,
			"retry": next.String(),
		}).Warn("transient storage error")
	})
}

// metadataValue keeps S3 user metadata to printable ASCII.
func metadataValue(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		if b.Len() >= 256 {
			break
		}
	}
	return b.String()
}
