package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"touch-braille-go/internal/apperr"
	"touch-braille-go/internal/types"
)

type fakeS3 struct {
	objects   map[string][]byte
	metadata  map[string]map[string]string
	headErr   error
	putErrs   []error
	deleteErr error
	puts      int
	deletes   []string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, metadata: map[string]map[string]string{}}
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts++
	if len(f.putErrs) > 0 {
		err := f.putErrs[0]
		f.putErrs = f.putErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	f.objects[key] = data
	f.metadata[key] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	key := aws.ToString(in.Key)
	f.deletes = append(f.deletes, key)
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	if _, ok := f.objects[key]; !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "missing"}
	}
	delete(f.objects, key)
	return &s3.DeleteObjectOutput{}, nil
}

func testGateway(client S3API, bucket string) *Gateway {
	return NewGateway(client, Options{
		Bucket:          bucket,
		Prefix:          "/audio/",
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Now:             func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}, nil)
}

func writeAsset(t *testing.T) types.AudioAsset {
	t.Helper()
	path := filepath.Join(t.TempDir(), "touch-run-1.wav")
	if err := os.WriteFile(path, []byte("RIFFdata"), 0o600); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	return types.AudioAsset{Path: path, Source: "lecture.mp4", SizeBytes: 8, DurationSeconds: 1}
}

func TestUploadWritesRunScopedObject(t *testing.T) {
	s3c := newFakeS3()
	g := testGateway(s3c, "touch-bucket")

	handle, err := g.Upload(context.Background(), writeAsset(t), "run-1")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if handle.Bucket != "touch-bucket" || handle.Key != "audio/run-1/touch-run-1.wav" {
		t.Fatalf("handle = %+v", handle)
	}
	if got := string(s3c.objects[handle.Key]); got != "RIFFdata" {
		t.Fatalf("stored body = %q", got)
	}
	meta := s3c.metadata[handle.Key]
	if meta["run-id"] != "run-1" || meta["source"] != "lecture.mp4" || meta["created-at"] != "2026-01-02T03:04:05Z" {
		t.Fatalf("metadata = %v", meta)
	}
	if _, ok := s3c.objects["audio/run-1/.write-probe"]; ok {
		t.Fatal("write probe was not removed")
	}
}

func TestUploadInvalidBucketFailsFast(t *testing.T) {
	s3c := newFakeS3()
	s3c.headErr = &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}
	g := testGateway(s3c, "no-such-bucket")

	_, err := g.Upload(context.Background(), writeAsset(t), "run-1")
	if !apperr.Is(err, apperr.KindStorageAccess) {
		t.Fatalf("error = %v, want StorageAccessError", err)
	}
	if s3c.puts != 0 {
		t.Fatalf("puts = %d, want none", s3c.puts)
	}

	if _, err := testGateway(s3c, "").Upload(context.Background(), writeAsset(t), "run-1"); !apperr.Is(err, apperr.KindStorageAccess) {
		t.Fatalf("empty bucket error = %v", err)
	}
}

func TestUploadRetriesTransientErrors(t *testing.T) {
	s3c := newFakeS3()
	throttled := &smithy.GenericAPIError{Code: "SlowDown", Message: "reduce your request rate"}
	// probe succeeds, then two throttled puts before success
	s3c.putErrs = []error{nil, throttled, throttled}
	g := testGateway(s3c, "touch-bucket")

	if _, err := g.Upload(context.Background(), writeAsset(t), "run-1"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if s3c.puts != 4 {
		t.Fatalf("puts = %d, want 4", s3c.puts)
	}
}

func TestUploadExhaustedRetries(t *testing.T) {
	s3c := newFakeS3()
	reset := errors.New("connection reset by peer")
	s3c.putErrs = []error{nil, reset, reset, reset, reset}
	g := testGateway(s3c, "touch-bucket")

	_, err := g.Upload(context.Background(), writeAsset(t), "run-1")
	if !apperr.Is(err, apperr.KindStorageUpload) {
		t.Fatalf("error = %v, want StorageUploadError", err)
	}
	if s3c.puts != 5 {
		t.Fatalf("puts = %d, want probe + 4 attempts", s3c.puts)
	}
}

func TestUploadAccessDeniedOnProbe(t *testing.T) {
	s3c := newFakeS3()
	s3c.putErrs = []error{&smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}}
	g := testGateway(s3c, "touch-bucket")

	_, err := g.Upload(context.Background(), writeAsset(t), "run-1")
	if !apperr.Is(err, apperr.KindStorageAccess) {
		t.Fatalf("error = %v, want StorageAccessError", err)
	}
	if s3c.puts != 1 {
		t.Fatalf("access denied must not be retried, puts = %d", s3c.puts)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s3c := newFakeS3()
	g := testGateway(s3c, "touch-bucket")
	handle := g.Handle("run-1", "touch-run-1.wav")
	s3c.objects[handle.Key] = []byte("x")

	for i := 0; i < 2; i++ {
		if err := g.Delete(context.Background(), handle); err != nil {
			t.Fatalf("Delete() #%d error = %v", i+1, err)
		}
	}
	if len(s3c.objects) != 0 {
		t.Fatalf("objects left: %v", s3c.objects)
	}
}

func TestDeleteReportsPermanentFailure(t *testing.T) {
	s3c := newFakeS3()
	s3c.deleteErr = &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	g := testGateway(s3c, "touch-bucket")
	if err := g.Delete(context.Background(), g.Handle("run-1", "a.wav")); err == nil {
		t.Fatal("expected delete error")
	}
	if len(s3c.deletes) != 1 {
		t.Fatalf("deletes = %d, want 1", len(s3c.deletes))
	}
}

func TestGetReadsObject(t *testing.T) {
	s3c := newFakeS3()
	g := testGateway(s3c, "touch-bucket")
	handle := g.Handle("run-1", "transcript.json")
	s3c.objects[handle.Key] = []byte(`{"ok":true}`)

	data, err := g.Get(context.Background(), handle)
	if err != nil || string(data) != `{"ok":true}` {
		t.Fatalf("Get() = %q, %v", data, err)
	}
	if _, err := g.Get(context.Background(), g.Handle("run-1", "missing")); err == nil {
		t.Fatal("expected error for missing object")
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"network", errors.New("dial tcp: i/o timeout"), true},
		{"throttle", &smithy.GenericAPIError{Code: "Throttling"}, true},
		{"server fault", &smithy.GenericAPIError{Code: "Weird", Fault: smithy.FaultServer}, true},
		{"denied", &smithy.GenericAPIError{Code: "AccessDenied", Fault: smithy.FaultClient}, false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Fatalf("%s: IsTransient = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMetadataValueStripsNonASCII(t *testing.T) {
	if got := metadataValue("강의 video.mp4"); got != "__ video.mp4" {
		t.Fatalf("metadataValue = %q", got)
	}
}
