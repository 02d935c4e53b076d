package types

import "fmt"

type SourceKind string

const (
	SourceLocalAudio SourceKind = "local-audio"
	SourceLocalVideo SourceKind = "local-video"
	SourceRemoteURL  SourceKind = "remote-url"
)

// AudioAsset is the normalized local audio produced by the resolver.
type AudioAsset struct {
	Path            string     `json:"path"`
	Source          string     `json:"source"`
	SourceKind      SourceKind `json:"source_kind"`
	DurationSeconds float64    `json:"duration_seconds"`
	SizeBytes       int64      `json:"size_bytes"`
	SampleRate      int        `json:"sample_rate"`
	Channels        int        `json:"channels"`
}

// Valid reports the acquisition invariant: non-empty bytes and positive duration.
func (a AudioAsset) Valid() bool {
	return a.SizeBytes > 0 && a.DurationSeconds > 0
}

type ObjectHandle struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (h ObjectHandle) URI() string {
	return fmt.Sprintf("s3://%s/%s", h.Bucket, h.Key)
}

func (h ObjectHandle) IsZero() bool {
	return h.Bucket == "" && h.Key == ""
}

type JobState string

const (
	JobSubmitted  JobState = "submitted"
	JobInProgress JobState = "in-progress"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// Terminal reports whether no further remote transitions are expected.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// TranscriptionJob caches the last observed remote state; the service is authoritative.
type TranscriptionJob struct {
	ID            string       `json:"id"`
	State         JobState     `json:"state"`
	Media         ObjectHandle `json:"media"`
	Output        ObjectHandle `json:"output"`
	FailureReason string       `json:"failure_reason,omitempty"`
}

type Transcript struct {
	Text          string  `json:"text"`
	Confidence    float64 `json:"confidence"`
	LowConfidence bool    `json:"low_confidence"`
}

type OutputMode string

const (
	ModeUnicode   OutputMode = "unicode"
	ModeOptimized OutputMode = "optimized"
)

func ParseMode(s string) (OutputMode, error) {
	switch OutputMode(s) {
	case ModeUnicode, ModeOptimized:
		return OutputMode(s), nil
	default:
		return "", fmt.Errorf("unknown braille mode %q (want unicode|optimized)", s)
	}
}

type BrailleDocument struct {
	Text           string     `json:"text"`
	Mode           OutputMode `json:"mode"`
	Degraded       bool       `json:"degraded"`
	DegradedReason string     `json:"degraded_reason,omitempty"`
}
