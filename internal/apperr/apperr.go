// Package apperr defines the terminal error classifications surfaced to the caller.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInput                Kind = "InputError"
	KindNoAudioTrack         Kind = "NoAudioTrackError"
	KindUnsupportedFormat    Kind = "UnsupportedFormatError"
	KindStorageUpload        Kind = "StorageUploadError"
	KindStorageAccess        Kind = "StorageAccessError"
	KindSubmission           Kind = "SubmissionError"
	KindTranscriptionTimeout Kind = "TranscriptionTimeoutError"
	KindTranscriptionFailed  Kind = "TranscriptionFailedError"
	KindOutputWrite          Kind = "OutputWriteError"
	KindCancelled            Kind = "Cancelled"
	KindConfig               Kind = "ConfigError"
	KindInternal             Kind = "InternalError"
)

var hints = map[Kind]string{
	KindInput:                "check that the input path exists and is readable, or that the URL is reachable",
	KindNoAudioTrack:         "the input has no audio stream; use a video with sound or an audio file",
	KindUnsupportedFormat:    "convert the input to a common audio/video container (wav, mp3, mp4, mkv, webm)",
	KindStorageUpload:        "check network connectivity and retry; the bucket was reachable but the upload kept failing",
	KindStorageAccess:        "check bucket name, region and bucket permissions (s3:ListBucket, s3:PutObject, s3:DeleteObject)",
	KindSubmission:           "check transcribe permissions and that the audio format is supported",
	KindTranscriptionTimeout: "raise the transcription timeout or try a shorter clip",
	KindTranscriptionFailed:  "inspect the remote failure reason; the audio may be silent or corrupted",
	KindOutputWrite:          "check that the output directory exists and is writable",
	KindCancelled:            "the run was cancelled or hit its overall deadline; raise the run timeout",
	KindConfig:               "fix the configuration values reported above",
	KindInternal:             "this is a bug; please report it with the log output",
}

// Error is a classified failure. Op names the operation that produced it.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the classification of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Hint returns a human-readable remediation for the kind.
func Hint(kind Kind) string {
	if h, ok := hints[kind]; ok {
		return h
	}
	return hints[KindInternal]
}
