package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"touch-braille-go/internal/apperr"
	"touch-braille-go/internal/logger"
	"touch-braille-go/internal/types"
)

const (
	TargetSampleRate = 16000
	TargetChannels   = 1
	targetCodec      = "pcm_s16le"
)

var audioExts = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".aac": true,
	".flac": true, ".ogg": true, ".opus": true, ".wma": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".avi": true,
	".webm": true, ".m4v": true, ".flv": true, ".wmv": true,
}

// Resolver turns a path or URL into one normalized local WAV file.
type Resolver struct {
	ffmpegPath  string
	ffprobePath string
	runner      commandRunner
	downloader  Downloader
	tempDir     string
	log         *logger.Logger
}

// NewResolver constructs the production resolver with ffmpeg, ffprobe and yt-dlp on PATH.
func NewResolver(tempDir string, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Discard()
	}
	return &Resolver{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		runner:      &execRunner{},
		downloader:  NewYTDLP(""),
		tempDir:     tempDir,
		log:         log.Component("media.resolver"),
	}
}

// NewResolverForTests constructs a resolver with injectable dependencies.
func NewResolverForTests(runner commandRunner, downloader Downloader, tempDir string) *Resolver {
	return &Resolver{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		runner:      runner,
		downloader:  downloader,
		tempDir:     tempDir,
		log:         logger.Discard(),
	}
}

func (r *Resolver) dir() string {
	if r.tempDir != "" {
		return r.tempDir
	}
	return os.TempDir()
}

// OutputPath is the single temp file a run's resolution produces.
func (r *Resolver) OutputPath(runID string) string {
	return filepath.Join(r.dir(), "touch-"+runID+".wav")
}

// Resolve validates input, fetching it first when it is a URL, and writes the
// normalized audio to OutputPath(runID). On error no temp file is left behind.
func (r *Resolver) Resolve(ctx context.Context, input, runID string) (types.AudioAsset, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return types.AudioAsset{}, apperr.New(apperr.KindInput, "media.resolve", "input path or URL is required")
	}
	log := r.log.WithRun(runID).With("input", input)

	if !IsURL(input) {
		return r.resolveLocal(ctx, input, input, runID, "")
	}

	dlDir, err := os.MkdirTemp(r.dir(), "touch-dl-*")
	if err != nil {
		return types.AudioAsset{}, apperr.Wrap(apperr.KindInput, "media.download", err, "create download workspace")
	}
	defer os.RemoveAll(dlDir)

	log.WithField("streaming", IsStreamingURL(input)).Info("downloading remote media")
	path, err := r.downloader.Download(ctx, input, dlDir)
	if err != nil {
		return types.AudioAsset{}, apperr.Wrap(apperr.KindInput, "media.download", err, "cannot retrieve %s", input)
	}
	return r.resolveLocal(ctx, path, input, runID, types.SourceRemoteURL)
}

func (r *Resolver) resolveLocal(ctx context.Context, path, source, runID string, kind types.SourceKind) (types.AudioAsset, error) {
	info, err := os.Stat(path)
	if err != nil {
		msg := fmt.Sprintf("cannot access %s", path)
		if errors.Is(err, os.ErrNotExist) {
			msg = fmt.Sprintf("no such file: %s", path)
		}
		return types.AudioAsset{}, apperr.Wrap(apperr.KindInput, "media.resolve", err, "%s", msg)
	}
	if !info.Mode().IsRegular() {
		return types.AudioAsset{}, apperr.New(apperr.KindInput, "media.resolve", fmt.Sprintf("not a regular file: %s", path))
	}
	f, err := os.Open(path)
	if err != nil {
		return types.AudioAsset{}, apperr.Wrap(apperr.KindInput, "media.resolve", err, "file is not readable: %s", path)
	}
	_ = f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	if !audioExts[ext] && !videoExts[ext] {
		return types.AudioAsset{}, apperr.New(apperr.KindUnsupportedFormat, "media.resolve", fmt.Sprintf("unrecognized container %q", ext))
	}

	probe, err := r.probe(ctx, path)
	if err != nil {
		return types.AudioAsset{}, apperr.Wrap(apperr.KindUnsupportedFormat, "media.probe", err, "cannot read %s", path)
	}
	stream, ok := probe.audio()
	if !ok {
		return types.AudioAsset{}, apperr.New(apperr.KindNoAudioTrack, "media.probe", fmt.Sprintf("%s has no audio stream", path))
	}
	if kind == "" {
		kind = types.SourceLocalAudio
		if probe.hasVideo() {
			kind = types.SourceLocalVideo
		}
	}

	out := r.OutputPath(runID)
	if err := r.normalize(ctx, path, out, probe, stream); err != nil {
		_ = os.Remove(out)
		return types.AudioAsset{}, err
	}

	asset, err := r.inspect(ctx, out)
	if err != nil {
		_ = os.Remove(out)
		return types.AudioAsset{}, err
	}
	asset.Source = source
	asset.SourceKind = kind

	r.log.WithRun(runID).WithFields(map[string]interface{}{
		"path":        asset.Path,
		"duration_s":  asset.DurationSeconds,
		"size_bytes":  asset.SizeBytes,
		"source_kind": asset.SourceKind,
	}).Info("audio asset ready")
	return asset, nil
}

// normalize copies already-conforming WAV input byte for byte, otherwise transcodes.
func (r *Resolver) normalize(ctx context.Context, in, out string, probe probeResult, stream probeStream) error {
	if isTargetEncoding(probe, stream) {
		if err := copyFile(in, out); err != nil {
			return apperr.Wrap(apperr.KindInput, "media.copy", err, "copy %s", in)
		}
		return nil
	}
	args := buildFFmpegArgs(in, out)
	res, err := r.runner.Run(ctx, r.ffmpegPath, args...)
	if err != nil {
		return apperr.Wrap(apperr.KindUnsupportedFormat, "media.extract", err,
			"ffmpeg exit %d: %s", res.ExitCode, lastLine(res.Stderr))
	}
	return nil
}

func (r *Resolver) inspect(ctx context.Context, path string) (types.AudioAsset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.AudioAsset{}, apperr.Wrap(apperr.KindInput, "media.inspect", err, "normalized audio is missing")
	}
	probe, err := r.probe(ctx, path)
	if err != nil {
		return types.AudioAsset{}, apperr.Wrap(apperr.KindUnsupportedFormat, "media.inspect", err, "cannot read normalized audio")
	}
	stream, _ := probe.audio()
	asset := types.AudioAsset{
		Path:            path,
		DurationSeconds: probe.duration(),
		SizeBytes:       info.Size(),
		SampleRate:      stream.sampleRate(),
		Channels:        stream.Channels,
	}
	if !asset.Valid() {
		return types.AudioAsset{}, apperr.New(apperr.KindInput, "media.inspect",
			fmt.Sprintf("extracted audio is empty (size=%d duration=%.2fs)", asset.SizeBytes, asset.DurationSeconds))
	}
	return asset, nil
}

func isTargetEncoding(probe probeResult, stream probeStream) bool {
	return strings.Contains(probe.Format.FormatName, "wav") &&
		!probe.hasVideo() &&
		stream.CodecName == targetCodec &&
		stream.sampleRate() == TargetSampleRate &&
		stream.Channels == TargetChannels
}

// buildFFmpegArgs builds extraction args for mono 16k PCM WAV output.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", targetCodec,
		outPath,
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// RemoveTemp deletes a resolver temp file; a missing file is not an error.
func RemoveTemp(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
