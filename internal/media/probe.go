package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

type probeStream struct {
	CodecType   string `json:"codec_type"`
	CodecName   string `json:"codec_name"`
	SampleRate  string `json:"sample_rate"`
	Channels    int    `json:"channels"`
	Disposition struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

// probeResult is the subset of ffprobe's JSON output the resolver needs.
type probeResult struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

func (p probeResult) audio() (probeStream, bool) {
	for _, s := range p.Streams {
		if s.CodecType == "audio" {
			return s, true
		}
	}
	return probeStream{}, false
}

// hasVideo ignores cover-art streams, which ffprobe reports as video.
func (p probeResult) hasVideo() bool {
	for _, s := range p.Streams {
		if s.CodecType == "video" && s.Disposition.AttachedPic == 0 {
			return true
		}
	}
	return false
}

func (p probeResult) duration() float64 {
	d, err := strconv.ParseFloat(p.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return d
}

func (s probeStream) sampleRate() int {
	sr, err := strconv.Atoi(s.SampleRate)
	if err != nil {
		return 0
	}
	return sr
}

func buildProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
}

func (r *Resolver) probe(ctx context.Context, path string) (probeResult, error) {
	res, err := r.runner.Run(ctx, r.ffprobePath, buildProbeArgs(path)...)
	if err != nil {
		return probeResult{}, fmt.Errorf("ffprobe exit %d: %s: %w", res.ExitCode, lastLine(res.Stderr), err)
	}
	var out probeResult
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return probeResult{}, fmt.Errorf("ffprobe output: %w", err)
	}
	if out.Format.FormatName == "" && len(out.Streams) == 0 {
		return probeResult{}, fmt.Errorf("ffprobe recognised no container")
	}
	return out, nil
}
