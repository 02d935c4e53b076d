package media

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Downloader fetches a remote media URL into dir and returns the local file path.
type Downloader interface {
	Download(ctx context.Context, rawURL, dir string) (string, error)
}

var streamingHosts = []string{
	"youtube.com",
	"youtu.be",
	"vimeo.com",
	"dailymotion.com",
	"dai.ly",
}

// IsURL reports whether input should be fetched rather than opened locally.
func IsURL(input string) bool {
	u, err := url.Parse(strings.TrimSpace(input))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// IsStreamingURL reports whether the URL belongs to a recognized video platform.
func IsStreamingURL(input string) bool {
	u, err := url.Parse(strings.TrimSpace(input))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range streamingHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// YTDLP downloads the best available audio track with yt-dlp.
type YTDLP struct {
	path   string
	runner commandRunner
	glob   func(pattern string) ([]string, error)
}

func NewYTDLP(path string) *YTDLP {
	if path == "" {
		path = "yt-dlp"
	}
	return &YTDLP{path: path, runner: &execRunner{}, glob: filepath.Glob}
}

func buildDownloadArgs(rawURL, outTemplate string) []string {
	return []string{
		"--no-playlist",
		"--quiet",
		"--no-progress",
		"-f", "bestaudio[ext=webm]/bestaudio/best",
		"-o", outTemplate,
		rawURL,
	}
}

func (d *YTDLP) Download(ctx context.Context, rawURL, dir string) (string, error) {
	base := filepath.Join(dir, "download")
	res, err := d.runner.Run(ctx, d.path, buildDownloadArgs(rawURL, base+".%(ext)s")...)
	if err != nil {
		return "", fmt.Errorf("yt-dlp exit %d: %s: %w", res.ExitCode, lastLine(res.Stderr), err)
	}
	matches, err := d.glob(base + ".*")
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		// yt-dlp leaves .part files behind on interrupted fragments
		if !strings.HasSuffix(m, ".part") {
			return m, nil
		}
	}
	return "", fmt.Errorf("yt-dlp finished but no file was written for %s", rawURL)
}
