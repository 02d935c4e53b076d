package braille

import (
	"fmt"
	"strings"
)

// artifactMarkers signal model chatter rather than a rewrite.
var artifactMarkers = []string{
	"```",
	"Human:",
	"Assistant:",
	"Here is",
	"Here's the",
	"As an AI",
	"I'm sorry",
	"I cannot",
}

func cleanResponse(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	for _, pair := range [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}} {
		if len(s) >= 2 && strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) {
			inner := s[len(pair[0]) : len(s)-len(pair[1])]
			if !strings.Contains(inner, pair[0]) {
				s = strings.TrimSpace(inner)
			}
		}
	}
	return s
}

// reject returns a non-empty reason when the cleaned response must not be used.
// Markers that already occur in the source are not treated as artifacts.
func (c *Converter) reject(source, response string) string {
	if response == "" {
		return "model returned an empty response"
	}
	in, out := len([]rune(strings.TrimSpace(source))), len([]rune(response))
	if floor := int(float64(in) * c.opts.MinResponseRatio); out < floor {
		return fmt.Sprintf("response too short (%d chars, want at least %d)", out, floor)
	}
	lowerSource := strings.ToLower(source)
	lowerResp := strings.ToLower(response)
	for _, m := range artifactMarkers {
		lm := strings.ToLower(m)
		if strings.Contains(lowerResp, lm) && !strings.Contains(lowerSource, lm) {
			return fmt.Sprintf("response contains model artifact %q", m)
		}
	}
	return ""
}
