package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"":        logrus.InfoLevel,
		"debug":   logrus.DebugLevel,
		"WARN":    logrus.WarnLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"bogus":   logrus.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestVerboseForcesDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "error", Verbose: true, Output: &buf})
	log.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("debug line missing from output: %q", buf.String())
	}
}

func TestJSONFormatterCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Environment: "production", Output: &buf}).
		Component("pipeline").
		WithRun("run-1")
	log.WithError(errors.New("boom")).Warn("stage failed")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	for key, want := range map[string]string{
		"component": "pipeline",
		"run_id":    "run-1",
		"error":     "boom",
		"msg":       "stage failed",
	} {
		if line[key] != want {
			t.Fatalf("%s = %v, want %q", key, line[key], want)
		}
	}
}

func TestWithErrorNil(t *testing.T) {
	log := Discard()
	if entry := log.WithError(nil); entry != log.Entry {
		t.Fatal("WithError(nil) should return the base entry")
	}
}
