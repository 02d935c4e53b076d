package types

import "testing"

func TestParseMode(t *testing.T) {
	for _, in := range []string{"unicode", "optimized"} {
		if _, err := ParseMode(in); err != nil {
			t.Fatalf("ParseMode(%q) error = %v", in, err)
		}
	}
	if _, err := ParseMode("grade2"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestAudioAssetValid(t *testing.T) {
	cases := []struct {
		asset AudioAsset
		want  bool
	}{
		{AudioAsset{SizeBytes: 10, DurationSeconds: 1.5}, true},
		{AudioAsset{SizeBytes: 0, DurationSeconds: 1.5}, false},
		{AudioAsset{SizeBytes: 10, DurationSeconds: 0}, false},
	}
	for _, tc := range cases {
		if got := tc.asset.Valid(); got != tc.want {
			t.Fatalf("Valid(%+v) = %v, want %v", tc.asset, got, tc.want)
		}
	}
}

func TestJobStateTerminal(t *testing.T) {
	if JobSubmitted.Terminal() || JobInProgress.Terminal() {
		t.Fatal("non-terminal state reported terminal")
	}
	if !JobCompleted.Terminal() || !JobFailed.Terminal() {
		t.Fatal("terminal state reported non-terminal")
	}
}

func TestObjectHandleURI(t *testing.T) {
	h := ObjectHandle{Bucket: "touch-ai-braille", Key: "audio/run/a.wav"}
	if got := h.URI(); got != "s3://touch-ai-braille/audio/run/a.wav" {
		t.Fatalf("URI = %q", got)
	}
	if h.IsZero() || !(ObjectHandle{}).IsZero() {
		t.Fatal("IsZero mismatch")
	}
}
