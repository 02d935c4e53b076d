package apperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOfThroughWrapping(t *testing.T) {
	base := New(KindStorageAccess, "storage.check", "bucket missing")
	wrapped := fmt.Errorf("upload stage: %w", base)

	if got := KindOf(wrapped); got != KindStorageAccess {
		t.Fatalf("KindOf = %s, want %s", got, KindStorageAccess)
	}
	if !Is(wrapped, KindStorageAccess) {
		t.Fatal("Is should match through fmt wrapping")
	}
	if Is(wrapped, KindStorageUpload) {
		t.Fatal("Is matched the wrong kind")
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Fatalf("KindOf(plain) = %s", got)
	}
	if got := KindOf(nil); got != "" {
		t.Fatalf("KindOf(nil) = %q", got)
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(KindStorageUpload, "storage.upload", cause, "after %d attempts", 4)

	msg := err.Error()
	for _, part := range []string{"storage.upload", "StorageUploadError", "after 4 attempts", "connection reset"} {
		if !strings.Contains(msg, part) {
			t.Fatalf("message %q missing %q", msg, part)
		}
	}
	if !errors.Is(err, cause) {
		t.Fatal("Unwrap should expose the cause")
	}
}

func TestEveryKindHasHint(t *testing.T) {
	for kind := range hints {
		if Hint(kind) == "" {
			t.Fatalf("empty hint for %s", kind)
		}
	}
	if Hint("Unknown") != hints[KindInternal] {
		t.Fatal("unknown kinds should fall back to the internal hint")
	}
}
