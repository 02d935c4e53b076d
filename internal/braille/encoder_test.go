package braille

import (
	"strings"
	"testing"
	"unicode/utf8"

	"touch-braille-go/internal/types"
)

func TestEncodeQuickBrownFox(t *testing.T) {
	doc := Encode("the quick brown fox")
	want := "⠞⠓⠑⠀⠟⠥⠊⠉⠅⠀⠃⠗⠕⠺⠝⠀⠋⠕⠭"
	if doc.Text != want {
		t.Fatalf("Encode() = %q, want %q", doc.Text, want)
	}
	if doc.Mode != types.ModeUnicode || doc.Degraded {
		t.Fatalf("unexpected document %+v", doc)
	}
	if CellCount("the quick brown fox") != 19 {
		t.Fatalf("CellCount = %d, want 19", CellCount("the quick brown fox"))
	}
}

func TestEncodeTable(t *testing.T) {
	cases := []struct {
		in    string
		want  string
		cells int
	}{
		{"Hi", "⠠⠓⠊", 3},
		{"42", "⠼⠙⠃", 3},
		{"10 cats", "⠼⠁⠚⠀⠉⠁⠞⠎", 8},
		{"3a", "⠼⠉⠰⠁", 4},
		{"3x", "⠼⠉⠭", 3},
		{"end.", "⠑⠝⠙⠲", 4},
		{"(ok)", "⠐⠣⠕⠅⠐⠜", 6},
		{"a/b", "⠁⠸⠌⠃", 4},
		{"don't", "⠙⠕⠝⠄⠞", 5},
		{"a\tb", "⠁⠀⠃", 3},
		{"a\nb", "⠁\n⠃", 2},
		{"a\r\nb", "⠁\r\n⠃", 2},
		{"café", "⠉⠁⠋⠿", 4},
		{"😀", "⠿", 1},
		{"", "", 0},
	}
	for _, tc := range cases {
		got := EncodeText(tc.in)
		if got != tc.want {
			t.Fatalf("EncodeText(%q) = %q, want %q", tc.in, got, tc.want)
		}
		if n := CellCount(tc.in); n != tc.cells {
			t.Fatalf("CellCount(%q) = %d, want %d", tc.in, n, tc.cells)
		}
	}
}

func TestEncodeDeterministicAndIdempotent(t *testing.T) {
	in := "Meeting at 9:30, room 4B! Bring notes (and coffee)?"
	first := EncodeText(in)
	for i := 0; i < 5; i++ {
		if EncodeText(in) != first {
			t.Fatal("encoding is not deterministic")
		}
	}
	if EncodeText(first) != first {
		t.Fatal("encoding Braille output changed it")
	}
}

func TestEncodeNeverDropsCharacters(t *testing.T) {
	in := "x€y¿z§"
	out := EncodeText(in)
	if utf8.RuneCountInString(out) != utf8.RuneCountInString(in) {
		t.Fatalf("cell count %d != rune count %d", utf8.RuneCountInString(out), utf8.RuneCountInString(in))
	}
	if strings.Count(out, string(placeholderCell)) != 3 {
		t.Fatalf("expected three placeholders in %q", out)
	}
	for _, r := range out {
		if r < patternFirst || r > patternLast {
			t.Fatalf("non-Braille rune %q in output", r)
		}
	}
}
