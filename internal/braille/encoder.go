package braille

import (
	"strings"
	"unicode/utf8"

	"touch-braille-go/internal/types"
)

const (
	blankCell       = '⠀'
	capitalSign     = '⠠'
	numberSign      = '⠼'
	letterSign      = '⠰'
	placeholderCell = '⠿'

	patternFirst = '⠀'
	patternLast  = '⣿'
)

var letters = [26]rune{
	'⠁', '⠃', '⠉', '⠙', '⠑', '⠋', '⠛', '⠓', '⠊', '⠚',
	'⠅', '⠇', '⠍', '⠝', '⠕', '⠏', '⠟', '⠗', '⠎', '⠞',
	'⠥', '⠧', '⠺', '⠭', '⠽', '⠵',
}

var punctuation = map[rune]string{
	',':  "⠂",
	';':  "⠆",
	':':  "⠒",
	'.':  "⠲",
	'!':  "⠖",
	'?':  "⠦",
	'\'': "⠄",
	'"':  "⠶",
	'-':  "⠤",
	'(':  "⠐⠣",
	')':  "⠐⠜",
	'/':  "⠸⠌",
}

// Encode maps text to Unicode Braille cells.
func Encode(text string) types.BrailleDocument {
	return types.BrailleDocument{Text: EncodeText(text), Mode: types.ModeUnicode}
}

// EncodeText is deterministic and leaves existing Braille cells untouched, so
// encoding its own output is a no-op. Line breaks are kept and are not cells.
func EncodeText(text string) string {
	var b strings.Builder
	b.Grow(len(text) * 3)
	inNumber := false
	for _, r := range text {
		switch {
		case r == '\n' || r == '\r':
			b.WriteRune(r)
			inNumber = false
		case r == ' ' || r == '\t':
			b.WriteRune(blankCell)
			inNumber = false
		case r >= '0' && r <= '9':
			if !inNumber {
				b.WriteRune(numberSign)
				inNumber = true
			}
			b.WriteRune(digitCell(r))
		case r >= 'a' && r <= 'z':
			// a-j directly after a number would read as digits
			if inNumber && r <= 'j' {
				b.WriteRune(letterSign)
			}
			b.WriteRune(letters[r-'a'])
			inNumber = false
		case r >= 'A' && r <= 'Z':
			b.WriteRune(capitalSign)
			b.WriteRune(letters[r-'A'])
			inNumber = false
		case r >= patternFirst && r <= patternLast:
			b.WriteRune(r)
			inNumber = false
		default:
			if cells, ok := punctuation[r]; ok {
				b.WriteString(cells)
			} else {
				b.WriteRune(placeholderCell)
			}
			inNumber = false
		}
	}
	return b.String()
}

// CellCount is the number of cells EncodeText produces for text.
func CellCount(text string) int {
	return countCells(EncodeText(text))
}

func countCells(encoded string) int {
	return utf8.RuneCountInString(encoded) - strings.Count(encoded, "\n") - strings.Count(encoded, "\r")
}

func digitCell(r rune) rune {
	if r == '0' {
		return letters['j'-'a']
	}
	return letters[r-'1']
}
