package braille

import (
	"fmt"

	"touch-braille-go/internal/types"
)

const promptTemplate = `You are a Braille transcription assistant.

Rewrite the TRANSCRIPT below as a simplified, literal English text suitable for
Grade 1 Braille embossing.

Rules:
- Keep the meaning, order and wording of the speaker. Do not summarize.
- Remove filler words (um, uh) and false starts only.
- Spell out symbols and emojis in words, or drop them.
- Use plain ASCII punctuation: , ; : . ! ? ' " - ( ) /
%s
- Return ONLY the rewritten text. No preamble, no commentary, no quotes, no code fences.

TRANSCRIPT:
%s
`

// BuildPrompt renders the instruction template for one transcript.
func BuildPrompt(transcript string, mode types.OutputMode) string {
	extra := "- Keep sentences short; one sentence per line is fine."
	if mode == types.ModeUnicode {
		extra = "- Write digits as digits and keep capital letters only where they carry meaning."
	}
	return fmt.Sprintf(promptTemplate, extra, transcript)
}
