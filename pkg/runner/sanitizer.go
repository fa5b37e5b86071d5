package runner

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxInputSize caps one typed answer, in bytes. Answers name a choice,
// so the limit only has to fit the longest label.
const DefaultMaxInputSize = 1024

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// cleanAnswer validates one typed answer and strips control characters, so
// escape sequences never reach the transcript, the logs or the terminal.
// Oversized input is refused rather than truncated: a cut label could match
// a different choice.
func cleanAnswer(input string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultMaxInputSize
	}
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	clean := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			if unicode.IsSpace(r) {
				return ' '
			}
			return -1
		}
		return r
	}, input)
	return strings.TrimSpace(clean), nil
}
