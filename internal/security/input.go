// Package security screens inbound chat messages before they reach the agent.
package security

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrEmptyInput          = errors.New("message is empty")
	ErrInputTooLarge       = errors.New("message exceeds maximum size")
	ErrNullByteDetected    = errors.New("null byte detected in message")
	ErrInvalidEncoding     = errors.New("message is not valid UTF-8")
	ErrHighWhitespaceRatio = errors.New("suspicious whitespace ratio")
	ErrRepetitiveContent   = errors.New("excessive repetition detected")
)

// DefaultMaxMessageBytes caps one inbound utterance
const DefaultMaxMessageBytes = 16 * 1024

// InputValidator rejects messages that are too large or look like garbage.
// Zero ratio or repetition limits disable those checks.
type InputValidator struct {
	MaxSize            int
	MaxWhitespaceRatio float64
	MaxRepetition      int
}

func NewInputValidator() *InputValidator {
	return &InputValidator{
		MaxSize:            DefaultMaxMessageBytes,
		MaxWhitespaceRatio: 0.8,
		MaxRepetition:      100,
	}
}

func (v *InputValidator) Validate(input string) error {
	if strings.TrimSpace(input) == "" {
		return ErrEmptyInput
	}
	if v.MaxSize > 0 && len(input) > v.MaxSize {
		return ErrInputTooLarge
	}
	if strings.IndexByte(input, 0) >= 0 {
		return ErrNullByteDetected
	}
	if !utf8.ValidString(input) {
		return ErrInvalidEncoding
	}

	// Short messages are allowed to be mostly spacing ("a  b")
	if v.MaxWhitespaceRatio > 0 && len(input) >= 32 {
		total, spaces := 0, 0
		for _, r := range input {
			total++
			if unicode.IsSpace(r) {
				spaces++
			}
		}
		if float64(spaces)/float64(total) > v.MaxWhitespaceRatio {
			return ErrHighWhitespaceRatio
		}
	}

	if v.MaxRepetition > 0 && hasExcessiveRepetition(input, v.MaxRepetition) {
		return ErrRepetitiveContent
	}

	return nil
}

// hasExcessiveRepetition reports a run of more than maxRun identical runes
func hasExcessiveRepetition(input string, maxRun int) bool {
	if utf8.RuneCountInString(input) <= maxRun {
		return false
	}

	var prev rune = -1
	run := 0
	for _, r := range input {
		if r == prev {
			run++
			if run > maxRun {
				return true
			}
			continue
		}
		prev = r
		run = 1
	}
	return false
}
