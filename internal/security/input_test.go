package security

import (
	"strings"
	"testing"
)

func TestInputValidator_ValidInput(t *testing.T) {
	validator := NewInputValidator()
	validInputs := []string{
		"Hello, world!",
		"What's the weather like in Seoul?",
		"안녕하세요, 오늘 날씨 어때?",
		"a    b",
		strings.Repeat("ab", 500),
		strings.Repeat("a", 100),
		strings.Repeat("가 ", 20),
	}

	for _, input := range validInputs {
		if err := validator.Validate(input); err != nil {
			t.Errorf("Valid input rejected: %.40q (error: %v)", input, err)
		}
	}
}

func TestInputValidator_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", ErrEmptyInput},
		{"blank", "   \n\t", ErrEmptyInput},
		{"null byte", "hello\x00world", ErrNullByteDetected},
		{"only null", "\x00", ErrNullByteDetected},
		{"invalid utf8", "abc\xff", ErrInvalidEncoding},
		{"mostly whitespace", "a" + strings.Repeat(" ", 40) + "b", ErrHighWhitespaceRatio},
		{"repeated char", strings.Repeat("x", 101), ErrRepetitiveContent},
		{"repeated hangul", "hi " + strings.Repeat("가", 150), ErrRepetitiveContent},
		{"too large", strings.Repeat("abc ", DefaultMaxMessageBytes), ErrInputTooLarge},
	}

	validator := NewInputValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validator.Validate(tt.input); err != tt.want {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestInputValidator_CustomMaxSize(t *testing.T) {
	validator := NewInputValidator()
	validator.MaxSize = 100

	if err := validator.Validate(strings.Repeat("ab", 50)); err != nil {
		t.Errorf("Input at the limit rejected: %v", err)
	}
	if err := validator.Validate(strings.Repeat("ab", 51)); err != ErrInputTooLarge {
		t.Errorf("Large input not rejected, got: %v", err)
	}
}

func TestInputValidator_DisabledChecks(t *testing.T) {
	validator := NewInputValidator()
	validator.MaxWhitespaceRatio = 0
	validator.MaxRepetition = 0

	if err := validator.Validate("a" + strings.Repeat(" ", 200) + "b"); err != nil {
		t.Errorf("Whitespace check should be disabled: %v", err)
	}
	if err := validator.Validate(strings.Repeat("x", 500)); err != nil {
		t.Errorf("Repetition check should be disabled: %v", err)
	}
}

func BenchmarkInputValidator_Validate(b *testing.B) {
	validator := NewInputValidator()
	input := strings.Repeat("What time is it in Tokyo right now? ", 20)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		validator.Validate(input)
	}
}
