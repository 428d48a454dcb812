package security

import (
	"regexp"
	"strings"
)

// PromptInjectionDetector flags messages that try to override the system
// prompt. Matches are logged, not blocked: false positives are common in
// ordinary conversation.
type PromptInjectionDetector struct {
	literals []string
	patterns []*regexp.Regexp
}

var injectionLiterals = []string{
	"ignore previous instructions",
	"ignore all previous",
	"disregard all previous",
	"forget all previous",
	"ignore the above",
	"disregard the above",
	"your new instructions",
	"system override",
	"developer mode",
	"jailbreak",
}

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?|rules?|directives?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|above|your)\s+(instructions?|context|rules?)`),
	regexp.MustCompile(`(?i)(reveal|print|show)\s+(me\s+)?(your\s+)?system\s+prompt`),
	regexp.MustCompile(`(?i)(override|bypass)\s+(all\s+)?(your\s+)?(rules?|restrictions?|filters?)`),
	regexp.MustCompile(`(?i)system:\s*you\s+must`),
	regexp.MustCompile(`<\|[a-z_]+\|>`),
	regexp.MustCompile(`(?i)\[system\].*\[/system\]`),
	regexp.MustCompile(`(?i)###\s*(instruction|system)`),
}

func NewPromptInjectionDetector() *PromptInjectionDetector {
	return &PromptInjectionDetector{
		literals: injectionLiterals,
		patterns: injectionPatterns,
	}
}

// Detect returns the first matching pattern, or "" when the message looks clean
func (d *PromptInjectionDetector) Detect(input string) string {
	lower := strings.ToLower(input)
	for _, lit := range d.literals {
		if strings.Contains(lower, lit) {
			return lit
		}
	}
	for _, re := range d.patterns {
		if m := re.FindString(input); m != "" {
			return m
		}
	}
	return ""
}
