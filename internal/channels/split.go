package channels

import (
	"strings"
)

// SplitMessage breaks text into chunks of at most maxLen runes, preferring
// line boundaries. Lines longer than maxLen are cut hard.
func SplitMessage(text string, maxLen int) []string {
	if maxLen <= 0 || len([]rune(text)) <= maxLen {
		return []string{text}
	}

	var parts []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			parts = append(parts, string(current))
			current = current[:0]
		}
	}

	for i, line := range strings.Split(text, "\n") {
		runes := []rune(line)
		sep := 0
		if i > 0 && len(current) > 0 {
			sep = 1
		}

		if len(current)+sep+len(runes) <= maxLen {
			if sep == 1 {
				current = append(current, '\n')
			}
			current = append(current, runes...)
			continue
		}

		flush()
		for len(runes) > maxLen {
			parts = append(parts, string(runes[:maxLen]))
			runes = runes[maxLen:]
		}
		current = append(current, runes...)
	}
	flush()

	return parts
}
