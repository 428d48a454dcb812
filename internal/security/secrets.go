package security

import (
	"regexp"
)

// SecretMatch is one credential-looking span in a message
type SecretMatch struct {
	Type  string
	Start int
	End   int
}

type secretPattern struct {
	name       string
	regex      *regexp.Regexp
	redactWith string
}

// SecretScanner finds credentials users paste into chat so they can be
// kept out of logs.
type SecretScanner struct {
	patterns []secretPattern
}

var defaultSecretPatterns = []secretPattern{
	{"AWS Access Key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "AKIA****"},
	{"GitHub Token", regexp.MustCompile(`gh[pousr]_[0-9a-zA-Z]{36}`), "gh*_****"},
	{"Slack Token", regexp.MustCompile(`xox[baprs]-[0-9A-Za-z-]{10,}`), "xox*-****"},
	{"Stripe Key", regexp.MustCompile(`[sp]k_live_[0-9a-zA-Z]{24}`), "*k_live_****"},
	{"Google API Key", regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`), "AIza****"},
	{"OpenAI API Key", regexp.MustCompile(`sk-(proj-)?[A-Za-z0-9_\-]{32,}`), "sk-****"},
	{"Private Key", regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`), "PRIVATE_KEY****"},
	{"JWT Token", regexp.MustCompile(`eyJ[a-zA-Z0-9\-_]+\.eyJ[a-zA-Z0-9\-_]+\.[a-zA-Z0-9\-_]+`), "eyJ****"},
	{"Telegram Bot Token", regexp.MustCompile(`[0-9]{8,10}:[a-zA-Z0-9_-]{35}`), "****:****"},
	{"Database URL", regexp.MustCompile(`(?i)(postgres|mysql|mongodb|redis)://[^\s'"]+:[^\s'"]+@[^\s'"]+`), "DB_URL****"},
	{"Generic Secret", regexp.MustCompile(`(?i)(api[_-]?key|secret|password|passwd|token)['"]?\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`), "SECRET****"},
}

func NewSecretScanner() *SecretScanner {
	return &SecretScanner{patterns: defaultSecretPatterns}
}

func (s *SecretScanner) Scan(input string) []SecretMatch {
	var matches []SecretMatch
	for _, p := range s.patterns {
		for _, loc := range p.regex.FindAllStringIndex(input, -1) {
			matches = append(matches, SecretMatch{Type: p.name, Start: loc[0], End: loc[1]})
		}
	}
	return matches
}

func (s *SecretScanner) HasSecrets(input string) bool {
	for _, p := range s.patterns {
		if p.regex.MatchString(input) {
			return true
		}
	}
	return false
}

// Redact replaces every match with a fixed placeholder
func (s *SecretScanner) Redact(input string) string {
	for _, p := range s.patterns {
		input = p.regex.ReplaceAllString(input, p.redactWith)
	}
	return input
}
