package security

import (
	"errors"

	apperrors "github.com/gmsas95/kipbot/internal/errors"
	"go.uber.org/zap"
)

const (
	refusalTooLong = "That message is too long for me. Please shorten it and try again."
	refusalGeneric = "Sorry, I can't process that message."
)

// Guard screens inbound messages for every adapter. Validation failures
// reject the message; injection and secret matches are only logged.
type Guard struct {
	input     *InputValidator
	injection *PromptInjectionDetector
	secrets   *SecretScanner
	logger    *zap.Logger
}

func NewGuard(logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		input:     NewInputValidator(),
		injection: NewPromptInjectionDetector(),
		secrets:   NewSecretScanner(),
		logger:    logger,
	}
}

// Check returns an INPUT_001 error when the message must not reach the agent
func (g *Guard) Check(userID, platform, text string) error {
	if err := g.input.Validate(text); err != nil {
		g.logger.Warn("Rejected inbound message",
			zap.String("user_id", userID),
			zap.String("platform", platform),
			zap.Int("length", len(text)),
			zap.Error(err),
		)
		return apperrors.WithCause(apperrors.ErrInputRejected, err)
	}

	if match := g.injection.Detect(text); match != "" {
		g.logger.Warn("Possible prompt injection",
			zap.String("user_id", userID),
			zap.String("platform", platform),
			zap.String("pattern", match),
		)
	}

	if found := g.secrets.Scan(text); len(found) > 0 {
		types := make([]string, 0, len(found))
		for _, m := range found {
			types = append(types, m.Type)
		}
		g.logger.Warn("Message contains credential-like text",
			zap.String("user_id", userID),
			zap.String("platform", platform),
			zap.Strings("types", types),
		)
	}

	return nil
}

// Redact masks credentials so text can be logged
func (g *Guard) Redact(text string) string {
	return g.secrets.Redact(text)
}

// Refusal is the reply sent instead of an answer when Check fails
func Refusal(err error) string {
	if errors.Is(err, ErrInputTooLarge) {
		return refusalTooLong
	}
	return refusalGeneric
}
