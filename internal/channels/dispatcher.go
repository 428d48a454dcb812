// Package channels holds what every chat surface shares: inbound message
// screening, the per-turn deadline and the apology sent on failure.
package channels

import (
	"context"
	"time"

	"github.com/gmsas95/kipbot/internal/metrics"
	"github.com/gmsas95/kipbot/internal/security"
	"go.uber.org/zap"
)

const (
	// ApologyMessage replaces the reply when the turn fails
	ApologyMessage = "Sorry, something went wrong. Please try again."
	// DefaultTurnTimeout bounds one turn, tool rounds included
	DefaultTurnTimeout = 60 * time.Second
)

// Handler is the agent surface adapters depend on
type Handler interface {
	Handle(ctx context.Context, userID, platform, text string) (string, error)
	Reset(userID, platform string)
}

// Dispatcher routes one utterance from any platform to the agent
type Dispatcher struct {
	handler Handler
	guard   *security.Guard
	metrics *metrics.Metrics
	logger  *zap.Logger
	timeout time.Duration
}

// NewDispatcher creates a Dispatcher. guard, m and logger may be nil.
func NewDispatcher(h Handler, guard *security.Guard, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if guard == nil {
		guard = security.NewGuard(logger)
	}
	return &Dispatcher{
		handler: h,
		guard:   guard,
		metrics: m,
		logger:  logger,
		timeout: DefaultTurnTimeout,
	}
}

// SetTimeout overrides the per-turn deadline
func (d *Dispatcher) SetTimeout(timeout time.Duration) {
	d.timeout = timeout
}

// Dispatch runs one turn and returns the text to send back. It never
// fails: rejected input gets a refusal and agent errors an apology.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, platform, text string) string {
	if err := d.guard.Check(userID, platform, text); err != nil {
		d.metrics.RecordInputRejected(platform)
		return security.Refusal(err)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	reply, err := d.handler.Handle(ctx, userID, platform, text)
	if err != nil {
		d.logger.Error("Agent error",
			zap.String("user_id", userID),
			zap.String("platform", platform),
			zap.Error(err),
		)
		return ApologyMessage
	}
	return reply
}

// Reset starts a fresh conversation for the user
func (d *Dispatcher) Reset(userID, platform string) {
	d.handler.Reset(userID, platform)
	d.logger.Info("Conversation reset",
		zap.String("user_id", userID),
		zap.String("platform", platform),
	)
}
