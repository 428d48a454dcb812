package llm

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	apperrors "github.com/gmsas95/kipbot/internal/errors"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// GuardConfig tunes the Guard. Zero values disable the corresponding feature.
type GuardConfig struct {
	RequestsPerMinute int
	MaxRetries        int
	RetryBackoff      time.Duration
	BreakerFailures   uint32
	BreakerCooldown   time.Duration
}

// Guard wraps a Completer with a rate limiter, a circuit breaker and
// bounded retries for transient failures.
type Guard struct {
	next    Completer
	cfg     GuardConfig
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*Reply]
	logger  *zap.Logger
}

// NewGuard creates a guarded Completer
func NewGuard(next Completer, cfg GuardConfig, logger *zap.Logger) *Guard {
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.BreakerCooldown == 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	g := &Guard{
		next:   next,
		cfg:    cfg,
		logger: logger,
	}

	if cfg.RequestsPerMinute > 0 {
		// Allow a short burst of 1/6 of the per-minute budget
		burst := cfg.RequestsPerMinute / 6
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst)
	}

	if cfg.BreakerFailures > 0 {
		g.breaker = gobreaker.NewCircuitBreaker[*Reply](gobreaker.Settings{
			Name:    "llm",
			Timeout: cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !IsTransient(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}

	return g
}

// Complete implements Completer
func (g *Guard) Complete(ctx context.Context, messages []Message, tools []Tool) (*Reply, error) {
	var lastErr error

	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := g.cfg.RetryBackoff << (attempt - 1)
			g.logger.Warn("Retrying model call",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, apperrors.WithCause(apperrors.ErrRateLimited, err)
			}
		}

		reply, err := g.call(ctx, messages, tools)
		if err == nil {
			return reply, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperrors.WithCause(apperrors.ErrCircuitOpen, err)
		}
		if ctx.Err() != nil || !IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}

	var apiErr *APIError
	if errors.As(lastErr, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.WithCause(apperrors.ErrRateLimited, lastErr)
	}
	return nil, apperrors.WithCause(apperrors.ErrProviderUnavailable, lastErr)
}

func (g *Guard) call(ctx context.Context, messages []Message, tools []Tool) (*Reply, error) {
	if g.breaker == nil {
		return g.next.Complete(ctx, messages, tools)
	}
	return g.breaker.Execute(func() (*Reply, error) {
		return g.next.Complete(ctx, messages, tools)
	})
}

// IsTransient reports whether err is worth retrying: HTTP 429, 5xx or a
// network failure. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
