package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ResilientOptions tune the rate limiter and circuit breaker.
type ResilientOptions struct {
	RatePerSecond    float64
	Burst            int
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

// ResilientSender guards another Sender with an outbound rate limit and a
// circuit breaker.
type ResilientSender struct {
	next    Sender
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewResilientSender wraps next.
func NewResilientSender(next Sender, opts ResilientOptions, logger *zap.Logger) *ResilientSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := max(opts.Burst, 1)
	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	halfOpen := max(opts.HalfOpenRequests, 1)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notification-sender",
		MaxRequests: halfOpen,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &ResilientSender{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
	}
}

func (s *ResilientSender) Notify(ctx context.Context, msg Message) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notification rate limit: %w", err)
	}
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.next.Notify(ctx, msg)
	})
	return err
}

// State reports the breaker state, for readiness reporting.
func (s *ResilientSender) State() gobreaker.State {
	return s.breaker.State()
}
