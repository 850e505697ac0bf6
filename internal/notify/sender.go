// Package notify delivers escalation and assignment notifications to
// recipients. Delivery is best-effort: callers log failures and move on.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
)

// Message is a single notification addressed to one recipient.
type Message struct {
	Recipient  string           `json:"recipient"`
	Subject    string           `json:"subject"`
	Body       string           `json:"body"`
	EventType  string           `json:"event_type"`
	Entity     domain.EntityRef `json:"entity"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Sender delivers messages over some channel.
type Sender interface {
	Notify(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log. It is used when no channel is
// configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Notify(_ context.Context, msg Message) error {
	s.logger.Info("notification",
		zap.String("recipient", msg.Recipient),
		zap.String("event_type", msg.EventType),
		zap.String("entity_kind", string(msg.Entity.Kind)),
		zap.String("entity_id", msg.Entity.ID),
		zap.String("subject", msg.Subject))
	return nil
}
