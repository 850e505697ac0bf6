package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/notify"
	"github.com/spec-kit/sla-service/internal/observability"
)

const defaultDeliveryTimeout = 5 * time.Second

// NotificationService turns domain events into notifications for their
// recipients. Delivery failures are logged and never reach the publisher.
type NotificationService struct {
	dispatcher events.Dispatcher
	sender     notify.Sender
	metrics    *observability.Metrics
	logger     *zap.Logger
	timeout    time.Duration
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, sender notify.Sender, metrics *observability.Metrics, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		sender:     sender,
		metrics:    metrics,
		logger:     loggerOrNop(logger),
		timeout:    defaultDeliveryTimeout,
	}
}

// WithTimeout bounds each delivery attempt. Non-positive values keep the
// default.
func (n *NotificationService) WithTimeout(d time.Duration) *NotificationService {
	if d > 0 {
		n.timeout = d
	}
	return n
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil || n.sender == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventEscalationTriggered, n.handleEscalation)
	n.dispatcher.Subscribe(events.EventEscalationAcknowledged, n.handleEscalation)
	n.dispatcher.Subscribe(events.EventEscalationResolved, n.handleEscalation)
	n.dispatcher.Subscribe(events.EventWorkItemAssigned, n.handleAssigned)
	n.dispatcher.Subscribe(events.EventWIPOverride, n.handleOverride)
	n.dispatcher.Subscribe(events.EventSLAPaused, n.handleSLAChanged)
	n.dispatcher.Subscribe(events.EventSLAResumed, n.handleSLAChanged)
}

func (n *NotificationService) handleEscalation(ctx context.Context, event events.Event) error {
	p, _ := event.Payload.(events.EscalationPayload)
	subject := fmt.Sprintf("Escalation %s: %s %s", strings.ToLower(string(p.Status)), event.Entity.Kind, event.Entity.ID)
	body := p.Reason
	if p.Notes != nil {
		body = *p.Notes
	}
	n.send(ctx, event, subject, body)
	return nil
}

func (n *NotificationService) handleAssigned(ctx context.Context, event events.Event) error {
	p, _ := event.Payload.(events.AssignmentPayload)
	subject := fmt.Sprintf("%s %s assigned to you", event.Entity.Kind, event.Entity.ID)
	n.send(ctx, event, subject, fmt.Sprintf("mode=%s authorized_by=%s", p.Mode, p.AuthorizedBy))
	return nil
}

func (n *NotificationService) handleOverride(ctx context.Context, event events.Event) error {
	p, _ := event.Payload.(events.AssignmentPayload)
	subject := fmt.Sprintf("WIP limit overridden for %s", p.To)
	n.send(ctx, event, subject, fmt.Sprintf("%s %s assigned past the wip warning by %s", event.Entity.Kind, event.Entity.ID, p.AuthorizedBy))
	return nil
}

func (n *NotificationService) handleSLAChanged(ctx context.Context, event events.Event) error {
	p, _ := event.Payload.(events.SLAChangedPayload)
	subject := fmt.Sprintf("SLA clock %s for %s %s", strings.TrimPrefix(string(event.Type), "sla_"), event.Entity.Kind, event.Entity.ID)
	body := "deadline " + p.Deadline.UTC().Format("2006-01-02 15:04 MST")
	if p.Reason != "" {
		body += ": " + p.Reason
	}
	n.send(ctx, event, subject, body)
	return nil
}

func (n *NotificationService) send(ctx context.Context, event events.Event, subject, body string) {
	if strings.TrimSpace(event.Recipient) == "" {
		n.logger.Debug("notification skipped; no recipient", zap.String("event_type", string(event.Type)))
		return
	}
	msg := notify.Message{
		Recipient:  event.Recipient,
		Subject:    subject,
		Body:       body,
		EventType:  string(event.Type),
		Entity:     event.Entity,
		OccurredAt: event.Timestamp,
	}
	// events are published inline, so a stalled sender must not hold the caller
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.sender.Notify(ctx, msg); err != nil {
		n.metrics.RecordNotification("failed")
		n.logger.Warn("notification delivery failed",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID),
			zap.String("recipient", event.Recipient),
			zap.Error(err))
		return
	}
	n.metrics.RecordNotification("sent")
}
