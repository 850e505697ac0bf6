package events

import (
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSLAPaused              EventType = "sla_paused"
	EventSLAResumed             EventType = "sla_resumed"
	EventEscalationTriggered    EventType = "escalation_triggered"
	EventEscalationAcknowledged EventType = "escalation_acknowledged"
	EventEscalationResolved     EventType = "escalation_resolved"
	EventWorkItemAssigned       EventType = "work_item_assigned"
	EventWIPOverride            EventType = "wip_override"
)

// Event represents a domain event emitted by services after commit.
type Event struct {
	ID        string           `json:"id"`
	Type      EventType        `json:"type"`
	Entity    domain.EntityRef `json:"entity"`
	ActorID   string           `json:"actor_id"`
	Recipient string           `json:"recipient"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   any              `json:"payload"`
}

// SLAChangedPayload accompanies pause and resume events.
type SLAChangedPayload struct {
	Reason   string    `json:"reason,omitempty"`
	Deadline time.Time `json:"sla_deadline"`
}

// EscalationPayload accompanies escalation events.
type EscalationPayload struct {
	LogID  string                  `json:"log_id"`
	RuleID domain.EscalationRuleID `json:"rule_id"`
	Status domain.EscalationStatus `json:"status"`
	Reason string                  `json:"reason,omitempty"`
	Notes  *string                 `json:"notes,omitempty"`
}

// AssignmentPayload accompanies assignment events.
type AssignmentPayload struct {
	Mode         domain.AssignmentMode `json:"mode"`
	From         *string               `json:"from,omitempty"`
	To           string                `json:"to"`
	Utilization  *float64              `json:"utilization,omitempty"`
	Override     bool                  `json:"override"`
	AuthorizedBy string                `json:"authorized_by"`
}
