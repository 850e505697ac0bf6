package dto

import (
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
)

// TriggerEscalationRequest payload. Recipient is required for MANUAL.
type TriggerEscalationRequest struct {
	RuleID     domain.EscalationRuleID `json:"rule_id"`
	WorkItemID string                  `json:"work_item_id"`
	Reason     string                  `json:"reason"`
	Recipient  string                  `json:"recipient"`
}

// ResolveEscalationRequest payload.
type ResolveEscalationRequest struct {
	Notes *string `json:"notes"`
}

// ReassignEscalationRequest payload.
type ReassignEscalationRequest struct {
	WorkItemID string `json:"work_item_id"`
	WorkerID   string `json:"worker_id"`
	Override   bool   `json:"override"`
}

// EscalationResponse represents an escalation log.
type EscalationResponse struct {
	ID              string                  `json:"id"`
	RuleID          domain.EscalationRuleID `json:"rule_id"`
	Status          domain.EscalationStatus `json:"status"`
	Reason          string                  `json:"reason"`
	Entity          domain.EntityRef        `json:"entity"`
	Recipient       string                  `json:"recipient"`
	TriggeredBy     string                  `json:"triggered_by"`
	CreatedAt       time.Time               `json:"created_at"`
	AcknowledgedAt  *time.Time              `json:"acknowledged_at"`
	AcknowledgedBy  *string                 `json:"acknowledged_by"`
	ResolvedAt      *time.Time              `json:"resolved_at"`
	ResolvedBy      *string                 `json:"resolved_by"`
	ResolutionNotes *string                 `json:"resolution_notes"`
}

// TriggerEscalationResponse flags whether a new log was created or an
// outstanding one returned.
type TriggerEscalationResponse struct {
	Created    bool               `json:"created"`
	Escalation EscalationResponse `json:"escalation"`
}

// SweepResponse counts escalations raised by a sweep.
type SweepResponse struct {
	Breaches int `json:"breaches"`
	AtRisk   int `json:"at_risk"`
}
