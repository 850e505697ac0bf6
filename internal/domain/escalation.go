package domain

import "time"

// EscalationStatus is the lifecycle state of an escalation log.
type EscalationStatus string

const (
	EscalationPending      EscalationStatus = "PENDING"
	EscalationAcknowledged EscalationStatus = "ACKNOWLEDGED"
	EscalationResolved     EscalationStatus = "RESOLVED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s EscalationStatus) IsTerminal() bool {
	return s == EscalationResolved
}

var escalationTransitions = map[EscalationStatus][]EscalationStatus{
	EscalationPending:      {EscalationAcknowledged, EscalationResolved},
	EscalationAcknowledged: {EscalationResolved},
}

// CanTransition reports whether from -> to is a legal escalation move.
func CanTransition(from, to EscalationStatus) bool {
	for _, next := range escalationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// EscalationRuleID names an entry of the fixed rule catalogue.
type EscalationRuleID string

const (
	RuleSLABreach EscalationRuleID = "SLA_BREACH"
	RuleSLAAtRisk EscalationRuleID = "SLA_AT_RISK"
	RuleManual    EscalationRuleID = "MANUAL"
)

// EscalationRule decides who receives an escalation.
type EscalationRule struct {
	ID          EscalationRuleID
	Name        string
	MinSeverity Severity
	// Recipient is the configured recipient. At-risk escalations prefer the
	// assignee over it; breaches and manual escalations go to it first.
	Recipient string
}

// RecipientFor resolves the recipient of an escalation raised for item. The
// item creator is the last resort for every rule.
func (r EscalationRule) RecipientFor(item *WorkItem) string {
	switch r.ID {
	case RuleSLAAtRisk:
		if item.AssigneeID != nil && *item.AssigneeID != "" {
			return *item.AssigneeID
		}
		if r.Recipient != "" {
			return r.Recipient
		}
		return item.CreatedByID
	case RuleSLABreach:
		if r.Recipient != "" {
			return r.Recipient
		}
		return item.CreatedByID
	default:
		if r.Recipient != "" {
			return r.Recipient
		}
		return item.AssigneeOrCreator()
	}
}

// EscalationLog is the audit-grade record of one escalation.
type EscalationLog struct {
	ID              string
	RuleID          EscalationRuleID
	Status          EscalationStatus
	Reason          string
	Entity          EntityRef
	Recipient       string
	TriggeredBy     string
	CreatedAt       time.Time
	AcknowledgedAt  *time.Time
	AcknowledgedBy  *string
	ResolvedAt      *time.Time
	ResolvedBy      *string
	ResolutionNotes *string
}
