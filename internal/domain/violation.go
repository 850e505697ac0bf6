package domain

import "time"

// Severity classifies how late a work item is.
type Severity string

const (
	SeverityNone     Severity = ""
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities; higher is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is as urgent as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Violation is a derived, never persisted, SLA breach record.
type Violation struct {
	WorkItemID        string       `json:"work_item_id"`
	Kind              WorkItemKind `json:"kind"`
	Title             string       `json:"title"`
	Priority          Priority     `json:"priority"`
	Deadline          time.Time    `json:"sla_deadline"`
	ReferenceTime     time.Time    `json:"reference_time"`
	DelayHours        float64      `json:"delay_hours"`
	Severity          Severity     `json:"severity"`
	AssigneeOrCreator string       `json:"assignee_or_creator"`
	Status            WorkStatus   `json:"status"`
}

// AtRiskItem is an active work item close to its deadline.
type AtRiskItem struct {
	WorkItemID       string       `json:"work_item_id"`
	Kind             WorkItemKind `json:"kind"`
	Title            string       `json:"title"`
	Priority         Priority     `json:"priority"`
	Deadline         time.Time    `json:"sla_deadline"`
	HoursRemaining   float64      `json:"hours_remaining"`
	PercentRemaining float64      `json:"percent_remaining"`
	AssigneeID       *string      `json:"assignee_id,omitempty"`
	Status           WorkStatus   `json:"status"`
}
