package domain

import "time"

// WorkItemKind distinguishes the two tracked entity variants.
type WorkItemKind string

const (
	WorkItemKindRequest WorkItemKind = "REQUEST"
	WorkItemKindTask    WorkItemKind = "TASK"
)

// IsValid reports whether k is a known kind.
func (k WorkItemKind) IsValid() bool {
	switch k {
	case WorkItemKindRequest, WorkItemKindTask:
		return true
	default:
		return false
	}
}

// Priority enumerates SLA urgency.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Priorities lists priorities from least to most urgent.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
}

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// WorkStatus is the lifecycle state of a work item. Requests and tasks use
// different subsets.
type WorkStatus string

const (
	StatusNew           WorkStatus = "NEW"
	StatusAssigned      WorkStatus = "ASSIGNED"
	StatusPendingReview WorkStatus = "PENDING_REVIEW"
	StatusCompleted     WorkStatus = "COMPLETED"
	StatusRejected      WorkStatus = "REJECTED"

	StatusTodo     WorkStatus = "TODO"
	StatusInReview WorkStatus = "IN_REVIEW"
	StatusDone     WorkStatus = "DONE"

	StatusInProgress WorkStatus = "IN_PROGRESS"
	StatusCancelled  WorkStatus = "CANCELLED"
)

var kindStatuses = map[WorkItemKind][]WorkStatus{
	WorkItemKindRequest: {StatusNew, StatusAssigned, StatusInProgress, StatusPendingReview, StatusCompleted, StatusRejected, StatusCancelled},
	WorkItemKindTask:    {StatusTodo, StatusInProgress, StatusInReview, StatusDone, StatusCancelled},
}

// TerminalStatuses lists statuses after which no SLA work remains.
func TerminalStatuses() []WorkStatus {
	return []WorkStatus{StatusCompleted, StatusRejected, StatusDone, StatusCancelled}
}

// IsTerminal reports whether the status closes the work item.
func (s WorkStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusDone, StatusCancelled:
		return true
	default:
		return false
	}
}

// ValidFor reports whether s belongs to the status set of kind.
func (s WorkStatus) ValidFor(kind WorkItemKind) bool {
	for _, st := range kindStatuses[kind] {
		if st == s {
			return true
		}
	}
	return false
}

// SLAFields holds the temporal SLA state of a work item. Only the SLA clock
// mutates these fields.
type SLAFields struct {
	StartedAt          *time.Time
	Deadline           *time.Time
	PausedAt           *time.Time
	PauseReason        string
	TotalPausedSeconds int64
}

// Started reports whether the clock has been started.
func (f SLAFields) Started() bool {
	return f.StartedAt != nil && f.Deadline != nil
}

// Paused reports whether the clock is currently stopped.
func (f SLAFields) Paused() bool {
	return f.PausedAt != nil
}

// EntityRef points at an entity by kind and id.
type EntityRef struct {
	Kind WorkItemKind `json:"kind"`
	ID   string       `json:"id"`
}

// WorkItem is a request or a task tracked against an SLA.
type WorkItem struct {
	ID             string
	Kind           WorkItemKind
	Title          string
	Priority       Priority
	Status         WorkStatus
	TeamID         *string
	CreatedByID    string
	AssigneeID     *string
	SLA            SLAFields
	TrackedSeconds int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// Ref returns the entity reference of the item.
func (w *WorkItem) Ref() EntityRef {
	return EntityRef{Kind: w.Kind, ID: w.ID}
}

// SLAState exposes the SLA fields shared by every work item kind.
func (w *WorkItem) SLAState() *SLAFields {
	return &w.SLA
}

// IsActive reports whether the item is still open.
func (w *WorkItem) IsActive() bool {
	return !w.Status.IsTerminal()
}

// AssigneeOrCreator returns the accountable party for reporting.
func (w *WorkItem) AssigneeOrCreator() string {
	if w.AssigneeID != nil && *w.AssigneeID != "" {
		return *w.AssigneeID
	}
	return w.CreatedByID
}
