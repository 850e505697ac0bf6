package dto

import (
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
)

// ManualAssignRequest payload. ExpectedAssigneeID guards against concurrent
// edits; an empty string expects the item to be unassigned.
type ManualAssignRequest struct {
	WorkerID           string  `json:"worker_id"`
	Override           bool    `json:"override"`
	ExpectedAssigneeID *string `json:"expected_assignee_id"`
}

// WorkerLoadResponse describes a worker's load. Utilization is null for a
// zero WIP limit.
type WorkerLoadResponse struct {
	WorkerID    string   `json:"worker_id"`
	WIPLimit    int      `json:"wip_limit"`
	ActiveCount int      `json:"active_count"`
	Utilization *float64 `json:"utilization"`
	Assignable  bool     `json:"assignable"`
}

// WorkItemResponse summarizes a work item.
type WorkItemResponse struct {
	ID             string              `json:"id"`
	Kind           domain.WorkItemKind `json:"kind"`
	Title          string              `json:"title"`
	Priority       domain.Priority     `json:"priority"`
	Status         domain.WorkStatus   `json:"status"`
	TeamID         *string             `json:"team_id"`
	AssigneeID     *string             `json:"assignee_id"`
	TrackedSeconds int64               `json:"tracked_seconds"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// AssignmentResponse reports a completed assignment.
type AssignmentResponse struct {
	WorkItem WorkItemResponse   `json:"work_item"`
	Load     WorkerLoadResponse `json:"load"`
	Override bool               `json:"override"`
}

// WIPWarningResponse is returned with 409 when an override is needed.
type WIPWarningResponse struct {
	Warning     bool               `json:"warning"`
	CanOverride bool               `json:"canOverride"`
	Error       string             `json:"error"`
	Load        WorkerLoadResponse `json:"load"`
}
