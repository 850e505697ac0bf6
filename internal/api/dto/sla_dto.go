package dto

import (
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
)

// StartSLARequest payload. TargetMinutes overrides the priority target.
type StartSLARequest struct {
	TargetMinutes *int `json:"target_minutes"`
}

// PauseSLARequest payload.
type PauseSLARequest struct {
	Reason string `json:"reason"`
}

// SLAStatusResponse describes the clock of one work item.
type SLAStatusResponse struct {
	WorkItemID         string              `json:"work_item_id"`
	Kind               domain.WorkItemKind `json:"kind"`
	Priority           domain.Priority     `json:"priority"`
	Started            bool                `json:"started"`
	StartedAt          *time.Time          `json:"sla_started_at"`
	Deadline           *time.Time          `json:"sla_deadline"`
	Paused             bool                `json:"paused"`
	PausedAt           *time.Time          `json:"sla_paused_at"`
	PauseReason        string              `json:"pause_reason,omitempty"`
	TotalPausedSeconds int64               `json:"total_paused_seconds"`
	RemainingSeconds   int64               `json:"remaining_seconds"`
	ElapsedSeconds     int64               `json:"elapsed_seconds"`
	Breached           bool                `json:"breached"`
}

// StartSLAResponse reports whether the call started the clock.
type StartSLAResponse struct {
	Started bool              `json:"started"`
	Status  SLAStatusResponse `json:"status"`
}

// RemainingResponse is the time left before the deadline; negative once breached.
type RemainingResponse struct {
	WorkItemID       string  `json:"work_item_id"`
	RemainingSeconds int64   `json:"remaining_seconds"`
	RemainingHours   float64 `json:"remaining_hours"`
}

// ClassifyResponse is the severity band of a delay.
type ClassifyResponse struct {
	DelayHours float64         `json:"delay_hours"`
	Severity   domain.Severity `json:"severity"`
}
