package dto

import "time"

// StartTimerRequest payload. UserID defaults to the caller.
type StartTimerRequest struct {
	UserID string `json:"user_id"`
}

// ManualTimeLogRequest payload.
type ManualTimeLogRequest struct {
	UserID    string    `json:"user_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// TimeLogResponse represents one time log.
type TimeLogResponse struct {
	ID              string     `json:"id"`
	WorkItemID      string     `json:"work_item_id"`
	UserID          string     `json:"user_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	DurationSeconds *int64     `json:"duration_seconds"`
	IsRunning       bool       `json:"is_running"`
	IsPaused        bool       `json:"is_paused"`
	PausedAt        *time.Time `json:"paused_at"`
	Manual          bool       `json:"manual"`
}

// StartTimerResponse includes the timers parked by the start.
type StartTimerResponse struct {
	Log    TimeLogResponse   `json:"log"`
	Parked []TimeLogResponse `json:"parked"`
}

// StopTimerResponse carries the closed log and the item's tracked total.
type StopTimerResponse struct {
	Log             TimeLogResponse `json:"log"`
	DurationSeconds int64           `json:"duration_seconds"`
	TrackedSeconds  int64           `json:"tracked_seconds"`
}

// TrackedTimeResponse is the recomputed tracked total after a deletion.
type TrackedTimeResponse struct {
	TrackedSeconds int64 `json:"tracked_seconds"`
}
