package domain

import "time"

// TimeLog is a timer entry of a user on a work item.
type TimeLog struct {
	ID              string
	WorkItemID      string
	UserID          string
	StartTime       time.Time
	EndTime         *time.Time
	DurationSeconds *int64
	IsRunning       bool
	IsPaused        bool
	PausedAt        *time.Time
	Manual          bool
	CreatedAt       time.Time
}

// Closed reports whether the log has been stopped.
func (l *TimeLog) Closed() bool {
	return l.EndTime != nil
}
