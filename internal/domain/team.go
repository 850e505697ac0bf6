package domain

import "time"

// Team groups workers that share a work queue.
type Team struct {
	ID        string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
