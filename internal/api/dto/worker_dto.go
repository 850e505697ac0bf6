package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
)

// SetWIPLimitRequest payload.
type SetWIPLimitRequest struct {
	WIPLimit *int `json:"wip_limit"`
}

// WorkerResponse represents a worker profile.
type WorkerResponse struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Role     domain.Role `json:"role"`
	TeamID   *string     `json:"team_id"`
	WIPLimit int         `json:"wip_limit"`
	Active   bool        `json:"active"`
}

// TeamResponse represents a team.
type TeamResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// AuditEntryResponse is one audit trail record.
type AuditEntryResponse struct {
	ID        string             `json:"id"`
	Entity    domain.EntityRef   `json:"entity"`
	ActorID   string             `json:"actor_id"`
	Action    domain.AuditAction `json:"action"`
	Payload   json.RawMessage    `json:"payload"`
	CreatedAt time.Time          `json:"created_at"`
}
