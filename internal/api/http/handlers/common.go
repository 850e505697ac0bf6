package handlers

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/api/dto"
	"github.com/spec-kit/sla-service/internal/auth"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/sla"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

func actorFrom(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return actor, nil
}

func parseBody(c *fiber.Ctx, dest any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(dest); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

func parseTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, apperrors.NewValidationError("timestamps must be RFC3339", map[string]any{"value": value})
	}
	return &t, nil
}

func parsePriorities(value string) []domain.Priority {
	if value == "" {
		return nil
	}
	var out []domain.Priority
	for _, part := range strings.Split(value, ",") {
		if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
			out = append(out, domain.Priority(p))
		}
	}
	return out
}

func queryInt(c *fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.NewValidationError(key+" must be a non-negative integer", nil)
	}
	return n, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

func slaStatusResponse(item *domain.WorkItem, st sla.Status) dto.SLAStatusResponse {
	return dto.SLAStatusResponse{
		WorkItemID:         item.ID,
		Kind:               item.Kind,
		Priority:           item.Priority,
		Started:            st.Started,
		StartedAt:          st.StartedAt,
		Deadline:           st.Deadline,
		Paused:             st.Paused,
		PausedAt:           st.PausedAt,
		PauseReason:        st.PauseReason,
		TotalPausedSeconds: st.TotalPausedSeconds,
		RemainingSeconds:   seconds(st.Remaining),
		ElapsedSeconds:     seconds(st.Elapsed),
		Breached:           st.Breached,
	}
}

func escalationResponse(log *domain.EscalationLog) dto.EscalationResponse {
	return dto.EscalationResponse{
		ID:              log.ID,
		RuleID:          log.RuleID,
		Status:          log.Status,
		Reason:          log.Reason,
		Entity:          log.Entity,
		Recipient:       log.Recipient,
		TriggeredBy:     log.TriggeredBy,
		CreatedAt:       log.CreatedAt,
		AcknowledgedAt:  log.AcknowledgedAt,
		AcknowledgedBy:  log.AcknowledgedBy,
		ResolvedAt:      log.ResolvedAt,
		ResolvedBy:      log.ResolvedBy,
		ResolutionNotes: log.ResolutionNotes,
	}
}

func workItemResponse(item *domain.WorkItem) dto.WorkItemResponse {
	return dto.WorkItemResponse{
		ID:             item.ID,
		Kind:           item.Kind,
		Title:          item.Title,
		Priority:       item.Priority,
		Status:         item.Status,
		TeamID:         item.TeamID,
		AssigneeID:     item.AssigneeID,
		TrackedSeconds: item.TrackedSeconds,
		UpdatedAt:      item.UpdatedAt,
	}
}

func workerLoadResponse(load domain.WorkerLoad) dto.WorkerLoadResponse {
	resp := dto.WorkerLoadResponse{
		WorkerID:    load.WorkerID,
		WIPLimit:    load.WIPLimit,
		ActiveCount: load.ActiveCount,
		Assignable:  load.Assignable(),
	}
	if !math.IsInf(load.Utilization, 0) && !math.IsNaN(load.Utilization) {
		u := load.Utilization
		resp.Utilization = &u
	}
	return resp
}

func timeLogResponse(log *domain.TimeLog) dto.TimeLogResponse {
	return dto.TimeLogResponse{
		ID:              log.ID,
		WorkItemID:      log.WorkItemID,
		UserID:          log.UserID,
		StartTime:       log.StartTime,
		EndTime:         log.EndTime,
		DurationSeconds: log.DurationSeconds,
		IsRunning:       log.IsRunning,
		IsPaused:        log.IsPaused,
		PausedAt:        log.PausedAt,
		Manual:          log.Manual,
	}
}

func timeLogResponses(logs []domain.TimeLog) []dto.TimeLogResponse {
	out := make([]dto.TimeLogResponse, 0, len(logs))
	for i := range logs {
		out = append(out, timeLogResponse(&logs[i]))
	}
	return out
}
