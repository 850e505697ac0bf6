package sla

import (
	"cmp"
	"slices"
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
)

// AtRiskPercent is the share of the SLA window below which an active item is
// reported as at risk.
const AtRiskPercent = 20.0

// Window bounds work item creation time. Zero values are open ends.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}

// Filter narrows detector input.
type Filter struct {
	Window     Window
	TeamID     *string
	Priorities []domain.Priority
}

// Matches reports whether item passes the filter.
func (f Filter) Matches(item *domain.WorkItem) bool {
	if !f.Window.Contains(item.CreatedAt) {
		return false
	}
	if f.TeamID != nil && (item.TeamID == nil || *item.TeamID != *f.TeamID) {
		return false
	}
	if len(f.Priorities) > 0 && !slices.Contains(f.Priorities, item.Priority) {
		return false
	}
	return true
}

// ReferenceTime is the instant an item is judged against its deadline:
// completion, else the pause instant, else now.
func ReferenceTime(item *domain.WorkItem, now time.Time) time.Time {
	if item.CompletedAt != nil {
		return *item.CompletedAt
	}
	if item.SLA.PausedAt != nil {
		return *item.SLA.PausedAt
	}
	return now
}

// DetectViolations returns the breached items ordered CRITICAL first, then by
// delay descending, then by id.
func DetectViolations(items []domain.WorkItem, filter Filter, now time.Time) []domain.Violation {
	violations := make([]domain.Violation, 0)
	for i := range items {
		item := &items[i]
		if item.SLA.Deadline == nil || !filter.Matches(item) {
			continue
		}
		ref := ReferenceTime(item, now)
		deadline := *item.SLA.Deadline
		if !ref.After(deadline) {
			continue
		}
		delay := ref.Sub(deadline).Hours()
		violations = append(violations, domain.Violation{
			WorkItemID:        item.ID,
			Kind:              item.Kind,
			Title:             item.Title,
			Priority:          item.Priority,
			Deadline:          deadline,
			ReferenceTime:     ref,
			DelayHours:        delay,
			Severity:          Classify(delay),
			AssigneeOrCreator: item.AssigneeOrCreator(),
			Status:            item.Status,
		})
	}
	SortViolations(violations)
	return violations
}

// SortViolations applies the dashboard ordering contract in place.
func SortViolations(v []domain.Violation) {
	slices.SortStableFunc(v, func(a, b domain.Violation) int {
		if c := cmp.Compare(b.Severity.Rank(), a.Severity.Rank()); c != 0 {
			return c
		}
		if c := cmp.Compare(b.DelayHours, a.DelayHours); c != 0 {
			return c
		}
		return cmp.Compare(a.WorkItemID, b.WorkItemID)
	})
}

// DetectAtRisk returns active items with less than AtRiskPercent of their
// window left, most urgent first.
func DetectAtRisk(items []domain.WorkItem, filter Filter, now time.Time) []domain.AtRiskItem {
	result := make([]domain.AtRiskItem, 0)
	for i := range items {
		item := &items[i]
		if !item.IsActive() || !item.SLA.Started() || !filter.Matches(item) {
			continue
		}
		remaining, _ := Remaining(item.SLA, now)
		if remaining <= 0 {
			continue
		}
		window := item.SLA.Deadline.Sub(*item.SLA.StartedAt)
		if window <= 0 {
			continue
		}
		percent := float64(remaining) / float64(window) * 100
		if percent <= 0 || percent >= AtRiskPercent {
			continue
		}
		result = append(result, domain.AtRiskItem{
			WorkItemID:       item.ID,
			Kind:             item.Kind,
			Title:            item.Title,
			Priority:         item.Priority,
			Deadline:         *item.SLA.Deadline,
			HoursRemaining:   remaining.Hours(),
			PercentRemaining: percent,
			AssigneeID:       item.AssigneeID,
			Status:           item.Status,
		})
	}
	slices.SortStableFunc(result, func(a, b domain.AtRiskItem) int {
		if c := cmp.Compare(a.HoursRemaining, b.HoursRemaining); c != 0 {
			return c
		}
		return cmp.Compare(a.WorkItemID, b.WorkItemID)
	})
	return result
}
