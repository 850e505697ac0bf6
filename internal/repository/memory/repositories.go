package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
)

type workItems struct{ s *Store }

func (r *workItems) Create(_ context.Context, item *domain.WorkItem) error {
	return r.s.write(func(d *state) error {
		if _, exists := d.workItems[item.ID]; exists {
			return fmt.Errorf("work item %s: %w", item.ID, ErrUniqueViolation)
		}
		item.UpdatedAt = item.CreatedAt
		d.workItems[item.ID] = *item
		return nil
	})
}

func (r *workItems) GetByID(_ context.Context, id string) (*domain.WorkItem, error) {
	var (
		item domain.WorkItem
		ok   bool
	)
	r.s.read(func(d *state) { item, ok = d.workItems[id] })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &item, nil
}

func (r *workItems) GetForUpdate(ctx context.Context, id string) (*domain.WorkItem, error) {
	return r.GetByID(ctx, id)
}

func (r *workItems) Find(_ context.Context, filter repository.WorkItemFilter) ([]domain.WorkItem, error) {
	result := []domain.WorkItem{}
	r.s.read(func(d *state) {
		for _, item := range d.workItems {
			if matchWorkItem(&item, filter) {
				result = append(result, item)
			}
		}
	})
	slices.SortFunc(result, func(a, b domain.WorkItem) int { return cmp.Compare(a.ID, b.ID) })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func matchWorkItem(item *domain.WorkItem, f repository.WorkItemFilter) bool {
	switch {
	case f.Kind != nil && item.Kind != *f.Kind:
		return false
	case f.TeamID != nil && (item.TeamID == nil || *item.TeamID != *f.TeamID):
		return false
	case f.AssigneeID != nil && (item.AssigneeID == nil || *item.AssigneeID != *f.AssigneeID):
		return false
	case len(f.Priorities) > 0 && !slices.Contains(f.Priorities, item.Priority):
		return false
	case f.ActiveOnly && !item.IsActive():
		return false
	case f.WithSLA && item.SLA.Deadline == nil:
		return false
	case f.CreatedFrom != nil && item.CreatedAt.Before(*f.CreatedFrom):
		return false
	case f.CreatedTo != nil && item.CreatedAt.After(*f.CreatedTo):
		return false
	}
	return true
}

func (r *workItems) update(id string, fn func(item *domain.WorkItem)) error {
	return r.s.write(func(d *state) error {
		item, ok := d.workItems[id]
		if !ok {
			return repository.ErrNotFound
		}
		fn(&item)
		item.UpdatedAt = r.s.now()
		d.workItems[id] = item
		return nil
	})
}

func (r *workItems) UpdateSLA(_ context.Context, id string, sla domain.SLAFields) error {
	return r.update(id, func(item *domain.WorkItem) { item.SLA = sla })
}

func (r *workItems) CompareAndSetAssignee(_ context.Context, id string, expected *string, assignee string) (bool, error) {
	var swapped bool
	err := r.s.write(func(d *state) error {
		item, ok := d.workItems[id]
		if !ok {
			return nil
		}
		if !sameID(item.AssigneeID, expected) {
			return nil
		}
		item.AssigneeID = &assignee
		item.UpdatedAt = r.s.now()
		d.workItems[id] = item
		swapped = true
		return nil
	})
	return swapped, err
}

func sameID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *workItems) UpdateTrackedSeconds(_ context.Context, id string, seconds int64) error {
	return r.update(id, func(item *domain.WorkItem) { item.TrackedSeconds = seconds })
}

func (r *workItems) CountActiveByAssignee(_ context.Context, assigneeIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(assigneeIDs))
	r.s.read(func(d *state) {
		for _, item := range d.workItems {
			if item.AssigneeID == nil || !item.IsActive() {
				continue
			}
			if slices.Contains(assigneeIDs, *item.AssigneeID) {
				counts[*item.AssigneeID]++
			}
		}
	})
	return counts, nil
}

type workers struct{ s *Store }

func (r *workers) Create(_ context.Context, worker *domain.Worker) error {
	return r.s.write(func(d *state) error {
		for _, existing := range d.workers {
			if existing.ID == worker.ID || existing.Email == worker.Email {
				return fmt.Errorf("worker %s: %w", worker.ID, ErrUniqueViolation)
			}
		}
		worker.UpdatedAt = worker.CreatedAt
		d.workers[worker.ID] = *worker
		return nil
	})
}

func (r *workers) GetByID(_ context.Context, id string) (*domain.Worker, error) {
	var (
		worker domain.Worker
		ok     bool
	)
	r.s.read(func(d *state) { worker, ok = d.workers[id] })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &worker, nil
}

func (r *workers) GetForUpdate(ctx context.Context, id string) (*domain.Worker, error) {
	return r.GetByID(ctx, id)
}

func (r *workers) List(_ context.Context, filter repository.WorkerFilter) ([]domain.Worker, error) {
	result := []domain.Worker{}
	r.s.read(func(d *state) {
		for _, w := range d.workers {
			if filter.TeamID != nil && (w.TeamID == nil || *w.TeamID != *filter.TeamID) {
				continue
			}
			if filter.Active != nil && w.Active != *filter.Active {
				continue
			}
			result = append(result, w)
		}
	})
	slices.SortFunc(result, func(a, b domain.Worker) int { return cmp.Compare(a.ID, b.ID) })
	return result, nil
}

func (r *workers) UpdateWIPLimit(_ context.Context, id string, limit int) error {
	return r.s.write(func(d *state) error {
		w, ok := d.workers[id]
		if !ok {
			return repository.ErrNotFound
		}
		w.WIPLimit = limit
		w.UpdatedAt = r.s.now()
		d.workers[id] = w
		return nil
	})
}

type teams struct{ s *Store }

func (r *teams) Create(_ context.Context, team *domain.Team) error {
	return r.s.write(func(d *state) error {
		if _, exists := d.teams[team.ID]; exists {
			return fmt.Errorf("team %s: %w", team.ID, ErrUniqueViolation)
		}
		now := r.s.now()
		team.CreatedAt, team.UpdatedAt = now, now
		d.teams[team.ID] = *team
		return nil
	})
}

func (r *teams) GetByID(_ context.Context, id string) (*domain.Team, error) {
	var (
		team domain.Team
		ok   bool
	)
	r.s.read(func(d *state) { team, ok = d.teams[id] })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &team, nil
}

func (r *teams) ListActive(_ context.Context) ([]domain.Team, error) {
	result := []domain.Team{}
	r.s.read(func(d *state) {
		for _, t := range d.teams {
			if t.IsActive {
				result = append(result, t)
			}
		}
	})
	slices.SortFunc(result, func(a, b domain.Team) int { return cmp.Compare(a.Name, b.Name) })
	return result, nil
}

type escalations struct{ s *Store }

func (r *escalations) Create(_ context.Context, log *domain.EscalationLog) error {
	return r.s.write(func(d *state) error {
		if _, exists := d.escalations[log.ID]; exists {
			return fmt.Errorf("escalation %s: %w", log.ID, ErrUniqueViolation)
		}
		if !log.Status.IsTerminal() {
			for _, other := range d.escalations {
				if other.RuleID == log.RuleID && other.Entity == log.Entity && !other.Status.IsTerminal() {
					return fmt.Errorf("outstanding escalation for %s/%s: %w", log.Entity.Kind, log.Entity.ID, ErrUniqueViolation)
				}
			}
		}
		d.escalations[log.ID] = *log
		return nil
	})
}

func (r *escalations) GetByID(_ context.Context, id string) (*domain.EscalationLog, error) {
	var (
		log domain.EscalationLog
		ok  bool
	)
	r.s.read(func(d *state) { log, ok = d.escalations[id] })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &log, nil
}

func (r *escalations) GetForUpdate(ctx context.Context, id string) (*domain.EscalationLog, error) {
	return r.GetByID(ctx, id)
}

func (r *escalations) FindOutstanding(_ context.Context, rule domain.EscalationRuleID, entity domain.EntityRef) (*domain.EscalationLog, error) {
	var found *domain.EscalationLog
	r.s.read(func(d *state) {
		for _, log := range d.escalations {
			if log.RuleID == rule && log.Entity == entity && !log.Status.IsTerminal() {
				found = &log
				return
			}
		}
	})
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

func (r *escalations) Update(_ context.Context, log *domain.EscalationLog) error {
	return r.s.write(func(d *state) error {
		if _, ok := d.escalations[log.ID]; !ok {
			return repository.ErrNotFound
		}
		d.escalations[log.ID] = *log
		return nil
	})
}

func (r *escalations) List(_ context.Context, filter repository.EscalationFilter) ([]domain.EscalationLog, error) {
	result := []domain.EscalationLog{}
	r.s.read(func(d *state) {
		for _, log := range d.escalations {
			switch {
			case filter.Status != nil && log.Status != *filter.Status:
			case filter.RuleID != nil && log.RuleID != *filter.RuleID:
			case filter.Recipient != nil && log.Recipient != *filter.Recipient:
			case filter.Entity != nil && log.Entity != *filter.Entity:
			default:
				result = append(result, log)
			}
		}
	})
	slices.SortFunc(result, func(a, b domain.EscalationLog) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return page(result, filter.Limit, filter.Offset, 50), nil
}

func page[T any](items []T, limit, offset, defaultLimit int) []T {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

type timeLogs struct{ s *Store }

func checkRunning(d *state, log *domain.TimeLog) error {
	if !log.IsRunning {
		return nil
	}
	for _, other := range d.timeLogs {
		if other.ID != log.ID && other.UserID == log.UserID && other.IsRunning {
			return fmt.Errorf("running timer for user %s: %w", log.UserID, ErrUniqueViolation)
		}
	}
	return nil
}

func (r *timeLogs) Create(_ context.Context, log *domain.TimeLog) error {
	return r.s.write(func(d *state) error {
		if _, exists := d.timeLogs[log.ID]; exists {
			return fmt.Errorf("time log %s: %w", log.ID, ErrUniqueViolation)
		}
		if err := checkRunning(d, log); err != nil {
			return err
		}
		d.timeLogs[log.ID] = *log
		return nil
	})
}

func (r *timeLogs) GetByID(_ context.Context, id string) (*domain.TimeLog, error) {
	var (
		log domain.TimeLog
		ok  bool
	)
	r.s.read(func(d *state) { log, ok = d.timeLogs[id] })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &log, nil
}

func (r *timeLogs) GetForUpdate(ctx context.Context, id string) (*domain.TimeLog, error) {
	return r.GetByID(ctx, id)
}

func (r *timeLogs) Update(_ context.Context, log *domain.TimeLog) error {
	return r.s.write(func(d *state) error {
		if _, ok := d.timeLogs[log.ID]; !ok {
			return repository.ErrNotFound
		}
		if err := checkRunning(d, log); err != nil {
			return err
		}
		d.timeLogs[log.ID] = *log
		return nil
	})
}

func (r *timeLogs) Delete(_ context.Context, id string) error {
	return r.s.write(func(d *state) error {
		if _, ok := d.timeLogs[id]; !ok {
			return repository.ErrNotFound
		}
		delete(d.timeLogs, id)
		return nil
	})
}

func (r *timeLogs) list(match func(domain.TimeLog) bool) []domain.TimeLog {
	result := []domain.TimeLog{}
	r.s.read(func(d *state) {
		for _, log := range d.timeLogs {
			if match(log) {
				result = append(result, log)
			}
		}
	})
	slices.SortFunc(result, func(a, b domain.TimeLog) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

func (r *timeLogs) ListRunningByUser(_ context.Context, userID string) ([]domain.TimeLog, error) {
	return r.list(func(l domain.TimeLog) bool { return l.UserID == userID && l.IsRunning }), nil
}

func (r *timeLogs) ListByWorkItem(_ context.Context, workItemID string) ([]domain.TimeLog, error) {
	return r.list(func(l domain.TimeLog) bool { return l.WorkItemID == workItemID }), nil
}

func (r *timeLogs) SumClosedDurations(_ context.Context, workItemID string) (int64, error) {
	var total int64
	for _, l := range r.list(func(l domain.TimeLog) bool { return l.WorkItemID == workItemID && l.Closed() }) {
		if l.DurationSeconds != nil {
			total += *l.DurationSeconds
		}
	}
	return total, nil
}

// LockUser is a no-op: transactions are already exclusive.
func (r *timeLogs) LockUser(context.Context, string) error { return nil }

type auditLog struct{ s *Store }

func (r *auditLog) Append(_ context.Context, entry *domain.AuditEntry) error {
	if entry.Payload == nil {
		return fmt.Errorf("audit entry %s: missing payload", entry.ID)
	}
	return r.s.write(func(d *state) error {
		d.audit = append(d.audit, *entry)
		return nil
	})
}

func (r *auditLog) ListByEntity(_ context.Context, ref domain.EntityRef, limit int) ([]domain.AuditEntry, error) {
	result := []domain.AuditEntry{}
	r.s.read(func(d *state) {
		for _, e := range d.audit {
			if e.Entity == ref {
				result = append(result, e)
			}
		}
	})
	slices.SortStableFunc(result, func(a, b domain.AuditEntry) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return page(result, limit, 0, 100), nil
}
