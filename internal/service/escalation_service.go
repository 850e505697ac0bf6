package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/observability"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/internal/sla"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

// EscalationService drives the escalation lifecycle. It is the only writer of
// escalation status.
type EscalationService struct {
	store      repository.Store
	rules      map[domain.EscalationRuleID]domain.EscalationRule
	assigner   *AssignmentService
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        Clock
}

// EscalationDependencies bundles collaborators of EscalationService.
type EscalationDependencies struct {
	Store           repository.Store
	Assigner        *AssignmentService
	Dispatcher      events.Dispatcher
	Metrics         *observability.Metrics
	Logger          *zap.Logger
	Now             Clock
	BreachRecipient string
	AtRiskRecipient string
}

// DefaultRules returns the fixed rule catalogue.
func DefaultRules(breachRecipient, atRiskRecipient string) []domain.EscalationRule {
	return []domain.EscalationRule{
		{ID: domain.RuleSLABreach, Name: "SLA breached", MinSeverity: domain.SeverityHigh, Recipient: breachRecipient},
		{ID: domain.RuleSLAAtRisk, Name: "SLA at risk", Recipient: atRiskRecipient},
		{ID: domain.RuleManual, Name: "Manual escalation"},
	}
}

// NewEscalationService creates the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	rules := make(map[domain.EscalationRuleID]domain.EscalationRule)
	for _, r := range DefaultRules(deps.BreachRecipient, deps.AtRiskRecipient) {
		rules[r.ID] = r
	}
	return &EscalationService{
		store:      deps.Store,
		rules:      rules,
		assigner:   deps.Assigner,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     loggerOrNop(deps.Logger),
		now:        clockOrDefault(deps.Now),
	}
}

// TriggerInput describes an escalation request.
type TriggerInput struct {
	RuleID     domain.EscalationRuleID
	WorkItemID string
	Reason     string
	// Recipient is required for manual escalations and ignored otherwise.
	Recipient string
}

// Trigger raises an escalation for a work item. When a log of the same rule is
// still outstanding for the item, that log is returned with created=false.
func (s *EscalationService) Trigger(ctx context.Context, actor domain.Actor, in TriggerInput) (*domain.EscalationLog, bool, error) {
	rule, ok := s.rules[in.RuleID]
	if !ok {
		return nil, false, apperrors.NewValidationError("unknown escalation rule", map[string]any{"rule_id": in.RuleID})
	}
	if strings.TrimSpace(in.WorkItemID) == "" {
		return nil, false, apperrors.NewValidationError("work item id is required", nil)
	}
	if rule.ID == domain.RuleManual {
		if !actor.CanManageEscalations() {
			return nil, false, apperrors.NewForbidden("role may not raise manual escalations")
		}
		if strings.TrimSpace(in.Recipient) == "" {
			return nil, false, apperrors.NewValidationError("recipient is required for manual escalations", nil)
		}
		rule.Recipient = strings.TrimSpace(in.Recipient)
	}

	ctx, span := tracer.Start(ctx, "EscalationService.Trigger")
	defer span.End()
	span.SetAttributes(attribute.String("escalation.rule", string(rule.ID)), attribute.String("work_item.id", in.WorkItemID))

	var (
		log     *domain.EscalationLog
		created bool
		ev      events.Event
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		item, err := repos.WorkItems.GetForUpdate(ctx, in.WorkItemID)
		if err != nil {
			return lookupError(err, "work item", map[string]any{"work_item_id": in.WorkItemID})
		}

		existing, err := repos.Escalations.FindOutstanding(ctx, rule.ID, item.Ref())
		switch {
		case err == nil:
			log = existing
			return nil
		case !errors.Is(err, repository.ErrNotFound):
			return storeError(err)
		}

		now := s.now()
		reason := strings.TrimSpace(in.Reason)
		if reason == "" {
			if reason, err = s.defaultReason(rule, item, now); err != nil {
				return err
			}
		} else if err := s.checkApplies(rule, item, now); err != nil {
			return err
		}

		log = &domain.EscalationLog{
			ID:          uuid.NewString(),
			RuleID:      rule.ID,
			Status:      domain.EscalationPending,
			Reason:      reason,
			Entity:      item.Ref(),
			Recipient:   rule.RecipientFor(item),
			TriggeredBy: actor.ID,
			CreatedAt:   now,
		}
		if err := repos.Escalations.Create(ctx, log); err != nil {
			return storeError(err)
		}
		created = true
		ev = newEvent(events.EventEscalationTriggered, log.Entity, actor.ID, log.Recipient, now, events.EscalationPayload{
			LogID:  log.ID,
			RuleID: log.RuleID,
			Status: log.Status,
			Reason: log.Reason,
		})
		return storeError(repos.Audit.Append(ctx, newAuditEntry(log.Entity, actor.ID, domain.EscalationTriggeredPayload{
			LogID:     log.ID,
			RuleID:    log.RuleID,
			Recipient: log.Recipient,
			Reason:    log.Reason,
		}, now)))
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		s.metrics.RecordEscalation(string(log.RuleID), string(log.Status))
		s.logger.Info("escalation triggered",
			zap.String("escalation_id", log.ID),
			zap.String("rule_id", string(log.RuleID)),
			zap.String("recipient", log.Recipient),
		)
		publish(ctx, s.dispatcher, ev)
	}
	return log, created, nil
}

// checkApplies verifies that an SLA rule matches the current item state.
func (s *EscalationService) checkApplies(rule domain.EscalationRule, item *domain.WorkItem, now time.Time) error {
	_, err := s.defaultReason(rule, item, now)
	return err
}

func (s *EscalationService) defaultReason(rule domain.EscalationRule, item *domain.WorkItem, now time.Time) (string, error) {
	single := []domain.WorkItem{*item}
	switch rule.ID {
	case domain.RuleSLABreach:
		violations := sla.DetectViolations(single, sla.Filter{}, now)
		if len(violations) == 0 || !violations[0].Severity.AtLeast(rule.MinSeverity) {
			return "", apperrors.NewStateError("work item does not breach the rule severity", map[string]any{
				"work_item_id": item.ID,
				"min_severity": rule.MinSeverity,
			})
		}
		v := violations[0]
		return fmt.Sprintf("%s breach: %.1fh past deadline", v.Severity, v.DelayHours), nil
	case domain.RuleSLAAtRisk:
		atRisk := sla.DetectAtRisk(single, sla.Filter{}, now)
		if len(atRisk) == 0 {
			return "", apperrors.NewStateError("work item is not at risk", map[string]any{"work_item_id": item.ID})
		}
		a := atRisk[0]
		return fmt.Sprintf("%.1fh (%.0f%%) of the sla window left", a.HoursRemaining, a.PercentRemaining), nil
	default:
		return "manual escalation", nil
	}
}

// Acknowledge moves a pending escalation to ACKNOWLEDGED. Acknowledged and
// resolved logs are returned unchanged.
func (s *EscalationService) Acknowledge(ctx context.Context, actor domain.Actor, id string) (*domain.EscalationLog, error) {
	var (
		log     *domain.EscalationLog
		changed bool
		ev      events.Event
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		log, err = s.lockForActor(ctx, repos, actor, id)
		if err != nil {
			return err
		}
		if !domain.CanTransition(log.Status, domain.EscalationAcknowledged) {
			return nil
		}

		now := s.now()
		log.Status = domain.EscalationAcknowledged
		log.AcknowledgedAt = &now
		log.AcknowledgedBy = ptr(actor.ID)
		if err := repos.Escalations.Update(ctx, log); err != nil {
			return storeError(err)
		}
		changed = true
		ev = newEvent(events.EventEscalationAcknowledged, log.Entity, actor.ID, log.Recipient, now, events.EscalationPayload{
			LogID:  log.ID,
			RuleID: log.RuleID,
			Status: log.Status,
		})
		return storeError(repos.Audit.Append(ctx, newAuditEntry(log.Entity, actor.ID, domain.EscalationAcknowledgedPayload{LogID: log.ID}, now)))
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.RecordEscalation(string(log.RuleID), string(log.Status))
		publish(ctx, s.dispatcher, ev)
	}
	return log, nil
}

// Resolve closes an escalation. Resolving a resolved log keeps the first
// notes and resolution time.
func (s *EscalationService) Resolve(ctx context.Context, actor domain.Actor, id string, notes *string) (*domain.EscalationLog, error) {
	if notes != nil {
		trimmed := strings.TrimSpace(*notes)
		if trimmed == "" {
			notes = nil
		} else {
			notes = &trimmed
		}
	}

	var (
		log     *domain.EscalationLog
		changed bool
		ev      events.Event
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		log, err = s.lockForActor(ctx, repos, actor, id)
		if err != nil {
			return err
		}
		if !domain.CanTransition(log.Status, domain.EscalationResolved) {
			return nil
		}

		now := s.now()
		log.Status = domain.EscalationResolved
		log.ResolvedAt = &now
		log.ResolvedBy = ptr(actor.ID)
		log.ResolutionNotes = notes
		if err := repos.Escalations.Update(ctx, log); err != nil {
			return storeError(err)
		}
		changed = true
		ev = newEvent(events.EventEscalationResolved, log.Entity, actor.ID, log.Recipient, now, events.EscalationPayload{
			LogID:  log.ID,
			RuleID: log.RuleID,
			Status: log.Status,
			Notes:  notes,
		})
		return storeError(repos.Audit.Append(ctx, newAuditEntry(log.Entity, actor.ID, domain.EscalationResolvedPayload{
			LogID: log.ID,
			Notes: notes,
		}, now)))
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.RecordEscalation(string(log.RuleID), string(log.Status))
		publish(ctx, s.dispatcher, ev)
	}
	return log, nil
}

func (s *EscalationService) lockForActor(ctx context.Context, repos repository.Repositories, actor domain.Actor, id string) (*domain.EscalationLog, error) {
	log, err := repos.Escalations.GetForUpdate(ctx, id)
	if err != nil {
		return nil, lookupError(err, "escalation", map[string]any{"escalation_id": id})
	}
	if log.Recipient != actor.ID && !actor.CanManageEscalations() {
		return nil, apperrors.NewForbidden("escalation is addressed to another recipient")
	}
	return log, nil
}

// ReassignInput hands an escalated work item to another worker.
type ReassignInput struct {
	EscalationID string
	WorkItemID   string
	WorkerID     string
	Override     bool
}

// Reassign delegates to manual assignment. Escalation status is left alone.
func (s *EscalationService) Reassign(ctx context.Context, actor domain.Actor, in ReassignInput) (*ManualAssignOutcome, error) {
	if s.assigner == nil {
		return nil, apperrors.NewInternalError(errors.New("assignment service not configured"))
	}
	workItemID := in.WorkItemID
	if in.EscalationID != "" {
		log, err := s.Get(ctx, in.EscalationID)
		if err != nil {
			return nil, err
		}
		if workItemID != "" && workItemID != log.Entity.ID {
			return nil, apperrors.NewValidationError("work item does not match escalation", map[string]any{
				"escalation_id": log.ID,
				"work_item_id":  workItemID,
			})
		}
		workItemID = log.Entity.ID
	}
	return s.assigner.ManualAssign(ctx, actor, ManualAssignInput{
		WorkItemID: workItemID,
		WorkerID:   in.WorkerID,
		Override:   in.Override,
	})
}

// Get returns one escalation log.
func (s *EscalationService) Get(ctx context.Context, id string) (*domain.EscalationLog, error) {
	return retryRead(ctx, s.logger, "escalations.get", func(ctx context.Context) (*domain.EscalationLog, error) {
		log, err := s.store.Repos().Escalations.GetByID(ctx, id)
		if err != nil {
			return nil, lookupError(err, "escalation", map[string]any{"escalation_id": id})
		}
		return log, nil
	})
}

// List returns escalation logs newest first.
func (s *EscalationService) List(ctx context.Context, filter repository.EscalationFilter) ([]domain.EscalationLog, error) {
	if filter.Status != nil {
		switch *filter.Status {
		case domain.EscalationPending, domain.EscalationAcknowledged, domain.EscalationResolved:
		default:
			return nil, apperrors.NewValidationError("unknown escalation status", map[string]any{"status": *filter.Status})
		}
	}
	if filter.RuleID != nil {
		if _, ok := s.rules[*filter.RuleID]; !ok {
			return nil, apperrors.NewValidationError("unknown escalation rule", map[string]any{"rule_id": *filter.RuleID})
		}
	}
	return retryRead(ctx, s.logger, "escalations.list", func(ctx context.Context) ([]domain.EscalationLog, error) {
		logs, err := s.store.Repos().Escalations.List(ctx, filter)
		return logs, storeError(err)
	})
}

// SweepResult counts the escalations raised by one sweep.
type SweepResult struct {
	Breaches int
	AtRisk   int
}

// Sweep raises breach and at-risk escalations for every active item that
// qualifies. Items with an outstanding escalation of the same rule are
// skipped by Trigger.
func (s *EscalationService) Sweep(ctx context.Context) (SweepResult, error) {
	ctx, span := tracer.Start(ctx, "EscalationService.Sweep")
	defer span.End()

	var result SweepResult
	items, err := retryRead(ctx, s.logger, "work_items.find.active", func(ctx context.Context) ([]domain.WorkItem, error) {
		items, err := s.store.Repos().WorkItems.Find(ctx, repository.WorkItemFilter{ActiveOnly: true, WithSLA: true})
		return items, storeError(err)
	})
	if err != nil {
		return result, err
	}

	now := s.now()
	breach := s.rules[domain.RuleSLABreach]
	for _, v := range sla.DetectViolations(items, sla.Filter{}, now) {
		if !v.Severity.AtLeast(breach.MinSeverity) {
			continue
		}
		created, err := s.sweepOne(ctx, domain.RuleSLABreach, v.WorkItemID)
		if err != nil {
			return result, err
		}
		if created {
			result.Breaches++
		}
	}
	for _, a := range sla.DetectAtRisk(items, sla.Filter{}, now) {
		created, err := s.sweepOne(ctx, domain.RuleSLAAtRisk, a.WorkItemID)
		if err != nil {
			return result, err
		}
		if created {
			result.AtRisk++
		}
	}
	span.SetAttributes(attribute.Int("sweep.breaches", result.Breaches), attribute.Int("sweep.at_risk", result.AtRisk))
	return result, nil
}

// sweepOne tolerates items whose state changed since the scan.
func (s *EscalationService) sweepOne(ctx context.Context, rule domain.EscalationRuleID, workItemID string) (bool, error) {
	_, created, err := s.Trigger(ctx, domain.SystemActor, TriggerInput{RuleID: rule, WorkItemID: workItemID})
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeState) || apperrors.HasCode(err, apperrors.CodeNotFound) {
			s.logger.Debug("sweep skipped work item", zap.String("work_item_id", workItemID), zap.Error(err))
			return false, nil
		}
		return false, err
	}
	return created, nil
}
