package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/repository"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

var tracer = otel.Tracer("github.com/spec-kit/sla-service/internal/service")

// Clock returns the current instant. Services default to time.Now.
type Clock func() time.Time

func clockOrDefault(c Clock) Clock {
	if c == nil {
		return func() time.Time { return time.Now().UTC() }
	}
	return c
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// storeError passes domain errors through and wraps anything else as an
// external dependency failure.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.NewExternalDependency("store", err)
}

// lookupError maps repository.ErrNotFound to a NotFound error for resource.
func lookupError(err error, resource string, details map[string]any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, details)
	}
	return storeError(err)
}

// retryRead runs an idempotent read and retries it once when the store is
// unavailable.
func retryRead[T any](ctx context.Context, logger *zap.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	result, err := fn(ctx)
	if err == nil || !apperrors.HasCode(err, apperrors.CodeExternal) || ctx.Err() != nil {
		return result, err
	}
	logger.Warn("read failed; retrying once", zap.String("operation", op), zap.Error(err))
	return fn(ctx)
}

func newAuditEntry(ref domain.EntityRef, actorID string, payload domain.AuditPayload, at time.Time) *domain.AuditEntry {
	return &domain.AuditEntry{
		ID:        uuid.NewString(),
		Entity:    ref,
		ActorID:   actorID,
		Payload:   payload,
		CreatedAt: at,
	}
}

func newEvent(t events.EventType, ref domain.EntityRef, actorID, recipient string, at time.Time, payload any) events.Event {
	return events.Event{
		ID:        uuid.NewString(),
		Type:      t,
		Entity:    ref,
		ActorID:   actorID,
		Recipient: recipient,
		Timestamp: at,
		Payload:   payload,
	}
}

// publish delivers events collected during a committed transaction.
func publish(ctx context.Context, dispatcher events.Dispatcher, evs ...events.Event) {
	if dispatcher == nil {
		return
	}
	for _, ev := range evs {
		dispatcher.Publish(ctx, ev)
	}
}

func sameAssignee(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func ptr[T any](v T) *T {
	return &v
}
