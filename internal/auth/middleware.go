package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

const (
	actorKey   = "auth_actor"
	actorIDKey = "actor_id"
)

// AuthMiddleware validates bearer tokens and resolves the calling actor.
type AuthMiddleware struct {
	tokens  *TokenManager
	workers repository.WorkerRepository
}

// NewAuthMiddleware constructs middleware. When workers is set, tokens of
// unknown or deactivated workers are rejected.
func NewAuthMiddleware(tokens *TokenManager, workers repository.WorkerRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, workers: workers}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	actor, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	if m.workers != nil && actor.Role != domain.RoleSystem {
		worker, err := m.workers.GetByID(c.UserContext(), actor.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewUnauthorized("worker not found")
			}
			return apperrors.NewExternalDependency("store", err)
		}
		if !worker.Active {
			return apperrors.NewUnauthorized("worker deactivated")
		}
	}

	c.Locals(actorKey, actor)
	c.Locals(actorIDKey, actor.ID)
	return c.Next()
}

// ActorFromContext retrieves the authenticated actor.
func ActorFromContext(c *fiber.Ctx) (domain.Actor, bool) {
	actor, ok := c.Locals(actorKey).(domain.Actor)
	return actor, ok
}
