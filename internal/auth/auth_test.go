package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository/memory"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", "sla-service", 5)
	token, expiresAt, err := tm.GenerateToken(domain.Actor{ID: "lead-1", Role: domain.RoleTeamLead})
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	actor, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{ID: "lead-1", Role: domain.RoleTeamLead}, actor)

	_, err = NewTokenManager("other", "sla-service", 5).ParseToken(token)
	assert.Error(t, err)
	_, err = NewTokenManager("secret", "someone-else", 5).ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsUnknownRole(t *testing.T) {
	tm := NewTokenManager("secret", "", 5)
	token, _, err := tm.GenerateToken(domain.Actor{ID: "x", Role: domain.Role("ROOT")})
	require.NoError(t, err)

	_, err = tm.ParseToken(token)
	assert.Error(t, err)
}

func newApp(t *testing.T, mw *AuthMiddleware, guard fiber.Handler) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		de := apperrors.ToDomainError(err)
		return c.Status(de.HTTPStatus).SendString(de.Code)
	}})
	app.Get("/x", mw.Handle, guard, func(c *fiber.Ctx) error {
		actor, _ := ActorFromContext(c)
		return c.SendString(actor.ID)
	})
	return app
}

func TestMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", "sla-service", 5)
	store := memory.NewStore(nil)
	require.NoError(t, store.Repos().Workers.Create(context.Background(), &domain.Worker{ID: "agent-1", Email: "a@x", Role: domain.RoleAgent, Active: true, WIPLimit: 3}))
	require.NoError(t, store.Repos().Workers.Create(context.Background(), &domain.Worker{ID: "gone", Email: "g@x", Role: domain.RoleAgent, WIPLimit: 3}))

	app := newApp(t, NewAuthMiddleware(tm, store.Repos().Workers), RequireCapability(domain.Actor.CanAssign, "assignment requires team lead"))

	call := func(header string) int {
		req := httptest.NewRequest("GET", "/x", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}
	token := func(a domain.Actor) string {
		s, _, err := tm.GenerateToken(a)
		require.NoError(t, err)
		return "Bearer " + s
	}

	assert.Equal(t, fiber.StatusUnauthorized, call(""))
	assert.Equal(t, fiber.StatusUnauthorized, call("Basic abc"))
	assert.Equal(t, fiber.StatusUnauthorized, call(token(domain.Actor{ID: "ghost", Role: domain.RoleAgent})))
	assert.Equal(t, fiber.StatusUnauthorized, call(token(domain.Actor{ID: "gone", Role: domain.RoleAgent})))
	assert.Equal(t, fiber.StatusForbidden, call(token(domain.Actor{ID: "agent-1", Role: domain.RoleAgent})))
	assert.Equal(t, fiber.StatusOK, call(token(domain.SystemActor)))
}

func TestRequireRole(t *testing.T) {
	tm := NewTokenManager("secret", "", 5)
	app := newApp(t, NewAuthMiddleware(tm, nil), RequireRole(domain.RoleManager, domain.RoleAdmin))

	for role, want := range map[domain.Role]int{
		domain.RoleAgent:   fiber.StatusForbidden,
		domain.RoleManager: fiber.StatusOK,
	} {
		s, _, err := tm.GenerateToken(domain.Actor{ID: "u", Role: role})
		require.NoError(t, err)
		req := httptest.NewRequest("GET", "/x", nil)
		req.Header.Set("Authorization", "Bearer "+s)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, role)
	}
}
