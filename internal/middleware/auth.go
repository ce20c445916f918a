package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/tailor-backend/internal/policy"
)

const (
	ContextUID   = "uid"
	ContextActor = "actor"
)

// RoleClaim is the Firebase custom claim that carries the caller's role.
const RoleClaim = "role"

// IDTokenVerifier is the slice of the Firebase auth client used here.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

type AuthMiddleware struct {
	verifier IDTokenVerifier
	client   *auth.Client
	tokens   *ServiceTokens
}

func NewAuthMiddleware(ctx context.Context, projectID string, tokens *ServiceTokens) (*AuthMiddleware, error) {
	if projectID == "" {
		return nil, errors.New("FIREBASE_PROJECT_ID is not set")
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return &AuthMiddleware{verifier: client, client: client, tokens: tokens}, nil
}

// NewTokenAuth authenticates with the given verifier and service tokens only.
// Either may be nil.
func NewTokenAuth(verifier IDTokenVerifier, tokens *ServiceTokens) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, tokens: tokens}
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authz := c.Request().Header.Get("Authorization")
		if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
			return unauthenticated(c, "missing bearer token")
		}
		tokenStr := strings.TrimPrefix(authz, "Bearer ")

		if m.tokens != nil {
			if actor, err := m.tokens.Verify(tokenStr); err == nil {
				return m.serve(c, next, actor)
			}
		}
		if m.verifier == nil {
			return unauthenticated(c, "invalid token")
		}
		token, err := m.verifier.VerifyIDToken(c.Request().Context(), tokenStr)
		if err != nil {
			return unauthenticated(c, "invalid token")
		}
		role := policy.RoleCustomer
		if r, ok := token.Claims[RoleClaim].(string); ok && r != "" {
			role = policy.Role(r)
		}
		// system is reserved for service tokens
		if !role.Valid() || role == policy.RoleSystem {
			return c.JSON(http.StatusForbidden, errorBody("unauthorized", "unknown role"))
		}
		return m.serve(c, next, policy.Actor{ID: token.UID, Role: role})
	}
}

func (m *AuthMiddleware) serve(c echo.Context, next echo.HandlerFunc, actor policy.Actor) error {
	c.Set(ContextUID, actor.ID)
	c.Set(ContextActor, actor)
	return next(c)
}

// Client is nil when the middleware was not built from a Firebase app.
func (m *AuthMiddleware) Client() *auth.Client {
	return m.client
}

// ActorFrom returns the authenticated caller stored by RequireAuth.
func ActorFrom(c echo.Context) (policy.Actor, bool) {
	a, ok := c.Get(ContextActor).(policy.Actor)
	return a, ok && a.ID != ""
}

func unauthenticated(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, errorBody("unauthenticated", msg))
}

func errorBody(code, msg string) map[string]any {
	return map[string]any{"error": map[string]string{"code": code, "message": msg}}
}
