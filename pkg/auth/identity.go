package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/mahaj/careerchat/pkg/model"
)

// Verifier turns a bearer credential into claims.
type Verifier interface {
	ValidateToken(token string) (*Claims, error)
}

// Directory is the read-only user lookup owned by the identity system.
type Directory interface {
	LookupUser(ctx context.Context, userID string) (*model.Identity, error)
}

// Gate authenticates a connection attempt. It has no side effects: nothing
// is registered anywhere until Authenticate has returned an identity.
type Gate struct {
	tokens Verifier
	users  Directory
}

func NewGate(tokens Verifier, users Directory) *Gate {
	return &Gate{tokens: tokens, users: users}
}

// Authenticate resolves token to an identity or fails closed.
func (g *Gate) Authenticate(ctx context.Context, token string) (model.Identity, error) {
	claims, err := g.tokens.ValidateToken(token)
	if err != nil {
		return model.Identity{}, err
	}

	user, err := g.users.LookupUser(ctx, claims.UserID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return model.Identity{}, fmt.Errorf("%w: unknown user %s", model.ErrUnauthenticated, claims.UserID)
	case err != nil:
		return model.Identity{}, err
	}

	id := model.Identity{ID: user.ID, Role: user.Role, DisplayName: user.DisplayName}
	if id.Role == "" {
		id.Role = claims.Role
	}
	return id, nil
}

// WithIdentity stores an authenticated identity on ctx.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, UserKey, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(UserKey).(model.Identity)
	return id, ok
}
