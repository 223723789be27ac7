package auth

import (
	"context"

	"ghginventory.org/internal/ability"
	"ghginventory.org/internal/registry"
)

// Session is the authenticated user together with the ability compiled for it.
type Session struct {
	User    registry.User
	Ability *ability.Ability
}

type sessionContextKey struct{}

// ContextWithSession attaches the session to the context.
func ContextWithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, &s)
}

// SessionFromContext extracts the session from the context.
func SessionFromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	v, ok := ctx.Value(sessionContextKey{}).(*Session)
	if !ok || v == nil {
		return Session{}, false
	}
	return *v, true
}

// AbilityFromContext returns the caller's ability, or one that denies
// everything when the request is anonymous.
func AbilityFromContext(ctx context.Context) *ability.Ability {
	if s, ok := SessionFromContext(ctx); ok && s.Ability != nil {
		return s.Ability
	}
	return ability.New(nil)
}

// UserIDFromContext returns the id of the authenticated user.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return 0, false
	}
	return s.User.ID, true
}
