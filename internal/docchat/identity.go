package docchat

import (
	"context"

	"docchat/internal/model"
)

// IdentityProvider is the external service that owns user accounts.
// Failures that the user can act on are returned as *AuthError.
type IdentityProvider interface {
	// SignIn authenticates with email and password.
	SignIn(ctx context.Context, email, password string) (*model.Session, error)

	// SignUp creates an account and returns its first session.
	SignUp(ctx context.Context, email, password string) (*model.Session, error)

	// Refresh exchanges a session's refresh token for a fresh ID token.
	Refresh(ctx context.Context, session *model.Session) (*model.Session, error)

	// SignOut ends the session on the provider side, if the provider supports it.
	SignOut(ctx context.Context, session *model.Session) error
}

// SessionStore persists the signed-in session between process runs.
type SessionStore interface {
	// Load returns the saved session, or nil if none is saved.
	Load() (*model.Session, error)

	// Save replaces the saved session.
	Save(session *model.Session) error

	// Clear removes any saved session. Clearing an empty store is not an error.
	Clear() error
}
