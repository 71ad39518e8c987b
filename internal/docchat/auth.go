package docchat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docchat/internal/api"
	"docchat/internal/model"
)

// tokenRefreshSkew refreshes ID tokens slightly before they expire so a
// request never leaves with a token that lapses in flight.
const tokenRefreshSkew = time.Minute

// AuthProvider tracks the signed-in user. It restores the saved session at
// startup, keeps the ID token fresh, and notifies listeners whenever the
// identity changes. It is safe for concurrent use.
type AuthProvider struct {
	identity IdentityProvider
	sessions SessionStore
	clock    Clock
	logger   Logger

	mu        sync.Mutex
	session   *model.Session
	loading   bool
	listeners map[int]func(*model.User)
	nextID    int

	refreshMu sync.Mutex
}

var _ api.TokenSource = (*AuthProvider)(nil)

// NewAuthProvider creates an AuthProvider. Call Restore to load a saved session.
func NewAuthProvider(identity IdentityProvider, sessions SessionStore, clock Clock, logger Logger) *AuthProvider {
	return &AuthProvider{
		identity:  identity,
		sessions:  sessions,
		clock:     clock,
		logger:    logger,
		listeners: make(map[int]func(*model.User)),
	}
}

// Restore loads the saved session. An expired session is refreshed through
// the identity provider; if that fails the saved session is cleared and no
// user is signed in. Listeners are notified once the outcome is known.
func (a *AuthProvider) Restore(ctx context.Context) error {
	a.mu.Lock()
	a.loading = true
	a.mu.Unlock()

	session, err := a.restore(ctx)

	a.mu.Lock()
	a.loading = false
	a.session = session
	a.mu.Unlock()

	a.notify()
	return err
}

func (a *AuthProvider) restore(ctx context.Context) (*model.Session, error) {
	session, err := a.sessions.Load()
	if err != nil {
		return nil, fmt.Errorf("loading saved session: %w", err)
	}
	if session == nil {
		return nil, nil
	}
	if !a.needsRefresh(session) {
		a.logger.Debug("restored session", "user", session.User.Email)
		return session, nil
	}

	refreshed, err := a.identity.Refresh(ctx, session)
	if err != nil {
		a.logger.Warn("saved session could not be refreshed", "user", session.User.Email, "error", err)
		if clearErr := a.sessions.Clear(); clearErr != nil {
			return nil, fmt.Errorf("clearing expired session: %w", clearErr)
		}
		return nil, nil
	}
	if err := a.sessions.Save(refreshed); err != nil {
		return nil, fmt.Errorf("saving refreshed session: %w", err)
	}
	a.logger.Debug("refreshed saved session", "user", refreshed.User.Email)
	return refreshed, nil
}

// Loading reports whether Restore is in progress.
func (a *AuthProvider) Loading() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loading
}

// CurrentUser returns the signed-in user, or nil.
func (a *AuthProvider) CurrentUser() *model.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil
	}
	user := a.session.User
	return &user
}

// Login signs in with email and password and saves the session.
func (a *AuthProvider) Login(ctx context.Context, email, password string) (*model.User, error) {
	session, err := a.identity.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := a.establish(session); err != nil {
		return nil, err
	}
	a.logger.Info("logged in", "user", session.User.Email)
	user := session.User
	return &user, nil
}

// Signup creates an account, signs in as it and saves the session.
func (a *AuthProvider) Signup(ctx context.Context, email, password string) (*model.User, error) {
	session, err := a.identity.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := a.establish(session); err != nil {
		return nil, err
	}
	a.logger.Info("signed up", "user", session.User.Email)
	user := session.User
	return &user, nil
}

func (a *AuthProvider) establish(session *model.Session) error {
	if err := a.sessions.Save(session); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	a.mu.Lock()
	a.session = session
	a.mu.Unlock()
	a.notify()
	return nil
}

// Logout ends the session. Provider-side sign-out is best effort; the local
// session is always cleared.
func (a *AuthProvider) Logout(ctx context.Context) error {
	a.mu.Lock()
	session := a.session
	a.session = nil
	a.mu.Unlock()

	if session != nil {
		if err := a.identity.SignOut(ctx, session); err != nil {
			a.logger.Warn("provider sign-out failed", "user", session.User.Email, "error", err)
		}
	}
	err := a.sessions.Clear()
	a.notify()
	if err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	if session != nil {
		a.logger.Info("logged out", "user", session.User.Email)
	}
	return nil
}

// Token returns the current ID token for backend requests, refreshing it
// when it is about to expire. It returns "" when nobody is signed in.
func (a *AuthProvider) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	session := a.session
	a.mu.Unlock()
	if session == nil {
		return "", nil
	}
	if !a.needsRefresh(session) {
		return session.IDToken, nil
	}

	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	a.mu.Lock()
	current := a.session
	a.mu.Unlock()
	if current == nil {
		return "", ErrNotAuthenticated
	}
	if current != session && !a.needsRefresh(current) {
		return current.IDToken, nil
	}

	refreshed, err := a.identity.Refresh(ctx, current)
	if err != nil {
		return "", fmt.Errorf("refreshing session: %w", err)
	}
	if err := a.sessions.Save(refreshed); err != nil {
		return "", fmt.Errorf("saving refreshed session: %w", err)
	}

	a.mu.Lock()
	if a.session == current {
		a.session = refreshed
	}
	a.mu.Unlock()
	return refreshed.IDToken, nil
}

func (a *AuthProvider) needsRefresh(session *model.Session) bool {
	if session.ExpiresAt.IsZero() {
		return false
	}
	return session.Expired(a.clock.Now().Add(tokenRefreshSkew))
}

// OnUserChange registers fn to run after every identity change with the new
// user (nil when signed out). fn runs on the goroutine that made the change.
func (a *AuthProvider) OnUserChange(fn func(*model.User)) Unsubscribe {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.listeners, id)
			a.mu.Unlock()
		})
	}
}

func (a *AuthProvider) notify() {
	a.mu.Lock()
	var user *model.User
	if a.session != nil {
		u := a.session.User
		user = &u
	}
	listeners := make([]func(*model.User), 0, len(a.listeners))
	for id := 0; id < a.nextID; id++ {
		if fn, ok := a.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(user)
	}
}
