package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"docchat/internal/docchat"
	"docchat/internal/model"
)

const (
	// MinPasswordLength is the shortest password SignUp accepts.
	MinPasswordLength = 6

	// MaxFailedAttempts is how many consecutive wrong passwords lock an account.
	MaxFailedAttempts = 5

	// LockoutDuration is how long a locked account rejects sign-in.
	LockoutDuration = 15 * time.Minute

	// TokenLifetime is the validity of ID tokens minted by MemoryProvider.
	TokenLifetime = time.Hour

	memoryIssuer = "docchat-memory"
)

type account struct {
	id           string
	email        string
	passwordHash []byte
	failed       int
	lockedUntil  time.Time
}

// MemoryProvider is an in-process identity provider. Passwords are bcrypt
// hashed and ID tokens are HS256 JWTs signed with a shared secret, so the
// fake backend and tests can verify them.
type MemoryProvider struct {
	secret []byte
	clock  docchat.Clock

	mu       sync.Mutex
	accounts map[string]*account // keyed by normalised email
	refresh  map[string]string   // refresh token -> email
}

var _ docchat.IdentityProvider = (*MemoryProvider)(nil)

// NewMemoryProvider creates a MemoryProvider signing tokens with secret.
func NewMemoryProvider(secret string, clock docchat.Clock) (*MemoryProvider, error) {
	if secret == "" {
		return nil, fmt.Errorf("identity secret is required")
	}
	return &MemoryProvider{
		secret:   []byte(secret),
		clock:    clock,
		accounts: make(map[string]*account),
		refresh:  make(map[string]string),
	}, nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, "@")
}

func (p *MemoryProvider) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	email = normaliseEmail(email)
	if !validEmail(email) {
		return nil, &docchat.AuthError{Code: docchat.AuthInvalidEmail}
	}
	if len(password) < MinPasswordLength {
		return nil, &docchat.AuthError{Code: docchat.AuthWeakPassword}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.accounts[email]; exists {
		return nil, &docchat.AuthError{Code: docchat.AuthEmailInUse}
	}
	acct := &account{
		id:           uuid.NewString(),
		email:        email,
		passwordHash: hash,
	}
	p.accounts[email] = acct

	return p.issue(acct)
}

func (p *MemoryProvider) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	email = normaliseEmail(email)
	if !validEmail(email) {
		return nil, &docchat.AuthError{Code: docchat.AuthInvalidEmail}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.accounts[email]
	if !ok {
		return nil, &docchat.AuthError{Code: docchat.AuthUserNotFound}
	}

	now := p.clock.Now()
	if now.Before(acct.lockedUntil) {
		return nil, &docchat.AuthError{Code: docchat.AuthTooManyRequests}
	}

	if err := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)); err != nil {
		acct.failed++
		if acct.failed >= MaxFailedAttempts {
			acct.failed = 0
			acct.lockedUntil = now.Add(LockoutDuration)
			return nil, &docchat.AuthError{Code: docchat.AuthTooManyRequests}
		}
		return nil, &docchat.AuthError{Code: docchat.AuthWrongPassword}
	}

	acct.failed = 0
	acct.lockedUntil = time.Time{}
	return p.issue(acct)
}

func (p *MemoryProvider) Refresh(ctx context.Context, session *model.Session) (*model.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	email, ok := p.refresh[session.RefreshToken]
	if !ok {
		return nil, &docchat.AuthError{Code: docchat.AuthSessionExpired}
	}
	acct, ok := p.accounts[email]
	if !ok {
		delete(p.refresh, session.RefreshToken)
		return nil, &docchat.AuthError{Code: docchat.AuthSessionExpired}
	}

	delete(p.refresh, session.RefreshToken)
	return p.issue(acct)
}

// SignOut revokes the session's refresh token.
func (p *MemoryProvider) SignOut(ctx context.Context, session *model.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.refresh, session.RefreshToken)
	return nil
}

// VerifyToken checks an ID token's signature and expiry and returns its claims.
func (p *MemoryProvider) VerifyToken(token string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithTimeFunc(p.clock.Now),
		jwt.WithIssuer(memoryIssuer),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &docchat.AuthError{Code: docchat.AuthSessionExpired, Cause: err}
		}
		return nil, &docchat.AuthError{Code: docchat.AuthInvalidCredential, Cause: err}
	}
	return claims, nil
}

// issue mints a session for acct. Callers hold p.mu.
func (p *MemoryProvider) issue(acct *account) (*model.Session, error) {
	now := p.clock.Now()
	expiresAt := now.Add(TokenLifetime)

	claims := Claims{
		Email: acct.email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    memoryIssuer,
			Subject:   acct.id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return nil, fmt.Errorf("signing id token: %w", err)
	}

	refresh, err := randomToken()
	if err != nil {
		return nil, err
	}
	p.refresh[refresh] = acct.email

	return &model.Session{
		User:         model.User{ID: acct.id, Email: acct.email},
		IDToken:      signed,
		RefreshToken: refresh,
		// NumericDate truncates to seconds.
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
