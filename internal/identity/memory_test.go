package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"docchat/internal/docchat"
	"docchat/internal/testutil"
)

func authCode(t *testing.T, err error) string {
	t.Helper()
	var authErr *docchat.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}
	return authErr.Code
}

func newTestMemoryProvider(t *testing.T) (*MemoryProvider, *testutil.StubClock) {
	t.Helper()
	clock := testutil.FixedClock()
	p, err := NewMemoryProvider("test-secret", clock)
	if err != nil {
		t.Fatalf("NewMemoryProvider() error = %v", err)
	}
	return p, clock
}

func TestNewMemoryProvider_RequiresSecret(t *testing.T) {
	if _, err := NewMemoryProvider("", testutil.FixedClock()); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestMemoryProvider_SignUp(t *testing.T) {
	ctx := context.Background()

	t.Run("creates account and session", func(t *testing.T) {
		p, clock := newTestMemoryProvider(t)
		session, err := p.SignUp(ctx, "Alice@Example.com", "secret1")
		if err != nil {
			t.Fatalf("SignUp() error = %v", err)
		}
		if session.User.Email != "alice@example.com" {
			t.Errorf("email = %q, want normalised", session.User.Email)
		}
		if session.User.ID == "" {
			t.Error("expected user ID")
		}
		if session.IDToken == "" || session.RefreshToken == "" {
			t.Error("expected tokens")
		}
		if want := clock.Now().Add(TokenLifetime); !session.ExpiresAt.Equal(want) {
			t.Errorf("ExpiresAt = %v, want %v", session.ExpiresAt, want)
		}
	})

	tests := []struct {
		name     string
		email    string
		password string
		want     string
	}{
		{"invalid email", "not-an-email", "secret1", docchat.AuthInvalidEmail},
		{"empty email", "", "secret1", docchat.AuthInvalidEmail},
		{"weak password", "bob@example.com", "12345", docchat.AuthWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestMemoryProvider(t)
			_, err := p.SignUp(ctx, tt.email, tt.password)
			if got := authCode(t, err); got != tt.want {
				t.Errorf("code = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("duplicate email", func(t *testing.T) {
		p, _ := newTestMemoryProvider(t)
		if _, err := p.SignUp(ctx, "carol@example.com", "secret1"); err != nil {
			t.Fatalf("SignUp() error = %v", err)
		}
		_, err := p.SignUp(ctx, "CAROL@example.com", "other-secret")
		if got := authCode(t, err); got != docchat.AuthEmailInUse {
			t.Errorf("code = %q, want %q", got, docchat.AuthEmailInUse)
		}
	})
}

func TestMemoryProvider_SignIn(t *testing.T) {
	ctx := context.Background()
	p, clock := newTestMemoryProvider(t)
	created, err := p.SignUp(ctx, "dave@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	t.Run("valid credentials", func(t *testing.T) {
		session, err := p.SignIn(ctx, "dave@example.com", "correct-horse")
		if err != nil {
			t.Fatalf("SignIn() error = %v", err)
		}
		if session.User.ID != created.User.ID {
			t.Errorf("user ID = %q, want %q", session.User.ID, created.User.ID)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := p.SignIn(ctx, "nobody@example.com", "whatever")
		if got := authCode(t, err); got != docchat.AuthUserNotFound {
			t.Errorf("code = %q, want %q", got, docchat.AuthUserNotFound)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := p.SignIn(ctx, "dave@example.com", "wrong")
		if got := authCode(t, err); got != docchat.AuthWrongPassword {
			t.Errorf("code = %q, want %q", got, docchat.AuthWrongPassword)
		}
		// reset the failure counter
		if _, err := p.SignIn(ctx, "dave@example.com", "correct-horse"); err != nil {
			t.Fatalf("SignIn() error = %v", err)
		}
	})

	t.Run("lockout after repeated failures", func(t *testing.T) {
		var err error
		for i := 0; i < MaxFailedAttempts; i++ {
			_, err = p.SignIn(ctx, "dave@example.com", "wrong")
		}
		if got := authCode(t, err); got != docchat.AuthTooManyRequests {
			t.Fatalf("code = %q, want %q", got, docchat.AuthTooManyRequests)
		}

		_, err = p.SignIn(ctx, "dave@example.com", "correct-horse")
		if got := authCode(t, err); got != docchat.AuthTooManyRequests {
			t.Errorf("locked account code = %q, want %q", got, docchat.AuthTooManyRequests)
		}

		clock.Advance(LockoutDuration)
		if _, err := p.SignIn(ctx, "dave@example.com", "correct-horse"); err != nil {
			t.Errorf("SignIn() after lockout error = %v", err)
		}
	})
}

func TestMemoryProvider_Refresh(t *testing.T) {
	ctx := context.Background()
	p, clock := newTestMemoryProvider(t)
	session, err := p.SignUp(ctx, "erin@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	clock.Advance(2 * time.Hour)
	refreshed, err := p.Refresh(ctx, session)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if refreshed.RefreshToken == session.RefreshToken {
		t.Error("expected refresh token rotation")
	}
	if !refreshed.ExpiresAt.After(session.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want after %v", refreshed.ExpiresAt, session.ExpiresAt)
	}

	_, err = p.Refresh(ctx, session)
	if got := authCode(t, err); got != docchat.AuthSessionExpired {
		t.Errorf("reused refresh token code = %q, want %q", got, docchat.AuthSessionExpired)
	}
}

func TestMemoryProvider_SignOut(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestMemoryProvider(t)
	session, err := p.SignUp(ctx, "frank@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if err := p.SignOut(ctx, session); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	_, err = p.Refresh(ctx, session)
	if got := authCode(t, err); got != docchat.AuthSessionExpired {
		t.Errorf("code = %q, want %q", got, docchat.AuthSessionExpired)
	}
}

func TestMemoryProvider_VerifyToken(t *testing.T) {
	ctx := context.Background()
	p, clock := newTestMemoryProvider(t)
	session, err := p.SignUp(ctx, "grace@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	t.Run("valid token", func(t *testing.T) {
		claims, err := p.VerifyToken(session.IDToken)
		if err != nil {
			t.Fatalf("VerifyToken() error = %v", err)
		}
		if claims.Subject != session.User.ID {
			t.Errorf("subject = %q, want %q", claims.Subject, session.User.ID)
		}
		if claims.Email != "grace@example.com" {
			t.Errorf("email = %q", claims.Email)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, _ := NewMemoryProvider("other-secret", clock)
		_, err := other.VerifyToken(session.IDToken)
		if got := authCode(t, err); got != docchat.AuthInvalidCredential {
			t.Errorf("code = %q, want %q", got, docchat.AuthInvalidCredential)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := p.VerifyToken("not.a.token")
		if got := authCode(t, err); got != docchat.AuthInvalidCredential {
			t.Errorf("code = %q, want %q", got, docchat.AuthInvalidCredential)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		clock.Advance(TokenLifetime + time.Minute)
		_, err := p.VerifyToken(session.IDToken)
		if got := authCode(t, err); got != docchat.AuthSessionExpired {
			t.Errorf("code = %q, want %q", got, docchat.AuthSessionExpired)
		}
	})
}

func TestParseUnverified(t *testing.T) {
	p, clock := newTestMemoryProvider(t)
	session, err := p.SignUp(context.Background(), "heidi@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	claims, err := ParseUnverified(session.IDToken)
	if err != nil {
		t.Fatalf("ParseUnverified() error = %v", err)
	}
	if got := claims.expiry(time.Time{}); !got.Equal(clock.Now().Add(TokenLifetime)) {
		t.Errorf("expiry = %v", got)
	}

	if _, err := ParseUnverified("garbage"); err == nil {
		t.Error("expected error for malformed token")
	}

	empty := &Claims{}
	fallback := clock.Now()
	if got := empty.expiry(fallback); !got.Equal(fallback) {
		t.Errorf("expiry without exp = %v, want fallback", got)
	}
}
