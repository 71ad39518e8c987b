package docchat_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"docchat/internal/docchat"
	"docchat/internal/model"
	"docchat/internal/testutil"
)

type userLog struct {
	mu    sync.Mutex
	users []*model.User
}

func (l *userLog) record(u *model.User) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users = append(l.users, u)
}

func (l *userLog) last() (*model.User, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.users) == 0 {
		return nil, 0
	}
	return l.users[len(l.users)-1], len(l.users)
}

func TestAuthProvider_Signup(t *testing.T) {
	ctx := context.Background()
	auth, _, sessions := newTestAuth(t, testutil.FixedClock())

	var log userLog
	auth.OnUserChange(log.record)

	user, err := auth.Signup(ctx, "ann@example.com", "secret1")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	if user.Email != "ann@example.com" {
		t.Errorf("email = %q", user.Email)
	}

	current := auth.CurrentUser()
	if current == nil || current.ID != user.ID {
		t.Fatalf("CurrentUser() = %+v, want %+v", current, user)
	}

	saved, _ := sessions.Load()
	if saved == nil || saved.User.ID != user.ID {
		t.Errorf("saved session = %+v", saved)
	}

	last, n := log.last()
	if n != 1 || last == nil || last.ID != user.ID {
		t.Errorf("listener saw %d changes, last = %+v", n, last)
	}
}

func TestAuthProvider_Login(t *testing.T) {
	ctx := context.Background()
	auth, idp, _ := newTestAuth(t, testutil.FixedClock())
	if _, err := idp.SignUp(ctx, "ben@example.com", "secret1"); err != nil {
		t.Fatal(err)
	}

	t.Run("wrong password", func(t *testing.T) {
		_, err := auth.Login(ctx, "ben@example.com", "nope")
		var authErr *docchat.AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("expected AuthError, got %v", err)
		}
		if got := docchat.AuthErrorMessage(err); got != "Incorrect password." {
			t.Errorf("message = %q", got)
		}
		if auth.CurrentUser() != nil {
			t.Error("expected no current user after failed login")
		}
	})

	t.Run("valid credentials", func(t *testing.T) {
		user, err := auth.Login(ctx, "ben@example.com", "secret1")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if auth.CurrentUser().ID != user.ID {
			t.Error("current user not set")
		}
	})
}

func TestAuthProvider_Logout(t *testing.T) {
	ctx := context.Background()
	auth, idp, sessions := newTestAuth(t, testutil.FixedClock())
	if _, err := auth.Signup(ctx, "cat@example.com", "secret1"); err != nil {
		t.Fatal(err)
	}
	saved, _ := sessions.Load()

	var log userLog
	auth.OnUserChange(log.record)

	if err := auth.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if auth.CurrentUser() != nil {
		t.Error("expected no current user")
	}
	if s, _ := sessions.Load(); s != nil {
		t.Error("expected saved session to be cleared")
	}
	if last, n := log.last(); n != 1 || last != nil {
		t.Errorf("listener saw %d changes, last = %+v", n, last)
	}

	// the provider revoked the refresh token
	if _, err := idp.Refresh(ctx, saved); err == nil {
		t.Error("expected refresh token to be revoked")
	}

	if err := auth.Logout(ctx); err != nil {
		t.Errorf("second Logout() error = %v", err)
	}
}

func TestAuthProvider_Restore(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing saved", func(t *testing.T) {
		auth, _, _ := newTestAuth(t, testutil.FixedClock())
		var log userLog
		auth.OnUserChange(log.record)

		if err := auth.Restore(ctx); err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if auth.CurrentUser() != nil {
			t.Error("expected no user")
		}
		if auth.Loading() {
			t.Error("expected loading to be false after Restore")
		}
		if _, n := log.last(); n != 1 {
			t.Errorf("listener called %d times, want 1", n)
		}
	})

	t.Run("valid session", func(t *testing.T) {
		clock := testutil.FixedClock()
		first, idp, sessions := newTestAuth(t, clock)
		user, err := first.Signup(ctx, "dan@example.com", "secret1")
		if err != nil {
			t.Fatal(err)
		}

		second := docchat.NewAuthProvider(idp, sessions, clock, docchat.NewNopLogger())
		if err := second.Restore(ctx); err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if got := second.CurrentUser(); got == nil || got.ID != user.ID {
			t.Errorf("CurrentUser() = %+v, want %s", got, user.ID)
		}
	})

	t.Run("expired session is refreshed", func(t *testing.T) {
		clock := testutil.FixedClock()
		first, idp, sessions := newTestAuth(t, clock)
		if _, err := first.Signup(ctx, "eve@example.com", "secret1"); err != nil {
			t.Fatal(err)
		}
		before, _ := sessions.Load()

		clock.Advance(2 * time.Hour)
		second := docchat.NewAuthProvider(idp, sessions, clock, docchat.NewNopLogger())
		if err := second.Restore(ctx); err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if second.CurrentUser() == nil {
			t.Fatal("expected restored user")
		}
		after, _ := sessions.Load()
		if after.IDToken == before.IDToken {
			t.Error("expected refreshed token to be saved")
		}
		if after.Expired(clock.Now()) {
			t.Error("saved session is still expired")
		}
	})

	t.Run("unrefreshable session is cleared", func(t *testing.T) {
		clock := testutil.FixedClock()
		first, idp, sessions := newTestAuth(t, clock)
		if _, err := first.Signup(ctx, "fay@example.com", "secret1"); err != nil {
			t.Fatal(err)
		}
		saved, _ := sessions.Load()
		_ = idp.SignOut(ctx, saved)

		clock.Advance(2 * time.Hour)
		second := docchat.NewAuthProvider(idp, sessions, clock, docchat.NewNopLogger())
		if err := second.Restore(ctx); err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if second.CurrentUser() != nil {
			t.Error("expected no user")
		}
		if s, _ := sessions.Load(); s != nil {
			t.Error("expected saved session to be cleared")
		}
	})
}

func TestAuthProvider_Token(t *testing.T) {
	ctx := context.Background()
	clock := testutil.FixedClock()
	auth, idp, sessions := newTestAuth(t, clock)

	token, err := auth.Token(ctx)
	if err != nil || token != "" {
		t.Fatalf("Token() signed out = %q, %v", token, err)
	}

	if _, err := auth.Signup(ctx, "gil@example.com", "secret1"); err != nil {
		t.Fatal(err)
	}
	token, err = auth.Token(ctx)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if _, err := idp.VerifyToken(token); err != nil {
		t.Errorf("token does not verify: %v", err)
	}

	// inside the refresh window
	clock.Advance(59*time.Minute + 30*time.Second)
	refreshed, err := auth.Token(ctx)
	if err != nil {
		t.Fatalf("Token() near expiry error = %v", err)
	}
	if refreshed == token {
		t.Error("expected a refreshed token")
	}
	saved, _ := sessions.Load()
	if saved.IDToken != refreshed {
		t.Error("refreshed session was not saved")
	}
}

func TestAuthProvider_OnUserChange_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	auth, _, _ := newTestAuth(t, testutil.FixedClock())

	var log userLog
	unsubscribe := auth.OnUserChange(log.record)
	unsubscribe()
	unsubscribe()

	if _, err := auth.Signup(ctx, "hal@example.com", "secret1"); err != nil {
		t.Fatal(err)
	}
	if _, n := log.last(); n != 0 {
		t.Errorf("unsubscribed listener called %d times", n)
	}
}
