package docchat_test

import (
	"context"
	"testing"
	"time"

	"docchat/internal/api"
	"docchat/internal/docchat"
	"docchat/internal/identity"
	"docchat/internal/model"
	"docchat/internal/session"
	"docchat/internal/testutil"
)

// newTestClient returns a backend client pointed at a fresh fake backend.
func newTestClient(t *testing.T) (*api.Client, *testutil.FakeBackend) {
	t.Helper()
	fake := testutil.NewFakeBackend(t)
	client, err := api.NewClient(api.ClientConfig{BaseURL: fake.URL(), Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client, fake
}

// newTestAuth returns an AuthProvider over an in-memory identity provider.
func newTestAuth(t *testing.T, clock docchat.Clock) (*docchat.AuthProvider, *identity.MemoryProvider, *session.MemoryStore) {
	t.Helper()
	idp, err := identity.NewMemoryProvider("test-secret", clock)
	if err != nil {
		t.Fatalf("NewMemoryProvider() error = %v", err)
	}
	sessions := session.NewMemoryStore()
	return docchat.NewAuthProvider(idp, sessions, clock, docchat.NewNopLogger()), idp, sessions
}

// newSignedInDocuments returns a DocumentProvider scoped to user.
func newSignedInDocuments(t *testing.T, remote docchat.DocumentBackend, user string) *docchat.DocumentProvider {
	t.Helper()
	p := docchat.NewDocumentProvider(testutil.NewTestStore(t), remote, testutil.FixedClock(), testutil.NewStubIDGenerator(), docchat.NewNopLogger(), 0)
	t.Cleanup(p.Close)
	if user != "" {
		if err := p.SetUser(context.Background(), &model.User{ID: user, Email: user + "@example.com"}); err != nil {
			t.Fatalf("SetUser() error = %v", err)
		}
	}
	return p
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func activityMessages(activities []*model.Activity) []string {
	out := make([]string, len(activities))
	for i, a := range activities {
		out[i] = a.Message
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
