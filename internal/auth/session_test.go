package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	codec := newTestCodec(t)
	return NewService(store, codec), store
}

func register(t *testing.T, svc *Service, email, password string) *User {
	t.Helper()
	user, err := svc.Register(context.Background(), email, password, "Test User")
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return user
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "not-an-email", "password123", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad email: err = %v", err)
	}
	if _, err := svc.Register(ctx, "short@example.com", "short", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("short password: err = %v", err)
	}

	register(t, svc, "alice@example.com", "password123")
	if _, err := svc.Register(ctx, "Alice@Example.com", "password123", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate email: err = %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	register(t, svc, "alice@example.com", "password123")

	if _, err := svc.Login(ctx, "alice@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: err = %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown account: err = %v", err)
	}
	if _, err := svc.Login(ctx, "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty credentials: err = %v", err)
	}

	// Disabled accounts fail exactly like bad passwords.
	store.mu.Lock()
	for _, u := range store.users {
		u.Enabled = false
	}
	store.mu.Unlock()
	if _, err := svc.Login(ctx, "alice@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("disabled account: err = %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	user := register(t, svc, "alice@example.com", "password123")

	first, err := svc.Login(ctx, "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if first.AccessToken == "" || first.RefreshToken == "" {
		t.Fatal("login returned empty tokens")
	}
	if got, err := svc.Authenticate(ctx, first.AccessToken); err != nil || got.ID != user.ID {
		t.Fatalf("Authenticate: user = %v, err = %v", got, err)
	}

	second, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("rotation returned the same refresh token")
	}
	if n := store.ActiveCountForUser(user.ID); n != 1 {
		t.Fatalf("active refresh rows after rotation = %d, want 1", n)
	}

	// The consumed token is dead.
	if _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrTokenRevokedOrUnknown) {
		t.Fatalf("reused refresh token: err = %v", err)
	}
	// Its successor still works.
	third, err := svc.Refresh(ctx, second.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh successor: %v", err)
	}

	if err := svc.Logout(ctx, user.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Refresh(ctx, third.RefreshToken); !errors.Is(err, ErrTokenRevokedOrUnknown) {
		t.Fatalf("refresh after logout: err = %v", err)
	}
	// Logout is idempotent.
	if err := svc.Logout(ctx, user.ID); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
}

func TestLoginReplacesPriorSession(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	user := register(t, svc, "alice@example.com", "password123")

	first, err := svc.Login(ctx, "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("first Login: %v", err)
	}
	if _, err := svc.Login(ctx, "alice@example.com", "password123"); err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if n := store.ActiveCountForUser(user.ID); n != 1 {
		t.Fatalf("active refresh rows after re-login = %d, want 1", n)
	}
	if _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrTokenRevokedOrUnknown) {
		t.Fatalf("stale refresh token after re-login: err = %v", err)
	}
}

func TestRefreshRejectsExpiredRow(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now().UTC()
	clock := now
	codec := newTestCodec(t,
		WithRefreshTokenTTL(time.Hour),
		WithCodecClock(func() time.Time { return clock }),
	)
	svc := NewService(store, codec, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	register(t, svc, "alice@example.com", "password123")
	session, err := svc.Login(ctx, "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	clock = now.Add(2 * time.Hour)
	if _, err := svc.Refresh(ctx, session.RefreshToken); !errors.Is(err, ErrTokenRevokedOrUnknown) {
		t.Fatalf("expired refresh token: err = %v", err)
	}
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	register(t, svc, "alice@example.com", "password123")

	session, err := svc.Login(ctx, "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 {
		t.Fatalf("concurrent refresh successes = %d, want exactly 1", successes)
	}
}

func TestAuthenticateRejectsRefreshToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	register(t, svc, "alice@example.com", "password123")

	session, err := svc.Login(ctx, "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.Authenticate(ctx, session.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh token as bearer: err = %v", err)
	}
}
