package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

// captureMailer records reset links instead of sending them.
type captureMailer struct {
	mu    sync.Mutex
	sent  []string
	links []string
}

func (m *captureMailer) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	m.links = append(m.links, resetURL)
	return nil
}

func (m *captureMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.links) == 0 {
		t.Fatal("no reset mail was sent")
	}
	u, err := url.Parse(m.links[len(m.links)-1])
	if err != nil {
		t.Fatalf("parse reset link: %v", err)
	}
	token := u.Query().Get("token")
	if token == "" {
		t.Fatalf("reset link carries no token: %s", u)
	}
	return token
}

func newResetFixture(t *testing.T, opts ...ResetOption) (*ResetService, *Service, *MemoryStore, *captureMailer) {
	t.Helper()
	store := NewMemoryStore()
	codec := newTestCodec(t)
	sessions := NewService(store, codec)
	mailer := &captureMailer{}
	resets := NewResetService(store, mailer, "http://localhost:3000/reset-password", opts...)
	return resets, sessions, store, mailer
}

func TestResetRequestUnknownAccountStaysSilent(t *testing.T) {
	resets, _, _, mailer := newResetFixture(t)

	if err := resets.Request(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("Request for unknown account: %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Fatalf("mail sent for unknown account: %v", mailer.sent)
	}
}

func TestResetRequestSkipsFederatedAccount(t *testing.T) {
	resets, _, store, mailer := newResetFixture(t)
	ctx := context.Background()

	err := store.Users(ctx).Create(ctx, &User{
		Email:    "fed@example.com",
		Provider: ProviderFederated,
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := resets.Request(ctx, "fed@example.com"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Fatalf("mail sent for federated account: %v", mailer.sent)
	}
}

func TestResetFlow(t *testing.T) {
	resets, sessions, _, mailer := newResetFixture(t)
	ctx := context.Background()
	register(t, sessions, "alice@example.com", "old-password-1")

	if err := resets.Request(ctx, "alice@example.com"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if len(mailer.sent) != 1 || mailer.sent[0] != "alice@example.com" {
		t.Fatalf("unexpected recipients: %v", mailer.sent)
	}
	token := mailer.lastToken(t)
	if strings.Contains(token, "=") {
		t.Fatalf("token is not raw URL-safe base64: %q", token)
	}

	if err := resets.Consume(ctx, token, "new-password-1"); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	if _, err := sessions.Login(ctx, "alice@example.com", "old-password-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still works: err = %v", err)
	}
	if _, err := sessions.Login(ctx, "alice@example.com", "new-password-1"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestResetTokenIsSingleUse(t *testing.T) {
	resets, sessions, _, mailer := newResetFixture(t)
	ctx := context.Background()
	register(t, sessions, "alice@example.com", "old-password-1")

	if err := resets.Request(ctx, "alice@example.com"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	token := mailer.lastToken(t)

	if err := resets.Consume(ctx, token, "new-password-1"); err != nil {
		t.Fatalf("first Consume: %v", err)
	}
	if err := resets.Consume(ctx, token, "another-pass-1"); !errors.Is(err, ErrTokenAlreadyUsed) {
		t.Fatalf("second Consume: err = %v", err)
	}
	// The failed second attempt must not have touched the password.
	if _, err := sessions.Login(ctx, "alice@example.com", "new-password-1"); err != nil {
		t.Fatalf("password changed by rejected consume: %v", err)
	}
}

func TestResetTokenExpires(t *testing.T) {
	now := time.Now().UTC()
	clock := now
	resets, sessions, _, mailer := newResetFixture(t,
		WithResetTTL(15*time.Minute),
		WithResetClock(func() time.Time { return clock }),
	)
	ctx := context.Background()
	register(t, sessions, "alice@example.com", "old-password-1")

	if err := resets.Request(ctx, "alice@example.com"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	token := mailer.lastToken(t)

	clock = now.Add(16 * time.Minute)
	if err := resets.Consume(ctx, token, "new-password-1"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expired token: err = %v", err)
	}
}

func TestResetConsumeValidation(t *testing.T) {
	resets, _, _, _ := newResetFixture(t)
	ctx := context.Background()

	if err := resets.Consume(ctx, "", "new-password-1"); !errors.Is(err, ErrTokenRevokedOrUnknown) {
		t.Fatalf("empty token: err = %v", err)
	}
	if err := resets.Consume(ctx, "some-token", "short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("short password: err = %v", err)
	}
	if err := resets.Consume(ctx, "unknown-token", "new-password-1"); !errors.Is(err, ErrTokenRevokedOrUnknown) {
		t.Fatalf("unknown token: err = %v", err)
	}
}
