package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
	"time"

	"docucloud.org/internal/ids"
)

const defaultResetTTL = 15 * time.Minute

// Mailer is the notification collaborator. Delivery itself is external;
// the core only hands over the address and the reset link.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, resetURL string) error
}

// ResetService issues and consumes single-use password reset tokens.
type ResetService struct {
	store    Store
	mailer   Mailer
	resetURL string
	ttl      time.Duration
	now      func() time.Time
}

// ResetOption configures ResetService behavior.
type ResetOption func(*ResetService)

// WithResetTTL overrides the reset token lifetime.
func WithResetTTL(ttl time.Duration) ResetOption {
	return func(s *ResetService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithResetClock overrides the time source (useful for tests).
func WithResetClock(fn func() time.Time) ResetOption {
	return func(s *ResetService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewResetService constructs the reset flow. resetURL is the page the raw
// token is appended to.
func NewResetService(store Store, mailer Mailer, resetURL string, opts ...ResetOption) *ResetService {
	svc := &ResetService{
		store:    store,
		mailer:   mailer,
		resetURL: strings.TrimRight(resetURL, "?&"),
		ttl:      defaultResetTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Request starts a reset for the email. Token generation and hashing happen
// unconditionally so the work profile is identical whether or not the
// account exists; only an existing account gets a persisted row and a mail.
// The caller always receives nil for an unknown account.
func (s *ResetService) Request(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ErrInvalidInput
	}

	raw, err := generateResetToken()
	if err != nil {
		return err
	}
	tokenHash := HashToken(raw)

	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	// Federated identities have no local password to reset. Same silent
	// answer as an unknown account.
	if user.Provider != ProviderLocal || !user.Enabled {
		return nil
	}

	now := s.now().UTC()
	row := &PasswordResetToken{
		ID:        ids.New(),
		TokenHash: tokenHash,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.ResetTokens(ctx).Create(ctx, row); err != nil {
		return err
	}
	link := s.resetURL + "?token=" + url.QueryEscape(raw)
	return s.mailer.SendPasswordReset(ctx, user.Email, link)
}

// Consume spends a raw token exactly once, setting the new password. A
// second call with the same token always fails.
func (s *ResetService) Consume(ctx context.Context, rawToken, newPassword string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return ErrTokenRevokedOrUnknown
	}
	if len(newPassword) < minPasswordLength {
		return ErrInvalidInput
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.store.ResetTokens(ctx).Consume(ctx, HashToken(rawToken), hash, s.now().UTC())
}

// generateResetToken returns 256 bits of randomness, URL-safe encoded.
func generateResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
