package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"docucloud.org/internal/ids"
)

const minPasswordLength = 8

// Service orchestrates login, refresh rotation and logout against the
// codec and the stores.
type Service struct {
	store Store
	codec *Codec
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the session issuer.
func NewService(store Store, codec *Codec, opts ...ServiceOption) *Service {
	svc := &Service{store: store, codec: codec, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Session is an issued access/refresh pair with the authenticated user.
type Session struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             *User
}

// Register creates a local account with the default role.
func (s *Service) Register(ctx context.Context, email, password, name string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidInput
	}
	if len(password) < minPasswordLength {
		return nil, ErrInvalidInput
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(name),
		Provider:     ProviderLocal,
		Enabled:      true,
		Roles:        []string{"user"},
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and issues a fresh token pair, replacing any
// prior refresh row for the user (single active session).
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.Enabled || user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	session, row, err := s.mint(user)
	if err != nil {
		return nil, err
	}
	if err := s.store.RefreshTokens(ctx).ReplaceForUser(ctx, row); err != nil {
		return nil, err
	}
	return session, nil
}

// Refresh rotates a refresh token: the consumed row is revoked and its
// successor inserted atomically, so concurrent calls with the same token
// yield exactly one success. Every failure is the same opaque rejection;
// the caller must re-authenticate.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrTokenRevokedOrUnknown
	}
	rec, err := s.store.RefreshTokens(ctx).FindByHash(ctx, HashToken(refreshToken))
	if err != nil {
		return nil, err
	}
	if rec.Revoked || !s.now().Before(rec.ExpiresAt) {
		return nil, ErrTokenRevokedOrUnknown
	}
	if _, err := s.codec.Verify(refreshToken, ScopeRefresh); err != nil {
		return nil, ErrTokenRevokedOrUnknown
	}
	user, err := s.store.Users(ctx).Find(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrTokenRevokedOrUnknown
		}
		return nil, err
	}
	if !user.Enabled {
		return nil, ErrTokenRevokedOrUnknown
	}

	session, successor, err := s.mint(user)
	if err != nil {
		return nil, err
	}
	if err := s.store.RefreshTokens(ctx).Rotate(ctx, rec.ID, successor); err != nil {
		return nil, err
	}
	return session, nil
}

// Logout revokes every refresh row for the user. Idempotent: zero rows is
// still success.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidInput
	}
	return s.store.RefreshTokens(ctx).RevokeAllForUser(ctx, userID)
}

// Authenticate validates a bearer access token and loads its principal.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*User, error) {
	subject, err := s.codec.Verify(accessToken, ScopeAccess)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if !user.Enabled {
		return nil, ErrTokenInvalid
	}
	return user, nil
}

func (s *Service) mint(user *User) (*Session, *RefreshToken, error) {
	access, accessExp, err := s.codec.Sign(user.Email, ScopeAccess)
	if err != nil {
		return nil, nil, err
	}
	refresh, refreshExp, err := s.codec.Sign(user.Email, ScopeRefresh)
	if err != nil {
		return nil, nil, err
	}
	row := &RefreshToken{
		ID:        ids.New(),
		UserID:    user.ID,
		TokenHash: HashToken(refresh),
		ExpiresAt: refreshExp,
	}
	return &Session{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		User:             user,
	}, row, nil
}
