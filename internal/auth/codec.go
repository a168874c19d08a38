package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "docucloud"

// Scope selects the signing key and the embedded token_use claim. Tokens
// signed for one scope never verify against the other, even when their key
// material leaks.
type Scope string

const (
	ScopeAccess  Scope = "access"
	ScopeRefresh Scope = "refresh"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the signed payload: registered claims plus the scope tag.
type Claims struct {
	TokenUse string `json:"token_use"`
	jwt.RegisteredClaims
}

// Codec signs and verifies compact scoped tokens with HS256. Verification
// is pure and safe for concurrent use.
type Codec struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// CodecOption configures Codec behavior.
type CodecOption func(*Codec)

// WithAccessTokenTTL overrides the access token lifetime.
func WithAccessTokenTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		if ttl > 0 {
			c.accessTTL = ttl
		}
	}
}

// WithRefreshTokenTTL overrides the refresh token lifetime.
func WithRefreshTokenTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		if ttl > 0 {
			c.refreshTTL = ttl
		}
	}
}

// WithCodecClock overrides the time source (useful for tests).
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec builds a Codec from the two scope secrets.
func NewCodec(accessSecret, refreshSecret string, opts ...CodecOption) (*Codec, error) {
	accessSecret = strings.TrimSpace(accessSecret)
	refreshSecret = strings.TrimSpace(refreshSecret)
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("auth: both scope secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	c := &Codec{
		accessKey:  []byte(accessSecret),
		refreshKey: []byte(refreshSecret),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL reports the configured lifetime for the scope.
func (c *Codec) TTL(scope Scope) time.Duration {
	if scope == ScopeRefresh {
		return c.refreshTTL
	}
	return c.accessTTL
}

// Sign issues a token for subject in the given scope, embedding issued-at
// and the scope-specific expiry.
func (c *Codec) Sign(subject string, scope Scope) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("auth: subject is required")
	}
	key, err := c.key(scope)
	if err != nil {
		return "", time.Time{}, err
	}

	now := c.now().UTC()
	exp := now.Add(c.TTL(scope))
	claims := Claims{
		TokenUse: string(scope),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify checks signature, scope and claims, returning the subject. It
// fails closed: malformed payload, bad signature, wrong scope and past
// expiry all surface as the same ErrTokenInvalid.
func (c *Codec) Verify(token string, scope Scope) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenInvalid
	}
	key, err := c.key(scope)
	if err != nil {
		return "", ErrTokenInvalid
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return key, nil
	}, jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }))
	if err != nil {
		return "", ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", ErrTokenInvalid
	}
	if claims.Issuer != issuer || claims.TokenUse != string(scope) {
		return "", ErrTokenInvalid
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return "", ErrTokenInvalid
	}
	return subject, nil
}

func (c *Codec) key(scope Scope) ([]byte, error) {
	switch scope {
	case ScopeAccess:
		return c.accessKey, nil
	case ScopeRefresh:
		return c.refreshKey, nil
	default:
		return nil, errors.New("auth: unknown token scope")
	}
}
