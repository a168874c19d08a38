package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Store describes persistence operations required by the credential core.
type Store interface {
	Users(ctx context.Context) UserStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
	ResetTokens(ctx context.Context) ResetTokenStore
}

// UserStore manages principal records.
type UserStore interface {
	// Create persists a new user, returning ErrConflict for a duplicate email.
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// RefreshTokenStore manages the refresh token lifecycle.
type RefreshTokenStore interface {
	// ReplaceForUser removes every prior row for the token's user and inserts
	// the new row, enforcing the single-active-session invariant.
	ReplaceForUser(ctx context.Context, tok *RefreshToken) error

	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// Rotate atomically revokes the consumed row and inserts its successor.
	// The revoke is conditional on the row still being live: of any number of
	// concurrent racers holding the same token, exactly one succeeds and the
	// rest get ErrTokenRevokedOrUnknown.
	Rotate(ctx context.Context, consumedID string, successor *RefreshToken) error

	// RevokeAllForUser drops every row for the user. Idempotent.
	RevokeAllForUser(ctx context.Context, userID string) error
}

// ResetTokenStore manages single-use password reset tokens.
type ResetTokenStore interface {
	Create(ctx context.Context, tok *PasswordResetToken) error

	// Consume marks the token used and updates the owner's password hash in
	// one atomic step. Absent rows return ErrTokenRevokedOrUnknown, spent
	// rows ErrTokenAlreadyUsed, expired rows ErrTokenExpired.
	Consume(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) error
}

// HashToken is the at-rest form of opaque token values: sha256, hex encoded.
// Raw refresh and reset tokens never touch storage.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
