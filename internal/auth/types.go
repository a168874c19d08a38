package auth

import "time"

// Provider tags how an account authenticates.
type Provider string

const (
	ProviderLocal     Provider = "LOCAL"
	ProviderFederated Provider = "FEDERATED"
)

// User is the long-lived principal record. The wider user-management
// subsystem owns it; this core only reads identity and writes the
// password hash.
type User struct {
	ID           string
	Email        string
	PasswordHash string // empty for federated identities
	Name         string
	Provider     Provider
	Enabled      bool
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken is a persisted refresh credential. Only the sha256 hash of
// the issued token rests in storage. At most one non-revoked row exists per
// user at any instant.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// PasswordResetToken is a persisted single-use reset credential, stored as
// a hash. UsedAt is set exactly once and never cleared.
type PasswordResetToken struct {
	ID        string
	TokenHash string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}
