package auth

import "errors"

var (
	// ErrInvalidCredentials covers every login rejection: unknown email,
	// disabled account, federated account without a local password, or a
	// password mismatch. One error so responses cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenInvalid is the single verification failure for signed tokens.
	// Malformed, forged, wrong scope and expired are indistinguishable.
	ErrTokenInvalid = errors.New("auth: invalid token")

	ErrTokenRevokedOrUnknown = errors.New("auth: token revoked or unknown")
	ErrTokenExpired          = errors.New("auth: token expired")
	ErrTokenAlreadyUsed      = errors.New("auth: token already used")

	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
)
