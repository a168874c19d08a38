package share

import (
	"errors"
	"strings"
	"time"
)

// Permission is the access level a capability grants.
type Permission string

const (
	PermissionRead  Permission = "READ"
	PermissionWrite Permission = "WRITE"
)

// ParsePermission validates a wire value. Matching is case-insensitive and
// an empty value means READ.
func ParsePermission(raw string) (Permission, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", string(PermissionRead):
		return PermissionRead, nil
	case string(PermissionWrite):
		return PermissionWrite, nil
	default:
		return "", ErrInvalidInput
	}
}

// Capability is a persisted share record: an unguessable id granting
// anonymous, optionally password-protected, optionally time-bounded access
// to one document. Revoked is monotonic and UsedCount only grows.
type Capability struct {
	ID           string
	DocumentID   int64
	IssuerUserID string
	Permission   Permission
	PasswordHash string // empty means no password required
	ExpiresAt    *time.Time
	Revoked      bool
	UsedCount    int64
	CreatedAt    time.Time
}

// Expired reports whether the capability's deadline has passed.
func (c *Capability) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Document is the minimal view of the document collaborator this core
// needs: ownership for the issue path and the object location for presign.
type Document struct {
	ID      int64
	OwnerID string
	Name    string
	Bucket  string
	Key     string
}

var (
	// ErrNotFound covers unknown and revoked capabilities alike; a revoked
	// link is indistinguishable from one that never existed.
	ErrNotFound = errors.New("share: not found")

	ErrExpired           = errors.New("share: expired")
	ErrPasswordIncorrect = errors.New("share: password required or incorrect")
	ErrOwnership         = errors.New("share: not the owner")
	ErrInvalidInput      = errors.New("share: invalid input")
)
