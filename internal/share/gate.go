package share

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docucloud.org/internal/auth"
	"docucloud.org/internal/blob"
)

const (
	defaultPresignTTL = 10 * time.Minute
	maxExpiresDays    = 365
)

// Gate orchestrates share creation, revocation and the anonymous access
// check. It is the only surface callable without authentication.
type Gate struct {
	store      Store
	docs       DocumentStore
	presigner  blob.Presigner
	baseURL    string
	presignTTL time.Duration
	now        func() time.Time
}

// GateOption configures Gate behavior.
type GateOption func(*Gate)

// WithPresignTTL overrides the lifetime of minted download URLs.
func WithPresignTTL(ttl time.Duration) GateOption {
	return func(g *Gate) {
		if ttl > 0 {
			g.presignTTL = ttl
		}
	}
}

// WithGateClock overrides the time source (useful for tests).
func WithGateClock(fn func() time.Time) GateOption {
	return func(g *Gate) {
		if fn != nil {
			g.now = fn
		}
	}
}

// NewGate constructs the share gate. baseURL is the public prefix share
// links are built from.
func NewGate(store Store, docs DocumentStore, presigner blob.Presigner, baseURL string, opts ...GateOption) *Gate {
	g := &Gate{
		store:      store,
		docs:       docs,
		presigner:  presigner,
		baseURL:    strings.TrimRight(baseURL, "/"),
		presignTTL: defaultPresignTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateResult is the issued capability handed back to the owner.
type CreateResult struct {
	ShareURL  string
	ShareID   string
	ExpiresAt *time.Time
}

// Create issues a capability for a document the issuer owns. The password,
// when supplied, is stored only as a bcrypt hash.
func (g *Gate) Create(ctx context.Context, docID int64, issuerID string, perm Permission, password string, expiresDays int) (*CreateResult, error) {
	if expiresDays < 0 || expiresDays > maxExpiresDays {
		return nil, ErrInvalidInput
	}
	if _, err := g.docs.FindOwned(ctx, docID, issuerID); err != nil {
		return nil, err
	}

	var passwordHash string
	if password != "" {
		hash, err := auth.HashPassword(password)
		if err != nil {
			return nil, err
		}
		passwordHash = hash
	}

	cap := &Capability{
		ID:           uuid.NewString(),
		DocumentID:   docID,
		IssuerUserID: issuerID,
		Permission:   perm,
		PasswordHash: passwordHash,
	}
	if expiresDays > 0 {
		exp := g.now().UTC().Add(time.Duration(expiresDays) * 24 * time.Hour)
		cap.ExpiresAt = &exp
	}
	if err := g.store.Create(ctx, cap); err != nil {
		return nil, err
	}
	return &CreateResult{
		ShareURL:  fmt.Sprintf("%s/documents/shares/%s/access", g.baseURL, cap.ID),
		ShareID:   cap.ID,
		ExpiresAt: cap.ExpiresAt,
	}, nil
}

// Revoke disables a capability. Only the original issuer may revoke, and a
// revoked capability never comes back; revoking an already-revoked or
// unknown id reports ErrNotFound.
func (g *Gate) Revoke(ctx context.Context, capID, requesterID string) error {
	cap, err := g.store.Find(ctx, capID)
	if err != nil {
		return err
	}
	if cap.Revoked {
		return ErrNotFound
	}
	if cap.IssuerUserID != requesterID {
		return ErrOwnership
	}
	return g.store.Revoke(ctx, capID)
}

// AccessResult is what an anonymous caller gets for a valid capability.
type AccessResult struct {
	DownloadURL  string
	ExpiresAt    time.Time
	WriteAllowed bool
	UsedCount    int64
}

// Access performs the anonymous capability check. Order is fixed: existence
// and revocation first, then expiry, then password — so a revoked link is
// indistinguishable from a missing one regardless of password or expiry
// state. Failed attempts never touch the usage counter.
func (g *Gate) Access(ctx context.Context, capID, password string) (*AccessResult, error) {
	cap, err := g.store.Find(ctx, capID)
	if err != nil {
		return nil, err
	}
	if cap.Revoked {
		return nil, ErrNotFound
	}
	if cap.Expired(g.now().UTC()) {
		return nil, ErrExpired
	}
	if cap.PasswordHash != "" {
		if password == "" || auth.VerifyPassword(cap.PasswordHash, password) != nil {
			return nil, ErrPasswordIncorrect
		}
	}

	doc, err := g.docs.Find(ctx, cap.DocumentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	count, err := g.store.IncrementUsage(ctx, cap.ID)
	if err != nil {
		return nil, err
	}
	presigned, err := g.presigner.PresignGet(ctx, doc.Bucket, doc.Key, g.presignTTL)
	if err != nil {
		return nil, err
	}
	return &AccessResult{
		DownloadURL:  presigned.URL,
		ExpiresAt:    presigned.ExpiresAt,
		WriteAllowed: cap.Permission == PermissionWrite,
		UsedCount:    count,
	}, nil
}
