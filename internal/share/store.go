package share

import "context"

// Store describes capability persistence.
type Store interface {
	Create(ctx context.Context, cap *Capability) error
	Find(ctx context.Context, id string) (*Capability, error)

	// Revoke sets the revoked flag iff the row is still live. Revocation is
	// monotonic; a revoked row never becomes live again. Returns ErrNotFound
	// when the row is absent or already revoked.
	Revoke(ctx context.Context, id string) error

	// IncrementUsage bumps the audit counter atomically and returns the new
	// value. Concurrent accesses must not lose increments.
	IncrementUsage(ctx context.Context, id string) (int64, error)
}

// DocumentStore is the document-ownership collaborator. Document CRUD is
// owned elsewhere; the gate only needs these two lookups.
type DocumentStore interface {
	// FindOwned returns the document iff it exists, is not deleted, and is
	// owned by ownerID. Any other case is ErrOwnership.
	FindOwned(ctx context.Context, docID int64, ownerID string) (*Document, error)

	// Find returns the document regardless of owner (anonymous access path).
	Find(ctx context.Context, docID int64) (*Document, error)
}
