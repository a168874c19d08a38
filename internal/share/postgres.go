package share

import (
	"context"
	"database/sql"
	"errors"
)

var (
	_ Store         = (*PGStore)(nil)
	_ DocumentStore = (*PGDocumentStore)(nil)
)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, cap *Capability) error {
	var expires sql.NullTime
	if cap.ExpiresAt != nil {
		expires = sql.NullTime{Time: *cap.ExpiresAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`insert into document_shares(id, document_id, issuer_user_id, permission, password_hash, expires_at, revoked, used_count)
		 values($1,$2,$3,$4,$5,$6,false,0)`,
		cap.ID, cap.DocumentID, cap.IssuerUserID, string(cap.Permission), cap.PasswordHash, expires,
	)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Capability, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, document_id, issuer_user_id, permission, password_hash, expires_at, revoked, used_count, created_at
		 from document_shares where id=$1`, id)
	var (
		cap        Capability
		permission string
		expires    sql.NullTime
	)
	if err := row.Scan(&cap.ID, &cap.DocumentID, &cap.IssuerUserID, &permission, &cap.PasswordHash,
		&expires, &cap.Revoked, &cap.UsedCount, &cap.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	cap.Permission = Permission(permission)
	if expires.Valid {
		t := expires.Time
		cap.ExpiresAt = &t
	}
	return &cap, nil
}

// Revoke flips the flag iff the row is still live. Revocation never
// reverses, so an affected count of zero means absent or already revoked.
func (s *PGStore) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update document_shares set revoked=true where id=$1 and revoked=false`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementUsage is a single atomic update; concurrent accesses never lose
// a count the way a read-modify-write would.
func (s *PGStore) IncrementUsage(ctx context.Context, id string) (int64, error) {
	row := s.db.QueryRowContext(ctx,
		`update document_shares set used_count = used_count + 1 where id=$1 returning used_count`, id)
	var count int64
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return count, nil
}

// PGDocumentStore implements the document collaborator lookups.
type PGDocumentStore struct {
	db *sql.DB
}

func NewPGDocumentStore(db *sql.DB) *PGDocumentStore {
	return &PGDocumentStore{db: db}
}

func (s *PGDocumentStore) FindOwned(ctx context.Context, docID int64, ownerID string) (*Document, error) {
	doc, err := s.scan(ctx,
		`select id, owner_user_id, name, bucket, object_key from documents
		 where id=$1 and owner_user_id=$2 and deleted_at is null`, docID, ownerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrOwnership
		}
		return nil, err
	}
	return doc, nil
}

func (s *PGDocumentStore) Find(ctx context.Context, docID int64) (*Document, error) {
	return s.scan(ctx,
		`select id, owner_user_id, name, bucket, object_key from documents
		 where id=$1 and deleted_at is null`, docID)
}

func (s *PGDocumentStore) scan(ctx context.Context, query string, args ...any) (*Document, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	var doc Document
	if err := row.Scan(&doc.ID, &doc.OwnerID, &doc.Name, &doc.Bucket, &doc.Key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}
