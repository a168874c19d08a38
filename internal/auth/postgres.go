package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"docucloud.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore                 { return &pgUserStore{db: s.db} }
func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore { return &pgRefreshStore{db: s.db} }
func (s *PGStore) ResetTokens(context.Context) ResetTokenStore     { return &pgResetStore{db: s.db} }

// User store ---------------------------------------------------------------
type pgUserStore struct{ db *sql.DB }

func (s *pgUserStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	roles, _ := json.Marshal(u.Roles)
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, password_hash, name, provider, enabled, roles) values($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Email, u.PasswordHash, u.Name, string(u.Provider), u.Enabled, roles,
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrConflict
	}
	return err
}

const userColumns = `id, email, password_hash, name, provider, enabled, roles, created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	var (
		u        User
		provider string
		roles    []byte
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &provider, &u.Enabled, &roles, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Provider = Provider(provider)
	_ = json.Unmarshal(roles, &u.Roles)
	return &u, nil
}

func (s *pgUserStore) Find(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (s *pgUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, strings.ToLower(strings.TrimSpace(email))))
}

func (s *pgUserStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`, userID, passwordHash)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Refresh token store ------------------------------------------------------
type pgRefreshStore struct{ db *sql.DB }

func (s *pgRefreshStore) ReplaceForUser(ctx context.Context, tok *RefreshToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`delete from refresh_tokens where user_id=$1`, tok.UserID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, expires_at, revoked) values($1,$2,$3,$4,false)`,
		tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *pgRefreshStore) FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, token_hash, expires_at, revoked, created_at from refresh_tokens where token_hash=$1`,
		tokenHash)
	var rec RefreshToken
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.ExpiresAt, &rec.Revoked, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenRevokedOrUnknown
		}
		return nil, err
	}
	return &rec, nil
}

// Rotate revokes the consumed row and inserts the successor in one
// transaction. The conditional update is the double-spend guard: of any
// concurrent racers, only the one whose update reports an affected row
// proceeds to mint the successor.
func (s *pgRefreshStore) Rotate(ctx context.Context, consumedID string, successor *RefreshToken) error {
	if successor.ID == "" {
		successor.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`update refresh_tokens set revoked=true where id=$1 and revoked=false`, consumedID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTokenRevokedOrUnknown
	}
	if _, err := tx.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, expires_at, revoked) values($1,$2,$3,$4,false)`,
		successor.ID, successor.UserID, successor.TokenHash, successor.ExpiresAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *pgRefreshStore) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `delete from refresh_tokens where user_id=$1`, userID)
	return err
}

// Reset token store --------------------------------------------------------
type pgResetStore struct{ db *sql.DB }

func (s *pgResetStore) Create(ctx context.Context, tok *PasswordResetToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into password_reset_tokens(id, token_hash, user_id, expires_at) values($1,$2,$3,$4)`,
		tok.ID, tok.TokenHash, tok.UserID, tok.ExpiresAt)
	return err
}

func (s *pgResetStore) Consume(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`select id, user_id, expires_at, used_at from password_reset_tokens where token_hash=$1 for update`,
		tokenHash)
	var (
		id, userID string
		expiresAt  time.Time
		usedAt     sql.NullTime
	)
	if err := row.Scan(&id, &userID, &expiresAt, &usedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTokenRevokedOrUnknown
		}
		return err
	}
	if usedAt.Valid {
		return ErrTokenAlreadyUsed
	}
	if !now.Before(expiresAt) {
		return ErrTokenExpired
	}

	// used_at is immutable once set; the conditional update keeps a racer
	// that slipped past the row lock from consuming twice.
	res, err := tx.ExecContext(ctx,
		`update password_reset_tokens set used_at=$2 where id=$1 and used_at is null`, id, now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTokenAlreadyUsed
	}
	if _, err := tx.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`, userID, newPasswordHash); err != nil {
		return err
	}
	return tx.Commit()
}
