package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"docucloud.org/internal/ids"
)

// MemoryStore implements Store with in-process concurrency safety. It backs
// tests and DSN-less development runs; production uses the postgres store.
type MemoryStore struct {
	mu      sync.Mutex
	users   map[string]*User // by id
	byEmail map[string]string
	refresh map[string]*RefreshToken       // by id
	resets  map[string]*PasswordResetToken // by token hash
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
		refresh: make(map[string]*RefreshToken),
		resets:  make(map[string]*PasswordResetToken),
	}
}

func (s *MemoryStore) Users(context.Context) UserStore                 { return (*memUserStore)(s) }
func (s *MemoryStore) RefreshTokens(context.Context) RefreshTokenStore { return (*memRefreshStore)(s) }
func (s *MemoryStore) ResetTokens(context.Context) ResetTokenStore     { return (*memResetStore)(s) }

type memUserStore MemoryStore

func (s *memUserStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if _, ok := s.byEmail[email]; ok {
		return ErrConflict
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	u.Email = email
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	s.users[u.ID] = &cp
	s.byEmail[email] = u.ID
	return nil
}

func (s *memUserStore) Find(ctx context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *memUserStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

type memRefreshStore MemoryStore

func (s *memRefreshStore) ReplaceForUser(ctx context.Context, tok *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.refresh {
		if rec.UserID == tok.UserID {
			delete(s.refresh, id)
		}
	}
	s.insertLocked(tok)
	return nil
}

func (s *memRefreshStore) FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.refresh {
		if rec.TokenHash == tokenHash {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrTokenRevokedOrUnknown
}

func (s *memRefreshStore) Rotate(ctx context.Context, consumedID string, successor *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refresh[consumedID]
	if !ok || rec.Revoked {
		return ErrTokenRevokedOrUnknown
	}
	rec.Revoked = true
	s.insertLocked(successor)
	return nil
}

func (s *memRefreshStore) RevokeAllForUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.refresh {
		if rec.UserID == userID {
			delete(s.refresh, id)
		}
	}
	return nil
}

func (s *memRefreshStore) insertLocked(tok *RefreshToken) {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	tok.CreatedAt = time.Now().UTC()
	cp := *tok
	s.refresh[tok.ID] = &cp
}

// ActiveCountForUser reports live (non-revoked) rows for a user. Test hook.
func (s *MemoryStore) ActiveCountForUser(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.refresh {
		if rec.UserID == userID && !rec.Revoked {
			n++
		}
	}
	return n
}

type memResetStore MemoryStore

func (s *memResetStore) Create(ctx context.Context, tok *PasswordResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	tok.CreatedAt = time.Now().UTC()
	cp := *tok
	s.resets[tok.TokenHash] = &cp
	return nil
}

func (s *memResetStore) Consume(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.resets[tokenHash]
	if !ok {
		return ErrTokenRevokedOrUnknown
	}
	if rec.UsedAt != nil {
		return ErrTokenAlreadyUsed
	}
	if !now.Before(rec.ExpiresAt) {
		return ErrTokenExpired
	}
	u, ok := s.users[rec.UserID]
	if !ok {
		return ErrNotFound
	}
	used := now
	rec.UsedAt = &used
	u.PasswordHash = newPasswordHash
	u.UpdatedAt = now
	return nil
}
