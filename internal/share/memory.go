package share

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with in-process concurrency safety, for
// tests and DSN-less development runs.
type MemoryStore struct {
	mu   sync.Mutex
	caps map[string]*Capability
}

// NewMemoryStore creates an empty capability store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{caps: make(map[string]*Capability)}
}

func (s *MemoryStore) Create(ctx context.Context, cap *Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cap.CreatedAt = time.Now().UTC()
	cp := *cap
	s.caps[cap.ID] = &cp
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, id string) (*Capability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.caps[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.caps[id]
	if !ok || rec.Revoked {
		return ErrNotFound
	}
	rec.Revoked = true
	return nil
}

func (s *MemoryStore) IncrementUsage(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.caps[id]
	if !ok {
		return 0, ErrNotFound
	}
	rec.UsedCount++
	return rec.UsedCount, nil
}

// MemoryDocumentStore implements the DocumentStore collaborator over a map.
type MemoryDocumentStore struct {
	mu   sync.Mutex
	docs map[int64]*Document
}

// NewMemoryDocumentStore creates an empty document store.
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[int64]*Document)}
}

// Put seeds a document record. Document CRUD is owned by the wider system.
func (s *MemoryDocumentStore) Put(doc *Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *doc
	s.docs[doc.ID] = &cp
}

func (s *MemoryDocumentStore) FindOwned(ctx context.Context, docID int64, ownerID string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docID]
	if !ok || doc.OwnerID != ownerID {
		return nil, ErrOwnership
	}
	cp := *doc
	return &cp, nil
}

func (s *MemoryDocumentStore) Find(ctx context.Context, docID int64) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *doc
	return &cp, nil
}
