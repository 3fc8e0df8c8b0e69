package store

import (
	"context"
	"sync"

	"tbot/internal/ledger"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a process-local Store used by tests and single-instance deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]ledger.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]ledger.Record)}
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (ledger.Record, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	if !ok {
		return ledger.Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Insert(ctx context.Context, rec ledger.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.UserID]; ok {
		return ErrExists
	}
	s.records[rec.UserID] = rec.Clone()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, rec ledger.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[rec.UserID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != rec.Version {
		return ErrConflict
	}
	next := rec.Clone()
	next.Version++
	s.records[rec.UserID] = next
	return nil
}
