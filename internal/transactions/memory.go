package transactions

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process. It backs tests and single-process
// development runs.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
	ids     map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]struct{})}
}

func (s *MemoryStore) Put(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.ids[record.TransactionID]; exists {
		return ErrDuplicate
	}
	s.ids[record.TransactionID] = struct{}{}
	s.records = append(s.records, record)
	return nil
}

// Records returns the records that have not expired as of now, oldest first.
func (s *MemoryStore) Records(now time.Time) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if now.Before(r.ExpiresAt) {
			out = append(out, r)
		}
	}
	return out
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var removed int64
	for _, r := range s.records {
		if now.Before(r.ExpiresAt) {
			kept = append(kept, r)
			continue
		}
		delete(s.ids, r.TransactionID)
		removed++
	}
	s.records = kept
	return removed, nil
}

func (s *MemoryStore) Close(context.Context) error {
	return nil
}
