package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[uuid.UUID]*Entry)}
}

func (s *MemoryStore) Enqueue(ctx context.Context, e *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entries[e.ID] = &cp
	return nil
}

func (s *MemoryStore) Claim(ctx context.Context, queues []string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var ready []*Entry
	for _, e := range s.entries {
		if e.ClaimedAt != nil || e.RunAt.After(now) {
			continue
		}
		for _, q := range queues {
			if e.Queue == q {
				ready = append(ready, e)
				break
			}
		}
	}
	if len(ready) == 0 {
		return nil, ErrEmpty
	}
	sort.Slice(ready, func(i, k int) bool { return ready[i].RunAt.Before(ready[k].RunAt) })

	e := ready[0]
	e.ClaimedAt = &now
	e.Attempts++
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) Complete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) Retry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return ErrEmpty
	}
	e.ClaimedAt = nil
	e.RunAt = runAt
	e.LastError = lastError
	return nil
}

func (s *MemoryStore) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	n := 0
	for _, e := range s.entries {
		if e.ClaimedAt != nil && e.ClaimedAt.Before(cutoff) {
			e.ClaimedAt = nil
			e.LastError = "worker lost"
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Depth(ctx context.Context) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	depth := make(map[string]int)
	for _, e := range s.entries {
		if e.ClaimedAt == nil {
			depth[e.Queue]++
		}
	}
	return depth, nil
}

// Get returns an entry by ID (test helper).
func (s *MemoryStore) Get(id uuid.UUID) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// Len returns the number of stored entries (test helper).
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
