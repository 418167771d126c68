package memory

import (
	"context"
	"log"
	"slices"
	"sort"
	"sync"
	"time"

	"stationledger/backend/internal/store"
)

// Store keeps the whole ledger in process memory. WithTx runs fn against a
// private copy of the state and swaps it in only when fn succeeds, so a
// failed or cancelled transaction leaves nothing behind.
type Store struct {
	mu    sync.RWMutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

func NewSeeded() *Store {
	s := New()
	seededAt := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	if err := s.WithTx(context.Background(), func(q store.Queries) error {
		return store.SeedDemo(context.Background(), q, seededAt)
	}); err != nil {
		log.Fatalf("[memory-store] seed demo topology: %v", err)
	}
	return s
}

func (s *Store) View(ctx context.Context, fn func(q store.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

func (s *Store) WithTx(ctx context.Context, fn func(q store.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) Close() error { return nil }

func cloneIndex[T any](src map[string][]T) map[string][]T {
	out := make(map[string][]T, len(src))
	for k, v := range src {
		out[k] = slices.Clone(v)
	}
	return out
}

func sortedValues[T any](m map[string]T, less func(a, b T) bool) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func insert[T any](m map[string]T, id string, v T) error {
	if id == "" {
		return store.ErrInvalidInput
	}
	if _, exists := m[id]; exists {
		return store.ErrConflict
	}
	m[id] = v
	return nil
}
