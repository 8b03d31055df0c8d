// Package memory provides an in-memory storage.UsageStore for single-node
// deployments and tests. Records are lost when the process restarts; the
// oldest record is evicted once the configured capacity is reached.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"

	"github.com/rhuss/claudepipe/pkg/storage"
)

// DefaultMaxSize is the capacity used when New is given 0.
const DefaultMaxSize = 10000

// Store is a bounded FIFO ledger.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*list.Element
	order   *list.List // front = newest
	maxSize int
}

// Ensure Store implements storage.UsageStore at compile time.
var _ storage.UsageStore = (*Store)(nil)

// New creates an in-memory store holding at most maxSize records.
// A maxSize of 0 or less uses DefaultMaxSize.
func New(maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Store{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Record stores r, evicting the oldest record when full.
func (s *Store) Record(ctx context.Context, r *storage.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[r.ID]; exists {
		return storage.ErrConflict
	}

	if s.order.Len() >= s.maxSize {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(*storage.UsageRecord).ID)
	}

	rec := *r
	if rec.TenantID == "" {
		rec.TenantID = storage.GetTenant(ctx)
	}
	s.entries[rec.ID] = s.order.PushFront(&rec)
	return nil
}

// Get returns a copy of the record with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*storage.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elem, ok := s.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	rec := elem.Value.(*storage.UsageRecord)
	if !storage.Visible(ctx, rec.TenantID) {
		return nil, storage.ErrNotFound
	}
	out := *rec
	return &out, nil
}

// List returns the tenant's records, newest first.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (*storage.UsageList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*storage.UsageRecord
	for e := s.order.Front(); e != nil; e = e.Next() {
		rec := e.Value.(*storage.UsageRecord)
		if !storage.Visible(ctx, rec.TenantID) {
			continue
		}
		if opts.Model != "" && rec.Model != opts.Model {
			continue
		}
		out := *rec
		matches = append(matches, &out)
	}

	// Insertion order is newest first; created_at breaks ties for records
	// imported with explicit timestamps.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt > matches[j].CreatedAt
	})

	limit := opts.EffectiveLimit()
	hasMore := len(matches) > limit
	if hasMore {
		matches = matches[:limit]
	}
	return storage.NewUsageList(matches, hasMore), nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Len()
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
