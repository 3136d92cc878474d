package db

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/maxpert/publist/publishlist"
	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryStore implements Store in memory. Reads are lock-free; mutations
// are serialized so a resource-wide delete cannot interleave with a write.
type MemoryStore struct {
	// resourceID -> userID -> timestamp
	resources *xsync.MapOf[string, *xsync.MapOf[string, int64]]
	writeMu   sync.Mutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		resources: xsync.NewMapOf[string, *xsync.MapOf[string, int64]](),
	}
}

// DeleteEntries removes rows
func (s *MemoryStore) DeleteEntries(ctx context.Context, entries []publishlist.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, e := range entries {
		if e.AllUsers() {
			s.resources.Delete(e.ResourceID)
			continue
		}
		if users, ok := s.resources.Load(e.ResourceID); ok {
			users.Delete(e.UserID)
			if users.Size() == 0 {
				s.resources.Delete(e.ResourceID)
			}
		}
	}
	return nil
}

// WriteEntries upserts rows
func (s *MemoryStore) WriteEntries(ctx context.Context, entries []publishlist.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, e := range entries {
		users, _ := s.resources.LoadOrCompute(e.ResourceID, func() *xsync.MapOf[string, int64] {
			return xsync.NewMapOf[string, int64]()
		})
		users.Store(e.UserID, e.Timestamp)
	}
	return nil
}

// ListByUser returns the user's rows ordered by resource id
func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]publishlist.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := []publishlist.Entry{}
	s.resources.Range(func(resourceID string, users *xsync.MapOf[string, int64]) bool {
		if ts, ok := users.Load(userID); ok {
			entries = append(entries, publishlist.Entry{UserID: userID, ResourceID: resourceID, Timestamp: ts})
		}
		return true
	})

	slices.SortFunc(entries, func(a, b publishlist.Entry) int {
		return strings.Compare(a.ResourceID, b.ResourceID)
	})
	return entries, nil
}

// ListByResource returns the resource's rows ordered by user id
func (s *MemoryStore) ListByResource(ctx context.Context, resourceID string) ([]publishlist.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := []publishlist.Entry{}
	users, ok := s.resources.Load(resourceID)
	if !ok {
		return entries, nil
	}
	users.Range(func(userID string, ts int64) bool {
		entries = append(entries, publishlist.Entry{UserID: userID, ResourceID: resourceID, Timestamp: ts})
		return true
	})

	slices.SortFunc(entries, func(a, b publishlist.Entry) int {
		return strings.Compare(a.UserID, b.UserID)
	})
	return entries, nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
