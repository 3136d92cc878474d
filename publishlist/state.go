package publishlist

import "slices"

type changeKind uint8

const (
	changeUpdate changeKind = iota
	changeRemove
)

// ResourceState accumulates the pending publish-list changes for one resource.
//
// SetRemoveAll drops every per-user change recorded before it. Changes recorded
// after it are kept and never clear the flag, so a flush removes the resource
// from all lists and then re-applies those later changes on top.
type ResourceState struct {
	removeAll  bool
	changes    map[string]changeKind
	timestamps map[string]int64
}

// NewResourceState returns an empty state
func NewResourceState() *ResourceState {
	return &ResourceState{
		changes:    make(map[string]changeKind),
		timestamps: make(map[string]int64),
	}
}

// AddUpdate marks the user's entry for upsert with the given timestamp.
// The latest call wins regardless of timestamp order.
func (s *ResourceState) AddUpdate(userID string, timestamp int64) {
	s.changes[userID] = changeUpdate
	s.timestamps[userID] = timestamp
}

// AddRemove marks the user's entry for deletion
func (s *ResourceState) AddRemove(userID string) {
	s.changes[userID] = changeRemove
	delete(s.timestamps, userID)
}

// SetRemoveAll marks the resource for removal from every user's list and
// discards the per-user changes recorded so far.
func (s *ResourceState) SetRemoveAll() {
	s.removeAll = true
	clear(s.changes)
	clear(s.timestamps)
}

// IsRemoveAll reports whether the resource is removed from every list
func (s *ResourceState) IsRemoveAll() bool {
	return s.removeAll
}

// UpdateUsers returns the users whose entry is upserted, sorted
func (s *ResourceState) UpdateUsers() []string {
	return s.usersWith(changeUpdate)
}

// RemoveUsers returns the users whose entry is deleted, sorted
func (s *ResourceState) RemoveUsers() []string {
	return s.usersWith(changeRemove)
}

// Timestamp returns the timestamp recorded for a user marked for update
func (s *ResourceState) Timestamp(userID string) (int64, bool) {
	if kind, ok := s.changes[userID]; !ok || kind != changeUpdate {
		return 0, false
	}
	return s.timestamps[userID], true
}

func (s *ResourceState) usersWith(kind changeKind) []string {
	users := make([]string, 0, len(s.changes))
	for user, k := range s.changes {
		if k == kind {
			users = append(users, user)
		}
	}
	slices.Sort(users)
	return users
}
