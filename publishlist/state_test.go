package publishlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourceStateAddUpdateLastCallWins(t *testing.T) {
	s := NewResourceState()
	s.AddUpdate("alice", 200)
	s.AddUpdate("alice", 100) // older timestamp, later call

	assert.Equal(t, []string{"alice"}, s.UpdateUsers())
	ts, ok := s.Timestamp("alice")
	assert.True(t, ok)
	assert.Equal(t, int64(100), ts)
}

func TestResourceStateRemoveOverridesUpdate(t *testing.T) {
	s := NewResourceState()
	s.AddUpdate("alice", 100)
	s.AddRemove("alice")

	assert.Empty(t, s.UpdateUsers())
	assert.Equal(t, []string{"alice"}, s.RemoveUsers())
	_, ok := s.Timestamp("alice")
	assert.False(t, ok)
}

func TestResourceStateUpdateOverridesRemove(t *testing.T) {
	s := NewResourceState()
	s.AddRemove("alice")
	s.AddUpdate("alice", 300)

	assert.Empty(t, s.RemoveUsers())
	assert.Equal(t, []string{"alice"}, s.UpdateUsers())
}

func TestResourceStateSetRemoveAllClearsEarlierChanges(t *testing.T) {
	s := NewResourceState()
	s.AddUpdate("alice", 100)
	s.AddRemove("bob")

	s.SetRemoveAll()

	assert.True(t, s.IsRemoveAll())
	assert.Empty(t, s.UpdateUsers())
	assert.Empty(t, s.RemoveUsers())
}

// Changes recorded after SetRemoveAll layer on top of it and keep the flag.
func TestResourceStateChangesAfterRemoveAllAreKept(t *testing.T) {
	s := NewResourceState()
	s.SetRemoveAll()
	s.AddUpdate("alice", 100)
	s.AddRemove("bob")

	assert.True(t, s.IsRemoveAll())
	assert.Equal(t, []string{"alice"}, s.UpdateUsers())
	assert.Equal(t, []string{"bob"}, s.RemoveUsers())
}

func TestResourceStateUsersSorted(t *testing.T) {
	s := NewResourceState()
	for _, u := range []string{"carol", "alice", "bob"} {
		s.AddUpdate(u, 1)
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, s.UpdateUsers())
}

func TestResourceStateTimestampUnknownUser(t *testing.T) {
	s := NewResourceState()
	_, ok := s.Timestamp("nobody")
	assert.False(t, ok)
}
