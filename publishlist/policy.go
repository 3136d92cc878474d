package publishlist

import "fmt"

// Policy routes a log entry to the resource state it belongs to.
// Entries reaching a policy always carry a resource and a user id.
type Policy interface {
	Apply(state *ResourceState, entry LogEntry)
}

// PolicyFunc adapts a function to the Policy interface
type PolicyFunc func(state *ResourceState, entry LogEntry)

// Apply calls f(state, entry)
func (f PolicyFunc) Apply(state *ResourceState, entry LogEntry) {
	f(state, entry)
}

// Policy names used in configuration
const (
	PolicyAllUsers    = "all_users"
	PolicyCurrentUser = "current_user"
)

// AllUsers drops a published, deleted or reverted resource from every user's
// list. Hiding only affects the acting user; anything else puts the resource
// on the acting user's list.
var AllUsers Policy = PolicyFunc(func(state *ResourceState, entry LogEntry) {
	switch entry.Type {
	case EventNewDeleted, EventPublishedDeleted, EventPublishedModified, EventPublishedNew, EventChangesUndone:
		state.SetRemoveAll()
	case EventHidden:
		state.AddRemove(entry.UserID)
	default:
		state.AddUpdate(entry.UserID, entry.Timestamp)
	}
})

// CurrentUser behaves like AllUsers except that publish, delete and undo
// events only drop the resource from the acting user's list.
var CurrentUser Policy = PolicyFunc(func(state *ResourceState, entry LogEntry) {
	switch entry.Type {
	case EventNewDeleted, EventPublishedDeleted, EventPublishedModified, EventPublishedNew, EventChangesUndone, EventHidden:
		state.AddRemove(entry.UserID)
	default:
		state.AddUpdate(entry.UserID, entry.Timestamp)
	}
})

// PolicyByName resolves a configured policy name; empty means all_users
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", PolicyAllUsers:
		return AllUsers, nil
	case PolicyCurrentUser:
		return CurrentUser, nil
	default:
		return nil, fmt.Errorf("unknown publish list policy %q", name)
	}
}
