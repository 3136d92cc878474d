package publishlist

import "context"

// Converter folds a batch of log entries into per-resource publish-list
// changes and flushes them through a Driver.
//
// A Converter serves one batch: feed it with Add, call WriteChangesToDatabase
// once and drop it. It is not safe for concurrent use.
type Converter struct {
	policy Policy
	states map[string]*ResourceState
	order  []string // resource ids in first-seen order
}

// NewConverter creates a converter routing entries through policy.
// A nil policy selects AllUsers.
func NewConverter(policy Policy) *Converter {
	if policy == nil {
		policy = AllUsers
	}
	return &Converter{
		policy: policy,
		states: make(map[string]*ResourceState),
	}
}

// Add applies one log entry. Entries without a resource or user id are
// ignored.
func (c *Converter) Add(entry LogEntry) {
	if entry.ResourceID == "" || entry.UserID == "" {
		return
	}
	state, ok := c.states[entry.ResourceID]
	if !ok {
		state = NewResourceState()
		c.states[entry.ResourceID] = state
		c.order = append(c.order, entry.ResourceID)
	}
	c.policy.Apply(state, entry)
}

// AddAll applies entries in order
func (c *Converter) AddAll(entries []LogEntry) {
	for _, entry := range entries {
		c.Add(entry)
	}
}

// State returns the accumulated state of a resource
func (c *Converter) State(resourceID string) (*ResourceState, bool) {
	state, ok := c.states[resourceID]
	return state, ok
}

// Resources returns the touched resource ids in first-seen order
func (c *Converter) Resources() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Changes computes the delete and update batches of the accumulated state.
//
// Deletes hold, per resource, an all-users entry when it is marked remove-all
// plus one entry per explicitly removed user. Updates hold one entry per user
// marked for update, carrying that user's recorded timestamp.
func (c *Converter) Changes() ChangeSet {
	var changes ChangeSet

	for _, resourceID := range c.order {
		state := c.states[resourceID]
		if state.IsRemoveAll() {
			changes.Deletes = append(changes.Deletes, Entry{ResourceID: resourceID})
		}
		for _, user := range state.RemoveUsers() {
			changes.Deletes = append(changes.Deletes, Entry{UserID: user, ResourceID: resourceID})
		}
	}

	for _, resourceID := range c.order {
		state := c.states[resourceID]
		for _, user := range state.UpdateUsers() {
			ts, _ := state.Timestamp(user)
			changes.Updates = append(changes.Updates, Entry{UserID: user, ResourceID: resourceID, Timestamp: ts})
		}
	}

	return changes
}

// WriteChangesToDatabase flushes the accumulated changes: all deletions
// first, then all updates, so updates recorded after a remove-all survive it.
// Empty batches are not sent. Driver errors are returned unchanged and the
// flush stops at the failing phase.
func (c *Converter) WriteChangesToDatabase(ctx context.Context, driver Driver) error {
	changes := c.Changes()

	if len(changes.Deletes) > 0 {
		if err := driver.DeleteEntries(ctx, changes.Deletes); err != nil {
			return err
		}
	}

	if len(changes.Updates) > 0 {
		if err := driver.WriteEntries(ctx, changes.Updates); err != nil {
			return err
		}
	}

	return nil
}
