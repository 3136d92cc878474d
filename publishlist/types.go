package publishlist

import (
	"context"
	"fmt"
	"strings"
)

// EventType identifies the content-lifecycle action a log entry records
type EventType uint8

// Event types that take a resource off pending publish lists
const (
	EventNewDeleted        EventType = 1 // New resource deleted before it was ever published
	EventPublishedDeleted  EventType = 2 // Deletion published
	EventPublishedModified EventType = 3 // Modification published
	EventPublishedNew      EventType = 4 // New resource published
	EventChangesUndone     EventType = 5 // Offline changes reverted
	EventHidden            EventType = 6 // User hid the resource from their own list
)

// Event types that put a resource on the acting user's publish list
const (
	EventCreated            EventType = 10
	EventContentModified    EventType = 11
	EventPropertiesWritten  EventType = 12
	EventMoved              EventType = 13
	EventCopied             EventType = 14
	EventDeleted            EventType = 15 // Marked deleted, not yet published
	EventTouched            EventType = 16
	EventRestored           EventType = 17
	EventPermissionsChanged EventType = 18
)

var eventTypeNames = map[EventType]string{
	EventNewDeleted:         "NEW_DELETED",
	EventPublishedDeleted:   "PUBLISHED_DELETED",
	EventPublishedModified:  "PUBLISHED_MODIFIED",
	EventPublishedNew:       "PUBLISHED_NEW",
	EventChangesUndone:      "CHANGES_UNDONE",
	EventHidden:             "HIDDEN",
	EventCreated:            "CREATED",
	EventContentModified:    "CONTENT_MODIFIED",
	EventPropertiesWritten:  "PROPERTIES_WRITTEN",
	EventMoved:              "MOVED",
	EventCopied:             "COPIED",
	EventDeleted:            "DELETED",
	EventTouched:            "TOUCHED",
	EventRestored:           "RESTORED",
	EventPermissionsChanged: "PERMISSIONS_CHANGED",
}

var eventTypesByName = func() map[string]EventType {
	m := make(map[string]EventType, len(eventTypeNames))
	for t, name := range eventTypeNames {
		m[name] = t
	}
	return m
}()

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
}

// ParseEventType resolves an event type by name.
// Matching is case-insensitive and accepts an optional RESOURCE_ prefix.
func ParseEventType(name string) (EventType, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	key = strings.TrimPrefix(key, "RESOURCE_")
	if t, ok := eventTypesByName[key]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("unknown event type %q", name)
}

// LogEntry is an immutable record of one content-lifecycle event.
// An empty ResourceID or UserID stands for a missing id.
type LogEntry struct {
	SeqNum     uint64    `msgpack:"seq"`  // Assigned by the event log
	ResourceID string    `msgpack:"res"`  // Structure id of the resource
	UserID     string    `msgpack:"user"` // Acting user
	Type       EventType `msgpack:"type"`
	Timestamp  int64     `msgpack:"ts"` // Unix milliseconds
}

// Entry is a row of a user's publish list.
// An empty UserID addresses the resource on every user's list; it only
// appears in delete batches.
type Entry struct {
	UserID     string `msgpack:"u" json:"user_id,omitempty"`
	ResourceID string `msgpack:"r" json:"resource_id"`
	Timestamp  int64  `msgpack:"ts" json:"timestamp"`
}

// AllUsers reports whether the entry addresses every user's list
func (e Entry) AllUsers() bool {
	return e.UserID == ""
}

// ChangeSet holds the batches a flush hands to the driver, in flush order
type ChangeSet struct {
	Deletes []Entry
	Updates []Entry
}

// Empty reports whether there is nothing to flush
func (c ChangeSet) Empty() bool {
	return len(c.Deletes) == 0 && len(c.Updates) == 0
}

// Driver persists publish-list entries.
// Transactional atomicity across the two calls of a flush is up to the driver.
type Driver interface {
	// DeleteEntries removes the given rows; timestamps are ignored
	DeleteEntries(ctx context.Context, entries []Entry) error
	// WriteEntries inserts or replaces the given rows
	WriteEntries(ctx context.Context, entries []Entry) error
}
