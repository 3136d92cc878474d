package publisher

import (
	"errors"

	"github.com/maxpert/publist/publishlist"
)

// ErrNotRunning is returned when appending to a stopped registry
var ErrNotRunning = errors.New("publisher is not running")

// Change message operations
const (
	OpDelete = "delete"
	OpUpsert = "upsert"
)

// Sink publishes change messages to an external system
type Sink interface {
	// Publish sends a message to the sink
	Publish(topic string, key string, value []byte) error
	// Close releases any resources held by the sink
	Close() error
}

// Filter determines whether entries for a resource are converged
type Filter interface {
	Match(resourceID string) bool
}

// SinkTarget is a named sink with its topic prefix
type SinkTarget struct {
	Name        string
	TopicPrefix string
	Sink        Sink
}

// Topic returns the topic change messages are published to
func (t SinkTarget) Topic() string {
	if t.TopicPrefix == "" {
		return "publishlist"
	}
	return t.TopicPrefix + ".publishlist"
}

// ChangeMessage announces one publish-list row change.
// A delete with AllUsers set cleared the resource from every list.
type ChangeMessage struct {
	Op         string `json:"op"`
	UserID     string `json:"user_id,omitempty"`
	ResourceID string `json:"resource_id"`
	AllUsers   bool   `json:"all_users"`
	Timestamp  int64  `json:"timestamp,omitempty"`
	Seq        uint64 `json:"seq"` // Last log sequence of the converged batch
}

// ChangeMessages lists the messages for a flushed change set, deletes first
func ChangeMessages(changes publishlist.ChangeSet, seq uint64) []ChangeMessage {
	msgs := make([]ChangeMessage, 0, len(changes.Deletes)+len(changes.Updates))
	for _, e := range changes.Deletes {
		msgs = append(msgs, ChangeMessage{
			Op:         OpDelete,
			UserID:     e.UserID,
			ResourceID: e.ResourceID,
			AllUsers:   e.AllUsers(),
			Seq:        seq,
		})
	}
	for _, e := range changes.Updates {
		msgs = append(msgs, ChangeMessage{
			Op:         OpUpsert,
			UserID:     e.UserID,
			ResourceID: e.ResourceID,
			Timestamp:  e.Timestamp,
			Seq:        seq,
		})
	}
	return msgs
}
