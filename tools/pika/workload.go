package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/maxpert/publist/publishlist"
)

// Event is one entry of an append request
type Event struct {
	ResourceID string `json:"resource_id"`
	UserID     string `json:"user_id"`
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp"`
}

// eventMix weights event types like an editing session, dominated by edits
var eventMix = []struct {
	typ    publishlist.EventType
	weight int
}{
	{publishlist.EventContentModified, 30},
	{publishlist.EventPropertiesWritten, 10},
	{publishlist.EventCreated, 10},
	{publishlist.EventTouched, 5},
	{publishlist.EventMoved, 3},
	{publishlist.EventDeleted, 3},
	{publishlist.EventPublishedModified, 15},
	{publishlist.EventPublishedNew, 8},
	{publishlist.EventPublishedDeleted, 3},
	{publishlist.EventNewDeleted, 2},
	{publishlist.EventChangesUndone, 3},
	{publishlist.EventHidden, 8},
}

var eventMixTotal = func() int {
	total := 0
	for _, m := range eventMix {
		total += m.weight
	}
	return total
}()

// Generator produces random events. Not safe for concurrent use; each
// worker owns one.
type Generator struct {
	rng            *rand.Rand
	users          int
	resources      int
	resourcePrefix string
	now            func() time.Time
}

// NewGenerator creates a generator seeded for worker id
func NewGenerator(id int, conf *Config) *Generator {
	seed := uint64(time.Now().UnixNano())
	return &Generator{
		rng:            rand.New(rand.NewPCG(seed, uint64(id))),
		users:          conf.Users,
		resources:      conf.Resources,
		resourcePrefix: conf.ResourcePrefix,
		now:            time.Now,
	}
}

// NextBatch returns n events with explicit timestamps
func (g *Generator) NextBatch(n int) []Event {
	events := make([]Event, n)
	ts := g.now().UnixMilli()
	for i := range events {
		events[i] = Event{
			ResourceID: g.resourceID(g.rng.IntN(g.resources)),
			UserID:     userID(g.rng.IntN(g.users)),
			Type:       g.nextType().String(),
			Timestamp:  ts,
		}
	}
	return events
}

func (g *Generator) nextType() publishlist.EventType {
	n := g.rng.IntN(eventMixTotal)
	for _, m := range eventMix {
		if n < m.weight {
			return m.typ
		}
		n -= m.weight
	}
	return publishlist.EventContentModified
}

func (g *Generator) resourceID(i int) string {
	return fmt.Sprintf("%spage-%06d.html", g.resourcePrefix, i)
}

func userID(i int) string {
	return fmt.Sprintf("user-%04d", i)
}
