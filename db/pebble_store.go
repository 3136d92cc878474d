package db

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/maxpert/publist/encoding"
	"github.com/maxpert/publist/publishlist"
	"github.com/rs/zerolog/log"
)

// Key prefixes for Pebble. Each row is stored under both orderings so
// either listing is a single prefix scan. The leading id is prefixed with its
// length as a big-endian uint32, so no byte inside an id can make one id's
// keys fall under another id's prefix.
const (
	pebblePrefixUser     = "/publist/user/" // /publist/user/{len(userID)}{userID}{resourceID}
	pebblePrefixResource = "/publist/res/"  // /publist/res/{len(resourceID)}{resourceID}{userID}
)

// pebbleLogger wraps zerolog for Pebble
type pebbleLogger struct{}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debug().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Error().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Fatal().Msgf("[pebble] "+format, args...)
}

// PebbleStore implements Store on Pebble
type PebbleStore struct {
	db   *pebble.DB
	path string

	// Serializes mutations; resource-wide deletes read before they write
	writeMu sync.Mutex
}

var _ Store = (*PebbleStore)(nil)

// NewPebbleStore opens (or creates) a Pebble publish-list store at path
func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{
		MemTableSize:                16 << 20,
		MemTableStopWritesThreshold: 4,
		L0CompactionThreshold:       2,
		L0StopWritesThreshold:       12,
		Logger:                      &pebbleLogger{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store at %s: %w", path, err)
	}
	return &PebbleStore{db: db, path: path}, nil
}

// rowPrefix is the scan prefix of every row under id
func rowPrefix(keyPrefix, id string) []byte {
	key := make([]byte, 0, len(keyPrefix)+4+len(id))
	key = append(key, keyPrefix...)
	key = binary.BigEndian.AppendUint32(key, uint32(len(id)))
	return append(key, id...)
}

func userKey(userID, resourceID string) []byte {
	return append(rowPrefix(pebblePrefixUser, userID), resourceID...)
}

func resourceKey(resourceID, userID string) []byte {
	return append(rowPrefix(pebblePrefixResource, resourceID), userID...)
}

// DeleteEntries removes rows in one atomic batch
func (s *PebbleStore) DeleteEntries(ctx context.Context, entries []publishlist.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, e := range entries {
		if !e.AllUsers() {
			if err := s.deleteRow(batch, e.UserID, e.ResourceID); err != nil {
				return err
			}
			continue
		}

		rows, err := s.scan(rowPrefix(pebblePrefixResource, e.ResourceID))
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := s.deleteRow(batch, row.UserID, row.ResourceID); err != nil {
				return err
			}
		}
	}

	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) deleteRow(batch *pebble.Batch, userID, resourceID string) error {
	if err := batch.Delete(userKey(userID, resourceID), nil); err != nil {
		return err
	}
	return batch.Delete(resourceKey(resourceID, userID), nil)
}

// WriteEntries upserts rows in one atomic batch
func (s *PebbleStore) WriteEntries(ctx context.Context, entries []publishlist.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, e := range entries {
		val, err := encoding.Marshal(&e)
		if err != nil {
			return fmt.Errorf("failed to marshal publish list row: %w", err)
		}
		if err := batch.Set(userKey(e.UserID, e.ResourceID), val, nil); err != nil {
			return err
		}
		if err := batch.Set(resourceKey(e.ResourceID, e.UserID), val, nil); err != nil {
			return err
		}
	}

	return batch.Commit(pebble.Sync)
}

// ListByUser returns the user's rows; key order is resource id order
func (s *PebbleStore) ListByUser(ctx context.Context, userID string) ([]publishlist.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.list(rowPrefix(pebblePrefixUser, userID))
}

// ListByResource returns the resource's rows; key order is user id order
func (s *PebbleStore) ListByResource(ctx context.Context, resourceID string) ([]publishlist.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.list(rowPrefix(pebblePrefixResource, resourceID))
}

func (s *PebbleStore) list(prefix []byte) ([]publishlist.Entry, error) {
	rows, err := s.scan(prefix)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []publishlist.Entry{}
	}
	return rows, nil
}

// scan decodes every row under prefix; both index keys hold the full entry
func (s *PebbleStore) scan(prefix []byte) ([]publishlist.Entry, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var rows []publishlist.Entry
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return nil, err
		}
		var row publishlist.Entry
		if err := encoding.Unmarshal(val, &row); err != nil {
			return nil, fmt.Errorf("failed to decode publish list row %q: %w", iter.Key(), err)
		}
		rows = append(rows, row)
	}
	return rows, iter.Error()
}

// Close closes the Pebble database
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

// prefixUpperBound returns the upper bound for a prefix scan
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end
		}
	}
	return nil
}
