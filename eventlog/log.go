package eventlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/maxpert/publist/encoding"
	"github.com/maxpert/publist/publishlist"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned by operations on a closed log
var ErrClosed = errors.New("event log is closed")

// Key prefixes for Pebble storage
const (
	prefixLog    = "/evlog/"    // /evlog/{16-digit-zero-padded-seq}
	prefixCursor = "/evcursor/" // /evcursor/{consumerName}
	keySeq       = "/evseq"     // /evseq -> uint64 (last assigned sequence)
)

// Pebble configuration constants
const (
	memTableSize                = 32 << 20 // 32MB
	memTableStopWritesThreshold = 4
	l0CompactionThreshold       = 2
	l0StopWritesThreshold       = 12
)

const (
	defaultReadLimit    = 100
	cleanupIntervalMask = 0x7F // Cleanup every 128 sequences
)

// Log is a Pebble-backed append-only log of publish-list log entries.
// Consumers track their progress with named cursors; entries below the
// smallest cursor are removed in the background.
type Log struct {
	db   *pebble.DB
	path string

	cursors   map[string]uint64
	cursorsMu sync.RWMutex

	// Last assigned sequence number
	lastSeq  atomic.Uint64
	appendMu sync.Mutex

	cleanupMu      sync.Mutex
	cleanupRunning atomic.Bool
	cleanupWg      sync.WaitGroup

	closed atomic.Bool
}

// Open creates or opens the event log stored at path
func Open(path string) (*Log, error) {
	opts := &pebble.Options{
		MemTableSize:                memTableSize,
		MemTableStopWritesThreshold: memTableStopWritesThreshold,
		L0CompactionThreshold:       l0CompactionThreshold,
		L0StopWritesThreshold:       l0StopWritesThreshold,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log at %s: %w", path, err)
	}

	l := &Log{
		db:      db,
		path:    path,
		cursors: make(map[string]uint64),
	}

	if err := l.loadLastSeq(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load sequence number: %w", err)
	}

	if err := l.loadCursors(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load cursors: %w", err)
	}

	return l, nil
}

func (l *Log) loadLastSeq() error {
	val, closer, err := l.db.Get([]byte(keySeq))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	defer closer.Close()

	if len(val) != 8 {
		return fmt.Errorf("invalid sequence value length: %d", len(val))
	}
	l.lastSeq.Store(binary.LittleEndian.Uint64(val))
	return nil
}

func (l *Log) loadCursors() error {
	prefix := []byte(prefixCursor)
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		name := string(iter.Key()[len(prefixCursor):])
		val, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		if len(val) != 8 {
			return fmt.Errorf("corrupted cursor data for %s: invalid length %d", name, len(val))
		}
		l.cursors[name] = binary.LittleEndian.Uint64(val)
	}

	if err := iter.Error(); err != nil {
		return err
	}

	if len(l.cursors) > 0 {
		log.Info().Int("cursors", len(l.cursors)).Msg("Loaded event log cursors")
	}
	return nil
}

// Append adds entries to the log in one atomic batch.
// SeqNum is set on each element of entries.
func (l *Log) Append(entries []publishlist.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if l.closed.Load() {
		return ErrClosed
	}

	// Serialize appenders so sequence numbers are contiguous per batch
	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	seq := l.lastSeq.Load()

	batch := l.db.NewBatch()
	defer batch.Close()

	for i := range entries {
		seq++
		entries[i].SeqNum = seq

		val, err := encoding.Marshal(&entries[i])
		if err != nil {
			return fmt.Errorf("failed to marshal log entry: %w", err)
		}
		if err := batch.Set(logKey(seq), val, nil); err != nil {
			return fmt.Errorf("failed to write log entry: %w", err)
		}
	}

	if err := batch.Set([]byte(keySeq), encodeUint64(seq), nil); err != nil {
		return fmt.Errorf("failed to update sequence: %w", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	// Publish the new head only after the commit is durable
	l.lastSeq.Store(seq)
	return nil
}

// ReadFrom reads entries after cursor, up to limit entries
func (l *Log) ReadFrom(cursor uint64, limit int) ([]publishlist.LogEntry, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = defaultReadLimit
	}

	start := logKey(cursor + 1)
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: prefixUpperBound([]byte(prefixLog)),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	entries := make([]publishlist.LogEntry, 0, limit)
	for iter.SeekGE(start); iter.Valid() && len(entries) < limit; iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return nil, err
		}

		var entry publishlist.LogEntry
		if err := encoding.Unmarshal(val, &entry); err != nil {
			log.Warn().Err(err).Str("key", string(iter.Key())).Msg("Skipping undecodable log entry")
			continue
		}
		entries = append(entries, entry)
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}
	return entries, nil
}

// LastSeq returns the last assigned sequence number, 0 for an empty log
func (l *Log) LastSeq() uint64 {
	return l.lastSeq.Load()
}

// GetCursor returns the cursor of a consumer, 0 if it never advanced
func (l *Log) GetCursor(name string) (uint64, error) {
	if l.closed.Load() {
		return 0, ErrClosed
	}

	l.cursorsMu.RLock()
	defer l.cursorsMu.RUnlock()
	return l.cursors[name], nil
}

// AdvanceCursor persists a consumer cursor and triggers cleanup periodically
func (l *Log) AdvanceCursor(name string, seq uint64) error {
	if l.closed.Load() {
		return ErrClosed
	}

	if err := l.db.Set([]byte(prefixCursor+name), encodeUint64(seq), pebble.Sync); err != nil {
		return fmt.Errorf("failed to update cursor: %w", err)
	}

	l.cursorsMu.Lock()
	prev := l.cursors[name]
	l.cursors[name] = seq
	l.cursorsMu.Unlock()

	// Cleanup whenever the cursor crosses a 128 boundary
	if prev>>7 != seq>>7 || seq&cleanupIntervalMask == 0 {
		if l.cleanupRunning.CompareAndSwap(false, true) {
			l.cleanupWg.Add(1)
			go l.cleanupAsync()
		}
	}

	return nil
}

// cleanup deletes entries every consumer has moved past
func (l *Log) cleanup() {
	l.cleanupMu.Lock()
	defer l.cleanupMu.Unlock()

	if l.closed.Load() {
		return
	}

	l.cursorsMu.RLock()
	if len(l.cursors) == 0 {
		l.cursorsMu.RUnlock()
		return
	}
	minCursor := ^uint64(0)
	for _, c := range l.cursors {
		minCursor = min(minCursor, c)
	}
	l.cursorsMu.RUnlock()

	if minCursor == 0 {
		return
	}

	// Entries up to and including minCursor are consumed everywhere
	if err := l.db.DeleteRange([]byte(prefixLog), logKey(minCursor+1), pebble.Sync); err != nil {
		log.Warn().Err(err).Uint64("min_cursor", minCursor).Msg("Failed to clean up event log")
		return
	}

	log.Debug().Uint64("min_cursor", minCursor).Msg("Cleaned up event log entries")
}

func (l *Log) cleanupAsync() {
	defer l.cleanupWg.Done()
	defer l.cleanupRunning.Store(false)
	l.cleanup()
}

// Close closes the Pebble database and waits for in-flight cleanup
func (l *Log) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	l.cleanupWg.Wait()

	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

func logKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x", prefixLog, seq))
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
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
