package eventlog

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/maxpert/publist/publishlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "event_log")
	l, err := Open(path)
	require.NoError(t, err)
	return l, path
}

func makeEntries(n int) []publishlist.LogEntry {
	entries := make([]publishlist.LogEntry, n)
	for i := range entries {
		entries[i] = publishlist.LogEntry{
			ResourceID: fmt.Sprintf("/sites/default/page-%d.html", i),
			UserID:     "alice",
			Type:       publishlist.EventContentModified,
			Timestamp:  int64(1000 + i),
		}
	}
	return entries
}

func TestLogAppendAndRead(t *testing.T) {
	l, _ := openTestLog(t)
	defer l.Close()

	entries := []publishlist.LogEntry{
		{ResourceID: "r1", UserID: "alice", Type: publishlist.EventCreated, Timestamp: 100},
		{ResourceID: "r1", UserID: "bob", Type: publishlist.EventPublishedNew, Timestamp: 200},
	}
	require.NoError(t, l.Append(entries))

	assert.Equal(t, uint64(1), entries[0].SeqNum)
	assert.Equal(t, uint64(2), entries[1].SeqNum)
	assert.Equal(t, uint64(2), l.LastSeq())

	read, err := l.ReadFrom(0, 10)
	require.NoError(t, err)
	require.Len(t, read, 2)
	assert.Equal(t, entries, read)
}

func TestLogReadWithLimit(t *testing.T) {
	l, _ := openTestLog(t)
	defer l.Close()

	require.NoError(t, l.Append(makeEntries(10)))

	read, err := l.ReadFrom(0, 5)
	require.NoError(t, err)
	require.Len(t, read, 5)
	assert.Equal(t, uint64(1), read[0].SeqNum)
	assert.Equal(t, uint64(5), read[4].SeqNum)

	read, err = l.ReadFrom(5, 3)
	require.NoError(t, err)
	require.Len(t, read, 3)
	assert.Equal(t, uint64(6), read[0].SeqNum)
	assert.Equal(t, uint64(8), read[2].SeqNum)

	read, err = l.ReadFrom(10, 0)
	require.NoError(t, err)
	assert.Empty(t, read)
}

func TestLogEmptyAppend(t *testing.T) {
	l, _ := openTestLog(t)
	defer l.Close()

	require.NoError(t, l.Append(nil))
	assert.Equal(t, uint64(0), l.LastSeq())
}

func TestLogSequencePersistsAcrossReopen(t *testing.T) {
	l, path := openTestLog(t)
	require.NoError(t, l.Append(makeEntries(3)))
	require.NoError(t, l.Close())

	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, uint64(3), l.LastSeq())

	more := makeEntries(1)
	require.NoError(t, l.Append(more))
	assert.Equal(t, uint64(4), more[0].SeqNum)
}

func TestLogCursorPersistsAcrossReopen(t *testing.T) {
	l, path := openTestLog(t)
	require.NoError(t, l.Append(makeEntries(5)))

	cursor, err := l.GetCursor("publishlist")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cursor)

	require.NoError(t, l.AdvanceCursor("publishlist", 3))
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()

	cursor, err = l.GetCursor("publishlist")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), cursor)
}

func TestLogCleanupKeepsEntriesAfterMinCursor(t *testing.T) {
	l, _ := openTestLog(t)
	defer l.Close()

	require.NoError(t, l.Append(makeEntries(200)))
	// Lowest cursor first so background cleanup never runs past it
	require.NoError(t, l.AdvanceCursor("b", 130))
	require.NoError(t, l.AdvanceCursor("a", 150))

	l.cleanup()

	read, err := l.ReadFrom(0, 500)
	require.NoError(t, err)
	require.NotEmpty(t, read)
	assert.Equal(t, uint64(131), read[0].SeqNum, "entries up to the min cursor are removed")
	assert.Equal(t, uint64(200), read[len(read)-1].SeqNum)
}

func TestLogAdvanceCursorTriggersCleanup(t *testing.T) {
	l, _ := openTestLog(t)
	defer l.Close()

	require.NoError(t, l.Append(makeEntries(300)))
	require.NoError(t, l.AdvanceCursor("only", 256))

	require.Eventually(t, func() bool {
		read, err := l.ReadFrom(0, 1)
		return err == nil && len(read) == 1 && read[0].SeqNum == 257
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLogConcurrentAppendsAssignUniqueSequences(t *testing.T) {
	l, _ := openTestLog(t)
	defer l.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				assert.NoError(t, l.Append(makeEntries(3)))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(240), l.LastSeq())

	read, err := l.ReadFrom(0, 1000)
	require.NoError(t, err)
	require.Len(t, read, 240)
	for i, e := range read {
		assert.Equal(t, uint64(i+1), e.SeqNum)
	}
}

func TestLogClosed(t *testing.T) {
	l, _ := openTestLog(t)
	require.NoError(t, l.Close())

	assert.ErrorIs(t, l.Append(makeEntries(1)), ErrClosed)
	_, err := l.ReadFrom(0, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = l.GetCursor("x")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, l.AdvanceCursor("x", 1), ErrClosed)
	assert.ErrorIs(t, l.Close(), ErrClosed)
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte("/evlog0"), prefixUpperBound([]byte("/evlog/")))
	assert.Nil(t, prefixUpperBound([]byte{0xff, 0xff}))
	assert.Equal(t, []byte{0x01, 0x00}, prefixUpperBound([]byte{0x00, 0xff}))
}
