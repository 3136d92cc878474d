package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/maxpert/publist/cfg"
	"github.com/maxpert/publist/publishlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Real sinks register from the sink package, which imports this one
	RegisterSink("mock", func(config cfg.SinkConfiguration) (Sink, error) {
		return &mockSink{}, nil
	})
}

func testRegistryConfig(t *testing.T) *cfg.Configuration {
	t.Helper()
	conf := cfg.Default()
	conf.NodeID = 7
	conf.DataDir = t.TempDir()
	conf.Store.Type = cfg.StoreMemory
	conf.Converter.PollIntervalMS = 5
	conf.Converter.RetryInitialMS = 1
	conf.Converter.RetryMaxMS = 5
	return conf
}

func startRegistry(t *testing.T, conf *cfg.Configuration) *Registry {
	t.Helper()
	r, err := NewRegistry(conf)
	require.NoError(t, err)
	require.NoError(t, r.Start())
	t.Cleanup(r.Stop)
	return r
}

func TestNewRegistry(t *testing.T) {
	conf := testRegistryConfig(t)
	conf.Sinks = []cfg.SinkConfiguration{{Name: "events", Type: "mock", TopicPrefix: "publist"}}

	r, err := NewRegistry(conf)
	require.NoError(t, err)
	defer r.Stop()

	require.Len(t, r.sinks, 1)
	assert.Equal(t, "publist.publishlist", r.sinks[0].Topic())
	assert.NotNil(t, r.Store())
	assert.Equal(t, uint64(0), r.LastSeq())
	assert.Equal(t, uint64(0), r.Cursor())
}

func TestNewRegistryErrors(t *testing.T) {
	conf := testRegistryConfig(t)
	conf.DataDir = ""
	_, err := NewRegistry(conf)
	assert.Error(t, err)

	conf = testRegistryConfig(t)
	conf.Converter.Policy = "everyone"
	_, err = NewRegistry(conf)
	assert.Error(t, err)

	conf = testRegistryConfig(t)
	conf.Converter.ExcludeResources = []string{"/tmp["}
	_, err = NewRegistry(conf)
	assert.Error(t, err)

	conf = testRegistryConfig(t)
	conf.Sinks = []cfg.SinkConfiguration{{Name: "events", Type: "carrier-pigeon"}}
	_, err = NewRegistry(conf)
	assert.ErrorContains(t, err, "unknown sink type")

	// The event log was released, so the data dir can be reopened
	conf.Sinks = nil
	r, err := NewRegistry(conf)
	require.NoError(t, err)
	r.Start()
	r.Stop()
}

func TestRegistryAppendRequiresRunning(t *testing.T) {
	r, err := NewRegistry(testRegistryConfig(t))
	require.NoError(t, err)

	err = r.Append([]publishlist.LogEntry{{ResourceID: "r1", UserID: "alice", Type: publishlist.EventCreated}})
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, r.Start())
	assert.Error(t, r.Start(), "already running")
	r.Stop()
	r.Stop()

	err = r.Append([]publishlist.LogEntry{{ResourceID: "r1", UserID: "alice", Type: publishlist.EventCreated}})
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestRegistryAppendStampsMissingTimestamps(t *testing.T) {
	r := startRegistry(t, testRegistryConfig(t))

	future := time.Now().Add(time.Hour).UnixMilli()
	entries := []publishlist.LogEntry{
		{ResourceID: "r1", UserID: "alice", Type: publishlist.EventCreated},
		{ResourceID: "r1", UserID: "alice", Type: publishlist.EventContentModified, Timestamp: future},
		{ResourceID: "r1", UserID: "alice", Type: publishlist.EventContentModified},
	}
	require.NoError(t, r.Append(entries))

	assert.NotZero(t, entries[0].Timestamp)
	assert.Equal(t, future, entries[1].Timestamp, "explicit timestamps are kept")
	assert.Greater(t, entries[2].Timestamp, future, "stamps never go backwards")
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{entries[0].SeqNum, entries[1].SeqNum, entries[2].SeqNum})
	assert.Equal(t, uint64(3), r.LastSeq())
}

func TestRegistryConvergesAppendedEntries(t *testing.T) {
	conf := testRegistryConfig(t)
	conf.Sinks = []cfg.SinkConfiguration{{Name: "events", Type: "mock"}}
	r := startRegistry(t, conf)

	require.NoError(t, r.Append([]publishlist.LogEntry{
		{ResourceID: "/site/a.html", UserID: "alice", Type: publishlist.EventContentModified, Timestamp: 100},
		{ResourceID: "/site/b.html", UserID: "alice", Type: publishlist.EventContentModified, Timestamp: 200},
		{ResourceID: "/site/b.html", UserID: "bob", Type: publishlist.EventPublishedModified, Timestamp: 300},
	}))

	require.Eventually(t, func() bool {
		return r.Cursor() == r.LastSeq()
	}, 5*time.Second, 5*time.Millisecond)
	assert.True(t, r.WorkerRunning())

	rows, err := r.Store().ListByUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []publishlist.Entry{{UserID: "alice", ResourceID: "/site/a.html", Timestamp: 100}}, rows)

	sink := r.sinks[0].Sink.(*mockSink)
	msgs := sink.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, ChangeMessage{Op: OpDelete, ResourceID: "/site/b.html", AllUsers: true, Seq: 3}, msgs[0])
	assert.Equal(t, ChangeMessage{Op: OpUpsert, UserID: "alice", ResourceID: "/site/a.html", Timestamp: 100, Seq: 3}, msgs[1])
}

func TestRegistryAppendWakesIdleWorker(t *testing.T) {
	conf := testRegistryConfig(t)
	conf.Converter.PollIntervalMS = int((time.Hour).Milliseconds())
	r := startRegistry(t, conf)

	appends, cancel := r.SubscribeAppends()
	defer cancel()

	// Let the worker reach its idle wait
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, r.Append([]publishlist.LogEntry{
		{ResourceID: "/site/a.html", UserID: "alice", Type: publishlist.EventContentModified, Timestamp: 100},
	}))

	select {
	case head := <-appends:
		assert.Equal(t, uint64(1), head)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for append signal")
	}

	require.Eventually(t, func() bool {
		return r.Cursor() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRegistryCurrentUserPolicy(t *testing.T) {
	conf := testRegistryConfig(t)
	conf.Converter.Policy = publishlist.PolicyCurrentUser
	r := startRegistry(t, conf)

	ctx := context.Background()
	require.NoError(t, r.Store().WriteEntries(ctx, []publishlist.Entry{
		{UserID: "alice", ResourceID: "r1", Timestamp: 1},
		{UserID: "bob", ResourceID: "r1", Timestamp: 2},
	}))

	require.NoError(t, r.Append([]publishlist.LogEntry{
		{ResourceID: "r1", UserID: "alice", Type: publishlist.EventPublishedModified, Timestamp: 10},
	}))
	require.Eventually(t, func() bool {
		return r.Cursor() == 1
	}, 5*time.Second, 5*time.Millisecond)

	rows, err := r.Store().ListByResource(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []publishlist.Entry{{UserID: "bob", ResourceID: "r1", Timestamp: 2}}, rows)
}

// newIdleRegistry accepts appends without running the worker, so the log
// keeps every entry.
func newIdleRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(testRegistryConfig(t))
	require.NoError(t, err)
	r.running.Store(true)
	return r
}

func TestRegistryConcurrentStampsFollowLogOrder(t *testing.T) {
	r := newIdleRegistry(t)
	defer r.closeResources()

	const appenders, perAppender = 64, 40
	var wg sync.WaitGroup
	for i := 0; i < appenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perAppender; j++ {
				assert.NoError(t, r.Append([]publishlist.LogEntry{
					{ResourceID: "/site/a.html", UserID: "alice", Type: publishlist.EventContentModified},
				}))
			}
		}()
	}
	wg.Wait()

	entries, err := r.log.ReadFrom(0, appenders*perAppender)
	require.NoError(t, err)
	require.Len(t, entries, appenders*perAppender)
	for i := 1; i < len(entries); i++ {
		require.Greater(t, entries[i].Timestamp, entries[i-1].Timestamp, "seq %d stamped before seq %d", entries[i].SeqNum, entries[i-1].SeqNum)
	}
}

func TestRegistryAppendAfterLogClosedIsNotRunning(t *testing.T) {
	r := newIdleRegistry(t)
	defer r.closeResources()

	// Stop closed the log between the running check and the append
	require.NoError(t, r.log.Close())

	err := r.Append([]publishlist.LogEntry{
		{ResourceID: "/site/a.html", UserID: "alice", Type: publishlist.EventContentModified},
	})
	assert.ErrorIs(t, err, ErrNotRunning)
}
