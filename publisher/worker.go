package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jizhuozhi/go-future"
	"github.com/maxpert/publist/eventlog"
	"github.com/maxpert/publist/publishlist"
	"github.com/maxpert/publist/telemetry"
	"github.com/rs/zerolog/log"
)

const (
	// Default batch size for reading log entries per poll cycle
	DefaultBatchSize = 500
	// Default interval between poll cycles
	DefaultPollInterval = 100 * time.Millisecond
	// Default initial retry delay for failed flushes and publishes
	DefaultRetryInitial = 100 * time.Millisecond
	// Default maximum retry delay (exponential backoff cap)
	DefaultRetryMax = 30 * time.Second
	// Default exponential backoff multiplier
	DefaultRetryMultiplier = 2.0
	// Maximum number of attempts before giving up
	DefaultMaxRetries = 100
)

// WorkerConfig configures the convergence worker
type WorkerConfig struct {
	Name            string             // Cursor name in the event log
	Log             *eventlog.Log      // Event log to read from
	Store           publishlist.Driver // Publish-list persistence
	Policy          publishlist.Policy // Event routing, nil = AllUsers
	Filter          Filter             // Resource filter, nil = all resources
	Sinks           []SinkTarget       // Change message destinations
	BatchSize       int                // Log entries per poll cycle
	PollInterval    time.Duration      // Poll interval when idle
	Wake            <-chan uint64      // Append signals that end an idle wait early, optional
	RetryInitial    time.Duration      // Initial retry delay
	RetryMax        time.Duration      // Max retry delay
	RetryMultiplier float64            // Backoff multiplier
	MaxRetries      int                // Maximum attempts per flush or message
}

// Worker converges event log batches into the publish-list store
type Worker struct {
	config      WorkerConfig
	cursor      atomic.Uint64 // Last converged sequence
	cancel      context.CancelFunc
	doneCh      chan struct{}
	running     atomic.Bool
	lifecycleMu sync.Mutex // Protects Start/Stop lifecycle operations
}

// NewWorker creates a new convergence worker
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("worker name is required")
	}
	if config.Log == nil {
		return nil, fmt.Errorf("event log is required")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	if config.Policy == nil {
		config.Policy = publishlist.AllUsers
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.RetryInitial <= 0 {
		config.RetryInitial = DefaultRetryInitial
	}
	if config.RetryMax <= 0 {
		config.RetryMax = DefaultRetryMax
	}
	if config.RetryMultiplier <= 0 {
		config.RetryMultiplier = DefaultRetryMultiplier
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}

	cursor, err := config.Log.GetCursor(config.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	// A new consumer starts at the earliest entry still in the log
	if cursor == 0 {
		cursor, err = findEarliestEntry(config.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to find earliest entry: %w", err)
		}
	}

	w := &Worker{config: config}
	w.cursor.Store(cursor)
	return w, nil
}

// findEarliestEntry returns the cursor just before the first retained entry
func findEarliestEntry(l *eventlog.Log) (uint64, error) {
	entries, err := l.ReadFrom(0, 1)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	// ReadFrom reads from cursor+1
	return entries[0].SeqNum - 1, nil
}

// Cursor returns the sequence number of the last converged entry
func (w *Worker) Cursor() uint64 {
	return w.cursor.Load()
}

// Running reports whether the poll loop is active
func (w *Worker) Running() bool {
	return w.running.Load()
}

// Start starts the worker goroutine
func (w *Worker) Start() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.running.Load() {
		return
	}

	// A loop that halted on its own leaves its context behind
	if w.cancel != nil {
		w.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.doneCh = make(chan struct{})
	w.running.Store(true)

	log.Info().
		Str("worker", w.config.Name).
		Uint64("cursor", w.cursor.Load()).
		Int("sinks", len(w.config.Sinks)).
		Msg("Starting publish list worker")

	go w.pollLoop(ctx)
}

// Stop stops the worker and waits for the poll loop to exit
func (w *Worker) Stop() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.cancel == nil {
		return
	}

	log.Info().Str("worker", w.config.Name).Msg("Stopping publish list worker")

	w.cancel()
	<-w.doneCh
	w.cancel = nil

	log.Info().Str("worker", w.config.Name).Msg("Publish list worker stopped")
}

func (w *Worker) pollLoop(ctx context.Context) {
	defer close(w.doneCh)
	defer w.running.Store(false)

	for ctx.Err() == nil {
		entries, err := w.config.Log.ReadFrom(w.cursor.Load(), w.config.BatchSize)
		if err != nil {
			log.Error().
				Err(err).
				Str("worker", w.config.Name).
				Uint64("cursor", w.cursor.Load()).
				Msg("Failed to read from event log")
			sleepCtx(ctx, w.config.PollInterval)
			continue
		}

		if len(entries) == 0 {
			w.idle(ctx)
			continue
		}

		if err := w.processBatch(ctx, entries); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().
				Err(err).
				Str("worker", w.config.Name).
				Uint64("from_seq", entries[0].SeqNum).
				Uint64("to_seq", entries[len(entries)-1].SeqNum).
				Msg("Publish list worker halted")
			return
		}
	}
}

// processBatch converges one batch and advances the cursor past it.
// Filtered and malformed entries still move the cursor.
func (w *Worker) processBatch(ctx context.Context, entries []publishlist.LogEntry) error {
	lastSeq := entries[len(entries)-1].SeqNum

	accepted := make([]publishlist.LogEntry, 0, len(entries))
	for _, entry := range entries {
		switch {
		case entry.ResourceID == "" || entry.UserID == "":
			telemetry.EntriesSkippedTotal.With("invalid").Inc()
		case w.config.Filter != nil && !w.config.Filter.Match(entry.ResourceID):
			telemetry.EntriesSkippedTotal.With("filter").Inc()
		default:
			accepted = append(accepted, entry)
			telemetry.EntriesConvergedTotal.With(entry.Type.String()).Inc()
		}
	}
	telemetry.BatchSize.Observe(float64(len(accepted)))

	if len(accepted) > 0 {
		changes, err := w.flushWithRetry(ctx, accepted)
		if err != nil {
			return err
		}
		recordChanges(changes)
		w.announce(ctx, changes, lastSeq)
	}

	w.advance(lastSeq)
	return nil
}

// flushWithRetry converts the batch and writes it to the store.
// A converter is single-use, so each attempt starts from a new one.
func (w *Worker) flushWithRetry(ctx context.Context, entries []publishlist.LogEntry) (publishlist.ChangeSet, error) {
	delay := w.config.RetryInitial
	attempts := 0

	for {
		conv := publishlist.NewConverter(w.config.Policy)
		conv.AddAll(entries)

		start := time.Now()
		err := conv.WriteChangesToDatabase(ctx, w.config.Store)
		telemetry.FlushDurationSeconds.Observe(time.Since(start).Seconds())
		if err == nil {
			telemetry.FlushTotal.With("success").Inc()
			return conv.Changes(), nil
		}

		attempts++
		if attempts >= w.config.MaxRetries {
			telemetry.FlushTotal.With("failed").Inc()
			return publishlist.ChangeSet{}, fmt.Errorf("exhausted max retries (%d) flushing publish list: %w", w.config.MaxRetries, err)
		}
		telemetry.FlushTotal.With("retry").Inc()

		log.Warn().
			Err(err).
			Str("worker", w.config.Name).
			Int("attempt", attempts).
			Dur("retry_delay", delay).
			Msg("Failed to flush publish list, retrying")

		if !sleepCtx(ctx, delay) {
			return publishlist.ChangeSet{}, fmt.Errorf("worker stopped during retry: %w", ctx.Err())
		}
		delay = w.nextDelay(delay)
	}
}

// announce publishes the change set to every sink and waits for all of
// them. Sinks run concurrently; each sees the messages in flush order.
// Change messages are advisory: a message that exhausts its retries is
// dropped along with the rest of the batch for that sink.
func (w *Worker) announce(ctx context.Context, changes publishlist.ChangeSet, seq uint64) {
	if len(w.config.Sinks) == 0 || changes.Empty() {
		return
	}

	msgs := ChangeMessages(changes, seq)
	payloads := make([][]byte, 0, len(msgs))
	keys := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			log.Error().Err(err).Uint64("seq", seq).Msg("Failed to encode change message")
			continue
		}
		payloads = append(payloads, data)
		keys = append(keys, msg.ResourceID)
	}

	futures := make([]*future.Future[int], len(w.config.Sinks))
	for i, target := range w.config.Sinks {
		p := future.NewPromise[int]()
		futures[i] = p.Future()
		go func() {
			p.Set(w.publishAll(ctx, target, keys, payloads))
		}()
	}

	for i, fut := range futures {
		target := w.config.Sinks[i]
		sent, err := fut.Get()
		telemetry.SinkMessagesTotal.With(target.Name, "success").Add(float64(sent))
		if err != nil {
			dropped := len(payloads) - sent
			telemetry.SinkMessagesTotal.With(target.Name, "failed").Add(float64(dropped))
			log.Error().
				Err(err).
				Str("sink", target.Name).
				Str("topic", target.Topic()).
				Uint64("seq", seq).
				Int("dropped", dropped).
				Msg("Dropping change messages")
		}
	}
}

// publishAll publishes payloads in order and returns how many were sent
func (w *Worker) publishAll(ctx context.Context, target SinkTarget, keys []string, payloads [][]byte) (int, error) {
	topic := target.Topic()
	for i, data := range payloads {
		if err := w.publishWithRetry(ctx, target, topic, keys[i], data); err != nil {
			return i, err
		}
	}
	return len(payloads), nil
}

// publishWithRetry publishes data with exponential backoff retry
func (w *Worker) publishWithRetry(ctx context.Context, target SinkTarget, topic, key string, data []byte) error {
	delay := w.config.RetryInitial
	attempts := 0

	for {
		err := target.Sink.Publish(topic, key, data)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= w.config.MaxRetries {
			return fmt.Errorf("exhausted max retries (%d) for topic %s: %w", w.config.MaxRetries, topic, err)
		}

		log.Warn().
			Err(err).
			Str("sink", target.Name).
			Str("topic", topic).
			Int("attempt", attempts).
			Dur("retry_delay", delay).
			Msg("Failed to publish change message, retrying")

		if !sleepCtx(ctx, delay) {
			return fmt.Errorf("worker stopped during retry: %w", ctx.Err())
		}
		delay = w.nextDelay(delay)
	}
}

func (w *Worker) nextDelay(delay time.Duration) time.Duration {
	delay = time.Duration(float64(delay) * w.config.RetryMultiplier)
	if delay > w.config.RetryMax {
		delay = w.config.RetryMax
	}
	return delay
}

// advance moves the cursor. A failed persist only means the batch may be
// replayed after a restart.
func (w *Worker) advance(seq uint64) {
	w.cursor.Store(seq)
	telemetry.WorkerCursor.Set(float64(seq))

	if err := w.config.Log.AdvanceCursor(w.config.Name, seq); err != nil {
		log.Warn().
			Err(err).
			Str("worker", w.config.Name).
			Uint64("seq", seq).
			Msg("Failed to persist cursor, batch may be replayed")
	}
}

func recordChanges(changes publishlist.ChangeSet) {
	for _, e := range changes.Deletes {
		if e.AllUsers() {
			telemetry.PublishListChangesTotal.With("delete_all").Inc()
		} else {
			telemetry.PublishListChangesTotal.With("delete").Inc()
		}
	}
	if len(changes.Updates) > 0 {
		telemetry.PublishListChangesTotal.With("upsert").Add(float64(len(changes.Updates)))
	}
}

// idle waits for the poll interval or an append signal
func (w *Worker) idle(ctx context.Context) {
	if w.config.Wake == nil {
		sleepCtx(ctx, w.config.PollInterval)
		return
	}

	timer := time.NewTimer(w.config.PollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	case _, ok := <-w.config.Wake:
		if !ok {
			w.config.Wake = nil
		}
	}
}

// sleepCtx sleeps for d; returns false if ctx ended first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
