package publisher

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/publist/cfg"
	"github.com/maxpert/publist/db"
	"github.com/maxpert/publist/eventlog"
	"github.com/maxpert/publist/hlc"
	"github.com/maxpert/publist/notify"
	"github.com/maxpert/publist/publishlist"
	"github.com/maxpert/publist/telemetry"
	"github.com/rs/zerolog/log"
)

// Registry owns the event log, the store, the sinks and the worker
type Registry struct {
	log     *eventlog.Log
	store   db.Store
	sinks   []SinkTarget
	worker  *Worker
	clock   *hlc.Clock
	appends *notify.Hub
	running atomic.Bool
	mu      sync.Mutex

	// Held across stamping and appending so stamps follow log order
	appendMu sync.Mutex
}

// NewRegistry opens the event log and the store and builds the worker
func NewRegistry(conf *cfg.Configuration) (*Registry, error) {
	if conf.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}

	policy, err := publishlist.PolicyByName(conf.Converter.Policy)
	if err != nil {
		return nil, err
	}

	filter, err := eventlog.NewGlobFilter(conf.Converter.IncludeResources, conf.Converter.ExcludeResources)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter: %w", err)
	}

	logPath := conf.EventLog.Path
	if !filepath.IsAbs(logPath) {
		logPath = filepath.Join(conf.DataDir, logPath)
	}
	evLog, err := eventlog.Open(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	store, err := db.Open(conf.Store, conf.DataDir)
	if err != nil {
		evLog.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	r := &Registry{
		log:     evLog,
		store:   store,
		clock:   hlc.NewClock(),
		appends: notify.NewHub(),
	}

	for _, sinkCfg := range conf.Sinks {
		snk, err := NewSink(sinkCfg)
		if err != nil {
			r.closeResources()
			return nil, fmt.Errorf("failed to add sink %q: %w", sinkCfg.Name, err)
		}
		r.sinks = append(r.sinks, SinkTarget{Name: sinkCfg.Name, TopicPrefix: sinkCfg.TopicPrefix, Sink: snk})

		log.Info().
			Str("sink", sinkCfg.Name).
			Str("type", sinkCfg.Type).
			Msg("Added publish list sink")
	}

	// Released by closeResources through appends.Close
	wake, _ := r.appends.Subscribe()

	r.worker, err = NewWorker(WorkerConfig{
		Name:            conf.Converter.Name,
		Log:             evLog,
		Store:           store,
		Policy:          policy,
		Filter:          filter,
		Sinks:           r.sinks,
		BatchSize:       conf.Converter.BatchSize,
		PollInterval:    time.Duration(conf.Converter.PollIntervalMS) * time.Millisecond,
		Wake:            wake,
		RetryInitial:    time.Duration(conf.Converter.RetryInitialMS) * time.Millisecond,
		RetryMax:        time.Duration(conf.Converter.RetryMaxMS) * time.Millisecond,
		RetryMultiplier: conf.Converter.RetryMultiplier,
		MaxRetries:      conf.Converter.MaxRetries,
	})
	if err != nil {
		r.closeResources()
		return nil, fmt.Errorf("failed to create worker: %w", err)
	}

	log.Info().
		Str("policy", conf.Converter.Policy).
		Int("sinks", len(r.sinks)).
		Uint64("head", evLog.LastSeq()).
		Msg("Publish list registry initialized")

	return r, nil
}

// Start starts the worker
func (r *Registry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Load() {
		return fmt.Errorf("registry already running")
	}

	r.worker.Start()
	r.running.Store(true)
	return nil
}

// Stop stops the worker and closes sinks, store and log
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running.Swap(false) {
		return
	}

	log.Info().Msg("Stopping publish list registry")

	r.worker.Stop()
	r.closeResources()

	log.Info().Msg("Publish list registry stopped")
}

func (r *Registry) closeResources() {
	r.appends.Close()
	for _, target := range r.sinks {
		if err := target.Sink.Close(); err != nil {
			log.Warn().Err(err).Str("sink", target.Name).Msg("Failed to close sink")
		}
	}
	if err := r.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close publish list store")
	}
	if err := r.log.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close event log")
	}
}

// Append stamps entries without a timestamp and appends them to the event
// log. SeqNum is set on each element. Stamps issued by Append increase with
// the sequence numbers they are stored under.
func (r *Registry) Append(entries []publishlist.LogEntry) error {
	if !r.running.Load() {
		return ErrNotRunning
	}

	r.appendMu.Lock()
	for i := range entries {
		if entries[i].Timestamp == 0 {
			entries[i].Timestamp = r.clock.StampMillis()
		} else {
			r.clock.Observe(entries[i].Timestamp)
		}
	}
	err := r.log.Append(entries)
	head := r.log.LastSeq()
	r.appendMu.Unlock()

	if err != nil {
		// Stop closed the log after the running check
		if errors.Is(err, eventlog.ErrClosed) {
			return ErrNotRunning
		}
		return err
	}

	telemetry.EventLogAppendedTotal.Add(float64(len(entries)))
	telemetry.EventLogHeadSeq.Set(float64(head))
	r.appends.Signal(head)
	return nil
}

// Store returns the publish-list store
func (r *Registry) Store() db.Store {
	return r.store
}

// Cursor returns the worker cursor
func (r *Registry) Cursor() uint64 {
	return r.worker.Cursor()
}

// LastSeq returns the event log head
func (r *Registry) LastSeq() uint64 {
	return r.log.LastSeq()
}

// SubscribeAppends returns a channel signalled with the log head after each
// append, and its cancel function
func (r *Registry) SubscribeAppends() (<-chan uint64, func()) {
	return r.appends.Subscribe()
}

// WorkerRunning reports whether the worker loop is active
func (r *Registry) WorkerRunning() bool {
	return r.worker.Running()
}

// NewSink creates a sink with the factory registered for config.Type
func NewSink(config cfg.SinkConfiguration) (Sink, error) {
	factoryMu.RLock()
	factory, exists := sinkFactories[config.Type]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown sink type: %s", config.Type)
	}

	return factory(config)
}

// SinkFactory is a function that creates a Sink from a configuration
type SinkFactory func(cfg.SinkConfiguration) (Sink, error)

var (
	sinkFactories = make(map[string]SinkFactory)
	factoryMu     sync.RWMutex
)

// RegisterSink registers a sink factory for a type
func RegisterSink(sinkType string, factory SinkFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	sinkFactories[sinkType] = factory
}
