package main

import (
	"context"
	"errors"
	"sync"
	"time"
)

// AppendedBatch is a batch the node accepted, with its sequence range
type AppendedBatch struct {
	FirstSeq uint64
	Events   []Event
}

// Recorder keeps accepted batches for verification
type Recorder struct {
	mu      sync.Mutex
	batches []AppendedBatch
}

func (r *Recorder) Record(batch AppendedBatch) {
	r.mu.Lock()
	r.batches = append(r.batches, batch)
	r.mu.Unlock()
}

// Batches returns the recorded batches
func (r *Recorder) Batches() []AppendedBatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AppendedBatch(nil), r.batches...)
}

// Worker appends generated batches until its quota or ctx runs out
type Worker struct {
	id         int
	client     *Client
	gen        *Generator
	stats      *Stats
	recorder   *Recorder
	batchSize  int
	maxRetries int
}

// NewWorker creates a new worker. recorder may be nil.
func NewWorker(id int, client *Client, conf *Config, stats *Stats, recorder *Recorder) *Worker {
	return &Worker{
		id:         id,
		client:     client,
		gen:        NewGenerator(id, conf),
		stats:      stats,
		recorder:   recorder,
		batchSize:  conf.BatchSize,
		maxRetries: conf.MaxRetries,
	}
}

// Run appends batches; quota 0 means until ctx ends
func (w *Worker) Run(ctx context.Context, quota int, wg *sync.WaitGroup) {
	defer wg.Done()

	for n := 0; quota == 0 || n < quota; n++ {
		if ctx.Err() != nil {
			return
		}

		events := w.gen.NextBatch(w.batchSize)
		start := time.Now()
		res, err := w.appendWithRetry(ctx, events)
		if err != nil {
			if ctx.Err() == nil {
				w.stats.RecordError(err)
			}
			continue
		}

		w.stats.RecordBatch(len(events), time.Since(start))
		if w.recorder != nil {
			w.recorder.Record(AppendedBatch{FirstSeq: res.FirstSeq, Events: events})
		}
	}
}

func (w *Worker) appendWithRetry(ctx context.Context, events []Event) (AppendResult, error) {
	backoff := 10 * time.Millisecond
	for attempt := 0; ; attempt++ {
		res, err := w.client.Append(ctx, events)
		if err == nil {
			return res, nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return res, err
		}
		if attempt >= w.maxRetries {
			return res, err
		}

		w.stats.RecordRetry()
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
