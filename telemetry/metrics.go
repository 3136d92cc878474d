package telemetry

// Histogram bucket definitions
var (
	// FlushBuckets for publish-list flushes (one or two store round trips)
	FlushBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

	// BatchSizeBuckets for log entries per converted batch
	BatchSizeBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}
)

// Event log metrics
var (
	// EventLogAppendedTotal counts log entries appended
	EventLogAppendedTotal Counter = NoopStat{}

	// EventLogHeadSeq tracks the last assigned sequence number
	EventLogHeadSeq Gauge = NoopStat{}
)

// Convergence metrics
var (
	// EntriesConvergedTotal counts log entries fed to a converter by event type
	EntriesConvergedTotal CounterVec = noopCounterVec{}

	// EntriesSkippedTotal counts log entries dropped by reason (filter, invalid)
	EntriesSkippedTotal CounterVec = noopCounterVec{}

	// BatchSize measures log entries per converted batch
	BatchSize Histogram = NoopStat{}

	// FlushDurationSeconds measures WriteChangesToDatabase latency
	FlushDurationSeconds Histogram = NoopStat{}

	// FlushTotal counts flushes by result (success, retry, failed)
	FlushTotal CounterVec = noopCounterVec{}

	// PublishListChangesTotal counts emitted entries by op (delete, delete_all, upsert)
	PublishListChangesTotal CounterVec = noopCounterVec{}

	// WorkerCursor tracks the convergence worker cursor
	WorkerCursor Gauge = NoopStat{}

	// WorkerLag tracks log entries not yet converged
	WorkerLag Gauge = NoopStat{}
)

// Sink metrics
var (
	// SinkMessagesTotal counts change messages by sink and result (success, failed)
	SinkMessagesTotal CounterVec = noopCounterVec{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	EventLogAppendedTotal = NewCounter(
		"event_log_appended_total",
		"Log entries appended to the event log",
	)
	EventLogHeadSeq = NewGauge(
		"event_log_head_seq",
		"Last sequence number assigned by the event log",
	)

	EntriesConvergedTotal = NewCounterVec(
		"entries_converged_total",
		"Log entries fed to the converter by event type",
		[]string{"type"},
	)
	EntriesSkippedTotal = NewCounterVec(
		"entries_skipped_total",
		"Log entries skipped by reason",
		[]string{"reason"},
	)
	BatchSize = NewHistogramWithBuckets(
		"batch_size",
		"Log entries per converted batch",
		BatchSizeBuckets,
	)
	FlushDurationSeconds = NewHistogramWithBuckets(
		"flush_duration_seconds",
		"Publish-list flush duration in seconds",
		FlushBuckets,
	)
	FlushTotal = NewCounterVec(
		"flush_total",
		"Publish-list flushes by result",
		[]string{"result"},
	)
	PublishListChangesTotal = NewCounterVec(
		"publish_list_changes_total",
		"Publish-list entries emitted by operation",
		[]string{"op"},
	)
	WorkerCursor = NewGauge(
		"worker_cursor",
		"Sequence number of the last converged log entry",
	)
	WorkerLag = NewGauge(
		"worker_lag",
		"Log entries appended but not yet converged",
	)

	SinkMessagesTotal = NewCounterVec(
		"sink_messages_total",
		"Change messages published by sink and result",
		[]string{"sink", "result"},
	)
}
