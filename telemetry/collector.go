package telemetry

import (
	"sync"
	"time"
)

// ProgressProvider exposes the event log head and the worker cursor
type ProgressProvider interface {
	LastSeq() uint64
	Cursor() uint64
}

// MetricsCollector periodically samples worker progress into gauges
type MetricsCollector struct {
	provider ProgressProvider
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(provider ProgressProvider, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		provider: provider,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector
func (mc *MetricsCollector) Stop() {
	close(mc.stopCh)
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()

	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MetricsCollector) collect() {
	if mc.provider == nil {
		return
	}

	head := mc.provider.LastSeq()
	cursor := mc.provider.Cursor()

	EventLogHeadSeq.Set(float64(head))
	WorkerCursor.Set(float64(cursor))
	if head > cursor {
		WorkerLag.Set(float64(head - cursor))
	} else {
		WorkerLag.Set(0)
	}
}
