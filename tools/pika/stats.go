package main

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Stats tracks benchmark statistics using atomic operations.
type Stats struct {
	batches atomic.Uint64
	events  atomic.Uint64
	retries atomic.Uint64

	// Error counts by class: HTTP status code, "timeout" or "other"
	errors *xsync.MapOf[string, uint64]

	// Latency tracking (microseconds)
	mu        sync.Mutex
	latencies []int64
}

// NewStats creates a new stats tracker.
func NewStats() *Stats {
	return &Stats{
		errors:    xsync.NewMapOf[string, uint64](),
		latencies: make([]int64, 0, 100000),
	}
}

// RecordBatch records an accepted append request.
func (s *Stats) RecordBatch(events int, latency time.Duration) {
	s.batches.Add(1)
	s.events.Add(uint64(events))

	s.mu.Lock()
	s.latencies = append(s.latencies, latency.Microseconds())
	s.mu.Unlock()
}

// RecordError records a failed append request.
func (s *Stats) RecordError(err error) {
	s.errors.Compute(classifyError(err), func(old uint64, _ bool) (uint64, bool) {
		return old + 1, false
	})
}

// RecordRetry records a retry attempt.
func (s *Stats) RecordRetry() {
	s.retries.Add(1)
}

// TotalErrors returns total errors.
func (s *Stats) TotalErrors() uint64 {
	var total uint64
	s.errors.Range(func(_ string, n uint64) bool {
		total += n
		return true
	})
	return total
}

func classifyError(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return strconv.Itoa(statusErr.Code)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "other"
}

// GetLatencyPercentiles returns p50, p90, p99 in microseconds.
func (s *Stats) GetLatencyPercentiles() (p50, p90, p99 int64) {
	s.mu.Lock()
	sorted := slices.Clone(s.latencies)
	s.mu.Unlock()

	if len(sorted) == 0 {
		return 0, 0, 0
	}
	slices.Sort(sorted)

	n := len(sorted)
	return sorted[n*50/100], sorted[n*90/100], sorted[n*99/100]
}

// Snapshot returns a copy of current counters.
type Snapshot struct {
	Batches uint64
	Events  uint64
	Errors  uint64
	Retries uint64
}

// GetSnapshot returns current stats snapshot.
func (s *Stats) GetSnapshot() Snapshot {
	return Snapshot{
		Batches: s.batches.Load(),
		Events:  s.events.Load(),
		Errors:  s.TotalErrors(),
		Retries: s.retries.Load(),
	}
}

// PrintFinal prints final statistics.
func (s *Stats) PrintFinal(elapsed time.Duration) {
	snap := s.GetSnapshot()

	fmt.Println()
	fmt.Printf("Total time:    %.2fs\n", elapsed.Seconds())
	fmt.Printf("Throughput:    %.2f events/sec\n", float64(snap.Events)/elapsed.Seconds())
	fmt.Printf("Batches:       %d\n", snap.Batches)
	fmt.Printf("Events:        %d\n", snap.Events)
	fmt.Println()

	if snap.Errors > 0 || snap.Retries > 0 {
		fmt.Println("Errors/Retries:")
		var classes []string
		s.errors.Range(func(class string, _ uint64) bool {
			classes = append(classes, class)
			return true
		})
		sort.Strings(classes)
		for _, class := range classes {
			n, _ := s.errors.Load(class)
			fmt.Printf("  %-8s %d\n", class+":", n)
		}
		fmt.Printf("  Total errors:  %d\n", snap.Errors)
		fmt.Printf("  Retries:       %d\n", snap.Retries)
		fmt.Println()
	}

	p50, p90, p99 := s.GetLatencyPercentiles()
	fmt.Println("Append latency (microseconds):")
	fmt.Printf("  P50:   %d\n", p50)
	fmt.Printf("  P90:   %d\n", p90)
	fmt.Printf("  P99:   %d\n", p99)
}
