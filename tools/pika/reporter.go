package main

import (
	"context"
	"fmt"
	"time"
)

// reportProgress prints real-time progress every second.
func reportProgress(ctx context.Context, stats *Stats) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	var lastSnapshot Snapshot
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := stats.GetSnapshot()
			elapsed := time.Since(startTime)

			fmt.Printf("[%5.0fs] events/sec: %6d | batches: %6d | events: %8d | errors: %4d | retries: %4d | throughput: %.1f events/sec\n",
				elapsed.Seconds(),
				snapshot.Events-lastSnapshot.Events,
				snapshot.Batches,
				snapshot.Events,
				snapshot.Errors,
				snapshot.Retries,
				float64(snapshot.Events)/elapsed.Seconds(),
			)

			lastSnapshot = snapshot
		}
	}
}
