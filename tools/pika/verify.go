package main

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/maxpert/publist/db"
	"github.com/maxpert/publist/publishlist"
)

// runBenchmark appends generated events and optionally verifies the result
func runBenchmark(ctx context.Context, conf *Config) error {
	client := NewClient(conf.Host, conf.Secret, conf.RequestTimeout)
	stats := NewStats()

	var recorder *Recorder
	if conf.Verify {
		recorder = &Recorder{}
	}

	runCtx := ctx
	if conf.Batches == 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, conf.Duration)
		defer cancel()
	}

	fmt.Printf("Running: threads=%d batch_size=%d users=%d resources=%d\n",
		conf.Threads, conf.BatchSize, conf.Users, conf.Resources)

	progressCtx, stopProgress := context.WithCancel(ctx)
	go reportProgress(progressCtx, stats)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < conf.Threads; i++ {
		wg.Add(1)
		go NewWorker(i, client, conf, stats, recorder).Run(runCtx, workerQuota(conf.Batches, conf.Threads, i), &wg)
	}
	wg.Wait()
	stopProgress()

	stats.PrintFinal(time.Since(start))

	if recorder == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return verifyRun(ctx, client, conf, recorder.Batches())
}

// workerQuota splits total batches across threads; 0 stays unlimited
func workerQuota(total, threads, id int) int {
	if total == 0 {
		return 0
	}
	quota := total / threads
	if id < total%threads {
		quota++
	}
	if quota == 0 {
		return -1 // more threads than batches
	}
	return quota
}

// waitForConvergence polls the cursor until the worker caught up with the
// head observed on the first poll
func waitForConvergence(ctx context.Context, client *Client, timeout time.Duration) (CursorStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status, err := client.Cursor(ctx)
	if err != nil {
		return status, err
	}
	target := status.Head

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for status.Cursor < target {
		if !status.WorkerRunning {
			return status, fmt.Errorf("worker halted at cursor %d of %d", status.Cursor, target)
		}
		select {
		case <-ctx.Done():
			return status, fmt.Errorf("timed out at cursor %d of %d: %w", status.Cursor, target, ctx.Err())
		case <-ticker.C:
		}
		if status, err = client.Cursor(ctx); err != nil {
			return status, err
		}
	}
	return status, nil
}

// expectedLists replays accepted batches in sequence order through the
// converter into an in-memory store
func expectedLists(ctx context.Context, batches []AppendedBatch, policyName string) (*db.MemoryStore, []string, error) {
	policy, err := publishlist.PolicyByName(policyName)
	if err != nil {
		return nil, nil, err
	}

	slices.SortFunc(batches, func(a, b AppendedBatch) int {
		return cmp.Compare(a.FirstSeq, b.FirstSeq)
	})

	store := db.NewMemoryStore()
	users := make(map[string]struct{})
	for _, batch := range batches {
		conv := publishlist.NewConverter(policy)
		for i, ev := range batch.Events {
			typ, err := publishlist.ParseEventType(ev.Type)
			if err != nil {
				return nil, nil, err
			}
			conv.Add(publishlist.LogEntry{
				SeqNum:     batch.FirstSeq + uint64(i),
				ResourceID: ev.ResourceID,
				UserID:     ev.UserID,
				Type:       typ,
				Timestamp:  ev.Timestamp,
			})
			users[ev.UserID] = struct{}{}
		}
		if err := conv.WriteChangesToDatabase(ctx, store); err != nil {
			return nil, nil, err
		}
	}

	sorted := make([]string, 0, len(users))
	for u := range users {
		sorted = append(sorted, u)
	}
	slices.Sort(sorted)
	return store, sorted, nil
}

// sampleUsers picks up to n users spread evenly; 0 means all
func sampleUsers(users []string, n int) []string {
	if n == 0 || n >= len(users) {
		return users
	}
	step := len(users) / n
	sample := make([]string, 0, n)
	for i := 0; i < len(users) && len(sample) < n; i += step {
		sample = append(sample, users[i])
	}
	return sample
}

// verifyRun waits for the node to converge, then compares sampled user
// lists against the replayed state. Only resources under the run's prefix
// are compared.
func verifyRun(ctx context.Context, client *Client, conf *Config, batches []AppendedBatch) error {
	fmt.Println()
	fmt.Printf("Verifying %d batches...\n", len(batches))

	if _, err := waitForConvergence(ctx, client, conf.VerifyTimeout); err != nil {
		return err
	}

	expected, users, err := expectedLists(ctx, batches, conf.Policy)
	if err != nil {
		return err
	}

	mismatches := 0
	for _, user := range sampleUsers(users, conf.VerifySamples) {
		want, err := expected.ListByUser(ctx, user)
		if err != nil {
			return err
		}
		got, err := client.UserList(ctx, user)
		if err != nil {
			return err
		}
		got = slices.DeleteFunc(got, func(e publishlist.Entry) bool {
			return !strings.HasPrefix(e.ResourceID, conf.ResourcePrefix)
		})

		if !slices.Equal(want, got) {
			mismatches++
			fmt.Printf("  MISMATCH %s: expected %d rows, node has %d\n", user, len(want), len(got))
		}
	}

	if mismatches > 0 {
		return fmt.Errorf("%d publish lists differ", mismatches)
	}
	fmt.Println("All sampled publish lists match")
	return nil
}
