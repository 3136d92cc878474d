package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubSubscribeSignal(t *testing.T) {
	hub := NewHub()

	signals, cancel := hub.Subscribe()
	defer cancel()

	hub.Signal(7)

	select {
	case seq := <-signals:
		assert.Equal(t, uint64(7), seq)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for signal")
	}
}

func TestHubCoalescesSignals(t *testing.T) {
	hub := NewHub()

	signals, cancel := hub.Subscribe()
	defer cancel()

	hub.Signal(1)
	hub.Signal(2)
	hub.Signal(3)

	assert.Equal(t, uint64(1), <-signals)
	select {
	case seq := <-signals:
		t.Fatalf("expected coalesced signals, got %d", seq)
	default:
	}
}

func TestHubMultipleSubscribers(t *testing.T) {
	hub := NewHub()

	a, cancelA := hub.Subscribe()
	defer cancelA()
	b, cancelB := hub.Subscribe()
	defer cancelB()

	hub.Signal(5)
	assert.Equal(t, uint64(5), <-a)
	assert.Equal(t, uint64(5), <-b)
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub()

	signals, cancel := hub.Subscribe()
	cancel()
	cancel()

	_, ok := <-signals
	assert.False(t, ok)

	// Signalling after cancel must not panic
	hub.Signal(1)
}

func TestHubClose(t *testing.T) {
	hub := NewHub()

	signals, cancel := hub.Subscribe()
	hub.Close()

	_, ok := <-signals
	assert.False(t, ok)
	cancel()
}

func TestHubConcurrentSignalAndCancel(t *testing.T) {
	hub := NewHub()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			signals, cancel := hub.Subscribe()
			for j := 0; j < 100; j++ {
				hub.Signal(uint64(j))
			}
			cancel()
			for range signals {
			}
		}()
	}
	wg.Wait()

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	require.Empty(t, hub.subscriptions)
}
