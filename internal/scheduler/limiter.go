package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultCapacity is the number of probes allowed in flight when no worker
// count is configured.
const DefaultCapacity = 256

// Limiter bounds the number of probes in flight. Probes are admitted under a
// key so that long-running ones can be listed; keys must be unique among
// concurrently held slots. A Limiter may be shared by several scans.
type Limiter struct {
	capacity  int
	semaphore chan struct{}
	active    map[string]hold
	mutex     sync.RWMutex
	closed    bool
}

// hold records when a slot was taken and how long its probe may run.
type hold struct {
	since   time.Time
	timeout time.Duration
}

// NewLimiter creates a limiter with the given capacity. Non-positive values
// select DefaultCapacity.
func NewLimiter(capacity int) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Limiter{
		capacity:  capacity,
		semaphore: make(chan struct{}, capacity),
		active:    make(map[string]hold),
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	return l.AcquireWithTimeout(ctx, key, 0)
}

// AcquireWithTimeout is Acquire for a probe bounded by timeout. Overdue
// measures the hold against it.
func (l *Limiter) AcquireWithTimeout(ctx context.Context, key string, timeout time.Duration) error {
	l.mutex.RLock()
	closed := l.closed
	l.mutex.RUnlock()
	if closed {
		return fmt.Errorf("limiter is closed")
	}

	// Prefer cancellation when both are ready.
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case l.semaphore <- struct{}{}:
		l.mutex.Lock()
		l.active[key] = hold{since: time.Now(), timeout: timeout}
		l.mutex.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the slot held under key. Releasing an unknown key is a no-op.
func (l *Limiter) Release(key string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if _, exists := l.active[key]; !exists {
		return
	}
	delete(l.active, key)

	select {
	case <-l.semaphore:
	default:
	}
}

// Capacity returns the maximum number of concurrent slots.
func (l *Limiter) Capacity() int {
	return l.capacity
}

// Active returns the number of held slots.
func (l *Limiter) Active() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return len(l.active)
}

// Available returns the number of free slots.
func (l *Limiter) Available() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.capacity - len(l.active)
}

// Stalled returns, sorted, the keys held for longer than threshold. A probe
// that ignores cancellation shows up here.
func (l *Limiter) Stalled(threshold time.Duration) []string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	now := time.Now()
	var keys []string
	for key, h := range l.active {
		if now.Sub(h.since) > threshold {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Overdue returns, sorted, the keys held for longer than factor times their
// own probe timeout. Slots acquired without a timeout are never overdue.
func (l *Limiter) Overdue(factor int) []string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	now := time.Now()
	var keys []string
	for key, h := range l.active {
		if h.timeout > 0 && now.Sub(h.since) > time.Duration(factor)*h.timeout {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Close rejects further Acquire calls. Held slots stay valid until released.
func (l *Limiter) Close() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.closed = true
}

// Stats reports the limiter state for health endpoints.
func (l *Limiter) Stats() map[string]interface{} {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return map[string]interface{}{
		"capacity":        l.capacity,
		"active_probes":   len(l.active),
		"available_slots": l.capacity - len(l.active),
		"closed":          l.closed,
	}
}
