package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/pingscan/internal/errors"
	"github.com/anstrom/pingscan/internal/logging"
)

// MockJob implements the Job interface for testing
type MockJob struct {
	id       string
	duration time.Duration
	err      error
	executed  int32
	discarded int32
	started   chan struct{}
	once     sync.Once
}

func NewMockJob(id string, duration time.Duration, err error) *MockJob {
	return &MockJob{
		id:       id,
		duration: duration,
		err:      err,
		started:  make(chan struct{}),
	}
}

func (m *MockJob) Execute(ctx context.Context) error {
	atomic.AddInt32(&m.executed, 1)
	m.once.Do(func() { close(m.started) })
	if m.duration > 0 {
		select {
		case <-time.After(m.duration):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func (m *MockJob) ID() string {
	return m.id
}

func (m *MockJob) Type() string {
	return "mock"
}

func (m *MockJob) ExecutedCount() int32 {
	return atomic.LoadInt32(&m.executed)
}

func (m *MockJob) Discard() {
	atomic.AddInt32(&m.discarded, 1)
}

func (m *MockJob) DiscardedCount() int32 {
	return atomic.LoadInt32(&m.discarded)
}

func newTestPool(size, queue int) *Pool {
	return NewPool(PoolConfig{Size: size, QueueSize: queue, ShutdownTimeout: 2 * time.Second}, logging.NewDiscard())
}

func TestNewPool(t *testing.T) {
	t.Run("creates pool with valid configuration", func(t *testing.T) {
		pool := newTestPool(5, 100)
		assert.Equal(t, 100, cap(pool.jobs))
		assert.Equal(t, 105, cap(pool.results))
	})

	t.Run("corrects invalid values", func(t *testing.T) {
		pool := NewPool(PoolConfig{Size: -1, QueueSize: -1}, nil)
		assert.Equal(t, 1, pool.config.Size)
		assert.Equal(t, 0, cap(pool.jobs))
		assert.NotNil(t, pool.logger)
	})
}

func TestPoolLifecycle(t *testing.T) {
	t.Run("start and shutdown pool successfully", func(t *testing.T) {
		pool := newTestPool(2, 10)
		pool.Start()

		job := NewMockJob("test-1", 10*time.Millisecond, nil)
		require.NoError(t, pool.Submit(job))

		select {
		case res := <-pool.Results():
			assert.Equal(t, "test-1", res.JobID)
			assert.Equal(t, "mock", res.JobType)
			assert.NoError(t, res.Error)
		case <-time.After(2 * time.Second):
			t.Fatal("job did not complete")
		}

		assert.NoError(t, pool.Shutdown())
		assert.Equal(t, int32(1), job.ExecutedCount())
	})

	t.Run("handles multiple start and shutdown calls", func(t *testing.T) {
		pool := newTestPool(1, 1)
		pool.Start()
		pool.Start()
		assert.NoError(t, pool.Shutdown())
		assert.NoError(t, pool.Shutdown())
	})
}

func TestSubmitQueueFull(t *testing.T) {
	pool := newTestPool(1, 1)
	pool.Start()
	defer pool.Shutdown()

	blocker := NewMockJob("blocker", time.Minute, nil)
	require.NoError(t, pool.Submit(blocker))
	<-blocker.started

	require.NoError(t, pool.Submit(NewMockJob("queued", 0, nil)))
	assert.Equal(t, 1, pool.Queued())
	assert.Equal(t, 1, pool.Running())

	err := pool.Submit(NewMockJob("rejected", 0, nil))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeQueueFull))
}

func TestShutdownDiscardsQueuedJobs(t *testing.T) {
	pool := newTestPool(1, 2)
	pool.Start()

	blocker := NewMockJob("blocker", time.Minute, nil)
	require.NoError(t, pool.Submit(blocker))
	<-blocker.started

	queued := NewMockJob("queued", 0, nil)
	require.NoError(t, pool.Submit(queued))

	require.NoError(t, pool.Shutdown())
	assert.Equal(t, int32(0), queued.ExecutedCount())
	assert.Equal(t, int32(1), queued.DiscardedCount())
	assert.Equal(t, int32(0), blocker.DiscardedCount())
	assert.Equal(t, 0, pool.Queued())
}

func TestSubmitAfterShutdown(t *testing.T) {
	pool := newTestPool(1, 1)
	pool.Start()
	require.NoError(t, pool.Shutdown())

	err := pool.Submit(NewMockJob("late", 0, nil))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeCanceled))
}

func TestConcurrentJobProcessing(t *testing.T) {
	pool := newTestPool(4, 50)
	pool.Start()
	defer pool.Shutdown()

	jobs := make([]*MockJob, 20)
	for i := range jobs {
		jobs[i] = NewMockJob(fmt.Sprintf("job-%d", i), 5*time.Millisecond, nil)
		require.NoError(t, pool.Submit(jobs[i]))
	}

	for range jobs {
		select {
		case <-pool.Results():
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for results")
		}
	}
	for _, j := range jobs {
		assert.Equal(t, int32(1), j.ExecutedCount())
	}
}

func TestErrorHandling(t *testing.T) {
	pool := newTestPool(1, 1)
	pool.Start()
	defer pool.Shutdown()

	boom := fmt.Errorf("boom")
	require.NoError(t, pool.Submit(NewMockJob("failing", 0, boom)))

	select {
	case res := <-pool.Results():
		assert.Equal(t, boom, res.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestGracefulShutdownCancelsRunningJobs(t *testing.T) {
	pool := newTestPool(1, 1)
	pool.Start()

	job := NewMockJob("long", time.Minute, nil)
	require.NoError(t, pool.Submit(job))
	<-job.started

	start := time.Now()
	require.NoError(t, pool.Shutdown())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 0, pool.Running())
}
