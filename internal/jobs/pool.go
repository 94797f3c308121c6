// Package jobs runs scans in the background for the API server and the cron
// schedules. A bounded Pool executes queued jobs and a Manager tracks every
// submitted scan by ID until it expires.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anstrom/pingscan/internal/errors"
	"github.com/anstrom/pingscan/internal/logging"
)

// Job represents a unit of work to be executed by a worker.
type Job interface {
	// Execute performs the job and returns an error if it fails.
	Execute(ctx context.Context) error
	// ID returns a unique identifier for the job.
	ID() string
	// Type returns the job type for logging.
	Type() string
}

// Discarder is implemented by jobs that must be told when the pool shuts
// down before running them.
type Discarder interface {
	Discard()
}

// Result represents the result of executing a job.
type Result struct {
	JobID    string
	JobType  string
	Error    error
	Duration time.Duration
}

// PoolConfig holds configuration for the worker pool.
type PoolConfig struct {
	// Size is the number of worker goroutines to create.
	Size int
	// QueueSize is the maximum number of jobs that can be queued.
	QueueSize int
	// ShutdownTimeout is the maximum time to wait for workers to finish.
	ShutdownTimeout time.Duration
}

// DefaultPoolConfig returns a default worker pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Size:            4,
		QueueSize:       64,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Pool manages a pool of worker goroutines for concurrent job execution.
type Pool struct {
	config  PoolConfig
	logger  *logging.Logger
	jobs    chan Job
	results chan Result
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	startOnce  sync.Once
	shutdown32 int32 // atomic shutdown flag
	inFlight   int32
}

// NewPool creates a new worker pool with the given configuration.
func NewPool(config PoolConfig, logger *logging.Logger) *Pool {
	if config.Size <= 0 {
		config.Size = 1
	}
	if config.QueueSize < 0 {
		config.QueueSize = 0
	}
	if logger == nil {
		logger = logging.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		config:  config,
		logger:  logger.WithComponent("jobs"),
		jobs:    make(chan Job, config.QueueSize),
		results: make(chan Result, config.QueueSize+config.Size),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins the worker pool operations.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("Starting worker pool",
			"worker_count", p.config.Size,
			"queue_size", p.config.QueueSize)

		for i := 0; i < p.config.Size; i++ {
			p.wg.Add(1)
			go p.run(i)
		}
	})
}

// Submit adds a job to the queue. It fails with QUEUE_FULL rather than block.
func (p *Pool) Submit(job Job) error {
	if atomic.LoadInt32(&p.shutdown32) == 1 {
		return errors.NewScanError(errors.CodeCanceled, "worker pool is shut down")
	}

	select {
	case p.jobs <- job:
		p.logger.Debug("Job submitted to worker pool",
			"job_id", job.ID(),
			"job_type", job.Type())
		return nil
	case <-p.ctx.Done():
		return errors.NewScanError(errors.CodeCanceled, "worker pool is shutting down")
	default:
		return errors.NewScanError(errors.CodeQueueFull,
			fmt.Sprintf("job queue is full (%d queued)", p.config.QueueSize))
	}
}

// Results returns a channel of job results. Results are dropped when nobody
// reads them.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Queued returns the number of jobs waiting for a worker.
func (p *Pool) Queued() int {
	return len(p.jobs)
}

// Running returns the number of jobs being executed.
func (p *Pool) Running() int {
	return int(atomic.LoadInt32(&p.inFlight))
}

// Shutdown cancels running jobs, discards queued ones and waits for the
// workers to exit or the shutdown timeout to pass.
func (p *Pool) Shutdown() error {
	if !atomic.CompareAndSwapInt32(&p.shutdown32, 0, 1) {
		return nil
	}

	p.logger.Info("Shutting down worker pool")
	p.cancel()
	p.discardQueued()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// A Submit racing the shutdown flag may have queued one more.
		p.discardQueued()
		p.logger.Info("Worker pool shutdown completed")
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("Worker pool shutdown timeout", "running", p.Running())
		return errors.NewScanError(errors.CodeCanceled, "worker pool shutdown timed out")
	}
}

// discardQueued empties the queue, telling each job it will not run.
func (p *Pool) discardQueued() {
	for {
		select {
		case job := <-p.jobs:
			if d, ok := job.(Discarder); ok {
				d.Discard()
			}
			p.logger.Debug("Queued job discarded", "job_id", job.ID(), "job_type", job.Type())
		default:
			return
		}
	}
}

func (p *Pool) run(id int) {
	defer p.wg.Done()

	p.logger.Debug("Worker started", "worker_id", id)
	defer p.logger.Debug("Worker stopped", "worker_id", id)

	for {
		// Shutdown takes priority over queued work.
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		select {
		case job := <-p.jobs:
			p.execute(id, job)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) execute(workerID int, job Job) {
	atomic.AddInt32(&p.inFlight, 1)
	defer atomic.AddInt32(&p.inFlight, -1)

	start := time.Now()
	err := job.Execute(p.ctx)
	duration := time.Since(start)

	if err != nil {
		p.logger.Warn("Job failed",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"duration", duration,
			"worker_id", workerID,
			"error", err)
	} else {
		p.logger.Debug("Job completed",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"duration", duration,
			"worker_id", workerID)
	}

	select {
	case p.results <- Result{JobID: job.ID(), JobType: job.Type(), Error: err, Duration: duration}:
	default:
	}
}
