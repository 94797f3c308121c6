package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/pingscan/internal/errors"
	"github.com/anstrom/pingscan/internal/hostspec"
	"github.com/anstrom/pingscan/internal/logging"
	"github.com/anstrom/pingscan/internal/metrics"
	"github.com/anstrom/pingscan/internal/probe"
	"github.com/anstrom/pingscan/internal/results"
	"github.com/anstrom/pingscan/internal/scan"
	"github.com/anstrom/pingscan/internal/scheduler"
	"github.com/anstrom/pingscan/internal/services"
)

// StatusQueued is reported for a scan waiting for a free worker.
const StatusQueued = "queued"

// stallFactor is how many probe timeouts a slot may be held before the
// probe counts as stalled.
const stallFactor = 4

// Sources of a scan.
const (
	SourceAPI      = "api"
	SourceSchedule = "schedule"
)

// Request describes a scan to run.
type Request struct {
	// Name labels the scan, e.g. with the schedule that created it.
	Name   string
	Source string
	// Targets is a host specification as accepted by hostspec.Expand.
	Targets string
	// Services maps protocol names to port specifications. Nil scans every
	// protocol with its default ports.
	Services map[string]string
	// Timeout overrides the per-probe timeout when positive.
	Timeout time.Duration
	// Workers, when positive, gives the scan its own admission bound instead
	// of the shared one. It is capped at Config.Workers.
	Workers int
}

// Config holds Manager settings.
type Config struct {
	Pool PoolConfig
	// Workers bounds the probes in flight across all scans.
	Workers int
	// Timeout is the default per-probe timeout.
	Timeout time.Duration
	// MaxAddresses bounds the expansion of a single request.
	MaxAddresses int
	// Retention is how long finished scans stay retrievable. Zero keeps
	// them forever.
	Retention time.Duration
}

// ScanJob is a submitted scan. It implements Job.
type ScanJob struct {
	id        string
	name      string
	source    string
	targets   string
	createdAt time.Time
	scanner   *scan.Scanner

	mu         sync.Mutex
	cancelled  bool
	finishedAt time.Time
}

// Info is the externally visible state of a ScanJob.
type Info struct {
	ID        string           `json:"id" yaml:"id"`
	Name      string           `json:"name,omitempty" yaml:"name,omitempty"`
	Source    string           `json:"source" yaml:"source"`
	Targets   string           `json:"targets" yaml:"targets"`
	Status    string           `json:"status" yaml:"status"`
	Addresses int              `json:"addresses" yaml:"addresses"`
	Protocols []string         `json:"protocols" yaml:"protocols"`
	Timeout   string           `json:"timeout" yaml:"timeout"`
	CreatedAt time.Time        `json:"created_at" yaml:"created_at"`
	StartedAt *time.Time       `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Progress  results.Progress `json:"progress" yaml:"progress"`
	Summary   results.Summary  `json:"summary" yaml:"summary"`
}

// ID implements Job.
func (j *ScanJob) ID() string {
	return j.id
}

// Type implements Job.
func (j *ScanJob) Type() string {
	return "scan"
}

// Execute runs the scan to completion. If ctx ends first, the scan is stopped
// and Execute waits for it to wind down.
func (j *ScanJob) Execute(ctx context.Context) error {
	j.mu.Lock()
	if j.cancelled {
		j.finishedAt = time.Now()
		j.mu.Unlock()
		return nil
	}
	j.scanner.Start()
	j.mu.Unlock()

	err := j.scanner.Wait(ctx)
	if err != nil {
		j.scanner.Stop()
		<-j.scanner.Done()
	}

	j.mu.Lock()
	j.finishedAt = time.Now()
	j.mu.Unlock()
	return err
}

// Discard implements Discarder: a scan dropped from the queue at shutdown
// ends as stopped without scanning.
func (j *ScanJob) Discard() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.finishedAt.IsZero() || j.scanner.Started() {
		return
	}
	j.cancelled = true
	j.finishedAt = time.Now()
}

// Stop cancels the scan, whether it is queued or running. It reports false
// if the scan had already finished.
func (j *ScanJob) Stop() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.finishedAt.IsZero() {
		return false
	}
	if !j.scanner.Started() {
		j.cancelled = true
		return true
	}
	if j.scanner.Finished() {
		return false
	}
	return j.scanner.Stop()
}

// Status returns queued, running, completed or stopped.
func (j *ScanJob) Status() string {
	j.mu.Lock()
	cancelled := j.cancelled
	j.mu.Unlock()

	switch {
	case cancelled:
		return scan.StatusStopped
	case !j.scanner.Started():
		return StatusQueued
	default:
		return j.scanner.Status()
	}
}

// Done reports whether the job will not change any more.
func (j *ScanJob) Done() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return !j.finishedAt.IsZero()
}

// Results returns the current snapshot, or nil while queued.
func (j *ScanJob) Results() *results.Snapshot {
	return j.scanner.Results()
}

// Scanner returns the underlying scanner.
func (j *ScanJob) Scanner() *scan.Scanner {
	return j.scanner
}

// Info summarises the job.
func (j *ScanJob) Info() Info {
	plan := j.scanner.Plan()
	protocols := make([]string, 0, len(plan.Protocols()))
	for _, p := range plan.Protocols() {
		protocols = append(protocols, string(p))
	}

	info := Info{
		ID:        j.id,
		Name:      j.name,
		Source:    j.source,
		Targets:   j.targets,
		Status:    j.Status(),
		Addresses: len(j.scanner.Addresses()),
		Protocols: protocols,
		Timeout:   j.scanner.Timeout().String(),
		CreatedAt: j.createdAt,
	}
	if started := j.scanner.StartedAt(); !started.IsZero() {
		info.StartedAt = &started
	}
	if snap := j.scanner.Results(); snap != nil {
		info.Progress = snap.Progress()
		info.Summary = snap.Summary()
	} else {
		info.Progress = results.Progress{Total: info.Addresses * plan.SlotsPerAddress()}
		info.Summary = results.Summary{Unknown: info.Addresses}
	}
	return info
}

func (j *ScanJob) expired(now time.Time, retention time.Duration) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return !j.finishedAt.IsZero() && now.Sub(j.finishedAt) > retention
}

// Manager accepts scan requests, queues them on a Pool and keeps them
// retrievable by ID. All probes of all scans share one Limiter.
type Manager struct {
	config   Config
	pool     *Pool
	limiter  *scheduler.Limiter
	registry probe.Registry
	logger   *logging.Logger
	metrics  metrics.Recorder

	mu   sync.RWMutex
	jobs map[string]*ScanJob
}

// NewManager creates a manager. A nil recorder disables metrics.
func NewManager(config Config, registry probe.Registry, logger *logging.Logger, recorder metrics.Recorder) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	if config.Timeout <= 0 {
		config.Timeout = scheduler.DefaultTimeout
	}
	if config.MaxAddresses <= 0 {
		config.MaxAddresses = hostspec.DefaultMaxAddresses
	}

	return &Manager{
		config:   config,
		pool:     NewPool(config.Pool, logger),
		limiter:  scheduler.NewLimiter(config.Workers),
		registry: registry,
		logger:   logger.WithComponent("jobs"),
		metrics:  recorder,
		jobs:     make(map[string]*ScanJob),
	}
}

// Start starts the workers and, with a retention configured, a loop that
// prunes expired scans until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	m.pool.Start()

	if m.config.Retention <= 0 {
		return
	}
	interval := m.config.Retention / 4
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := m.Prune(now); n > 0 {
					m.logger.Debug("Pruned expired scans", "count", n)
				}
			}
		}
	}()
}

// Submit validates a request and queues the scan. Invalid targets yield a
// TARGET_INVALID error, a full queue a QUEUE_FULL error.
func (m *Manager) Submit(req Request) (*ScanJob, error) {
	addresses, err := hostspec.ExpandLimit(req.Targets, m.config.MaxAddresses)
	if err != nil {
		return nil, err
	}

	requested, err := services.ParseRequest(req.Services)
	if err != nil {
		return nil, errors.WrapScanError(errors.CodeValidation, "invalid services", err)
	}

	timeout := m.config.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	source := req.Source
	if source == "" {
		source = SourceAPI
	}

	id := uuid.NewString()
	opts := []scan.Option{
		scan.WithTimeout(timeout),
		scan.WithLogger(m.logger.WithScanID(id)),
		scan.WithMetrics(m.metrics),
	}
	if req.Workers > 0 {
		opts = append(opts, scan.WithWorkers(min(req.Workers, m.limiter.Capacity())))
	} else {
		opts = append(opts, scan.WithLimiter(m.limiter))
	}

	scanner, err := scan.New(addresses, requested, m.registry, opts...)
	if err != nil {
		return nil, err
	}

	job := &ScanJob{
		id:        id,
		name:      req.Name,
		source:    source,
		targets:   req.Targets,
		createdAt: time.Now(),
		scanner:   scanner,
	}

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	if err := m.pool.Submit(job); err != nil {
		m.mu.Lock()
		delete(m.jobs, id)
		m.mu.Unlock()
		return nil, err
	}

	m.logger.Info("Scan queued",
		"scan_id", id,
		"source", source,
		"name", req.Name,
		"addresses", len(addresses))
	return job, nil
}

// Get returns a scan by ID or a NOT_FOUND error.
func (m *Manager) Get(id string) (*ScanJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, errors.ErrNotFound(id)
	}
	return job, nil
}

// List returns all known scans, oldest first.
func (m *Manager) List() []*ScanJob {
	m.mu.RLock()
	out := make([]*ScanJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool {
		if out[i].createdAt.Equal(out[k].createdAt) {
			return out[i].id < out[k].id
		}
		return out[i].createdAt.Before(out[k].createdAt)
	})
	return out
}

// Stop stops a scan by ID.
func (m *Manager) Stop(id string) (bool, error) {
	job, err := m.Get(id)
	if err != nil {
		return false, err
	}
	stopped := job.Stop()
	if stopped {
		m.logger.Info("Scan stop requested", "scan_id", id)
	}
	return stopped, nil
}

// Prune forgets finished scans older than the retention period and returns
// how many were removed.
func (m *Manager) Prune(now time.Time) int {
	if m.config.Retention <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for id, job := range m.jobs {
		if job.expired(now, m.config.Retention) {
			delete(m.jobs, id)
			n++
		}
	}
	return n
}

// Stats reports queue and limiter state for the health endpoint.
func (m *Manager) Stats() map[string]interface{} {
	m.mu.RLock()
	total := len(m.jobs)
	m.mu.RUnlock()

	// A probe holding its slot well past its own timeout ignored cancellation.
	stalled := m.limiter.Overdue(stallFactor)

	return map[string]interface{}{
		"scans":   total,
		"queued":  m.pool.Queued(),
		"running": m.pool.Running(),
		"stalled": len(stalled),
		"probes":  m.limiter.Stats(),
	}
}

// Shutdown stops every running scan and waits for the workers to exit.
func (m *Manager) Shutdown() error {
	err := m.pool.Shutdown()
	m.limiter.Close()
	return err
}
