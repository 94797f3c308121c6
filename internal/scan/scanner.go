// Package scan coordinates a single reachability scan: it resolves the service
// plan, initialises the result store, launches the probe tree and exposes the
// scan lifecycle.
//
// A Scanner moves from unstarted to running to finished. Stop may be called
// while running; the scan still has to wind down before it counts as finished.
package scan

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/anstrom/pingscan/internal/errors"
	"github.com/anstrom/pingscan/internal/logging"
	"github.com/anstrom/pingscan/internal/metrics"
	"github.com/anstrom/pingscan/internal/probe"
	"github.com/anstrom/pingscan/internal/results"
	"github.com/anstrom/pingscan/internal/scheduler"
	"github.com/anstrom/pingscan/internal/services"
)

// Status names used for logging and metrics.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
)

// Option configures a Scanner.
type Option func(*Scanner)

// WithTimeout sets the per-probe timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithWorkers sets how many probes may be in flight at once.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLimiter shares admission control with other scans. It overrides
// WithWorkers.
func WithLimiter(l *scheduler.Limiter) Option {
	return func(s *Scanner) {
		s.limiter = l
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(s *Scanner) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithContext sets the parent context of the probe tree. Cancelling it stops
// the scan like Stop does.
func WithContext(ctx context.Context) Option {
	return func(s *Scanner) {
		if ctx != nil {
			s.parent = ctx
		}
	}
}

// Scanner runs one scan. All methods are safe for concurrent use.
type Scanner struct {
	addresses []string
	plan      services.Plan
	registry  probe.Registry

	timeout time.Duration
	workers int
	limiter *scheduler.Limiter
	logger  *logging.Logger
	metrics metrics.Recorder
	parent  context.Context

	mu        sync.Mutex
	store     *results.Store
	handle    *scheduler.Handle
	startedAt time.Time
	stopped   bool

	finalizeOnce sync.Once
	final        *results.Snapshot
}

// New prepares a scan of addresses. requested selects protocols and ports as
// described for services.Resolve; nil scans every protocol with its default
// ports. Every planned protocol needs a prober in registry, otherwise New
// returns a CONFIGURATION error naming the protocol.
func New(addresses []string, requested map[services.Protocol][]int, registry probe.Registry, opts ...Option) (*Scanner, error) {
	plan := services.Resolve(requested)

	if missing := registry.Missing(plan.Protocols()); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, p := range missing {
			names[i] = string(p)
		}
		return nil, errors.ErrMissingProber(strings.Join(names, ", "))
	}

	s := &Scanner{
		addresses: dedupe(addresses),
		plan:      plan,
		registry:  registry,
		timeout:   scheduler.DefaultTimeout,
		logger:    logging.Default(),
		metrics:   metrics.NopRecorder{},
		parent:    context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("scan")
	return s, nil
}

func dedupe(addresses []string) []string {
	seen := make(map[string]bool, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

// Start launches the scan. Calling it again has no effect.
func (s *Scanner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		return
	}

	s.store = results.NewStore()
	s.store.Initialize(s.addresses, s.plan)
	s.startedAt = time.Now()

	s.logger.Info("Starting scan",
		"addresses", len(s.addresses),
		"protocols", s.plan.Protocols(),
		"probes", len(s.addresses)*s.plan.SlotsPerAddress(),
		"timeout", s.timeout)
	s.metrics.ScanStarted()

	s.handle = scheduler.Launch(s.parent, s.addresses, s.plan, s.registry, s.store, scheduler.Options{
		Timeout: s.timeout,
		Workers: s.workers,
		Limiter: s.limiter,
		Logger:  s.logger,
		Metrics: s.metrics,
	})

	go s.watch(s.handle)
}

// watch reports the end of the scan.
func (s *Scanner) watch(h *scheduler.Handle) {
	<-h.Done()

	snap := s.Results()
	sum := snap.Summary()
	status := s.Status()

	s.metrics.ScanFinished(status, time.Since(s.startedAt))
	s.metrics.ObserveHosts(sum.Up, sum.Down, sum.Unknown)
	s.logger.Info("Scan finished",
		"status", status,
		"duration", time.Since(s.startedAt),
		"hosts_up", sum.Up,
		"hosts_down", sum.Down,
		"hosts_unknown", sum.Unknown)
}

// Stop cancels a started scan and returns true. It returns false if the scan
// was never started. Stop does not wait; use Wait or Finished to see the scan
// wind down. Probers that ignore cancellation delay that.
func (s *Scanner) Stop() bool {
	s.mu.Lock()
	h := s.handle
	if h != nil && !s.stopped && h.Alive() {
		s.stopped = true
		s.logger.Info("Stopping scan")
	}
	s.mu.Unlock()

	if h == nil {
		return false
	}
	h.Cancel()
	return true
}

func (s *Scanner) currentHandle() *scheduler.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Started reports whether Start has been called.
func (s *Scanner) Started() bool {
	return s.currentHandle() != nil
}

// Running reports whether the scan is started and still has probes running.
func (s *Scanner) Running() bool {
	h := s.currentHandle()
	return h != nil && h.Alive()
}

// Finished reports whether the scan is started and no longer running.
func (s *Scanner) Finished() bool {
	h := s.currentHandle()
	return h != nil && !h.Alive()
}

// Stopped reports whether Stop cut the scan short.
func (s *Scanner) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Status returns pending, running, completed or stopped.
func (s *Scanner) Status() string {
	switch {
	case !s.Started():
		return StatusPending
	case s.Running():
		return StatusRunning
	case s.Stopped() || s.parent.Err() != nil:
		return StatusStopped
	default:
		return StatusCompleted
	}
}

// Results returns nil before Start. While running it returns a live partial
// snapshot in which no host is down yet. Once finished, host states are
// finalised exactly once; every call gets its own copy of that snapshot.
func (s *Scanner) Results() *results.Snapshot {
	s.mu.Lock()
	h, store := s.handle, s.store
	s.mu.Unlock()

	if h == nil {
		return nil
	}
	if h.Alive() {
		return store.Snapshot()
	}

	s.finalizeOnce.Do(func() {
		store.Finalize()
		s.final = store.Snapshot()
	})
	return s.final.Clone()
}

// Wait blocks until the scan finishes or ctx is done. Waiting on a scan that
// was never started returns a CANCELED error immediately.
func (s *Scanner) Wait(ctx context.Context) error {
	h := s.currentHandle()
	if h == nil {
		return errors.NewScanError(errors.CodeCanceled, "scan not started")
	}
	select {
	case <-h.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the scan finishes, or nil before Start.
func (s *Scanner) Done() <-chan struct{} {
	h := s.currentHandle()
	if h == nil {
		return nil
	}
	return h.Done()
}

// Addresses returns the addresses to scan in order.
func (s *Scanner) Addresses() []string {
	return append([]string(nil), s.addresses...)
}

// Plan returns the resolved protocol and port plan.
func (s *Scanner) Plan() services.Plan {
	return s.plan
}

// Timeout returns the per-probe timeout.
func (s *Scanner) Timeout() time.Duration {
	return s.timeout
}

// StartedAt returns when Start was first called, or the zero time.
func (s *Scanner) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}
