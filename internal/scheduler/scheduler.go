// Package scheduler runs the probes of a scan plan concurrently and records
// their outcomes.
//
// Work is structured as a tree: one unit per address, fanning out into one
// unit per (address, protocol), fanning out into one leaf per port. A parent
// finishes only after all of its children. Leaves are admitted through a
// Limiter, so the number of probes in flight is bounded by its capacity no
// matter how wide the tree is; address units are bounded the same way.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anstrom/pingscan/internal/logging"
	"github.com/anstrom/pingscan/internal/metrics"
	"github.com/anstrom/pingscan/internal/probe"
	"github.com/anstrom/pingscan/internal/results"
	"github.com/anstrom/pingscan/internal/services"
)

// DefaultTimeout is the per-probe timeout used when none is configured.
const DefaultTimeout = 2 * time.Second

// Options tune a launch.
type Options struct {
	// Timeout bounds each probe.
	Timeout time.Duration
	// Workers sizes a private limiter when Limiter is nil.
	Workers int
	// Limiter is shared admission control, for example across all scans
	// of a server.
	Limiter *Limiter
	Logger  *logging.Logger
	Metrics metrics.Recorder
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Limiter == nil {
		o.Limiter = NewLimiter(o.Workers)
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NopRecorder{}
	}
	return o
}

// Handle controls a launched tree.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Alive reports whether any unit of the tree is still running. It never
// blocks.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Cancel stops the tree without waiting for it. Units that have not recorded
// an outcome leave their slot pending. A probe that ignores its context keeps
// the tree alive until it returns. Cancel may be called any number of times.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed once every unit of the tree has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

var launchSeq atomic.Uint64

type tree struct {
	id       uint64
	timeout  time.Duration
	limiter  *Limiter
	registry probe.Registry
	store    *results.Store
	log      *logging.Logger
	metrics  metrics.Recorder
}

// Launch starts probing every planned (address, protocol, port) slot and
// returns at once. The store must already be initialized with the same
// addresses and plan. Cancelling ctx has the same effect as Handle.Cancel.
func Launch(ctx context.Context, addresses []string, plan services.Plan, registry probe.Registry,
	store *results.Store, opts Options) *Handle {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(ctx)

	h := &Handle{cancel: cancel, done: make(chan struct{})}
	t := &tree{
		id:       launchSeq.Add(1),
		timeout:  opts.Timeout,
		limiter:  opts.Limiter,
		registry: registry,
		store:    store,
		log:      opts.Logger.WithComponent("scheduler"),
		metrics:  opts.Metrics,
	}

	addrs := append([]string(nil), addresses...)
	entries := plan.Entries()

	go func() {
		defer close(h.done)
		defer cancel()
		t.run(ctx, addrs, entries)
	}()

	return h
}

func (t *tree) run(ctx context.Context, addresses []string, entries []services.Entry) {
	hosts := make(chan struct{}, t.limiter.Capacity())
	var wg sync.WaitGroup

spawn:
	for _, addr := range addresses {
		select {
		case hosts <- struct{}{}:
		case <-ctx.Done():
			break spawn
		}

		wg.Add(1)
		go func(addr string) {
			defer func() {
				<-hosts
				wg.Done()
			}()
			t.address(ctx, addr, entries)
		}(addr)
	}

	wg.Wait()
	t.log.Debug("Probe tree finished", "launch", t.id, "cancelled", ctx.Err() != nil)
}

func (t *tree) address(ctx context.Context, addr string, entries []services.Entry) {
	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e services.Entry) {
			defer wg.Done()
			t.protocol(ctx, addr, e)
		}(e)
	}
	wg.Wait()
}

func (t *tree) protocol(ctx context.Context, addr string, e services.Entry) {
	prober, ok := t.registry.Lookup(e.Protocol)

	var wg sync.WaitGroup
	seen := make(map[int]bool, len(e.Ports))
	for _, port := range e.Ports {
		if seen[port] {
			continue
		}
		seen[port] = true

		key := fmt.Sprintf("%d/%s/%s/%d", t.id, addr, e.Protocol, port)
		if err := t.limiter.AcquireWithTimeout(ctx, key, t.timeout); err != nil {
			// cancelled or shut down; the remaining ports stay pending
			break
		}

		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			defer t.limiter.Release(key)
			t.leaf(ctx, addr, e.Protocol, prober, ok, port)
		}(port)
	}
	wg.Wait()
}

func (t *tree) leaf(ctx context.Context, addr string, protocol services.Protocol,
	prober probe.Prober, registered bool, port int) {
	var res probe.Result
	if registered {
		res = probe.Run(ctx, prober, addr, port, t.timeout)
	} else {
		res = probe.Failure(probe.ErrorOther, fmt.Errorf("no prober registered for protocol %q", protocol))
	}

	if ctx.Err() != nil {
		// Torn down mid-probe: the result reflects the cancellation, not
		// the target.
		return
	}

	outcome := results.NewOutcome(protocol, res)
	if err := t.store.Record(addr, protocol, port, outcome); err != nil {
		t.log.Warn("Failed to record probe outcome",
			"address", addr, "protocol", protocol, "port", port, "error", err)
		return
	}
	t.metrics.ObserveProbe(string(protocol), string(outcome.State), outcome.Duration)

	if !res.Succeeded && outcome.Failure != nil {
		t.log.Debug("Probe failed",
			"address", addr,
			"protocol", protocol,
			"port", port,
			"failure", *outcome.Failure,
			"state", outcome.State,
			"error", res.Err)
	}
}
