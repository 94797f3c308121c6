// Package probetest provides a scriptable Prober for tests.
package probetest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anstrom/pingscan/internal/probe"
	"github.com/anstrom/pingscan/internal/services"
)

// Fake answers probes from a script. The zero value is not usable; use New.
type Fake struct {
	protocol services.Protocol

	// Delay is how long each probe takes unless the context ends first.
	Delay time.Duration
	// IgnoreCancel makes probes sleep through cancellation.
	IgnoreCancel bool
	// Respond builds the result for a probe. Nil means success.
	Respond func(address string, port int) probe.Result

	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64

	mu     sync.Mutex
	probed []Call
}

// Call is one recorded probe.
type Call struct {
	Address string
	Port    int
}

// New returns a fake for protocol that succeeds after delay.
func New(protocol services.Protocol, delay time.Duration) *Fake {
	return &Fake{protocol: protocol, Delay: delay}
}

// Succeed answers every probe with success.
func Succeed(protocol services.Protocol, delay time.Duration) *Fake {
	return New(protocol, delay)
}

// Fail answers every probe with the given failure.
func Fail(protocol services.Protocol, delay time.Duration, kind probe.ErrorKind) *Fake {
	f := New(protocol, delay)
	f.Respond = func(string, int) probe.Result { return probe.Failure(kind, nil) }
	return f
}

// Protocol implements probe.Prober.
func (f *Fake) Protocol() services.Protocol {
	return f.protocol
}

// Probe implements probe.Prober.
func (f *Fake) Probe(ctx context.Context, address string, port int, _ time.Duration) probe.Result {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxSeen.Load()
		if n <= prev || f.maxSeen.CompareAndSwap(prev, n) {
			break
		}
	}

	f.mu.Lock()
	f.probed = append(f.probed, Call{Address: address, Port: port})
	f.mu.Unlock()

	if f.Delay > 0 {
		if f.IgnoreCancel {
			time.Sleep(f.Delay)
		} else {
			timer := time.NewTimer(f.Delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return probe.Failure(probe.ErrorOther, ctx.Err())
			}
		}
	}

	if f.Respond == nil {
		return probe.Success(f.Delay)
	}
	return f.Respond(address, port)
}

// Calls returns how many probes were started.
func (f *Fake) Calls() int {
	return int(f.calls.Load())
}

// MaxInFlight returns the highest number of concurrent probes observed.
func (f *Fake) MaxInFlight() int {
	return int(f.maxSeen.Load())
}

// Probed returns the recorded probes in start order.
func (f *Fake) Probed() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.probed...)
}

// Panicking returns a prober whose every probe panics.
func Panicking(protocol services.Protocol) probe.Prober {
	return panicker{protocol: protocol}
}

type panicker struct {
	protocol services.Protocol
}

func (p panicker) Protocol() services.Protocol { return p.protocol }

func (p panicker) Probe(context.Context, string, int, time.Duration) probe.Result {
	panic("prober exploded")
}
