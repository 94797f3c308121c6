// Package probe performs single reachability probes against one address and
// port. Each protocol has its own Prober; a Registry binds protocols to probers
// explicitly so a scan can fail fast when a protocol has no handler.
package probe

//go:generate mockgen -destination=mocks/mock_prober.go -package=mocks github.com/anstrom/pingscan/internal/probe Prober

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/anstrom/pingscan/internal/services"
)

// ErrorKind classifies why a probe did not succeed.
type ErrorKind string

const (
	ErrorRefused ErrorKind = "connection-refused"
	ErrorTimeout ErrorKind = "timeout"
	ErrorOther   ErrorKind = "other"
)

// Result is the outcome of one probe. Failure is set only when Succeeded is
// false; Duration is set only when the latency was measured.
type Result struct {
	Succeeded bool
	Duration  *time.Duration
	Failure   *ErrorKind
	// Err keeps the underlying error for logging. It is never surfaced as a
	// scan error.
	Err error
}

// Success builds a successful result with the measured latency.
func Success(d time.Duration) Result {
	return Result{Succeeded: true, Duration: &d}
}

// Failure builds a failed result of the given kind.
func Failure(kind ErrorKind, err error) Result {
	return Result{Failure: &kind, Err: err}
}

// Prober probes one (address, port) pair for a single protocol.
type Prober interface {
	// Probe returns within roughly timeout. Implementations should also return
	// early when ctx is cancelled.
	Probe(ctx context.Context, address string, port int, timeout time.Duration) Result
	// Protocol returns the protocol the prober handles.
	Protocol() services.Protocol
}

// Run calls p.Probe and turns a panic into an ErrorOther failure so that one
// misbehaving prober cannot take down sibling probes.
func Run(ctx context.Context, p Prober, address string, port int, timeout time.Duration) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failure(ErrorOther, fmt.Errorf("prober panic: %v", r))
		}
	}()

	res = p.Probe(ctx, address, port, timeout)
	if res.Succeeded {
		res.Failure = nil
	} else if res.Failure == nil {
		kind := ClassifyError(res.Err)
		res.Failure = &kind
	}
	return res
}

// ClassifyError maps a network error to an ErrorKind.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrorOther
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrorRefused
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTimeout
	}

	msg := err.Error()
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "actively refused") {
		return ErrorRefused
	}
	return ErrorOther
}

// Registry maps protocols to their probers.
type Registry map[services.Protocol]Prober

// NewRegistry builds a registry keyed by each prober's protocol.
func NewRegistry(probers ...Prober) Registry {
	r := make(Registry, len(probers))
	for _, p := range probers {
		r[p.Protocol()] = p
	}
	return r
}

// DefaultRegistry returns probers for ICMP, TCP and UDP.
func DefaultRegistry() Registry {
	return NewRegistry(NewICMPProber(), NewTCPProber(), NewUDPProber())
}

// Lookup returns the prober for a protocol.
func (r Registry) Lookup(protocol services.Protocol) (Prober, bool) {
	p, ok := r[protocol]
	return p, ok
}

// Missing returns the protocols from the list that have no prober, sorted.
func (r Registry) Missing(protocols []services.Protocol) []services.Protocol {
	var missing []services.Protocol
	for _, p := range protocols {
		if _, ok := r[p]; !ok {
			missing = append(missing, p)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

// Protocols returns the registered protocols, sorted.
func (r Registry) Protocols() []services.Protocol {
	out := make([]services.Protocol, 0, len(r))
	for p := range r {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// hostPort joins an address and port, accepting bare IPv6 literals.
func hostPort(address string, port int) string {
	return net.JoinHostPort(address, fmt.Sprintf("%d", port))
}
