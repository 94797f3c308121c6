package scan

import (
	"context"
	"time"

	"github.com/anstrom/pingscan/internal/probe"
	"github.com/anstrom/pingscan/internal/services"
)

// DefaultPingPort returns the port pinged for a protocol when none is given:
// none for ICMP, 80 for TCP and 53 for UDP.
func DefaultPingPort(protocol services.Protocol) int {
	switch protocol {
	case services.TCP:
		return 80
	case services.UDP:
		return 53
	default:
		return services.NoPort
	}
}

// PingResult is the outcome of pinging one address.
type PingResult struct {
	Address   string           `json:"address" yaml:"address"`
	Succeeded bool             `json:"succeeded" yaml:"succeeded"`
	Duration  *time.Duration   `json:"duration,omitempty" yaml:"duration,omitempty"`
	Failure   *probe.ErrorKind `json:"failure,omitempty" yaml:"failure,omitempty"`
	// Pending is set when the ping never completed because it was stopped.
	Pending bool `json:"pending,omitempty" yaml:"pending,omitempty"`
}

// Pinger probes a single protocol and port on every address. It is a Scanner
// with a one-entry plan and a flat result list.
type Pinger struct {
	*Scanner
	protocol services.Protocol
	port     int
}

// NewPinger prepares a ping of addresses. A port of zero or less selects
// DefaultPingPort; ICMP ignores the port.
func NewPinger(addresses []string, protocol services.Protocol, port int, registry probe.Registry, opts ...Option) (*Pinger, error) {
	if protocol == services.ICMP || port <= 0 {
		port = DefaultPingPort(protocol)
	}

	s, err := New(addresses, map[services.Protocol][]int{protocol: {port}}, registry, opts...)
	if err != nil {
		return nil, err
	}
	return &Pinger{Scanner: s, protocol: protocol, port: port}, nil
}

// Protocol returns the pinged protocol.
func (p *Pinger) Protocol() services.Protocol {
	return p.protocol
}

// Port returns the pinged port, services.NoPort for ICMP.
func (p *Pinger) Port() int {
	return p.port
}

// Pings returns one result per address in address order, or nil before Start.
func (p *Pinger) Pings() []PingResult {
	snap := p.Results()
	if snap == nil {
		return nil
	}

	out := make([]PingResult, 0, len(p.addresses))
	for _, addr := range snap.Addresses() {
		r := PingResult{Address: addr}
		slot, _ := snap.Slot(addr, p.protocol, p.port)
		if o, ok := slot.Outcome(); ok {
			r.Succeeded = o.Succeeded
			r.Duration = o.Duration
			r.Failure = o.Failure
		} else {
			r.Pending = true
		}
		out = append(out, r)
	}
	return out
}

// Run starts the ping, waits for it and returns the results. If ctx ends
// first the ping is stopped and partial results are returned with ctx's error.
func (p *Pinger) Run(ctx context.Context) ([]PingResult, error) {
	p.Start()
	if err := p.Wait(ctx); err != nil {
		p.Stop()
		<-p.Done()
		return p.Pings(), err
	}
	return p.Pings(), nil
}
