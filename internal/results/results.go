// Package results holds the scan result table: one slot per planned
// (address, protocol, port) probe plus a derived state per host.
//
// The Store is the only writer. Readers get deep copies through Snapshot and
// may read them without further locking while probes keep recording.
package results

import (
	"fmt"
	"sync"
	"time"

	"github.com/anstrom/pingscan/internal/errors"
	"github.com/anstrom/pingscan/internal/probe"
	"github.com/anstrom/pingscan/internal/services"
)

// PortState is the state derived from a single probe outcome.
type PortState string

const (
	PortOpen  PortState = "open"
	PortClose PortState = "close"
	PortNone  PortState = "none"
)

// HostState summarises every probe recorded for one address.
type HostState string

const (
	// HostUnknown means no probe has answered yet. Hosts keep this state
	// while probes are pending, even if every completed probe was silent.
	HostUnknown HostState = "unknown"
	HostUp      HostState = "up"
	// HostDown is only assigned by Finalize.
	HostDown HostState = "down"
)

// PortStateFor derives the port state of a probe.
//
// A successful probe is open for every protocol. For TCP and UDP a refusal is
// close; timeouts and other failures carry no evidence and are none. ICMP has
// no refusal, so any failure is none.
//
// For UDP, close only means an ICMP port unreachable came back and none covers
// both open-but-silent and filtered ports.
func PortStateFor(protocol services.Protocol, succeeded bool, failure *probe.ErrorKind) PortState {
	if succeeded {
		return PortOpen
	}
	if protocol == services.ICMP || failure == nil {
		return PortNone
	}
	if *failure == probe.ErrorRefused {
		return PortClose
	}
	return PortNone
}

// Outcome is a completed probe.
type Outcome struct {
	Succeeded bool             `json:"succeeded" yaml:"succeeded"`
	Duration  *time.Duration   `json:"duration,omitempty" yaml:"duration,omitempty"`
	Failure   *probe.ErrorKind `json:"failure,omitempty" yaml:"failure,omitempty"`
	State     PortState        `json:"state" yaml:"state"`
}

// NewOutcome converts a probe result into an outcome for the given protocol.
func NewOutcome(protocol services.Protocol, res probe.Result) Outcome {
	out := Outcome{Succeeded: res.Succeeded}
	if res.Duration != nil {
		d := *res.Duration
		out.Duration = &d
	}
	if !res.Succeeded && res.Failure != nil {
		kind := *res.Failure
		out.Failure = &kind
	}
	out.State = PortStateFor(protocol, out.Succeeded, out.Failure)
	return out
}

// answered reports whether the outcome is evidence that the host is up.
func (o Outcome) answered() bool {
	return o.State == PortOpen || o.State == PortClose
}

func (o Outcome) clone() Outcome {
	c := o
	if o.Duration != nil {
		d := *o.Duration
		c.Duration = &d
	}
	if o.Failure != nil {
		f := *o.Failure
		c.Failure = &f
	}
	return c
}

// Slot is one planned probe. The zero Slot is pending.
type Slot struct {
	outcome *Outcome
}

// Completed returns a slot holding an outcome.
func Completed(o Outcome) Slot {
	c := o.clone()
	return Slot{outcome: &c}
}

// Pending reports whether the probe for this slot has not completed.
func (s Slot) Pending() bool {
	return s.outcome == nil
}

// Outcome returns the recorded outcome, if any.
func (s Slot) Outcome() (Outcome, bool) {
	if s.outcome == nil {
		return Outcome{}, false
	}
	return s.outcome.clone(), true
}

// MarshalYAML renders a pending slot as null.
func (s Slot) MarshalYAML() (interface{}, error) {
	if s.outcome == nil {
		return nil, nil
	}
	return s.outcome, nil
}

// Table maps address → protocol → port → slot.
type Table map[string]map[services.Protocol]map[int]Slot

// Store aggregates probe outcomes. All methods are safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	addresses []string
	plan      services.Plan
	table     Table
	hosts     map[string]HostState
	finalized bool
}

// NewStore returns an empty store. Call Initialize before recording.
func NewStore() *Store {
	return &Store{
		table: make(Table),
		hosts: make(map[string]HostState),
	}
}

// Initialize creates a pending slot for every planned probe and resets every
// host to unknown. Any previous contents are discarded.
func (s *Store) Initialize(addresses []string, plan services.Plan) {
	table := make(Table, len(addresses))
	hosts := make(map[string]HostState, len(addresses))
	entries := plan.Entries()

	for _, addr := range addresses {
		protocols := make(map[services.Protocol]map[int]Slot, len(entries))
		for _, e := range entries {
			ports := make(map[int]Slot, len(e.Ports))
			for _, port := range e.Ports {
				ports[port] = Slot{}
			}
			protocols[e.Protocol] = ports
		}
		table[addr] = protocols
		hosts[addr] = HostUnknown
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses = append([]string(nil), addresses...)
	s.plan = plan
	s.table = table
	s.hosts = hosts
	s.finalized = false
}

// Record stores the outcome of a planned probe. A host becomes up as soon as
// one of its probes is open or close and never goes back. Recording into a
// slot that was not planned is an error and leaves the table unchanged.
func (s *Store) Record(address string, protocol services.Protocol, port int, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ports, ok := s.table[address][protocol]
	if !ok {
		return errors.NewScanErrorWithTarget(errors.CodeValidation,
			fmt.Sprintf("no planned %s probe", protocol), address)
	}
	if _, ok := ports[port]; !ok {
		return errors.NewScanErrorWithTarget(errors.CodeValidation,
			fmt.Sprintf("no planned %s probe on port %d", protocol, port), address)
	}

	ports[port] = Completed(outcome)
	if outcome.answered() {
		s.hosts[address] = HostUp
	}
	return nil
}

// Finalize marks every still unknown host whose probes have all completed as
// down. Hosts with pending slots, as left by a cancelled scan, stay unknown.
func (s *Store) Finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for addr, state := range s.hosts {
		if state == HostUnknown && !hasPending(s.table[addr]) {
			s.hosts[addr] = HostDown
		}
	}
	s.finalized = true
}

func hasPending(protocols map[services.Protocol]map[int]Slot) bool {
	for _, ports := range protocols {
		for _, slot := range ports {
			if slot.Pending() {
				return true
			}
		}
	}
	return false
}

// Snapshot returns a deep copy of the table and host states.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table := copyTable(s.table, func(slot Slot) Slot {
		if slot.outcome != nil {
			return Completed(*slot.outcome)
		}
		return slot
	})
	hosts := make(map[string]HostState, len(s.hosts))
	for addr, state := range s.hosts {
		hosts[addr] = state
	}

	return &Snapshot{
		Table:     table,
		Hosts:     hosts,
		Finalized: s.finalized,
		addresses: append([]string(nil), s.addresses...),
		plan:      s.plan,
	}
}
