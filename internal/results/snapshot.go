package results

import (
	"encoding/json"

	"github.com/anstrom/pingscan/internal/services"
)

// Snapshot is a point-in-time copy of a Store. It shares nothing with the
// store and is not modified after creation.
type Snapshot struct {
	Table     Table                `json:"results" yaml:"results"`
	Hosts     map[string]HostState `json:"hosts" yaml:"hosts"`
	Finalized bool                 `json:"finalized" yaml:"finalized"`

	addresses []string
	plan      services.Plan
}

// Clone returns a deep copy of the snapshot. Callers that hand a cached
// snapshot to several readers give each one a clone.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	hosts := make(map[string]HostState, len(s.Hosts))
	for addr, state := range s.Hosts {
		hosts[addr] = state
	}
	return &Snapshot{
		Table:     copyTable(s.Table, func(slot Slot) Slot { return slot }),
		Hosts:     hosts,
		Finalized: s.Finalized,
		addresses: append([]string(nil), s.addresses...),
		plan:      s.plan,
	}
}

// copyTable copies every level of a table, passing each slot through fn.
func copyTable(src Table, fn func(Slot) Slot) Table {
	table := make(Table, len(src))
	for addr, protocols := range src {
		pc := make(map[services.Protocol]map[int]Slot, len(protocols))
		for proto, ports := range protocols {
			sc := make(map[int]Slot, len(ports))
			for port, slot := range ports {
				sc[port] = fn(slot)
			}
			pc[proto] = sc
		}
		table[addr] = pc
	}
	return table
}

// Progress counts completed and planned probes.
type Progress struct {
	Completed int `json:"completed" yaml:"completed"`
	Total     int `json:"total" yaml:"total"`
}

// Percent returns the completed share in the range 0-100.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return float64(p.Completed) * 100 / float64(p.Total)
}

// Summary counts hosts per state.
type Summary struct {
	Up      int `json:"up" yaml:"up"`
	Down    int `json:"down" yaml:"down"`
	Unknown int `json:"unknown" yaml:"unknown"`
}

// Addresses returns the scanned addresses in scan order.
func (s *Snapshot) Addresses() []string {
	return append([]string(nil), s.addresses...)
}

// Plan returns the protocol and port plan the table was built from.
func (s *Snapshot) Plan() services.Plan {
	return s.plan
}

// Host returns the state of one address.
func (s *Snapshot) Host(address string) (HostState, bool) {
	state, ok := s.Hosts[address]
	return state, ok
}

// Slot returns the slot for one planned probe.
func (s *Snapshot) Slot(address string, protocol services.Protocol, port int) (Slot, bool) {
	slot, ok := s.Table[address][protocol][port]
	return slot, ok
}

// Progress counts completed slots.
func (s *Snapshot) Progress() Progress {
	var p Progress
	for _, protocols := range s.Table {
		for _, ports := range protocols {
			for _, slot := range ports {
				p.Total++
				if !slot.Pending() {
					p.Completed++
				}
			}
		}
	}
	return p
}

// Summary counts hosts per state.
func (s *Snapshot) Summary() Summary {
	var sum Summary
	for _, state := range s.Hosts {
		switch state {
		case HostUp:
			sum.Up++
		case HostDown:
			sum.Down++
		default:
			sum.Unknown++
		}
	}
	return sum
}

// Pending lists the slots that have not completed, in scan order.
func (s *Snapshot) Pending(address string) []PlannedProbe {
	var out []PlannedProbe
	for _, e := range s.plan.Entries() {
		for _, port := range e.Ports {
			if slot, ok := s.Slot(address, e.Protocol, port); ok && slot.Pending() {
				out = append(out, PlannedProbe{Protocol: e.Protocol, Port: port})
			}
		}
	}
	return out
}

// PlannedProbe identifies one slot of an address.
type PlannedProbe struct {
	Protocol services.Protocol
	Port     int
}

// MarshalJSON renders a pending slot as null.
func (s Slot) MarshalJSON() ([]byte, error) {
	if s.outcome == nil {
		return []byte("null"), nil
	}
	return json.Marshal(s.outcome)
}
