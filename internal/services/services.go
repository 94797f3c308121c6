// Package services defines the protocols pingscan probes and the ports probed
// for each of them. It resolves caller supplied overrides against the built-in
// defaults into an immutable scan plan.
package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Protocol identifies a probe protocol.
type Protocol string

const (
	ICMP Protocol = "icmp"
	TCP  Protocol = "tcp"
	UDP  Protocol = "udp"
)

// NoPort is the port value used for protocols without a port dimension.
const NoPort = -1

const (
	minPort = 1
	maxPort = 65535

	expectedPortRangeParts = 2
)

// Protocols lists the known protocols in plan order.
var Protocols = []Protocol{ICMP, TCP, UDP}

var (
	defaultICMPPorts = []int{NoPort}
	defaultTCPPorts  = []int{
		7, 9, 20, 21, 22, 23, 25, 53, 80, 88, 110, 111, 135, 139, 143, 194, 389, 443, 445,
		464, 500, 515, 631, 636, 873, 993, 994, 995, 1080, 1433, 1434, 3389, 9100,
	}
	defaultUDPPorts = []int{9, 53, 67, 69, 123, 137, 161, 162, 514, 1812, 5353}
)

// DefaultPorts returns a copy of the built-in port list for a protocol and
// whether the protocol has one.
func DefaultPorts(p Protocol) ([]int, bool) {
	var ports []int
	switch p {
	case ICMP:
		ports = defaultICMPPorts
	case TCP:
		ports = defaultTCPPorts
	case UDP:
		ports = defaultUDPPorts
	default:
		return nil, false
	}
	return append([]int(nil), ports...), true
}

// Entry is one protocol of a plan with its ordered ports.
type Entry struct {
	Protocol Protocol
	Ports    []int
}

// Plan is the resolved, ordered mapping from protocol to ports.
type Plan struct {
	entries []Entry
}

// Entries returns a copy of the plan entries in plan order.
func (p Plan) Entries() []Entry {
	out := make([]Entry, len(p.entries))
	for i, e := range p.entries {
		out[i] = Entry{Protocol: e.Protocol, Ports: append([]int(nil), e.Ports...)}
	}
	return out
}

// Protocols returns the planned protocols in plan order.
func (p Plan) Protocols() []Protocol {
	out := make([]Protocol, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.Protocol
	}
	return out
}

// Ports returns the planned ports for a protocol.
func (p Plan) Ports(protocol Protocol) ([]int, bool) {
	for _, e := range p.entries {
		if e.Protocol == protocol {
			return append([]int(nil), e.Ports...), true
		}
	}
	return nil, false
}

// SlotsPerAddress is the number of probes planned for each address.
func (p Plan) SlotsPerAddress() int {
	n := 0
	for _, e := range p.entries {
		n += len(e.Ports)
	}
	return n
}

// Len returns the number of planned protocols.
func (p Plan) Len() int {
	return len(p.entries)
}

// NewPlan builds a plan from explicit entries without applying defaults.
// Repeated ports are dropped.
func NewPlan(entries ...Entry) Plan {
	plan := Plan{entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		plan.entries = append(plan.entries, Entry{Protocol: e.Protocol, Ports: uniquePorts(e.Ports)})
	}
	return plan
}

// Resolve merges requested ports with the defaults.
//
// A protocol missing from requested is left out of the plan. A protocol with
// an empty list, or a list holding only NoPort, gets its default ports. ICMP
// always gets its single NoPort entry. A nil map requests every known protocol
// with defaults. Repeated ports are planned once, at their first position.
func Resolve(requested map[Protocol][]int) Plan {
	if requested == nil {
		requested = make(map[Protocol][]int, len(Protocols))
		for _, p := range Protocols {
			requested[p] = nil
		}
	}

	plan := Plan{}
	for _, p := range orderedProtocols(requested) {
		ports := requested[p]
		if defaults, ok := DefaultPorts(p); ok && (p == ICMP || onlyNoPort(ports)) {
			ports = defaults
		}
		plan.entries = append(plan.entries, Entry{Protocol: p, Ports: uniquePorts(ports)})
	}
	return plan
}

// orderedProtocols returns the known protocols first, then unknown ones sorted.
func orderedProtocols(requested map[Protocol][]int) []Protocol {
	out := make([]Protocol, 0, len(requested))
	for _, p := range Protocols {
		if _, ok := requested[p]; ok {
			out = append(out, p)
		}
	}

	var extra []Protocol
	for p := range requested {
		if _, known := DefaultPorts(p); !known {
			extra = append(extra, p)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

// uniquePorts copies ports, keeping the first occurrence of each.
func uniquePorts(ports []int) []int {
	out := make([]int, 0, len(ports))
	seen := make(map[int]bool, len(ports))
	for _, port := range ports {
		if !seen[port] {
			seen[port] = true
			out = append(out, port)
		}
	}
	return out
}

func onlyNoPort(ports []int) bool {
	for _, port := range ports {
		if port != NoPort {
			return false
		}
	}
	return true
}

// ParseProtocol validates a protocol name.
func ParseProtocol(name string) (Protocol, error) {
	p := Protocol(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := DefaultPorts(p); !ok {
		return "", fmt.Errorf("unknown protocol: %s", name)
	}
	return p, nil
}

// ParsePorts parses a port specification such as "22,80,1000-1010".
// Ports keep the order they are written in; duplicates are dropped.
// An empty specification yields an empty list.
func ParsePorts(spec string) ([]int, error) {
	var ports []int
	seen := make(map[int]bool)

	add := func(port int) {
		if !seen[port] {
			seen[port] = true
			ports = append(ports, port)
		}
	}

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			start, end, err := parsePortRange(part)
			if err != nil {
				return nil, err
			}
			for port := start; port <= end; port++ {
				add(port)
			}
			continue
		}

		port, err := parsePort(part)
		if err != nil {
			return nil, err
		}
		add(port)
	}
	return ports, nil
}

func parsePortRange(part string) (int, int, error) {
	rangeParts := strings.Split(part, "-")
	if len(rangeParts) != expectedPortRangeParts {
		return 0, 0, fmt.Errorf("invalid port range format: %s", part)
	}

	start, err := parsePort(rangeParts[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := parsePort(rangeParts[1])
	if err != nil {
		return 0, 0, err
	}
	if start > end {
		return 0, 0, fmt.Errorf("invalid port range: %s (start greater than end)", part)
	}
	return start, end, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port: %s", s)
	}
	if port < minPort || port > maxPort {
		return 0, fmt.Errorf("invalid port: %d (must be %d-%d)", port, minPort, maxPort)
	}
	return port, nil
}

// ParseRequest converts a protocol → port-spec mapping, as found in config
// files and API requests, into the form accepted by Resolve.
func ParseRequest(specs map[string]string) (map[Protocol][]int, error) {
	if specs == nil {
		return nil, nil
	}
	requested := make(map[Protocol][]int, len(specs))
	for name, spec := range specs {
		ports, err := ParsePorts(spec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		requested[Protocol(strings.ToLower(strings.TrimSpace(name)))] = ports
	}
	return requested, nil
}
