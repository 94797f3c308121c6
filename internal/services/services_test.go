package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tcpDefaults, _ := DefaultPorts(TCP)
	udpDefaults, _ := DefaultPorts(UDP)

	t.Run("nil request plans every protocol with defaults", func(t *testing.T) {
		plan := Resolve(nil)
		assert.Equal(t, []Protocol{ICMP, TCP, UDP}, plan.Protocols())

		ports, ok := plan.Ports(ICMP)
		require.True(t, ok)
		assert.Equal(t, []int{NoPort}, ports)
	})

	t.Run("empty request plans nothing", func(t *testing.T) {
		plan := Resolve(map[Protocol][]int{})
		assert.Equal(t, 0, plan.Len())
	})

	tests := []struct {
		name      string
		requested map[Protocol][]int
		expected  map[Protocol][]int
	}{
		{
			name:      "icmp only",
			requested: map[Protocol][]int{ICMP: {}},
			expected:  map[Protocol][]int{ICMP: {NoPort}},
		},
		{
			name:      "tcp only gets defaults",
			requested: map[Protocol][]int{TCP: {}},
			expected:  map[Protocol][]int{TCP: tcpDefaults},
		},
		{
			name:      "udp nil ports gets defaults",
			requested: map[Protocol][]int{UDP: nil},
			expected:  map[Protocol][]int{UDP: udpDefaults},
		},
		{
			name:      "sentinel only list gets defaults",
			requested: map[Protocol][]int{TCP: {NoPort}},
			expected:  map[Protocol][]int{TCP: tcpDefaults},
		},
		{
			name:      "explicit ports are kept verbatim",
			requested: map[Protocol][]int{TCP: {443, 22}, UDP: {53}},
			expected:  map[Protocol][]int{TCP: {443, 22}, UDP: {53}},
		},
		{
			name:      "repeated ports are planned once",
			requested: map[Protocol][]int{TCP: {443, 22, 443, 80, 22}},
			expected:  map[Protocol][]int{TCP: {443, 22, 80}},
		},
		{
			name:      "icmp ports are always replaced",
			requested: map[Protocol][]int{ICMP: {80, 443}},
			expected:  map[Protocol][]int{ICMP: {NoPort}},
		},
		{
			name:      "unknown protocol passes through",
			requested: map[Protocol][]int{"sctp": {9}},
			expected:  map[Protocol][]int{"sctp": {9}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Resolve(tt.requested)
			assert.Equal(t, len(tt.expected), plan.Len())
			for protocol, want := range tt.expected {
				got, ok := plan.Ports(protocol)
				require.True(t, ok, "protocol %s missing", protocol)
				assert.Equal(t, want, got)
			}
			for _, p := range Protocols {
				if _, want := tt.expected[p]; !want {
					_, ok := plan.Ports(p)
					assert.False(t, ok, "protocol %s should be omitted", p)
				}
			}
		})
	}
}

func TestSlotsPerAddressCountsDistinctPorts(t *testing.T) {
	plan := Resolve(map[Protocol][]int{ICMP: nil, TCP: {80, 80, 443}, UDP: {53, 53}})
	assert.Equal(t, 4, plan.SlotsPerAddress())

	plan = NewPlan(Entry{Protocol: TCP, Ports: []int{22, 22, 80}})
	ports, _ := plan.Ports(TCP)
	assert.Equal(t, []int{22, 80}, ports)
	assert.Equal(t, 2, plan.SlotsPerAddress())
}

func TestResolveOrderAndIsolation(t *testing.T) {
	requested := map[Protocol][]int{UDP: {53}, "zeta": {1}, TCP: {80}, ICMP: nil, "alpha": {2}}
	plan := Resolve(requested)
	assert.Equal(t, []Protocol{ICMP, TCP, UDP, "alpha", "zeta"}, plan.Protocols())
	assert.Equal(t, 5, plan.SlotsPerAddress())

	requested[TCP][0] = 8080
	ports, _ := plan.Ports(TCP)
	assert.Equal(t, []int{80}, ports, "plan must not alias the request")

	entries := plan.Entries()
	entries[1].Ports[0] = 1
	ports, _ = plan.Ports(TCP)
	assert.Equal(t, []int{80}, ports, "entries must be copies")
}

func TestDefaultPorts(t *testing.T) {
	tcp, ok := DefaultPorts(TCP)
	require.True(t, ok)
	assert.Len(t, tcp, 33)
	assert.Equal(t, 7, tcp[0])
	assert.Equal(t, 9100, tcp[len(tcp)-1])

	udp, ok := DefaultPorts(UDP)
	require.True(t, ok)
	assert.Equal(t, []int{9, 53, 67, 69, 123, 137, 161, 162, 514, 1812, 5353}, udp)

	_, ok = DefaultPorts("sctp")
	assert.False(t, ok)
}

func TestParsePorts(t *testing.T) {
	tests := []struct {
		name     string
		spec     string
		expected []int
		wantErr  bool
	}{
		{"single port", "80", []int{80}, false},
		{"list keeps order", "443,22,80", []int{443, 22, 80}, false},
		{"range", "20-23", []int{20, 21, 22, 23}, false},
		{"mixed with spaces and duplicates", " 22, 20-23 ,80", []int{22, 20, 21, 23, 80}, false},
		{"empty spec", "", nil, false},
		{"not a number", "http", nil, true},
		{"zero port", "0", nil, true},
		{"too large", "65536", nil, true},
		{"reversed range", "90-80", nil, true},
		{"malformed range", "1-2-3", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ports, err := ParsePorts(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ports)
		})
	}
}

func TestParseProtocol(t *testing.T) {
	p, err := ParseProtocol(" TCP ")
	require.NoError(t, err)
	assert.Equal(t, TCP, p)

	_, err = ParseProtocol("sctp")
	assert.Error(t, err)
}

func TestParseRequest(t *testing.T) {
	requested, err := ParseRequest(map[string]string{"TCP": "22,80", "icmp": ""})
	require.NoError(t, err)
	assert.Equal(t, []int{22, 80}, requested[TCP])
	assert.Contains(t, requested, ICMP)

	_, err = ParseRequest(map[string]string{"tcp": "x"})
	assert.Error(t, err)

	requested, err = ParseRequest(nil)
	require.NoError(t, err)
	assert.Nil(t, requested)
}
