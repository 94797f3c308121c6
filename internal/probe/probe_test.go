package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/anstrom/pingscan/internal/probe/mocks"
	"github.com/anstrom/pingscan/internal/services"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{"nil error", nil, ErrorOther},
		{"econnrefused", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, ErrorRefused},
		{"refused message", errors.New("No connection could be made because the target machine actively refused it"), ErrorRefused},
		{"deadline exceeded", context.DeadlineExceeded, ErrorTimeout},
		{"os deadline", fmt.Errorf("read: %w", os.ErrDeadlineExceeded), ErrorTimeout},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, ErrorTimeout},
		{"unreachable", errors.New("connect: network is unreachable"), ErrorOther},
		{"canceled", context.Canceled, ErrorOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyError(tt.err))
		})
	}
}

func TestRun(t *testing.T) {
	ctrl := gomock.NewController(t)

	t.Run("success clears failure", func(t *testing.T) {
		prober := mocks.NewMockProber(ctrl)
		kind := ErrorTimeout
		d := 10 * time.Millisecond
		prober.EXPECT().Probe(gomock.Any(), "10.0.0.1", 80, time.Second).
			Return(Result{Succeeded: true, Duration: &d, Failure: &kind})

		res := Run(context.Background(), prober, "10.0.0.1", 80, time.Second)
		assert.True(t, res.Succeeded)
		assert.Nil(t, res.Failure)
		require.NotNil(t, res.Duration)
		assert.Equal(t, d, *res.Duration)
	})

	t.Run("failure without kind is classified", func(t *testing.T) {
		prober := mocks.NewMockProber(ctrl)
		prober.EXPECT().Probe(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(Result{Err: context.DeadlineExceeded})

		res := Run(context.Background(), prober, "10.0.0.1", 80, time.Second)
		assert.False(t, res.Succeeded)
		require.NotNil(t, res.Failure)
		assert.Equal(t, ErrorTimeout, *res.Failure)
	})

	t.Run("panic becomes other failure", func(t *testing.T) {
		prober := mocks.NewMockProber(ctrl)
		prober.EXPECT().Probe(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, string, int, time.Duration) Result {
				panic("boom")
			})

		res := Run(context.Background(), prober, "10.0.0.1", 80, time.Second)
		assert.False(t, res.Succeeded)
		require.NotNil(t, res.Failure)
		assert.Equal(t, ErrorOther, *res.Failure)
		assert.ErrorContains(t, res.Err, "boom")
	})
}

func TestRegistry(t *testing.T) {
	ctrl := gomock.NewController(t)
	tcp := mocks.NewMockProber(ctrl)
	tcp.EXPECT().Protocol().Return(services.TCP).AnyTimes()

	registry := NewRegistry(tcp)

	p, ok := registry.Lookup(services.TCP)
	assert.True(t, ok)
	assert.Equal(t, tcp, p)

	_, ok = registry.Lookup(services.UDP)
	assert.False(t, ok)

	missing := registry.Missing([]services.Protocol{services.UDP, services.TCP, services.ICMP})
	assert.Equal(t, []services.Protocol{services.ICMP, services.UDP}, missing)
	assert.Equal(t, []services.Protocol{services.TCP}, registry.Protocols())
}

func TestDefaultRegistry(t *testing.T) {
	registry := DefaultRegistry()
	assert.Empty(t, registry.Missing(services.Protocols))
	for _, p := range services.Protocols {
		prober, _ := registry.Lookup(p)
		assert.Equal(t, p, prober.Protocol())
	}
}

func TestTCPProber(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	openPort := listener.Addr().(*net.TCPAddr).Port
	prober := NewTCPProber()

	t.Run("open port", func(t *testing.T) {
		res := prober.Probe(context.Background(), "127.0.0.1", openPort, time.Second)
		assert.True(t, res.Succeeded)
		assert.NotNil(t, res.Duration)
		assert.Nil(t, res.Failure)
	})

	t.Run("closed port is refused", func(t *testing.T) {
		closed, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		closedPort := closed.Addr().(*net.TCPAddr).Port
		require.NoError(t, closed.Close())

		res := prober.Probe(context.Background(), "127.0.0.1", closedPort, time.Second)
		assert.False(t, res.Succeeded)
		require.NotNil(t, res.Failure)
		assert.Equal(t, ErrorRefused, *res.Failure)
	})

	t.Run("cancelled context fails fast", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res := prober.Probe(ctx, "127.0.0.1", openPort, time.Second)
		assert.False(t, res.Succeeded)
	})
}

func TestUDPProber(t *testing.T) {
	server, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	go func() {
		buf := make([]byte, 512)
		for {
			n, addr, err := server.ReadFrom(buf)
			if err != nil {
				return
			}
			_, _ = server.WriteTo(buf[:n], addr)
		}
	}()

	port := server.LocalAddr().(*net.UDPAddr).Port
	prober := NewUDPProber()

	t.Run("reply is success", func(t *testing.T) {
		res := prober.Probe(context.Background(), "127.0.0.1", port, time.Second)
		assert.True(t, res.Succeeded)
		assert.NotNil(t, res.Duration)
	})

	t.Run("closed port fails", func(t *testing.T) {
		closed, err := net.ListenPacket("udp", "127.0.0.1:0")
		require.NoError(t, err)
		closedPort := closed.LocalAddr().(*net.UDPAddr).Port
		require.NoError(t, closed.Close())

		res := prober.Probe(context.Background(), "127.0.0.1", closedPort, 200*time.Millisecond)
		assert.False(t, res.Succeeded)
		assert.NotNil(t, res.Failure)
	})
}

func TestUDPPayload(t *testing.T) {
	payload, err := udpPayload(53)
	require.NoError(t, err)

	msg := new(dns.Msg)
	require.NoError(t, msg.Unpack(payload))
	require.Len(t, msg.Question, 1)
	assert.Equal(t, dns.TypeNS, msg.Question[0].Qtype)

	payload, err = udpPayload(161)
	require.NoError(t, err)
	packet, err := gosnmp.Default.SnmpDecodePacket(payload)
	require.NoError(t, err)
	assert.Equal(t, gosnmp.Version2c, packet.Version)
	assert.Equal(t, gosnmp.GetRequest, packet.PDUType)
	assert.Equal(t, "public", packet.Community)
	require.Len(t, packet.Variables, 1)
	assert.Equal(t, sysDescrOID, packet.Variables[0].Name)

	payload, err = udpPayload(7)
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, payload)
}

func TestEchoReplyMatching(t *testing.T) {
	reply := func(id, seq int) []byte {
		msg := icmp.Message{
			Type: ipv4.ICMPTypeEchoReply,
			Body: &icmp.Echo{ID: id, Seq: seq, Data: []byte(icmpEchoPayload)},
		}
		data, err := msg.Marshal(nil)
		require.NoError(t, err)
		return data
	}

	request, err := echoRequest(true, 7, 9)
	require.NoError(t, err)
	matched, err := isEchoReply(true, request, 7, 9, true)
	require.NoError(t, err)
	assert.False(t, matched, "an echo request is not a reply")

	matched, _ = isEchoReply(true, reply(7, 9), 7, 9, true)
	assert.True(t, matched)

	matched, _ = isEchoReply(true, reply(8, 9), 7, 9, true)
	assert.False(t, matched, "raw sockets compare identifiers")

	matched, _ = isEchoReply(true, reply(8, 9), 7, 9, false)
	assert.True(t, matched, "datagram sockets ignore identifiers")

	matched, _ = isEchoReply(true, reply(7, 10), 7, 9, false)
	assert.False(t, matched)
}
