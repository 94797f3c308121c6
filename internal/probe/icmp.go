package probe

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/anstrom/pingscan/internal/services"
)

const (
	protocolICMP     = 1
	protocolICMPv6   = 58
	icmpReadBuffer   = 1500
	icmpEchoPayload  = "pingscan"
	icmpIdentityMask = 0xffff
)

var icmpSequence atomic.Uint32

// ICMPProber sends a single echo request and waits for the matching reply.
// It prefers unprivileged datagram ICMP sockets and falls back to raw sockets,
// which need CAP_NET_RAW or root.
type ICMPProber struct {
	resolver *net.Resolver
	id       int
}

var _ Prober = (*ICMPProber)(nil)

// NewICMPProber creates an ICMP echo prober.
func NewICMPProber() *ICMPProber {
	return &ICMPProber{
		resolver: net.DefaultResolver,
		id:       os.Getpid() & icmpIdentityMask,
	}
}

// Protocol implements Prober.
func (p *ICMPProber) Protocol() services.Protocol {
	return services.ICMP
}

// Probe implements Prober. The port is ignored.
func (p *ICMPProber) Probe(ctx context.Context, address string, _ int, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ip, err := p.resolve(ctx, address)
	if err != nil {
		return Failure(ClassifyError(err), err)
	}

	conn, privileged, err := listenICMP(ip.Is4())
	if err != nil {
		return Failure(ErrorOther, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	seq := int(icmpSequence.Add(1) & icmpIdentityMask)
	request, err := echoRequest(ip.Is4(), p.id, seq)
	if err != nil {
		return Failure(ErrorOther, err)
	}

	start := time.Now()
	if _, err := conn.WriteTo(request, destination(ip, privileged)); err != nil {
		return Failure(ClassifyError(err), err)
	}

	buf := make([]byte, icmpReadBuffer)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return Failure(ClassifyError(err), err)
		}
		if !samePeer(peer, ip) {
			continue
		}
		if matched, err := isEchoReply(ip.Is4(), buf[:n], p.id, seq, privileged); err == nil && matched {
			return Success(time.Since(start))
		}
	}
}

func (p *ICMPProber) resolve(ctx context.Context, address string) (netip.Addr, error) {
	if ip, err := netip.ParseAddr(address); err == nil {
		return ip.Unmap(), nil
	}
	addrs, err := p.resolver.LookupNetIP(ctx, "ip", address)
	if err != nil {
		return netip.Addr{}, err
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("no addresses for %s", address)
	}
	return addrs[0].Unmap(), nil
}

// listenICMP opens an unprivileged ICMP socket, falling back to a raw one.
func listenICMP(v4 bool) (*icmp.PacketConn, bool, error) {
	network, rawNetwork, listenAddr := "udp4", "ip4:icmp", "0.0.0.0"
	if !v4 {
		network, rawNetwork, listenAddr = "udp6", "ip6:ipv6-icmp", "::"
	}

	if conn, err := icmp.ListenPacket(network, listenAddr); err == nil {
		return conn, false, nil
	}
	conn, err := icmp.ListenPacket(rawNetwork, listenAddr)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open ICMP socket: %w", err)
	}
	return conn, true, nil
}

func echoRequest(v4 bool, id, seq int) ([]byte, error) {
	var typ icmp.Type = ipv4.ICMPTypeEcho
	if !v4 {
		typ = ipv6.ICMPTypeEchoRequest
	}
	msg := icmp.Message{
		Type: typ,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: []byte(icmpEchoPayload)},
	}
	return msg.Marshal(nil)
}

func destination(ip netip.Addr, privileged bool) net.Addr {
	if privileged {
		return &net.IPAddr{IP: ip.AsSlice()}
	}
	return &net.UDPAddr{IP: ip.AsSlice()}
}

func samePeer(peer net.Addr, ip netip.Addr) bool {
	switch a := peer.(type) {
	case *net.IPAddr:
		got, ok := netip.AddrFromSlice(a.IP)
		return ok && got.Unmap() == ip
	case *net.UDPAddr:
		got, ok := netip.AddrFromSlice(a.IP)
		return ok && got.Unmap() == ip
	default:
		return false
	}
}

// isEchoReply reports whether data is the reply to our request. Datagram
// sockets rewrite the identifier, so it is only compared on raw sockets.
func isEchoReply(v4 bool, data []byte, id, seq int, privileged bool) (bool, error) {
	proto, want := protocolICMP, icmp.Type(ipv4.ICMPTypeEchoReply)
	if !v4 {
		proto, want = protocolICMPv6, ipv6.ICMPTypeEchoReply
	}

	msg, err := icmp.ParseMessage(proto, data)
	if err != nil {
		return false, err
	}
	if msg.Type != want {
		return false, nil
	}
	echo, ok := msg.Body.(*icmp.Echo)
	if !ok {
		return false, nil
	}
	if privileged && echo.ID != id {
		return false, nil
	}
	return echo.Seq == seq, nil
}
