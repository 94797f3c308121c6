package probe

import (
	"context"
	"net"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/miekg/dns"

	"github.com/anstrom/pingscan/internal/services"
)

const (
	udpReadBufferSize = 1500

	snmpCommunity = "public"
	sysDescrOID   = ".1.3.6.1.2.1.1.1.0"
)

// UDPProber sends a datagram and waits for any reply. A reply is a success, an
// ICMP port unreachable (seen as ECONNREFUSED on a connected socket) is
// ErrorRefused, and silence is ErrorTimeout. Silence is ambiguous for UDP: the
// port may be open but mute, or filtered.
type UDPProber struct {
	dialer net.Dialer
}

var _ Prober = (*UDPProber)(nil)

// NewUDPProber creates a UDP prober.
func NewUDPProber() *UDPProber {
	return &UDPProber{}
}

// Protocol implements Prober.
func (p *UDPProber) Protocol() services.Protocol {
	return services.UDP
}

// Probe implements Prober.
func (p *UDPProber) Probe(ctx context.Context, address string, port int, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(ctx, "udp", hostPort(address, port))
	if err != nil {
		return Failure(ClassifyError(err), err)
	}
	defer conn.Close()

	// Unblock the read when the scan is cancelled.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	payload, err := udpPayload(port)
	if err != nil {
		return Failure(ErrorOther, err)
	}

	start := time.Now()
	if _, err := conn.Write(payload); err != nil {
		return Failure(ClassifyError(err), err)
	}

	buf := make([]byte, udpReadBufferSize)
	if _, err := conn.Read(buf); err != nil {
		return Failure(ClassifyError(err), err)
	}
	return Success(time.Since(start))
}

// udpPayload returns a datagram likely to elicit a reply on the given port.
// DNS and SNMP ports get a real request; everything else a single zero byte.
func udpPayload(port int) ([]byte, error) {
	switch port {
	case 53, 5353:
		return dnsQuery()
	case 161, 162:
		return snmpQuery()
	default:
		return []byte{0}, nil
	}
}

func dnsQuery() ([]byte, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(".", dns.TypeNS)
	msg.RecursionDesired = false
	return msg.Pack()
}

// snmpQuery is an SNMPv2c get of sysDescr with the default community. Agents
// configured with another community stay silent, which reads as a timeout.
func snmpQuery() ([]byte, error) {
	packet := &gosnmp.SnmpPacket{
		Version:   gosnmp.Version2c,
		Community: snmpCommunity,
		PDUType:   gosnmp.GetRequest,
		RequestID: 1,
		Variables: []gosnmp.SnmpPDU{{Name: sysDescrOID, Type: gosnmp.Null}},
	}
	return packet.MarshalMsg()
}
