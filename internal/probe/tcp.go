package probe

import (
	"context"
	"net"
	"time"

	"github.com/anstrom/pingscan/internal/services"
)

// TCPProber checks a port with a full TCP connect. An accepted connection is a
// success, a RST is ErrorRefused and silence is ErrorTimeout.
type TCPProber struct {
	dialer net.Dialer
}

var _ Prober = (*TCPProber)(nil)

// NewTCPProber creates a TCP connect prober.
func NewTCPProber() *TCPProber {
	return &TCPProber{}
}

// Protocol implements Prober.
func (p *TCPProber) Protocol() services.Protocol {
	return services.TCP
}

// Probe implements Prober.
func (p *TCPProber) Probe(ctx context.Context, address string, port int, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", hostPort(address, port))
	if err != nil {
		return Failure(ClassifyError(err), err)
	}
	elapsed := time.Since(start)
	_ = conn.Close()

	return Success(elapsed)
}
