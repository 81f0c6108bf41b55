package update

import (
	"net"
	"time"
)

// Gate answers whether the network is worth trying before an update
// cycle runs. Scheduled updates are skipped entirely while offline.
type Gate interface {
	Online() bool
}

// DialGate probes connectivity with a short TCP dial against a known
// well-connected endpoint.
type DialGate struct {
	Address string
	Timeout time.Duration
}

// NewDialGate returns a gate probing addr, in host:port form.
func NewDialGate(addr string) *DialGate {
	return &DialGate{Address: addr, Timeout: 5 * time.Second}
}

// Online reports whether the probe endpoint accepted a connection.
func (g *DialGate) Online() bool {
	conn, err := net.DialTimeout("tcp", g.Address, g.Timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// AlwaysOnline is a gate that never blocks an update.
type AlwaysOnline struct{}

// Online always reports true.
func (AlwaysOnline) Online() bool { return true }
