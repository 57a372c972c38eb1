// Package mprpctransport provides small in-memory transports used to wire
// up two Sessions against each other in tests, without a real socket.
package mprpctransport

import (
	"io"
	"net"
)

// Duplex is one end of an in-memory full-duplex byte stream: reads see
// what was written to the peer end, and vice versa.
type Duplex struct {
	net.Conn
}

// Pipe returns two connected Duplex ends, built on net.Pipe the way the
// teacher codebase's in-process transport tests wire up a client and
// server without touching the network stack. Writes block until the peer
// reads, so callers exercising Session.Shutdown should read on a separate
// goroutine from that used to trigger shutdown.
func Pipe() (a, b *Duplex) {
	ca, cb := net.Pipe()
	return &Duplex{Conn: ca}, &Duplex{Conn: cb}
}

// Read/Write are inherited from net.Conn; Close terminates both directions
// of this end. Duplex satisfies io.ReadWriteCloser, which is all
// session.New's r/w parameters plus its io.Closer-based interrupt path need.
var _ io.ReadWriteCloser = (*Duplex)(nil)
