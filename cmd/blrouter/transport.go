package main

import "net"

// tcpTransport is the Transport collaborator for cmd/blrouter: link is
// always a net.Conn, for both the primary connection and attached
// replicas. Write is expected to be non-blocking by the router's
// contract; a real deployment would give each link its own bounded
// outbound queue and drain it on a per-connection goroutine instead of
// writing synchronously here.
type tcpTransport struct{}

func newTCPTransport() *tcpTransport {
	return &tcpTransport{}
}

func (t *tcpTransport) Write(link interface{}, pkt []byte) {
	conn, ok := link.(net.Conn)
	if !ok {
		return
	}
	conn.Write(pkt)
}

func (t *tcpTransport) Close(link interface{}) {
	if conn, ok := link.(net.Conn); ok {
		conn.Close()
	}
}
