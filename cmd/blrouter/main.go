// Command blrouter connects to a MySQL-family primary as an ordinary
// replica and relays its binlog stream to any downstream replicas that
// attach over plain TCP.
//
// blrouter -primary localhost:3306 -listen :3307 -dir ./binlogs
package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/mxrelay/blrouter"
)

func main() {
	primaryAddr := flag.String("primary", "localhost:3306", "address of the upstream primary")
	listenAddr := flag.String("listen", ":3307", "address downstream replicas connect to")
	dataDir := flag.String("dir", ".", "directory to store binlog files in")
	selfServerID := flag.Uint("server-id", 9999, "server id this router presents to the primary")
	flag.Parse()

	primaryConn, err := net.Dial("tcp", *primaryAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "blrouter: dial primary:", err)
		os.Exit(1)
	}
	defer primaryConn.Close()

	tr := newTCPTransport()

	r := blrouter.New(blrouter.Config{
		SelfServerID: uint32(*selfServerID),
		ListenPort:   listenPort(*listenAddr),
		PrimaryLink:  primaryConn,
		Storage:      blrouter.NewFileStorage(*dataDir),
		Transport:    tr,
	})

	go pump(primaryConn, r)
	r.StartMaster()

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "blrouter: listen:", err)
		os.Exit(1)
	}
	defer ln.Close()

	acceptReplicas(ln, r)
}

// pump feeds bytes arriving from the primary connection into the
// router as they arrive; the router may itself be driven from more
// than one goroutine (the Serializer exists precisely for that case),
// but a single reader per physical connection is the common shape.
func pump(conn net.Conn, r *blrouter.RouterInstance) {
	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			r.Feed([][]byte{chunk})
		}
		if err != nil {
			return
		}
	}
}

func listenPort(addr string) uint16 {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return uint16(port)
}

// acceptReplicas registers each inbound connection as a replica as soon
// as it is accepted, under a generated id, and removes it once a read
// from the connection fails; this is a minimal stand-in for the
// downstream replica handshake, which is out of scope for the core.
func acceptReplicas(ln net.Listener, r *blrouter.RouterInstance) {
	id := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		id++
		rep := &blrouter.Replica{ID: fmt.Sprintf("replica-%d", id), Link: conn}
		r.AddReplica(rep)
		go func(c net.Conn) {
			buf := make([]byte, 1)
			for {
				if _, err := c.Read(buf); err != nil {
					r.RemoveReplica(rep.ID)
					return
				}
			}
		}(conn)
	}
}
