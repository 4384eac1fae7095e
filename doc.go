/*
Package blrouter implements the master-side core of a binlog fan-out
router: it speaks the MySQL-family replication protocol upstream to a
single primary, and replays each event downstream to many attached
replicas.

To drive the handshake and start streaming:

	r := blrouter.New(blrouter.Config{
		SelfServerID: 9999,
		ListenPort:   3307,
		Storage:      myStorage,
		Transport:    myTransport,
		PrimaryLink:  primaryLink,
	})
	r.StartMaster()

Inbound bytes from the primary are handed to the router as they arrive,
from whatever goroutine the transport layer happens to be running on:

	r.Feed(buffersReadFromSocket)

The router reassembles whole packets, drives the handshake state
machine until streaming begins, and from then on parses each
replication event, persists it through the Storage collaborator, and
forwards it to every Replica whose position has caught up to the
stream head. Replicas attach and detach with AddReplica/RemoveReplica.

This package does not dial sockets, does not decode row-based
replication payloads, and does not implement the downstream replica's
own handshake; the Storage and Transport interfaces are the
collaborators that plug in around it.
*/
package blrouter
