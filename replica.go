package blrouter

// Replica is one downstream attachment: a transport link this router
// relays events to once the replica's position has caught up to the
// stream head.
type Replica struct {
	ID        string
	Link      interface{}
	BinlogPos uint32
	Seqno     byte
}

// AddReplica registers a downstream replica that has completed its own
// handshake (an external event per spec; this core only models the
// resulting entry in the replica set). The caller is responsible for
// replaying SavedMaster buffers to link before traffic starts flowing;
// SavedMaster is exposed via RouterInstance.SavedMaster for that purpose.
func (r *RouterInstance) AddReplica(rep *Replica) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replicas[rep.ID] = rep
}

// RemoveReplica detaches a replica, typically on transport close.
func (r *RouterInstance) RemoveReplica(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.replicas, id)
}

// distribute forwards one already-persisted event to every replica
// whose BinlogPos matches its pre-image position. Called with the
// router lock held by the caller (the serialized processing region);
// Transport.Write to a replica link must be non-blocking so this never stalls the
// whole fan-out on one slow downstream.
func (r *RouterInstance) distribute(hdr EventHeader, eventBytes []byte) {
	preImage := hdr.PreImagePos()
	for _, rep := range r.replicas {
		if rep.BinlogPos != preImage {
			// Not at the stream head for this event; it will catch up
			// through the separate replay path outside this core.
			continue
		}
		pkt := make([]byte, 0, 5+len(eventBytes))
		pkt = encodeUint(pkt, uint32(len(eventBytes)+1), 24)
		pkt = append(pkt, rep.Seqno)
		rep.Seqno++ // wraps mod 256 via byte overflow
		pkt = append(pkt, 0x00)
		pkt = append(pkt, eventBytes...)

		r.transport.Write(rep.Link, pkt)
		rep.BinlogPos = hdr.NextPos
	}
}

// Rotate events carry no extra per-replica bookkeeping beyond what
// distribute already does: a Replica (per the data model) tracks only
// BinlogPos, not a filename, so the original's separate
// replica-rotate handler collapses here into the same position update
// distribute performs for every event, rotate or not.
