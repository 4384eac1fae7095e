package blrouter

// Stats holds the router's operational counters. Written only inside
// the serialized processing region; readers (monitoring) either accept
// torn reads or take the router lock.
type Stats struct {
	EventsTotal  uint64
	Events       [maxEventType]uint64
	FakeEvents   uint64
	Rotates      uint64
	BinlogErrors uint64
}

// handleEvent is the EventRouter: for each whole packet delivered by
// the PacketAssembler while in StateBinlogDump, it parses the
// replication header, updates counters, handles the special event
// kinds, and persists/distributes everything else.
func (r *RouterInstance) handleEvent(pkt []byte) {
	hdr, err := decodeEventHeader(pkt)
	if err != nil {
		r.logf("blrouter: dropping undersized packet: %v", err)
		return
	}

	if hdr.OK != 0 {
		msg := ""
		if len(pkt) > 7 {
			msg = newFieldReader(pkt[7:]).stringNull()
		}
		r.stats.BinlogErrors++
		r.logf("blrouter: binlog error from primary: %s", msg)
		return
	}

	r.stats.EventsTotal++
	if int(hdr.EventType) < maxEventType {
		r.stats.Events[hdr.EventType]++
	}

	// Format-Description handling: a fake FDE (next_pos == 0) carries
	// the event-format bookkeeping the stream opens with. It is saved
	// verbatim for replay to newly attached replicas, never persisted
	// or distributed.
	if hdr.EventType == formatDescriptionEvent && hdr.NextPos == 0 {
		r.stats.FakeEvents++
		end := 5 + int(hdr.EventSize)
		if end > len(pkt) {
			end = len(pkt)
		}
		r.savedMaster.FDEEvent = append([]byte(nil), pkt[5:end]...)
		r.savedMaster.FDELen = hdr.EventSize
		return
	}

	if hdr.EventType == heartbeatEvent {
		return
	}

	if hdr.Artificial() {
		// Synthetic bookkeeping event: never persisted or forwarded,
		// but a rotate payload inside one still updates our own
		// position/name tracking. The payload pointer is the same one
		// used for persisted events: advanced past the single leading
		// OK byte, not past the common header.
		if hdr.EventType == rotateEvent {
			r.handleRotate(hdr, pkt[5:])
		}
		return
	}

	// The leading OK byte is not persisted; everything from the
	// common header onward is the event payload the storage
	// collaborator and downstream replicas see.
	body := pkt[5:]
	r.storage.Write(hdr, body)
	r.distribute(hdr, body)

	// binlog_position is non-decreasing except across a rotate (§3):
	// every distributed event advances it to the event's own next_pos,
	// the same position a newly caught-up replica would be at.
	r.binlogPosition = uint64(hdr.NextPos)

	if hdr.EventType == rotateEvent {
		r.handleRotate(hdr, body)
	}
}

// handleRotate decodes a rotate event's payload: body is the event
// starting at its 19-byte common header (the same bytes passed to the
// storage collaborator). After skipping the common header, an 8-byte
// little-endian file position (low then high 32 bits) and the new
// filename follow; if the name actually changed, the router's own
// tracking is updated and the storage collaborator is signalled.
func (r *RouterInstance) handleRotate(hdr EventHeader, body []byte) {
	if len(body) < 19 {
		r.logf("blrouter: rotate event too short for common header")
		return
	}
	payload := body[19:]
	fr := newFieldReader(payload)
	lo := fr.int4()
	hi := fr.int4()
	pos := uint64(lo) | uint64(hi)<<32

	nameLen := len(payload) - 8
	if nameLen > binlogFnameLen {
		nameLen = binlogFnameLen
	}
	if nameLen < 0 {
		r.logf("blrouter: rotate payload too short")
		return
	}
	raw := fr.bytes(nameLen)
	name := trimNulPadding(raw)

	if name == r.binlogName {
		return
	}
	r.stats.Rotates++
	r.binlogName = name
	r.binlogPosition = pos
	r.storage.Rotate(name, pos)
}

func trimNulPadding(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
