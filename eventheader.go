package blrouter

import "github.com/pkg/errors"

// EventHeader is the decoded form of a whole replication-stream packet:
// the 4-byte MySQL packet header, the 1-byte OK/error marker, and the
// 19-byte common event header that follows it (§3, §6).
type EventHeader struct {
	PayloadLen uint32 // 24 bits: the packet's declared payload length
	Seqno      byte
	OK         byte // nonzero means this packet is an error response, not an event
	Timestamp  uint32
	EventType  byte
	ServerID   uint32
	EventSize  uint32
	NextPos    uint32
	Flags      uint16
}

// headerSize is the fixed, header-inclusive size of a replication
// event packet: 4-byte packet header + 1-byte OK marker + 19-byte
// common event header.
const headerSize = 24

// decodeEventHeader parses a whole packet (as yielded by the
// PacketAssembler) into an EventHeader. pkt must be at least
// headerSize bytes.
func decodeEventHeader(pkt []byte) (EventHeader, error) {
	if len(pkt) < headerSize {
		return EventHeader{}, errors.WithStack(ErrMalformedPacket)
	}
	var h EventHeader
	h.PayloadLen = uint32(pkt[0]) | uint32(pkt[1])<<8 | uint32(pkt[2])<<16
	h.Seqno = pkt[3]
	h.OK = pkt[4]

	body := pkt[5:headerSize]
	h.Timestamp = uint32(body[0]) | uint32(body[1])<<8 | uint32(body[2])<<16 | uint32(body[3])<<24
	h.EventType = body[4]
	h.ServerID = uint32(body[5]) | uint32(body[6])<<8 | uint32(body[7])<<16 | uint32(body[8])<<24
	h.EventSize = uint32(body[9]) | uint32(body[10])<<8 | uint32(body[11])<<16 | uint32(body[12])<<24
	h.NextPos = uint32(body[13]) | uint32(body[14])<<8 | uint32(body[15])<<16 | uint32(body[16])<<24
	h.Flags = uint16(body[17]) | uint16(body[18])<<8
	return h, nil
}

// Artificial reports whether LOG_EVENT_ARTIFICIAL_F is set on the
// event's flags.
func (h EventHeader) Artificial() bool {
	return h.Flags&logEventArtificialF != 0
}

// PreImagePos is the file offset at which this event began:
// next_pos - event_size.
func (h EventHeader) PreImagePos() uint32 {
	return h.NextPos - h.EventSize
}
