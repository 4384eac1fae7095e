package blrouter

import "github.com/pkg/errors"

// MySQL-family replication protocol command bytes (offset 0 of the
// payload of an outbound administrative packet).
const (
	comQuery         = 0x03
	comRegisterSlave = 0x15
	comBinlogDump    = 0x12
)

// Event-type constants referenced by the event router. Values follow
// the upstream MySQL 5.6 replication specification.
const (
	formatDescriptionEvent = 0x0f
	rotateEvent            = 0x04
	heartbeatEvent         = 0x1b

	// maxEventType bounds the stats.events counter array. Sized
	// generously past the highest event type in the 5.6 protocol so a
	// future event type added upstream does not index out of range.
	maxEventType = 0x40
)

// logEventArtificialF marks a synthetic event generated by the primary
// for bookkeeping rather than replay (typically a rotate at stream
// start).
const logEventArtificialF = 0x0020

// binlogFnameLen is the fixed field width reserved for a binlog
// filename inside the rotate-event payload and RouterInstance's own
// binlog_name buffer. Implementation-chosen per spec; 256 comfortably
// covers any MySQL binlog filename in practice.
const binlogFnameLen = 256

// dumpRequestFnameLen is the fixed filename field width inside the
// COM_BINLOG_DUMP packet; the packet's total payload length (0x1b) is
// fixed regardless of the actual filename length, so this field is
// narrower than binlogFnameLen.
const dumpRequestFnameLen = 0x1b - 11

// ErrMalformedPacket indicates a packet too short for the field being
// decoded from it.
var ErrMalformedPacket = errors.New("blrouter: malformed packet")

// encodeUint writes v, little-endian, into bits/8 bytes appended to dst.
// bits must be a multiple of 8 in the range 8..32.
func encodeUint(dst []byte, v uint32, bits int) []byte {
	n := bits / 8
	for i := 0; i < n; i++ {
		dst = append(dst, byte(v>>(uint(i)*8)))
	}
	return dst
}

// extractUint is the inverse of encodeUint: it reads bits/8 little-endian
// bytes from the front of src.
func extractUint(src []byte, bits int) (uint32, error) {
	n := bits / 8
	if len(src) < n {
		return 0, errors.WithStack(ErrMalformedPacket)
	}
	var v uint32
	for i := 0; i < n; i++ {
		v |= uint32(src[i]) << (uint(i) * 8)
	}
	return v, nil
}

// packetize wraps payload in a MySQL wire packet: a 3-byte little-endian
// payload length followed by a 1-byte sequence id, then the payload.
// Administrative packets built by this router always use sequence 0.
func packetize(seq byte, payload []byte) []byte {
	pkt := make([]byte, 0, 4+len(payload))
	pkt = encodeUint(pkt, uint32(len(payload)), 24)
	pkt = append(pkt, seq)
	pkt = append(pkt, payload...)
	return pkt
}

// makeQuery builds a COM_QUERY packet: command byte followed by the raw
// query text, with no trailing NUL.
func makeQuery(sql string) []byte {
	payload := make([]byte, 0, 1+len(sql))
	payload = append(payload, comQuery)
	payload = append(payload, sql...)
	return packetize(0, payload)
}

// makeRegisterReplica builds the COM_REGISTER_SLAVE packet that
// registers this router as a replica of the primary.
func makeRegisterReplica(selfServerID uint32, listenPort uint16, primaryServerID uint32) []byte {
	payload := make([]byte, 0, 18)
	payload = append(payload, comRegisterSlave)
	payload = encodeUint(payload, selfServerID, 32)       // 1..4
	payload = append(payload, 0)                          // 5: hostname length
	payload = append(payload, 0)                          // 6: username length
	payload = append(payload, 0)                          // 7: password length
	payload = encodeUint(payload, uint32(listenPort), 16) // 8..9
	payload = encodeUint(payload, 0, 32)                  // 10..13: replication rank
	payload = encodeUint(payload, primaryServerID, 32)    // 14..17
	return packetize(0, payload)
}

// makeDumpRequest builds the COM_BINLOG_DUMP packet that starts
// streaming from binlogPos in binlogName.
func makeDumpRequest(selfServerID uint32, binlogPos uint32, binlogName string) []byte {
	payload := make([]byte, 0, 0x1b)
	payload = append(payload, comBinlogDump)
	payload = encodeUint(payload, binlogPos, 32) // 1..4
	payload = encodeUint(payload, 0, 16)          // 5..6: flags
	payload = encodeUint(payload, selfServerID, 32) // 7..10
	name := make([]byte, dumpRequestFnameLen)
	copy(name, binlogName)
	payload = append(payload, name...)
	return packetize(0, payload)
}
