package blrouter

import "fmt"

// HandshakeState is one of the fixed states the master-side handshake
// walks through before handing control to the EventRouter.
type HandshakeState int

const (
	StateAuthenticated HandshakeState = iota
	StateTimestamp
	StateServerID
	StateHBPeriod
	StateChksum1
	StateChksum2
	StateGTIDMode
	StateMUUID
	StateSUUID
	StateLatin1
	StateRegister
	StateBinlogDump
	numHandshakeStates
)

// stateNames is the parallel string table used to name the failing
// state in protocol-error log lines.
var stateNames = [numHandshakeStates]string{
	StateAuthenticated: "AUTHENTICATED",
	StateTimestamp:     "TIMESTAMP",
	StateServerID:      "SERVERID",
	StateHBPeriod:      "HBPERIOD",
	StateChksum1:       "CHKSUM1",
	StateChksum2:       "CHKSUM2",
	StateGTIDMode:      "GTIDMODE",
	StateMUUID:         "MUUID",
	StateSUUID:         "SUUID",
	StateLatin1:        "LATIN1",
	StateRegister:      "REGISTER",
	StateBinlogDump:    "BINLOGDUMP",
}

func (s HandshakeState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("HandshakeState(%d)", int(s))
	}
	return stateNames[s]
}

// SavedMaster holds the most recent verbatim response buffer for each
// administrative query issued during the handshake, plus the
// Format-Description fake-event payload. These are replayed to newly
// attached replicas so each observes a plausible primary-side
// handshake. Once stored, a buffer is read-only until replaced.
type SavedMaster struct {
	ServerID     []byte
	Heartbeat    []byte
	Chksum1      []byte
	Chksum2      []byte
	GTIDMode     []byte
	UUID         []byte
	SetSlaveUUID []byte
	SetNames     []byte

	FDEEvent []byte
	FDELen   uint32
}

// StartMaster mirrors the original router's bootstrap entry point: it
// sets the handshake state to AUTHENTICATED and sends the first
// administrative query, beginning the sequence that
// advanceHandshake continues. Named in spec terms as "on entering
// AUTHENTICATED"; this is the operation that gets the state machine
// there in the first place.
func (r *RouterInstance) StartMaster() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handshakeState = StateAuthenticated
	r.writePrimary(makeQuery("SELECT UNIX_TIMESTAMP()"))
	r.handshakeState = StateTimestamp
}

// advanceHandshake processes one inbound packet while in a
// pre-streaming handshake state: it optionally retains the response
// buffer in savedMaster, sends the next command, and advances state.
// pkt[4] (the payload's leading OK/error marker) being 0xFF means the
// primary rejected the previous command; the current state is logged
// and retained without advancing.
func (r *RouterInstance) advanceHandshake(pkt []byte) {
	if len(pkt) < 5 {
		r.logf("blrouter: handshake packet too short in state %s", r.handshakeState)
		return
	}
	if pkt[4] == 0xFF {
		r.logf("blrouter: primary rejected command in state %s", r.handshakeState)
		return
	}

	// Retained verbatim: replayed to newly attached replicas as-is, so
	// the whole wire packet is kept, not just its payload.
	saved := append([]byte(nil), pkt...)

	switch r.handshakeState {
	case StateTimestamp:
		r.writePrimary(makeQuery("SHOW VARIABLES LIKE 'SERVER_ID'"))
		r.handshakeState = StateServerID

	case StateServerID:
		r.savedMaster.ServerID = saved
		r.writePrimary(makeQuery("SET @master_heartbeat_period = 1799999979520"))
		r.handshakeState = StateHBPeriod

	case StateHBPeriod:
		r.savedMaster.Heartbeat = saved
		r.writePrimary(makeQuery("SET @master_binlog_checksum = @@global.binlog_checksum"))
		r.handshakeState = StateChksum1

	case StateChksum1:
		r.savedMaster.Chksum1 = saved
		r.writePrimary(makeQuery("SELECT @master_binlog_checksum"))
		r.handshakeState = StateChksum2

	case StateChksum2:
		r.savedMaster.Chksum2 = saved
		r.writePrimary(makeQuery("SELECT @@GLOBAL.GTID_MODE"))
		r.handshakeState = StateGTIDMode

	case StateGTIDMode:
		r.savedMaster.GTIDMode = saved
		r.writePrimary(makeQuery("SHOW VARIABLES LIKE 'SERVER_UUID'"))
		r.handshakeState = StateMUUID

	case StateMUUID:
		r.savedMaster.UUID = saved
		r.writePrimary(makeQuery(fmt.Sprintf("SET @slave_uuid='%s'", r.config.SelfUUID)))
		r.handshakeState = StateSUUID

	case StateSUUID:
		r.savedMaster.SetSlaveUUID = saved
		r.writePrimary(makeQuery("SET NAMES latin1"))
		r.handshakeState = StateLatin1

	case StateLatin1:
		r.savedMaster.SetNames = saved
		r.writePrimary(makeRegisterReplica(r.config.SelfServerID, r.config.ListenPort, r.primaryServerID))
		r.handshakeState = StateRegister

	case StateRegister:
		// The wire packet's binlog_position field is a fixed 32 bits
		// (§4.1); r.binlogPosition is the full 64-bit data-model value
		// (§3), truncated here only for the outbound dump request.
		r.writePrimary(makeDumpRequest(r.config.SelfServerID, uint32(r.binlogPosition), r.binlogName))
		r.handshakeState = StateBinlogDump

	default:
		// Defensive: an out-of-range state is dropped; processing
		// terminates for this invocation. Reconnection is an upstream
		// policy, not retried here.
		r.logf("blrouter: invalid handshake state %d, dropping buffer", r.handshakeState)
	}
}
