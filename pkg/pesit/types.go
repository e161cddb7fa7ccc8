// Package pesit implements the wire codec and data model of the PeSIT
// Hors-SIT file-transfer protocol: FPDU framing, typed parameters and
// parameter groups, article/entity segmentation, and EBCDIC/ASCII duality.
//
// The package is pure: Parse and Encode operate on byte slices only, with
// no I/O, so the codec is fuzzable and reusable by recording/replay tests.
package pesit

import "fmt"

// Phase classifies an FPDU into one of the six protocol phases.
type Phase byte

const (
	PhaseConnection  Phase = 0x01
	PhaseSelection   Phase = 0x02
	PhaseOpen        Phase = 0x03
	PhaseData        Phase = 0x04
	PhaseMessage     Phase = 0x05
	PhaseTermination Phase = 0x06
)

func (p Phase) String() string {
	switch p {
	case PhaseConnection:
		return "CONNECTION"
	case PhaseSelection:
		return "SELECTION"
	case PhaseOpen:
		return "OPEN"
	case PhaseData:
		return "DATA"
	case PhaseMessage:
		return "MESSAGE"
	case PhaseTermination:
		return "TERMINATION"
	default:
		return fmt.Sprintf("PHASE(0x%02x)", byte(p))
	}
}

// FpduType is the closed enumeration of FPDU kinds the engine understands.
// Each variant maps to a fixed (Phase, wire type byte) pair via fpduCodes.
type FpduType int

const (
	FpduUnknown FpduType = iota

	// Connection phase.
	CONNECT
	ACONNECT
	RCONNECT
	RELEASE
	RELCONF
	ABORT

	// Selection phase.
	CREATE
	ACK_CREATE
	SELECT
	ACK_SELECT
	DESELECT
	ACK_DESELECT

	// Open phase.
	OPEN
	ACK_OPEN
	CLOSE
	ACK_CLOSE

	// Data phase.
	WRITE
	ACK_WRITE
	READ
	ACK_READ
	DTF
	DTFDA
	DTFMA
	DTFFA
	DTF_END
	TRANS_END
	ACK_TRANS_END
	SYN
	ACK_SYN
	IDT
	ACK_IDT

	// Message phase.
	MSG
	ACK_MSG
	MSGDM
	MSGMM
	MSGFM
)

type wireCode struct {
	phase Phase
	typ   byte
}

var fpduCodes = map[FpduType]wireCode{
	CONNECT:  {PhaseConnection, 0x01},
	ACONNECT: {PhaseConnection, 0x02},
	RCONNECT: {PhaseConnection, 0x03},
	RELEASE:  {PhaseConnection, 0x04},
	RELCONF:  {PhaseConnection, 0x05},
	ABORT:    {PhaseConnection, 0x06},

	CREATE:       {PhaseSelection, 0x01},
	ACK_CREATE:   {PhaseSelection, 0x02},
	SELECT:       {PhaseSelection, 0x03},
	ACK_SELECT:   {PhaseSelection, 0x04},
	DESELECT:     {PhaseSelection, 0x05},
	ACK_DESELECT: {PhaseSelection, 0x06},

	OPEN:      {PhaseOpen, 0x01},
	ACK_OPEN:  {PhaseOpen, 0x02},
	CLOSE:     {PhaseOpen, 0x03},
	ACK_CLOSE: {PhaseOpen, 0x04},

	WRITE:         {PhaseData, 0x01},
	ACK_WRITE:     {PhaseData, 0x02},
	READ:          {PhaseData, 0x03},
	ACK_READ:      {PhaseData, 0x04},
	DTF:           {PhaseData, 0x05},
	DTFDA:         {PhaseData, 0x06},
	DTFMA:         {PhaseData, 0x07},
	DTFFA:         {PhaseData, 0x08},
	DTF_END:       {PhaseData, 0x09},
	TRANS_END:     {PhaseData, 0x0A},
	ACK_TRANS_END: {PhaseData, 0x0B},
	SYN:           {PhaseData, 0x0C},
	ACK_SYN:       {PhaseData, 0x0D},
	IDT:           {PhaseData, 0x0E},
	ACK_IDT:       {PhaseData, 0x0F},

	MSG:     {PhaseMessage, 0x01},
	ACK_MSG: {PhaseMessage, 0x02},
	MSGDM:   {PhaseMessage, 0x03},
	MSGMM:   {PhaseMessage, 0x04},
	MSGFM:   {PhaseMessage, 0x05},
}

var wireToFpdu = func() map[wireCode]FpduType {
	m := make(map[wireCode]FpduType, len(fpduCodes))
	for t, w := range fpduCodes {
		m[w] = t
	}
	return m
}()

var fpduNames = map[FpduType]string{
	CONNECT: "CONNECT", ACONNECT: "ACONNECT", RCONNECT: "RCONNECT",
	RELEASE: "RELEASE", RELCONF: "RELCONF", ABORT: "ABORT",
	CREATE: "CREATE", ACK_CREATE: "ACK_CREATE", SELECT: "SELECT", ACK_SELECT: "ACK_SELECT",
	DESELECT: "DESELECT", ACK_DESELECT: "ACK_DESELECT",
	OPEN: "OPEN", ACK_OPEN: "ACK_OPEN", CLOSE: "CLOSE", ACK_CLOSE: "ACK_CLOSE",
	WRITE: "WRITE", ACK_WRITE: "ACK_WRITE", READ: "READ", ACK_READ: "ACK_READ",
	DTF: "DTF", DTFDA: "DTFDA", DTFMA: "DTFMA", DTFFA: "DTFFA",
	DTF_END: "DTF_END", TRANS_END: "TRANS_END", ACK_TRANS_END: "ACK_TRANS_END",
	SYN: "SYN", ACK_SYN: "ACK_SYN", IDT: "IDT", ACK_IDT: "ACK_IDT",
	MSG: "MSG", ACK_MSG: "ACK_MSG", MSGDM: "MSGDM", MSGMM: "MSGMM", MSGFM: "MSGFM",
}

func (t FpduType) String() string {
	if n, ok := fpduNames[t]; ok {
		return n
	}
	return "UNKNOWN"
}

// WireCode returns the (phase, type byte) pair for t. ok is false for FpduUnknown.
func (t FpduType) WireCode() (Phase, byte, bool) {
	w, ok := fpduCodes[t]
	return w.phase, w.typ, ok
}

// FromWireCode maps a (phase, type byte) pair back to an FpduType.
// Returns (FpduUnknown, false) when the pair is not recognized.
func FromWireCode(phase Phase, typ byte) (FpduType, bool) {
	t, ok := wireToFpdu[wireCode{phase, typ}]
	return t, ok
}

// IsDTFVariant reports whether t is one of the DTF family (DTF, DTFDA, DTFMA, DTFFA),
// i.e. an FPDU whose payload is raw article data rather than a parameter area.
func (t FpduType) IsDTFVariant() bool {
	return t == DTF || t == DTFDA || t == DTFMA || t == DTFFA
}

// ServerState enumerates every state of the server FSM (C6).
type ServerState int

const (
	CN01_REPOS ServerState = iota
	CN02B_CONNECT_PENDING
	CN03_CONNECTED
	CN04B_RELEASE_PENDING

	SF01B_CREATE_PENDING
	SF02B_SELECT_PENDING
	SF03_FILE_SELECTED
	SF04B_DESELECT_PENDING

	OF01B_OPEN_PENDING
	OF02_TRANSFER_READY
	OF03B_CLOSE_PENDING

	TDE01B_WRITE_PENDING
	TDE02B_RECEIVING_DATA
	TDE03B_RESYNC_REQUESTED
	TDE04B_RESYNC_PENDING
	TDE05_RESYNC_READY
	TDE06B_RESYNC_ACK_PENDING
	TDE07_WRITE_END
	TDE08B_TRANS_END_PENDING

	TDL01B_READ_PENDING
	TDL02B_SENDING_DATA
	TDL07_READ_END
	TDL08B_TRANS_END_PENDING

	MSG_RECEIVING

	ERROR
)

var stateNames = map[ServerState]string{
	CN01_REPOS: "CN01_REPOS", CN02B_CONNECT_PENDING: "CN02B_CONNECT_PENDING",
	CN03_CONNECTED: "CN03_CONNECTED", CN04B_RELEASE_PENDING: "CN04B_RELEASE_PENDING",
	SF01B_CREATE_PENDING: "SF01B_CREATE_PENDING", SF02B_SELECT_PENDING: "SF02B_SELECT_PENDING",
	SF03_FILE_SELECTED: "SF03_FILE_SELECTED", SF04B_DESELECT_PENDING: "SF04B_DESELECT_PENDING",
	OF01B_OPEN_PENDING: "OF01B_OPEN_PENDING", OF02_TRANSFER_READY: "OF02_TRANSFER_READY",
	OF03B_CLOSE_PENDING:   "OF03B_CLOSE_PENDING",
	TDE01B_WRITE_PENDING:  "TDE01B_WRITE_PENDING",
	TDE02B_RECEIVING_DATA: "TDE02B_RECEIVING_DATA", TDE03B_RESYNC_REQUESTED: "TDE03B_RESYNC_REQUESTED",
	TDE04B_RESYNC_PENDING: "TDE04B_RESYNC_PENDING", TDE05_RESYNC_READY: "TDE05_RESYNC_READY",
	TDE06B_RESYNC_ACK_PENDING: "TDE06B_RESYNC_ACK_PENDING",
	TDE07_WRITE_END:           "TDE07_WRITE_END", TDE08B_TRANS_END_PENDING: "TDE08B_TRANS_END_PENDING",
	TDL01B_READ_PENDING: "TDL01B_READ_PENDING", TDL02B_SENDING_DATA: "TDL02B_SENDING_DATA",
	TDL07_READ_END: "TDL07_READ_END", TDL08B_TRANS_END_PENDING: "TDL08B_TRANS_END_PENDING",
	MSG_RECEIVING: "MSG_RECEIVING", ERROR: "ERROR",
}

func (s ServerState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "UNKNOWN_STATE"
}

// HasTransferContext reports whether a TransferContext must be attached to
// the session while in state s (spec §3 invariant).
func (s ServerState) HasTransferContext() bool {
	switch s {
	case SF03_FILE_SELECTED,
		OF01B_OPEN_PENDING, OF02_TRANSFER_READY, OF03B_CLOSE_PENDING,
		TDE01B_WRITE_PENDING, TDE02B_RECEIVING_DATA, TDE03B_RESYNC_REQUESTED,
		TDE04B_RESYNC_PENDING, TDE05_RESYNC_READY, TDE06B_RESYNC_ACK_PENDING,
		TDE07_WRITE_END, TDE08B_TRANS_END_PENDING,
		TDL01B_READ_PENDING, TDL02B_SENDING_DATA, TDL07_READ_END, TDL08B_TRANS_END_PENDING:
		return true
	default:
		return false
	}
}
