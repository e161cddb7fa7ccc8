package server

import "github.com/nexfin/pesitd/pkg/pesit"

// handlerFunc processes one incoming FPDU while the session is in a given
// state. It is responsible for sending any wire response itself (ack,
// RCONNECT, or nothing) and for updating s.ctx.State on success. Returning
// an error aborts the session with the diagnostic pesit.AsDiag(err) maps to
// (spec §4.6).
type handlerFunc func(s *Session, f pesit.FPDU) error

// fsmTable is the union of the transition tables in spec §4.3-§4.5 and
// §4.8, keyed by state then by the FPDU types that state admits. Any
// (state, type) pair absent here falls through to the universal law in
// Session.dispatch: ABORT D3-311 (spec §4.6, tested exhaustively in
// fsm_test.go).
var fsmTable = map[pesit.ServerState]map[pesit.FpduType]handlerFunc{
	pesit.CN01_REPOS: {
		pesit.CONNECT: (*Session).handleConnect,
	},
	pesit.CN03_CONNECTED: {
		pesit.CREATE:   (*Session).handleCreate,
		pesit.SELECT:   (*Session).handleSelect,
		pesit.RELEASE:  (*Session).handleRelease,
		pesit.MSG:      (*Session).handleMsg,
		pesit.MSGDM:    (*Session).handleMsgDM,
	},
	pesit.MSG_RECEIVING: {
		pesit.MSGMM: (*Session).handleMsgMM,
		pesit.MSGFM: (*Session).handleMsgFM,
	},
	pesit.SF03_FILE_SELECTED: {
		pesit.OPEN:     (*Session).handleOpen,
		pesit.DESELECT: (*Session).handleDeselect,
	},
	pesit.OF02_TRANSFER_READY: {
		pesit.WRITE: (*Session).handleWrite,
		pesit.READ:  (*Session).handleRead,
		pesit.CLOSE: (*Session).handleClose,
		pesit.IDT:   (*Session).handleIdleIDT,
	},
	pesit.TDE02B_RECEIVING_DATA: {
		pesit.DTF:     (*Session).handleDTF,
		pesit.DTFDA:   (*Session).handleDTF,
		pesit.DTFMA:   (*Session).handleDTF,
		pesit.DTFFA:   (*Session).handleDTF,
		pesit.SYN:     (*Session).handleSyn,
		pesit.DTF_END: (*Session).handleDTFEnd,
		pesit.IDT:     (*Session).handleReceivingIDT,
	},
	pesit.TDE07_WRITE_END: {
		pesit.TRANS_END: (*Session).handleTransEnd,
	},
}
