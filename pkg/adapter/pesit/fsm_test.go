package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexfin/pesitd/pkg/pesit"
)

// allServerStates and allFpduTypes enumerate the full state/type space so
// the universal unsupported-transition law can be checked exhaustively
// rather than by example.
var allServerStates = []pesit.ServerState{
	pesit.CN01_REPOS, pesit.CN02B_CONNECT_PENDING, pesit.CN03_CONNECTED, pesit.CN04B_RELEASE_PENDING,
	pesit.SF01B_CREATE_PENDING, pesit.SF02B_SELECT_PENDING, pesit.SF03_FILE_SELECTED, pesit.SF04B_DESELECT_PENDING,
	pesit.OF01B_OPEN_PENDING, pesit.OF02_TRANSFER_READY, pesit.OF03B_CLOSE_PENDING,
	pesit.TDE01B_WRITE_PENDING, pesit.TDE02B_RECEIVING_DATA, pesit.TDE03B_RESYNC_REQUESTED,
	pesit.TDE04B_RESYNC_PENDING, pesit.TDE05_RESYNC_READY, pesit.TDE06B_RESYNC_ACK_PENDING,
	pesit.TDE07_WRITE_END, pesit.TDE08B_TRANS_END_PENDING,
	pesit.TDL01B_READ_PENDING, pesit.TDL02B_SENDING_DATA, pesit.TDL07_READ_END, pesit.TDL08B_TRANS_END_PENDING,
	pesit.MSG_RECEIVING, pesit.ERROR,
}

var allFpduTypes = []pesit.FpduType{
	pesit.CONNECT, pesit.ACONNECT, pesit.RCONNECT, pesit.RELEASE, pesit.RELCONF, pesit.ABORT,
	pesit.CREATE, pesit.ACK_CREATE, pesit.SELECT, pesit.ACK_SELECT, pesit.DESELECT, pesit.ACK_DESELECT,
	pesit.OPEN, pesit.ACK_OPEN, pesit.CLOSE, pesit.ACK_CLOSE,
	pesit.WRITE, pesit.ACK_WRITE, pesit.READ, pesit.ACK_READ,
	pesit.DTF, pesit.DTFDA, pesit.DTFMA, pesit.DTFFA, pesit.DTF_END,
	pesit.TRANS_END, pesit.ACK_TRANS_END, pesit.SYN, pesit.ACK_SYN, pesit.IDT, pesit.ACK_IDT,
	pesit.MSG, pesit.ACK_MSG, pesit.MSGDM, pesit.MSGMM, pesit.MSGFM,
}

func TestDispatchUnsupportedTransitionAlwaysAborts(t *testing.T) {
	for _, state := range allServerStates {
		for _, typ := range allFpduTypes {
			if handlers, ok := fsmTable[state]; ok {
				if _, handled := handlers[typ]; handled {
					continue
				}
			}
			f := newFixture(t)
			f.session.ctx.State = state
			err := f.session.dispatch(pesit.FPDU{Type: typ})
			require.Error(t, err, "state=%v type=%v should be rejected", state, typ)
			pe := asPesitError(t, err)
			require.Equal(t, pesit.D3_311, pe.Code, "state=%v type=%v", state, typ)
		}
	}
}

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	f := newFixture(t)
	f.session.ctx.State = pesit.CN03_CONNECTED
	err := f.session.dispatch(pesit.FPDU{Type: pesit.RELEASE})
	require.NoError(t, err)
	require.Equal(t, pesit.CN01_REPOS, f.session.ctx.State)
	require.Len(t, f.conn.sent, 1)
	require.Equal(t, pesit.RELCONF, f.conn.sent[0].Type)
}

func TestHandlePeerAbortResetsToRepos(t *testing.T) {
	f := newFixture(t)
	f.session.ctx.State = pesit.TDE02B_RECEIVING_DATA
	f.session.ctx.Transfer = &TransferContext{TrackerID: "tr-1"}
	f.session.handlePeerAbort(pesit.FPDU{Type: pesit.ABORT})
	require.Equal(t, pesit.CN01_REPOS, f.session.ctx.State)
	require.Nil(t, f.session.ctx.Transfer)
}
