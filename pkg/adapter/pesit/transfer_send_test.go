package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexfin/pesitd/pkg/pesit"
	"github.com/nexfin/pesitd/pkg/transfer"
)

func TestArticlesPerEntityFormula(t *testing.T) {
	require.Equal(t, 7, articlesPerEntity(100, 10))
	require.Equal(t, 1, articlesPerEntity(10, 1000)) // floors to at least one article
}

func sendFixture(t *testing.T, content []byte) *testFixture {
	t.Helper()
	f := connectedFixture(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "in.dat")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	id := mustTracker(t, f)

	f.session.ctx.Transfer = &TransferContext{
		TrackerID: id, Physical: path, Direction: transfer.DirectionSend,
		RecordLength: 10, MaxEntity: 100, SourceSize: int64(len(content)),
	}
	f.session.ctx.State = pesit.SF03_FILE_SELECTED
	require.NoError(t, f.session.handleOpen(pesit.FPDU{Type: pesit.OPEN}))
	f.conn.sent = nil
	return f
}

func TestHandleReadStreamsEntityAndCompletes(t *testing.T) {
	f := sendFixture(t, []byte("0123456789abcdefghijklmnopqrstuvwxyz")) // 36 bytes
	f.conn.inbox = []pesit.FPDU{{Type: pesit.TRANS_END}}

	err := f.session.handleRead(pesit.FPDU{Type: pesit.READ})
	require.NoError(t, err)
	require.Equal(t, pesit.OF02_TRANSFER_READY, f.session.ctx.State)
	require.Equal(t, int64(36), f.session.ctx.Transfer.BytesTransferred)

	var types []pesit.FpduType
	for _, s := range f.conn.sent {
		types = append(types, s.Type)
	}
	require.Equal(t, []pesit.FpduType{pesit.ACK_READ, pesit.DTF, pesit.DTF_END, pesit.ACK_TRANS_END}, types)
}

func TestHandleReadEmitsSyncPointMidStream(t *testing.T) {
	content := make([]byte, 1500) // crosses the 1024-byte sync interval exactly once
	f := sendFixture(t, content)
	f.session.ctx.SyncEnabled = true
	f.session.ctx.SyncIntervalKB = 1 // 1024-byte interval, well inside a 1500-byte file

	var ackSyn pesit.ParamArea
	ackSyn.AddUint32(pesit.PI_20, 1)
	f.conn.inbox = []pesit.FPDU{
		{Type: pesit.ACK_SYN, Params: ackSyn},
		{Type: pesit.TRANS_END},
	}

	err := f.session.handleRead(pesit.FPDU{Type: pesit.READ})
	require.NoError(t, err)
	require.EqualValues(t, 1, f.session.ctx.Transfer.SyncPointNumber)

	var sawSyn bool
	for _, s := range f.conn.sent {
		if s.Type == pesit.SYN {
			sawSyn = true
		}
	}
	require.True(t, sawSyn)
}

func TestHandleReadSyncAckMismatchAborts(t *testing.T) {
	content := make([]byte, 3000)
	f := sendFixture(t, content)
	f.session.ctx.SyncEnabled = true
	f.session.ctx.SyncIntervalKB = 1

	var ackSyn pesit.ParamArea
	ackSyn.AddUint32(pesit.PI_20, 99) // wrong sync number
	f.conn.inbox = []pesit.FPDU{{Type: pesit.ACK_SYN, Params: ackSyn}}

	err := f.session.handleRead(pesit.FPDU{Type: pesit.READ})
	pe := asPesitError(t, err)
	require.Equal(t, pesit.D3_311, pe.Code)
}

func TestHandleReadRestartPointReopensAtOffset(t *testing.T) {
	f := sendFixture(t, []byte("0123456789abcdefghij")) // 20 bytes
	f.conn.inbox = []pesit.FPDU{{Type: pesit.TRANS_END}}

	var p pesit.ParamArea
	p.AddUint32(pesit.PI_18, 10)
	err := f.session.handleRead(pesit.FPDU{Type: pesit.READ, Params: p})
	require.NoError(t, err)

	// Only the second half of the file should have been sent.
	var dtf pesit.FPDU
	for _, s := range f.conn.sent {
		if s.Type == pesit.DTF {
			dtf = s
			break
		}
	}
	require.Contains(t, string(dtf.Payload), "abcdefghij")
	require.NotContains(t, string(dtf.Payload), "0123456789")
}

func TestHandleReadRestartPointBeyondFileSizeRejected(t *testing.T) {
	f := sendFixture(t, []byte("short"))
	var p pesit.ParamArea
	p.AddUint32(pesit.PI_18, 9999)
	err := f.session.handleRead(pesit.FPDU{Type: pesit.READ, Params: p})
	pe := asPesitError(t, err)
	require.Equal(t, pesit.D2_226, pe.Code)
}

func TestAwaitTransEndRejectsUnexpectedFpdu(t *testing.T) {
	f := sendFixture(t, []byte("x"))
	f.conn.inbox = []pesit.FPDU{{Type: pesit.MSG}}

	err := f.session.handleRead(pesit.FPDU{Type: pesit.READ})
	pe := asPesitError(t, err)
	require.Equal(t, pesit.D3_311, pe.Code)
}
