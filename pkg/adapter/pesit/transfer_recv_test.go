package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexfin/pesitd/pkg/pesit"
	"github.com/nexfin/pesitd/pkg/transfer"
)

func receiveFixture(t *testing.T) (*testFixture, string) {
	t.Helper()
	f := connectedFixture(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "out.dat")
	id := mustTracker(t, f)

	f.session.ctx.Transfer = &TransferContext{
		TrackerID: id, Physical: path, Direction: transfer.DirectionReceive, RecordLength: 16, MaxEntity: 256,
	}
	f.session.ctx.State = pesit.SF03_FILE_SELECTED
	require.NoError(t, f.session.handleOpen(pesit.FPDU{Type: pesit.OPEN}))
	f.conn.sent = nil
	require.NoError(t, f.session.handleWrite(pesit.FPDU{Type: pesit.WRITE}))
	f.conn.sent = nil
	return f, path
}

func TestHandleDTFWritesArticleAndTracksBytes(t *testing.T) {
	f, path := receiveFixture(t)

	err := f.session.handleDTF(pesit.FPDU{Type: pesit.DTF, IDSrc: 1, Payload: []byte("hello world!")})
	require.NoError(t, err)
	require.Equal(t, int64(12), f.session.ctx.Transfer.BytesTransferred)
	require.EqualValues(t, 1, f.session.ctx.Transfer.RecordsTransferred)

	require.NoError(t, f.session.handleDTFEnd(pesit.FPDU{Type: pesit.DTF_END}))
	require.NoError(t, f.session.handleTransEnd(pesit.FPDU{Type: pesit.TRANS_END}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello world!", string(data))
	require.Equal(t, pesit.OF02_TRANSFER_READY, f.session.ctx.State)

	ack := f.conn.sent[len(f.conn.sent)-1]
	require.Equal(t, pesit.ACK_TRANS_END, ack.Type)
	bytesParam, ok := ack.Params.Get(pesit.PI_42)
	require.True(t, ok)
	v, err := bytesParam.Uint32()
	require.NoError(t, err)
	require.EqualValues(t, 12, v)
}

func TestHandleDTFRejectsOversizedArticle(t *testing.T) {
	f, _ := receiveFixture(t)
	err := f.session.handleDTF(pesit.FPDU{Type: pesit.DTF, IDSrc: 1, Payload: make([]byte, 32)})
	pe := asPesitError(t, err)
	require.Equal(t, pesit.D2_220, pe.Code)
}

func TestHandleSynChecksMonotonicity(t *testing.T) {
	f, _ := receiveFixture(t)
	require.NoError(t, f.session.handleDTF(pesit.FPDU{Type: pesit.DTF, IDSrc: 1, Payload: []byte("a")}))

	var p1 pesit.ParamArea
	p1.AddUint32(pesit.PI_20, 1)
	require.NoError(t, f.session.handleSyn(pesit.FPDU{Type: pesit.SYN, Params: p1}))
	require.EqualValues(t, 1, f.session.ctx.Transfer.SyncPointNumber)

	var p0 pesit.ParamArea
	p0.AddUint32(pesit.PI_20, 1)
	err := f.session.handleSyn(pesit.FPDU{Type: pesit.SYN, Params: p0})
	pe := asPesitError(t, err)
	require.Equal(t, pesit.D3_311, pe.Code)
}

func TestHandleIDTResyncSetsRestartFlag(t *testing.T) {
	f, _ := receiveFixture(t)

	var resync pesit.ParamArea
	resync.AddUint8(pesit.PI_19, 4)
	require.NoError(t, f.session.handleIDT(pesit.FPDU{Type: pesit.IDT, Params: resync}))
	require.True(t, f.session.ctx.Transfer.RestartFlag)
	require.Equal(t, pesit.OF02_TRANSFER_READY, f.session.ctx.State)
	require.Equal(t, pesit.ACK_IDT, f.conn.sent[len(f.conn.sent)-1].Type)
}
