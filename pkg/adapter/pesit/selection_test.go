package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexfin/pesitd/pkg/pesit"
	"github.com/nexfin/pesitd/pkg/registry"
	"github.com/nexfin/pesitd/pkg/transfer"
)

func createFPDU(virtual string, recordLength uint16) pesit.FPDU {
	var p pesit.ParamArea
	p.AddGroup(pesit.Group{ID: pesit.PGI_09, Params: []pesit.Parameter{{ID: pesit.PI_12, Value: []byte(virtual)}}})
	p.Add(pesit.PI_13, []byte("T1"))
	p.AddUint32(pesit.PI_25, 4096)
	p.AddGroup(pesit.Group{ID: pesit.PGI_30, Params: []pesit.Parameter{
		{ID: pesit.PI_31, Value: []byte{1}},
		{ID: pesit.PI_32, Value: []byte{byte(recordLength >> 8), byte(recordLength)}},
	}})
	return pesit.FPDU{Type: pesit.CREATE, IDSrc: 1, Params: p}
}

func TestHandleCreateNonStrictSynthesizesPath(t *testing.T) {
	f := connectedFixture(t)
	err := f.session.handleCreate(createFPDU("UNKNOWNFILE", 80))
	require.NoError(t, err)
	require.Equal(t, pesit.SF03_FILE_SELECTED, f.session.ctx.State)
	require.NotNil(t, f.session.ctx.Transfer)
	require.Equal(t, transfer.DirectionReceive, f.session.ctx.Transfer.Direction)
	require.Contains(t, f.session.ctx.Transfer.Physical, "UNKNOWNFILE")
	require.Equal(t, pesit.ACK_CREATE, f.conn.sent[0].Type)
}

func TestHandleCreateStrictModeUnknownFileRejected(t *testing.T) {
	f := connectedFixture(t)
	f.adapter.Registry = registry.New(false, true)

	err := f.session.handleCreate(createFPDU("UNKNOWNFILE", 80))
	pe := asPesitError(t, err)
	require.Equal(t, pesit.D2_205, pe.Code)
}

func TestHandleCreateRegisteredFileUsesPattern(t *testing.T) {
	f := connectedFixture(t)
	recvDir := t.TempDir()
	f.adapter.Registry.SetVirtualFile(registry.VirtualFileRecord{
		Name: "ORDERS", Direction: registry.AccessWrite, Enabled: true,
		ReceiveDir: recvDir, FilenamePattern: "{VIRTUAL}_{TRANSFER_ID}.dat",
	})

	err := f.session.handleCreate(createFPDU("ORDERS", 80))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(recvDir, "ORDERS_T1.dat"), f.session.ctx.Transfer.Physical)
}

func TestHandleCreateACLDeniedMapsToD2226(t *testing.T) {
	f := connectedFixture(t)
	f.adapter.Registry.SetVirtualFile(registry.VirtualFileRecord{
		Name: "ORDERS", Direction: registry.AccessWrite, Enabled: true,
		ReceiveDir: t.TempDir(), AllowedPartners: []string{"SOMEONE-ELSE"},
	})

	err := f.session.handleCreate(createFPDU("ORDERS", 80))
	pe := asPesitError(t, err)
	require.Equal(t, pesit.D2_226, pe.Code)
}

func selectFPDU(virtual string) pesit.FPDU {
	var p pesit.ParamArea
	p.AddGroup(pesit.Group{ID: pesit.PGI_09, Params: []pesit.Parameter{{ID: pesit.PI_12, Value: []byte(virtual)}}})
	return pesit.FPDU{Type: pesit.SELECT, IDSrc: 1, Params: p}
}

func TestHandleSelectReadsFileSizeIntoAck(t *testing.T) {
	f := connectedFixture(t)
	sendDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(sendDir, "REPORT"), make([]byte, 2000), 0o644))
	f.adapter.Registry.SetVirtualFile(registry.VirtualFileRecord{
		Name: "REPORT", Direction: registry.AccessRead, Enabled: true, SendDir: sendDir,
	})

	err := f.session.handleSelect(selectFPDU("REPORT"))
	require.NoError(t, err)
	require.Equal(t, pesit.SF03_FILE_SELECTED, f.session.ctx.State)
	require.Equal(t, int64(2000), f.session.ctx.Transfer.SourceSize)

	ack := f.conn.sent[0]
	require.Equal(t, pesit.ACK_SELECT, ack.Type)
	g, ok := ack.Params.GetGroup(pesit.PGI_40)
	require.True(t, ok)
	sizeParam, ok := g.Get(pesit.PI_42)
	require.True(t, ok)
	v, err := sizeParam.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(2), v) // ceil(2000/1024)
}

func TestHandleSelectMissingFileRejected(t *testing.T) {
	f := connectedFixture(t)
	err := f.session.handleSelect(selectFPDU("MISSING"))
	pe := asPesitError(t, err)
	require.Equal(t, pesit.D2_205, pe.Code)
}

func TestHandleOpenReceiveOpensWriterAndAcks(t *testing.T) {
	f := connectedFixture(t)
	dir := t.TempDir()
	f.session.ctx.Transfer = &TransferContext{
		TrackerID: mustTracker(t, f), Physical: filepath.Join(dir, "out.dat"), Direction: transfer.DirectionReceive,
	}
	f.session.ctx.State = pesit.SF03_FILE_SELECTED

	err := f.session.handleOpen(pesit.FPDU{Type: pesit.OPEN})
	require.NoError(t, err)
	require.Equal(t, pesit.OF02_TRANSFER_READY, f.session.ctx.State)
	require.NotNil(t, f.session.ctx.Transfer.Writer)
	require.Equal(t, pesit.ACK_OPEN, f.conn.sent[0].Type)
}

func TestHandleOpenSendOpensReaderAndExtendsTimeout(t *testing.T) {
	f := connectedFixture(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "in.dat")
	require.NoError(t, os.WriteFile(path, make([]byte, 5000), 0o644))

	f.session.ctx.Transfer = &TransferContext{
		TrackerID: mustTracker(t, f), Physical: path, Direction: transfer.DirectionSend, SourceSize: 5000,
	}
	f.session.ctx.State = pesit.SF03_FILE_SELECTED

	err := f.session.handleOpen(pesit.FPDU{Type: pesit.OPEN})
	require.NoError(t, err)
	require.NotNil(t, f.session.ctx.Transfer.Reader)
	require.NotEmpty(t, f.conn.timeouts)
}

func TestHandleCloseAndDeselect(t *testing.T) {
	f := connectedFixture(t)
	f.session.ctx.Transfer = &TransferContext{}
	f.session.ctx.State = pesit.SF03_FILE_SELECTED

	require.NoError(t, f.session.handleClose(pesit.FPDU{Type: pesit.CLOSE}))
	require.Equal(t, pesit.SF03_FILE_SELECTED, f.session.ctx.State)

	require.NoError(t, f.session.handleDeselect(pesit.FPDU{Type: pesit.DESELECT}))
	require.Equal(t, pesit.CN03_CONNECTED, f.session.ctx.State)
	require.Nil(t, f.session.ctx.Transfer)
}

func mustTracker(t *testing.T, f *testFixture) string {
	t.Helper()
	id, err := f.adapter.Tracker.Create(context.Background(), "s", "srv", "node", "CLIENT1", "X", transfer.DirectionReceive, "1.2.3.4")
	require.NoError(t, err)
	return id
}
