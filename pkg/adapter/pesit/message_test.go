package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexfin/pesitd/pkg/pesit"
)

func msgFPDU(t pesit.FpduType, segment string) pesit.FPDU {
	var p pesit.ParamArea
	p.Add(pesit.PI_91, []byte(segment))
	return pesit.FPDU{Type: t, Params: p}
}

func TestHandleMsgSingleFrame(t *testing.T) {
	f := connectedFixture(t)
	err := f.session.handleMsg(msgFPDU(pesit.MSG, "hello"))
	require.NoError(t, err)
	require.Equal(t, pesit.ACK_MSG, f.conn.sent[0].Type)
	require.Equal(t, pesit.CN03_CONNECTED, f.session.ctx.State)
}

func TestMsgSegmentedReassembly(t *testing.T) {
	f := connectedFixture(t)

	require.NoError(t, f.session.handleMsgDM(msgFPDU(pesit.MSGDM, "Hello, ")))
	require.Equal(t, pesit.MSG_RECEIVING, f.session.ctx.State)
	require.Empty(t, f.conn.sent)

	require.NoError(t, f.session.handleMsgMM(msgFPDU(pesit.MSGMM, "PeSIT ")))
	require.Empty(t, f.conn.sent)
	require.Equal(t, "Hello, PeSIT ", string(f.session.ctx.MsgBuffer))

	require.NoError(t, f.session.handleMsgFM(msgFPDU(pesit.MSGFM, "world!")))
	require.Nil(t, f.session.ctx.MsgBuffer)
	require.Equal(t, pesit.CN03_CONNECTED, f.session.ctx.State)
	require.Equal(t, pesit.ACK_MSG, f.conn.sent[0].Type)
}
