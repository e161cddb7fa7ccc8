package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexfin/pesitd/pkg/pesit"
)

func aconnectFPDU(peerConnID byte, version uint8, syncKB uint16) pesit.FPDU {
	var p pesit.ParamArea
	p.AddUint8(pesit.PI_06, version)
	if syncKB > 0 {
		p.AddUint16(pesit.PI_07, syncKB)
	}
	return pesit.FPDU{Type: pesit.ACONNECT, IDSrc: peerConnID, Params: p}
}

func rconnectFPDU(diag pesit.Diag) pesit.FPDU {
	var p pesit.ParamArea
	p.Add(pesit.PI_02, diag.Bytes())
	return pesit.FPDU{Type: pesit.RCONNECT, Params: p}
}

func TestConnectAccepted(t *testing.T) {
	c, conn := newTestClient(testConfig())
	conn.inbox = []pesit.FPDU{aconnectFPDU(9, 2, 1024)}

	err := c.connect()
	require.NoError(t, err)
	require.Equal(t, byte(9), c.peerConnID)
	require.Equal(t, 2, c.negotiatedVersion)
	require.True(t, c.syncEnabled)
	require.Equal(t, uint32(1024), c.syncIntervalKB)

	require.Len(t, conn.sent, 1)
	req := conn.sent[0]
	require.Equal(t, pesit.CONNECT, req.Type)
	require.Equal(t, byte(1), req.IDSrc)
	requester, _ := req.Params.Get(pesit.PI_03)
	require.Equal(t, "CLIENT1", string(requester.Value))
}

func TestConnectRejected(t *testing.T) {
	c, conn := newTestClient(testConfig())
	conn.inbox = []pesit.FPDU{rconnectFPDU(pesit.D0_303)}

	err := c.connect()
	require.Error(t, err)
	pe := asPesitError(t, err)
	require.Equal(t, pesit.D0_303, pe.Code)
}

func TestConnectUnexpectedReply(t *testing.T) {
	c, conn := newTestClient(testConfig())
	conn.inbox = []pesit.FPDU{{Type: pesit.ABORT}}

	err := c.connect()
	require.Error(t, err)
	pe := asPesitError(t, err)
	require.Equal(t, pesit.D3_311, pe.Code)
}

func TestReleaseConfirmed(t *testing.T) {
	c, conn := newTestClient(testConfig())
	c.peerConnID = 9
	conn.inbox = []pesit.FPDU{{Type: pesit.RELCONF}}

	err := c.release()
	require.NoError(t, err)
	require.Equal(t, pesit.RELEASE, conn.sent[0].Type)
	require.Equal(t, byte(9), conn.sent[0].IDDst)
	require.Equal(t, byte(1), conn.sent[0].IDSrc)
}

func TestReleaseUnexpectedReply(t *testing.T) {
	c, conn := newTestClient(testConfig())
	conn.inbox = []pesit.FPDU{{Type: pesit.ABORT}}

	err := c.release()
	require.Error(t, err)
}
