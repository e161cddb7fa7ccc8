package client

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexfin/pesitd/pkg/pesit"
)

func ackCreateFPDU(diag pesit.Diag, negotiatedEntity uint32) pesit.FPDU {
	var p pesit.ParamArea
	p.Add(pesit.PI_02, diag.Bytes())
	if negotiatedEntity > 0 {
		p.AddUint32(pesit.PI_25, negotiatedEntity)
	}
	return pesit.FPDU{Type: pesit.ACK_CREATE, Params: p}
}

func TestCreateWithRenegotiationAcceptedFirstTry(t *testing.T) {
	c, conn := newTestClient(testConfig())
	conn.inbox = []pesit.FPDU{ackCreateFPDU(pesit.D0_000, 0)}

	req := SendRequest{Virtual: "REMOTE.DAT", RecordLength: 80}
	entity, err := c.createWithRenegotiation(req, 1000)
	require.NoError(t, err)
	require.Equal(t, int(c.cfg.MaxEntitySize), entity)
}

func TestCreateWithRenegotiationHalvesOnRejection(t *testing.T) {
	cfg := testConfig()
	cfg.MaxEntitySize = 4096
	c, conn := newTestClient(cfg)
	conn.inbox = []pesit.FPDU{
		ackCreateFPDU(pesit.D2_220, 0),
		ackCreateFPDU(pesit.D2_220, 0),
		ackCreateFPDU(pesit.D0_000, 0),
	}

	req := SendRequest{Virtual: "REMOTE.DAT", RecordLength: 80}
	entity, err := c.createWithRenegotiation(req, 1000)
	require.NoError(t, err)
	require.Equal(t, 1024, entity)
	require.Len(t, conn.sent, 3)

	first, _ := conn.sent[0].Params.Get(pesit.PI_25)
	second, _ := conn.sent[1].Params.Get(pesit.PI_25)
	third, _ := conn.sent[2].Params.Get(pesit.PI_25)
	v1, _ := first.Uint32()
	v2, _ := second.Uint32()
	v3, _ := third.Uint32()
	require.Equal(t, uint32(4096), v1)
	require.Equal(t, uint32(2048), v2)
	require.Equal(t, uint32(1024), v3)
}

func TestCreateWithRenegotiationStopsAtFloor(t *testing.T) {
	cfg := testConfig()
	cfg.MaxEntitySize = 256
	c, conn := newTestClient(cfg)
	conn.inbox = []pesit.FPDU{ackCreateFPDU(pesit.D2_220, 0)}

	req := SendRequest{Virtual: "REMOTE.DAT", RecordLength: 250}
	_, err := c.createWithRenegotiation(req, 1000)
	require.Error(t, err)
	require.Len(t, conn.sent, 1)
}

func TestArticlesPerEntity(t *testing.T) {
	require.Equal(t, 1, articlesPerEntity(100, 80))
	require.Equal(t, 4, articlesPerEntity(4096, 1000))
}

func TestSendFullFlow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "local.dat")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	cfg := testConfig()
	cfg.MaxEntitySize = 4096
	c, conn := newTestClient(cfg)
	c.syncEnabled = false

	conn.inbox = []pesit.FPDU{
		aconnectFPDU(9, 2, 0),
		ackCreateFPDU(pesit.D0_000, 0),
		{Type: pesit.ACK_OPEN},
		{Type: pesit.ACK_WRITE},
		{Type: pesit.TRANS_END},
		{Type: pesit.ACK_CLOSE},
		{Type: pesit.ACK_DESELECT},
		{Type: pesit.RELCONF},
	}

	req := SendRequest{Virtual: "REMOTE.DAT", LocalPath: path, RecordFormat: 1, RecordLength: 80}
	err := c.Send(context.Background(), req)
	require.NoError(t, err)

	var types []pesit.FpduType
	for _, f := range conn.sent {
		types = append(types, f.Type)
	}
	require.Equal(t, []pesit.FpduType{
		pesit.CONNECT, pesit.CREATE, pesit.OPEN, pesit.WRITE,
		pesit.DTF, pesit.DTF_END, pesit.ACK_TRANS_END,
		pesit.CLOSE, pesit.DESELECT, pesit.RELEASE,
	}, types)

	for _, f := range conn.sent {
		require.Equal(t, byte(9), f.IDDst)
	}
}
