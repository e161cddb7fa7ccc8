package transport_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexfin/pesitd/pkg/pesit"
	"github.com/nexfin/pesitd/pkg/transport"
)

func TestFrameRoundTripOverPipe(t *testing.T) {
	clientRaw, serverRaw := net.Pipe()
	defer clientRaw.Close()
	defer serverRaw.Close()

	client := transport.New(clientRaw, time.Second)
	server := transport.New(serverRaw, time.Second)

	var params pesit.ParamArea
	params.AddString(pesit.PI_03, "LOOP", false)
	f := pesit.FPDU{Type: pesit.CONNECT, IDDst: 0, IDSrc: 1, Params: params}

	errCh := make(chan error, 1)
	go func() { errCh <- client.WriteFPDU(f) }()

	got, err := server.ReadFPDU()
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	require.Equal(t, pesit.CONNECT, got.Type)
	require.Equal(t, byte(1), got.IDSrc)
	name, ok := got.Params.Get(pesit.PI_03)
	require.True(t, ok)
	require.Equal(t, "LOOP", name.String(false))
}

func TestReadFrameErrorsOnTruncatedBody(t *testing.T) {
	clientRaw, serverRaw := net.Pipe()
	defer clientRaw.Close()
	defer serverRaw.Close()

	server := transport.New(serverRaw, time.Second)

	go func() {
		_, _ = clientRaw.Write([]byte{0, 10, 1, 2, 3}) // claims 10 bytes, sends 3
		_ = clientRaw.Close()
	}()

	_, err := server.ReadFrame()
	require.Error(t, err)
}
