package channel

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/peerpaste/transport"
)

func Test_Channel_exchange(t *testing.T) {
	tr := NewTransport()

	a, err := tr.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	b, err := tr.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	require.NotEqual(t, a.GetAddress(), b.GetAddress())

	require.NoError(t, a.Send(b.GetAddress(), transport.Packet{Payload: []byte("hi")}, 0))
	pkt, err := b.Recv(time.Second)
	require.NoError(t, err)
	require.Equal(t, "hi", string(pkt.Payload))
	require.Equal(t, a.GetAddress(), pkt.Header.Source)

	_, err = b.Recv(10 * time.Millisecond)
	require.True(t, errors.Is(err, transport.TimeoutErr(0)))

	// lost, like a datagram
	require.NoError(t, a.Send("127.0.0.1:1", transport.Packet{}, 0))

	require.NoError(t, b.Close())
	require.Error(t, b.Close())
	require.NoError(t, a.Send(b.GetAddress(), transport.Packet{}, 0))
	_, err = b.Recv(0)
	require.Error(t, err)

	_, err = tr.CreateSocket(a.GetAddress())
	require.Error(t, err)
}
