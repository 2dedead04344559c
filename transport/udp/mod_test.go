package udp

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/peerpaste/transport"
)

func testExchange(t *testing.T, tr transport.Transport) {
	a, err := tr.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer a.Close()

	b, err := tr.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer b.Close()

	pkt := transport.Packet{
		Header:  transport.Header{Source: "forged:1", Destination: b.GetAddress()},
		Payload: []byte("hello"),
	}
	require.NoError(t, a.Send(b.GetAddress(), pkt, time.Second))

	got, err := b.Recv(time.Second)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got.Payload))
	require.Equal(t, a.GetAddress(), got.Header.Source)

	require.Len(t, a.GetOuts(), 1)
	require.Len(t, b.GetIns(), 1)

	_, err = b.Recv(20 * time.Millisecond)
	require.True(t, errors.Is(err, transport.TimeoutErr(0)))
}

func Test_UDP_exchange(t *testing.T) {
	testExchange(t, NewUDP())
}

func Test_UDP_vectorClock(t *testing.T) {
	logfile := filepath.Join(t.TempDir(), "node")
	testExchange(t, NewUDP(WithVectorClock("node", logfile)))
}

func Test_UDP_oversized(t *testing.T) {
	a, err := NewUDP().CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer a.Close()

	pkt := transport.Packet{Payload: make([]byte, bufSize)}
	require.Error(t, a.Send(a.GetAddress(), pkt, time.Second))
}
