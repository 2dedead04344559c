package impl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/peerpaste/peer"
	"go.dedis.ch/peerpaste/transport"
	"go.dedis.ch/peerpaste/transport/channel"
	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

// unreachable is a socket whose writes always fail.
type unreachable struct {
	transport.ClosableSocket
}

func (unreachable) Send(string, transport.Packet, time.Duration) error {
	return xerrors.New("network is down")
}

func newUnreachableNode(t *testing.T) *node {
	sock, err := channel.NewTransport().CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { sock.Close() })

	conf := peer.DefaultConfiguration()
	conf.Socket = unreachable{sock}
	p, err := NewPeer(conf)
	require.NoError(t, err)

	n := p.(*node)
	t.Cleanup(func() {
		n.pool.Close()
		n.codec.Close()
	})
	return n
}

func Test_Node_sendFailureDropsAggregation(t *testing.T) {
	n := newUnreachableNode(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := n.PutEncrypted(ctx, "127.0.0.1:9", []byte("paste"))
	require.Error(t, err)
	require.Equal(t, 0, n.aggr.Len())

	_, err = n.GetEncrypted(ctx, "127.0.0.1:9", "00000000000000000000000000000000000000000000000000000000000000000000")
	require.Error(t, err)
	require.Equal(t, 0, n.aggr.Len())

	_, err = n.Locate(ctx, "127.0.0.1:9")
	require.Error(t, err)
	require.Equal(t, 0, n.aggr.Len())
}

func Test_Node_forwardFailureDropsAggregation(t *testing.T) {
	n := newUnreachableNode(t)

	client := types.RequestObject{Message: n.msgs.CreateRequest(types.PutType), Conn: "127.0.0.1:9"}
	inner := types.NewRequestTo(n.msgs.CreateRequest(types.StoreType), types.NewPeer("127.0.0.1", "10"))

	require.Error(t, n.forward(client, inner))
	require.Equal(t, 0, n.aggr.Len())
}
