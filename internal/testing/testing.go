package testing

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/peerpaste/peer"
	"go.dedis.ch/peerpaste/storage"
	"go.dedis.ch/peerpaste/transport"
)

// Option changes the configuration of a test node.
type Option func(*configTemplate)

type configTemplate struct {
	noStart bool
	conf    peer.Configuration
}

func newConfigTemplate() configTemplate {
	conf := peer.DefaultConfiguration()
	conf.TaskTimeout = 2 * time.Second
	conf.RecvTimeout = 20 * time.Millisecond
	conf.StabilizeInterval = 50 * time.Millisecond
	conf.CheckPredecessorInterval = 100 * time.Millisecond
	conf.SweepInterval = 50 * time.Millisecond
	conf.Workers = 4
	return configTemplate{conf: conf}
}

// WithStabilizeInterval sets the stabilize period. 0 disables it.
func WithStabilizeInterval(d time.Duration) Option {
	return func(ct *configTemplate) {
		ct.conf.StabilizeInterval = d
	}
}

// WithCheckPredecessorInterval sets the predecessor check period. 0
// disables it.
func WithCheckPredecessorInterval(d time.Duration) Option {
	return func(ct *configTemplate) {
		ct.conf.CheckPredecessorInterval = d
	}
}

// WithSweepInterval sets the period timeouts are checked at.
func WithSweepInterval(d time.Duration) Option {
	return func(ct *configTemplate) {
		ct.conf.SweepInterval = d
	}
}

// WithBroadcastInterval sets the file list replication period.
func WithBroadcastInterval(d time.Duration) Option {
	return func(ct *configTemplate) {
		ct.conf.BroadcastInterval = d
	}
}

// WithTaskTimeout sets the lifetime of tasks and aggregations.
func WithTaskTimeout(d time.Duration) Option {
	return func(ct *configTemplate) {
		ct.conf.TaskTimeout = d
	}
}

// WithStorage sets the storage of the node.
func WithStorage(s storage.Storage) Option {
	return func(ct *configTemplate) {
		ct.conf.Storage = s
	}
}

// WithoutStart leaves the node stopped.
func WithoutStart() Option {
	return func(ct *configTemplate) {
		ct.noStart = true
	}
}

// TestNode is a peer bound to a test. Stop closes its socket.
type TestNode struct {
	peer.Peer
	t       *testing.T
	socket  transport.ClosableSocket
	storage storage.Storage
}

// NewTestNode creates a node listening on addr. It is started unless
// WithoutStart is given.
func NewTestNode(t *testing.T, f peer.Factory, trans transport.Transport,
	addr string, opts ...Option) TestNode {

	template := newConfigTemplate()
	for _, opt := range opts {
		opt(&template)
	}

	socket, err := trans.CreateSocket(addr)
	require.NoError(t, err)

	conf := template.conf
	conf.Socket = socket
	if conf.Storage == nil {
		conf.Storage = storage.NewMemory()
	}

	node, err := f(conf)
	require.NoError(t, err)

	if !template.noStart {
		require.NoError(t, node.Start())
	}

	return TestNode{
		Peer:    node,
		t:       t,
		socket:  socket,
		storage: conf.Storage,
	}
}

// Stop stops the node and closes its socket.
func (t TestNode) Stop() error {
	defer t.socket.Close()
	return t.Peer.Stop()
}

// GetStorage returns the storage of the node.
func (t TestNode) GetStorage() storage.Storage {
	return t.storage
}

// GetIns returns the packets received by the node.
func (t TestNode) GetIns() []transport.Packet {
	return t.socket.GetIns()
}

// GetOuts returns the packets sent by the node.
func (t TestNode) GetOuts() []transport.Packet {
	return t.socket.GetOuts()
}

// Context returns a context bounded by d, cancelled with the test.
func (t TestNode) Context(d time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.t.Cleanup(cancel)
	return ctx
}

// JoinRing joins nodes to the ring of the first one and waits until every
// node is linked.
func JoinRing(t *testing.T, nodes ...TestNode) {
	require.NotEmpty(t, nodes)
	nodes[0].CreateRing()
	for _, n := range nodes[1:] {
		require.NoError(t, n.Join(n.Context(5*time.Second), nodes[0].GetAddr()))
	}
	for _, n := range nodes {
		require.NoError(t, n.WaitUntilValid(n.Context(10*time.Second)))
	}
}

// WaitStable waits until every node points to its neighbours in id order.
func WaitStable(t *testing.T, nodes ...TestNode) {
	sorted := append([]TestNode(nil), nodes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Self().ID < sorted[j].Self().ID })

	require.Eventually(t, func() bool {
		for i, node := range sorted {
			next := sorted[(i+1)%len(sorted)]
			info := next.RoutingInfo()
			if info.Predecessor == nil || !info.Predecessor.Equal(node.Self()) {
				return false
			}
			succs := node.RoutingInfo().Successors
			if len(succs) == 0 || !succs[0].Equal(next.Self()) {
				return false
			}
		}
		return true
	}, 10*time.Second, 20*time.Millisecond)
}
