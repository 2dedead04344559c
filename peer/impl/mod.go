package impl

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.dedis.ch/peerpaste/aggregator"
	"go.dedis.ch/peerpaste/chord"
	"go.dedis.ch/peerpaste/logging"
	"go.dedis.ch/peerpaste/peer"
	"go.dedis.ch/peerpaste/storage"
	"go.dedis.ch/peerpaste/task"
	"go.dedis.ch/peerpaste/transport"
	"go.dedis.ch/peerpaste/types"
	"go.dedis.ch/peerpaste/wire"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// peer state
const (
	KILL = iota
	ALIVE
)

// NewPeer creates a new peer listening on conf.Socket. A nil Storage keeps
// the pastes in memory.
func NewPeer(conf peer.Configuration) (peer.Peer, error) {
	if conf.Socket == nil {
		return nil, xerrors.New("new peer: no socket")
	}
	if conf.Storage == nil {
		conf.Storage = storage.NewMemory()
	}
	if conf.Workers <= 0 {
		conf.Workers = 1
	}

	addr, err := advertised(conf.Socket.GetAddress(), conf.AdvertisedIP)
	if err != nil {
		return nil, xerrors.Errorf("new peer: %v", err)
	}
	self, err := types.PeerFromAddr(addr)
	if err != nil {
		return nil, err
	}
	self = types.NewPeer(self.IP, self.Port)

	codec, err := wire.NewCodec()
	if err != nil {
		return nil, err
	}

	n := &node{
		Logger: logging.Component("Peer", addr),
		conf:   conf,
		sock:   conf.Socket,
		codec:  codec,
		addr:   addr,
		msgs:   types.NewFactory(),
		pool:   task.NewPool(conf.Workers),
		store:  conf.Storage,
	}
	n.aggr = aggregator.New(n.msgs)
	n.engine = task.NewEngine(n, n.pool,
		task.WithTimeout(conf.TaskTimeout),
		task.WithLogger(logging.Component("Engine", addr)))
	n.chord = chord.NewChord(self, n.engine, n.msgs, n.store, chord.Config{
		StabilizeInterval:        conf.StabilizeInterval,
		CheckPredecessorInterval: conf.CheckPredecessorInterval,
		SweepInterval:            conf.SweepInterval,
		BroadcastInterval:        conf.BroadcastInterval,
	}, logging.Component("Chord", addr))

	n.Info().Str("id", self.ID).Msg("create new peer")
	return n, nil
}

// advertised returns the address the node can be reached at, replacing an
// unspecified host with ip.
func advertised(addr, ip string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	if parsed := net.ParseIP(host); host == "" || (parsed != nil && parsed.IsUnspecified()) {
		host = ip
	}
	return net.JoinHostPort(host, port), nil
}

// node implements a PeerPaste peer
//
// - implements peer.Peer
// - implements task.Sender
type node struct {
	zerolog.Logger

	conf  peer.Configuration
	sock  transport.Socket
	codec *wire.Codec
	addr  string

	msgs   *types.Factory
	pool   *task.Pool
	engine *task.Engine
	chord  *chord.Chord
	aggr   *aggregator.Aggregator
	store  storage.Storage

	stat   int32
	cancel context.CancelFunc
	group  *errgroup.Group
}

// Start implements peer.Service
func (n *node) Start() error {
	n.Info().Msg("Starting...")
	atomic.StoreInt32(&n.stat, ALIVE)

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	n.cancel = cancel
	n.group = g

	n.Info().Msg("loading daemons...")
	g.Go(func() error { return n.listenDaemon(ctx) })
	g.Go(func() error { return n.expireDaemon(ctx, n.conf.SweepInterval) })
	g.Go(func() error { return n.chord.Run(ctx) })
	n.Info().Msg("Start done")
	return nil
}

// Stop implements peer.Service
func (n *node) Stop() error {
	n.Info().Msg("Stopping...")
	if !atomic.CompareAndSwapInt32(&n.stat, ALIVE, KILL) {
		return xerrors.New("stop: node is not running")
	}
	n.chord.Stop()
	n.cancel()
	err := n.group.Wait()

	n.pool.Close()
	n.codec.Close()
	n.Info().Msg("Stop done")
	return err
}

func (n *node) isKilled() bool {
	return atomic.LoadInt32(&n.stat) == KILL
}

// GetAddr implements peer.Ring
func (n *node) GetAddr() string {
	return n.addr
}

// Self implements peer.Ring
func (n *node) Self() types.Peer {
	self, _ := n.chord.RoutingTable().TryGetSelf()
	return self
}

// CreateRing implements peer.Ring
func (n *node) CreateRing() {
	n.chord.CreateRing()
}

// Join implements peer.Ring
func (n *node) Join(ctx context.Context, addr string) error {
	return n.chord.Join(ctx, addr)
}

// Lookup implements peer.Ring
func (n *node) Lookup(ctx context.Context, id string) (types.Peer, error) {
	return n.chord.Lookup(ctx, id)
}

// RoutingInfo implements peer.Ring
func (n *node) RoutingInfo() chord.Snapshot {
	return n.chord.RoutingTable().Snapshot()
}

// WaitUntilValid implements peer.Ring
func (n *node) WaitUntilValid(ctx context.Context) error {
	return n.chord.RoutingTable().WaitUntilValid(ctx)
}

// BroadcastFiles implements peer.Pastebin
func (n *node) BroadcastFiles() {
	n.chord.BroadcastFiles()
}

// Files implements peer.Pastebin
func (n *node) Files() []types.FileInfo {
	return n.store.Files()
}
