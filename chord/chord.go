package chord

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.dedis.ch/peerpaste/storage"
	"go.dedis.ch/peerpaste/task"
	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

// Config holds the periods of the maintenance daemons. A zero period
// disables its daemon.
type Config struct {
	StabilizeInterval        time.Duration
	CheckPredecessorInterval time.Duration
	SweepInterval            time.Duration
	BroadcastInterval        time.Duration
}

// DefaultConfig returns the periods used by a node out of the box.
func DefaultConfig() Config {
	return Config{
		StabilizeInterval:        600 * time.Millisecond,
		CheckPredecessorInterval: 600 * time.Millisecond,
		SweepInterval:            400 * time.Millisecond,
	}
}

// Chord keeps a node linked into the ring. It owns the routing table and
// turns ring requests into tasks run by the engine.
type Chord struct {
	zerolog.Logger

	conf   Config
	rt     *RoutingTable
	engine *task.Engine
	msgs   *types.Factory
	store  storage.Storage

	stabilizing int32
	checking    int32
	stat        int32
}

func NewChord(self types.Peer, engine *task.Engine, msgs *types.Factory, store storage.Storage,
	conf Config, logger zerolog.Logger) *Chord {

	c := &Chord{
		Logger: logger,
		conf:   conf,
		rt:     NewRoutingTable(),
		engine: engine,
		msgs:   msgs,
		store:  store,
	}
	c.rt.SetSelf(self)
	return c
}

// RoutingTable exposes the ring view of the node.
func (c *Chord) RoutingTable() *RoutingTable {
	return c.rt
}

// CreateRing makes the node a ring of its own.
func (c *Chord) CreateRing() {
	self, _ := c.rt.TryGetSelf()
	c.rt.SetSuccessor(self)
	c.Info().Msgf("created a ring as %s", self)
}

// Join links the node into the ring bootstrap belongs to and waits for the
// outcome.
func (c *Chord) Join(ctx context.Context, bootstrap string) error {
	peer, err := types.PeerFromAddr(bootstrap)
	if err != nil {
		return err
	}
	j := newJoin(c, peer)
	c.engine.Start(j)
	return j.Wait(ctx)
}

// Lookup resolves the peer responsible for id.
func (c *Chord) Lookup(ctx context.Context, id string) (types.Peer, error) {
	if !types.ValidID(id) {
		return types.Peer{}, xerrors.Errorf("lookup %q: %w", id, ErrMalformed)
	}
	f := newFindSuccessor(c, id)
	c.engine.Start(f)
	if err := f.Wait(ctx); err != nil {
		return types.Peer{}, xerrors.Errorf("lookup %s: %w", id, err)
	}
	return f.Successor(), nil
}

// Stabilize starts a stabilize cycle unless one is running. It returns the
// cycle started, nil otherwise.
func (c *Chord) Stabilize() *Stabilize {
	if !atomic.CompareAndSwapInt32(&c.stabilizing, 0, 1) {
		return nil
	}
	s := newStabilize(c)
	s.AtFinish(func(task.Task) {
		atomic.StoreInt32(&c.stabilizing, 0)
	})
	c.engine.Start(s)
	return s
}

// CheckPredecessor pings the predecessor unless a check is running.
func (c *Chord) CheckPredecessor() *CheckPredecessor {
	if !atomic.CompareAndSwapInt32(&c.checking, 0, 1) {
		return nil
	}
	p := newCheckPredecessor(c)
	p.AtFinish(func(task.Task) {
		atomic.StoreInt32(&c.checking, 0)
	})
	c.engine.Start(p)
	return p
}

// BroadcastFiles sends our file list around the ring.
func (c *Chord) BroadcastFiles() *BroadcastFileList {
	b := newBroadcastFileList(c)
	c.engine.Start(b)
	return b
}

// HandleRequest serves a ring request. It returns ErrUnknownRequest for
// request types the ring does not serve.
func (c *Chord) HandleRequest(req types.RequestObject) error {
	t, err := c.FromRequest(req)
	if err != nil {
		return err
	}
	c.engine.Serve(t)
	return nil
}

func (c *Chord) isKilled() bool {
	return atomic.LoadInt32(&c.stat) == KILL
}

// Stop makes the daemons return.
func (c *Chord) Stop() {
	atomic.StoreInt32(&c.stat, KILL)
}
