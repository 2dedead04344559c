package chord

import (
	"go.dedis.ch/peerpaste/task"
	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

// Query asks a remote node how it sees us. The answer carries the address
// the remote observed, which becomes our identity on the ring.
type Query struct {
	*task.Base
	c *Chord

	target types.Peer
	req    types.RequestObject

	self types.Peer
}

func newQuery(c *Chord, target types.Peer) *Query {
	return &Query{Base: task.NewBase(KindQuery), c: c, target: target}
}

func serveQuery(c *Chord, req types.RequestObject) *Query {
	return &Query{Base: task.NewBase(KindQuery), c: c, req: req}
}

// Self returns the learned identity once the query is done.
func (q *Query) Self() types.Peer {
	return q.self
}

func (q *Query) CreateRequest() {
	self, ok := q.c.rt.TryGetSelf()
	if !ok {
		q.Fail(xerrors.Errorf("query: %w", ErrNotReady))
		return
	}
	q.c.engine.Request(q, q.c.request(types.QueryType, q.target, self), q.handleResponse)
}

func (q *Query) handleResponse(resp types.RequestObject) {
	if len(resp.Message.Peers) != 1 {
		q.Fail(xerrors.Errorf("query response with %d peers: %w", len(resp.Message.Peers), ErrMalformed))
		return
	}
	if err := validPeers(resp.Message.Peers); err != nil {
		q.Fail(xerrors.Errorf("query response: %w", err))
		return
	}
	q.self = resp.Message.Peers[0]
	q.c.rt.SetSelf(q.self)
	q.c.Debug().Msgf("learned identity %s", q.self)
	q.Complete()
}

// HandleRequest answers with the requester as seen from here: the address
// it came from and the port it listens on.
func (q *Query) HandleRequest() {
	asker := q.req.Message.Peers[0]
	ip := q.req.ClientIP()
	seen := types.Peer{ID: types.HashID(ip, asker.Port), IP: ip, Port: asker.Port}

	q.c.reply(q, q.req, []types.Peer{seen})
	q.Complete()
}
