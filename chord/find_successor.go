package chord

import (
	"go.dedis.ch/peerpaste/task"
	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

// FindSuccessor resolves the peer responsible for an id. A node that cannot
// answer locally forwards the question to its closest preceding node and
// relays the answer.
type FindSuccessor struct {
	*task.Base
	c *Chord

	id string
	// via forces the question to a given node, used before we are part of
	// the ring.
	via *types.Peer
	req types.RequestObject

	successor types.Peer
}

func newFindSuccessor(c *Chord, id string) *FindSuccessor {
	return &FindSuccessor{Base: task.NewBase(KindFindSuccessor), c: c, id: id}
}

func newFindSuccessorVia(c *Chord, id string, via types.Peer) *FindSuccessor {
	f := newFindSuccessor(c, id)
	f.via = &via
	return f
}

func serveFindSuccessor(c *Chord, req types.RequestObject) *FindSuccessor {
	f := &FindSuccessor{Base: task.NewBase(KindFindSuccessor), c: c, req: req}
	f.id = req.Message.Peers[0].ID
	return f
}

// Successor returns the resolved peer once the task is done.
func (f *FindSuccessor) Successor() types.Peer {
	return f.successor
}

func (f *FindSuccessor) CreateRequest() {
	if f.via != nil {
		f.ask(*f.via, f.handleResponse)
		return
	}
	if p, ok := LocalSuccessor(f.c.rt, f.id); ok {
		f.successor = p
		f.Complete()
		return
	}
	f.ask(ClosestPrecedingNode(f.c.rt, f.id), f.handleResponse)
}

func (f *FindSuccessor) handleResponse(resp types.RequestObject) {
	p, err := single(resp)
	if err != nil {
		f.Fail(err)
		return
	}
	f.successor = p
	f.Complete()
}

func (f *FindSuccessor) HandleRequest() {
	if p, ok := LocalSuccessor(f.c.rt, f.id); ok {
		f.successor = p
		f.c.reply(f, f.req, []types.Peer{p})
		f.Complete()
		return
	}
	f.ask(ClosestPrecedingNode(f.c.rt, f.id), f.relay)
}

// relay hands the answer of the next hop back to the requester.
func (f *FindSuccessor) relay(resp types.RequestObject) {
	p, err := single(resp)
	if err != nil {
		f.Fail(err)
		return
	}
	f.successor = p
	f.c.reply(f, f.req, []types.Peer{p})
	f.Complete()
}

func (f *FindSuccessor) ask(p types.Peer, handler func(types.RequestObject)) {
	f.c.engine.Request(f, f.c.request(types.FindSuccessorType, p, types.Peer{ID: f.id}), handler)
}

func single(resp types.RequestObject) (types.Peer, error) {
	if len(resp.Message.Peers) != 1 {
		return types.Peer{}, xerrors.Errorf("%s response with %d peers: %w", resp.RequestType(),
			len(resp.Message.Peers), ErrMalformed)
	}
	if err := validPeers(resp.Message.Peers); err != nil {
		return types.Peer{}, xerrors.Errorf("%s response: %w", resp.RequestType(), err)
	}
	return resp.Message.Peers[0], nil
}
