package impl

import (
	"errors"

	"go.dedis.ch/peerpaste/chord"
	"go.dedis.ch/peerpaste/storage"
	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

// handleData serves the paste requests. put and get are routed to the
// responsible peer, which answers through an aggregation kept here; store
// and get_internal are served by the responsible peer itself.
func (n *node) handleData(req types.RequestObject) error {
	switch req.RequestType() {
	case types.PutType:
		return n.handlePut(req)
	case types.StoreType:
		return n.handleStore(req)
	case types.GetType:
		return n.handleGet(req)
	case types.GetInternalType:
		return n.respondWith(req, string(req.Message.Data))
	}
	return xerrors.Errorf("serve %q: %w", req.RequestType(), chord.ErrUnknownRequest)
}

func (n *node) handlePut(req types.RequestObject) error {
	data := req.Message.Data
	id := types.HashID(string(data))

	owner, next, local := n.route(id)
	if local {
		return n.handleStore(req)
	}

	typ := types.StoreType
	if !owner {
		typ = types.PutType
	}
	inner := n.msgs.CreateRequest(typ)
	inner.SetData(data)
	return n.forward(req, types.NewRequestTo(inner, next))
}

func (n *node) handleStore(req types.RequestObject) error {
	data := req.Message.Data
	id := types.HashID(string(data))
	if err := n.store.Put(data, id); err != nil {
		return xerrors.Errorf("store %s: %v", id, err)
	}
	n.Debug().Msgf("stored paste %s", id)

	resp, err := req.Message.GenerateResponse()
	if err != nil {
		return err
	}
	resp.SetData([]byte(id))
	return n.Send(req.WithMessage(resp))
}

func (n *node) handleGet(req types.RequestObject) error {
	id := string(req.Message.Data)

	owner, next, local := n.route(id)
	if local {
		return n.respondWith(req, id)
	}

	typ := types.GetInternalType
	if !owner {
		typ = types.GetType
	}
	inner := n.msgs.CreateRequest(typ)
	inner.SetData([]byte(id))
	return n.forward(req, types.NewRequestTo(inner, next))
}

// respondWith answers req with the paste stored under id.
func (n *node) respondWith(req types.RequestObject, id string) error {
	resp, err := req.Message.GenerateResponse()
	if err != nil {
		return err
	}
	data, err := n.store.Get(id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		resp.Header.ResponseCode = types.CodeNotFound
	case err != nil:
		return err
	default:
		resp.SetData(data)
	}
	return n.Send(req.WithMessage(resp))
}

// route tells where the key id lives. local is true when we are
// responsible; otherwise next is the responsible peer when owner is true,
// the closest known peer preceding id when it is not.
func (n *node) route(id string) (owner bool, next types.Peer, local bool) {
	rt := n.chord.RoutingTable()
	succ, ok := chord.LocalSuccessor(rt, id)
	if !ok {
		return false, chord.ClosestPrecedingNode(rt, id), false
	}
	if succ.Equal(n.Self()) {
		return true, succ, true
	}
	return true, succ, false
}

// forward sends inner on and answers req once its response is back.
func (n *node) forward(req, inner types.RequestObject) error {
	id := inner.Message.TransactionID()
	n.aggr.Add(req, id)
	if err := n.Send(inner); err != nil {
		n.aggr.Remove(id)
		return err
	}
	return nil
}
