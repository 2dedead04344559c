package impl

import (
	"context"

	"go.dedis.ch/peerpaste/secret"
	"go.dedis.ch/peerpaste/storage"
	"go.dedis.ch/peerpaste/task"
	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

// Put implements peer.Pastebin
func (n *node) Put(ctx context.Context, addr string, data []byte) (string, error) {
	if len(data) > types.MaxPasteSize {
		return "", xerrors.Errorf("put %d bytes: %w", len(data), types.ErrPasteTooLarge)
	}
	msg := n.msgs.CreateRequest(types.PutType)
	msg.SetData(data)

	resp, err := n.call(ctx, addr, msg)
	if err != nil {
		return "", xerrors.Errorf("put: %w", err)
	}
	return string(resp.Data), nil
}

// Get implements peer.Pastebin
func (n *node) Get(ctx context.Context, addr string, id string) ([]byte, error) {
	msg := n.msgs.CreateRequest(types.GetType)
	msg.SetData([]byte(id))

	resp, err := n.call(ctx, addr, msg)
	if err != nil {
		return nil, xerrors.Errorf("get %s: %w", id, err)
	}
	return resp.Data, nil
}

// PutEncrypted implements peer.Pastebin
func (n *node) PutEncrypted(ctx context.Context, addr string, data []byte) (string, error) {
	key, sealed, err := secret.Seal(data)
	if err != nil {
		return "", err
	}
	if len(sealed) > types.MaxPasteSize {
		return "", xerrors.Errorf("put encrypted %d bytes: %w", len(data), types.ErrPasteTooLarge)
	}

	put := n.msgs.CreateRequest(types.PutType)
	put.SetData(sealed)
	local := n.msgs.CreateRequest(types.PutEncryptedType)
	local.SetData([]byte(key))

	resp, err := n.aggregate(ctx, addr, local, put)
	if err != nil {
		return "", xerrors.Errorf("put encrypted: %w", err)
	}
	return string(resp.Data), nil
}

// GetEncrypted implements peer.Pastebin
func (n *node) GetEncrypted(ctx context.Context, addr string, keyAndID string) ([]byte, error) {
	if len(keyAndID) <= secret.KeyLength {
		return nil, xerrors.Errorf("get encrypted: %q is not a key followed by an id", keyAndID)
	}
	key, id := keyAndID[:secret.KeyLength], keyAndID[secret.KeyLength:]

	get := n.msgs.CreateRequest(types.GetType)
	get.SetData([]byte(id))
	local := n.msgs.CreateRequest(types.GetEncryptedType)
	local.SetData([]byte(key))

	resp, err := n.aggregate(ctx, addr, local, get)
	if err != nil {
		return nil, xerrors.Errorf("get encrypted %s: %w", id, err)
	}
	return resp.Data, nil
}

// Locate implements peer.Ring. The node at addr first tells us how it sees
// us, then resolves our successor on its ring.
func (n *node) Locate(ctx context.Context, addr string) (types.Peer, error) {
	target, err := n.target(addr)
	if err != nil {
		return types.Peer{}, err
	}

	res := make(chan types.RequestObject, 1)
	query := n.msgs.CreateRequest(types.QueryType, n.Self())
	seed := types.NewRequestTo(n.msgs.CreateRequest(types.FindSuccessorType), target)
	seed.Handler = func(r types.RequestObject) {
		select {
		case res <- r:
		default:
		}
	}

	n.aggr.Add(seed, query.TransactionID())
	if err := n.Send(types.NewRequestTo(query, target)); err != nil {
		n.aggr.Remove(query.TransactionID())
		return types.Peer{}, xerrors.Errorf("locate: %w", err)
	}

	resp, err := wait(ctx, res)
	if err != nil {
		return types.Peer{}, xerrors.Errorf("locate: %w", err)
	}
	if len(resp.Peers) != 1 {
		return types.Peer{}, xerrors.Errorf("locate: answer with %d peers", len(resp.Peers))
	}
	return resp.Peers[0], nil
}

// call sends msg to addr and waits for the response.
func (n *node) call(ctx context.Context, addr string, msg *types.Message) (*types.Message, error) {
	target, err := n.target(addr)
	if err != nil {
		return nil, err
	}

	c := task.NewCall(types.NewRequestTo(msg, target))
	n.engine.Start(c)
	if err := c.Wait(ctx); err != nil {
		return nil, err
	}
	resp := c.Response().Message
	return resp, codeErr(resp.Header.ResponseCode)
}

// aggregate sends inner to addr and waits for the local aggregation of
// orig to complete.
func (n *node) aggregate(ctx context.Context, addr string, orig, inner *types.Message) (*types.Message, error) {
	target, err := n.target(addr)
	if err != nil {
		return nil, err
	}

	res := make(chan types.RequestObject, 1)
	local := types.RequestObject{Message: orig, Handler: func(r types.RequestObject) {
		select {
		case res <- r:
		default:
		}
	}}

	n.aggr.Add(local, inner.TransactionID())
	if err := n.Send(types.NewRequestTo(inner, target)); err != nil {
		n.aggr.Remove(inner.TransactionID())
		return nil, err
	}
	return wait(ctx, res)
}

// wait returns the response handed to a continuation. The continuation is
// given the request back when the aggregation fails.
func wait(ctx context.Context, res <-chan types.RequestObject) (*types.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-res:
		if r.IsRequest() {
			return nil, ErrAggregation
		}
		return r.Message, codeErr(r.Message.Header.ResponseCode)
	}
}

// target resolves addr, the local node when empty.
func (n *node) target(addr string) (types.Peer, error) {
	if addr == "" {
		addr = n.addr
	}
	p, err := types.PeerFromAddr(addr)
	if err != nil {
		return types.Peer{}, err
	}
	return p, nil
}

// codeErr maps a response code to an error.
func codeErr(code string) error {
	switch code {
	case "":
		return nil
	case types.CodeNotFound:
		return storage.ErrNotFound
	case types.CodeTimeout:
		return task.ErrTimeout
	}
	return &RemoteError{code: code}
}
