package chord

import (
	"go.dedis.ch/peerpaste/task"
	"go.dedis.ch/peerpaste/types"
)

// LocalSuccessor answers locally who is responsible for id. It returns false
// when the answer has to be asked to ClosestPrecedingNode.
func LocalSuccessor(rt *RoutingTable, id string) (types.Peer, bool) {
	self, ok := rt.TryGetSelf()
	if !ok {
		return types.Peer{}, false
	}

	successor, ok := rt.TryGetSuccessor()
	if ok && types.BetweenRightInclusive(self.ID, id, successor.ID) {
		return successor, true
	}

	// nobody known precedes id: we are the answer
	if ClosestPrecedingNode(rt, id).Equal(self) {
		return self, true
	}
	return types.Peer{}, false
}

// ClosestPrecedingNode returns the last successor strictly between self and
// id, or self when there is none.
func ClosestPrecedingNode(rt *RoutingTable, id string) types.Peer {
	self, _ := rt.TryGetSelf()
	peers := rt.Peers()
	for i := len(peers) - 1; i >= 0; i-- {
		if types.Between(self.ID, peers[i].ID, id) {
			return peers[i]
		}
	}
	return self
}

// request builds a fresh request to p.
func (c *Chord) request(requestType string, p types.Peer, peers ...types.Peer) types.RequestObject {
	return types.NewRequestTo(c.msgs.CreateRequest(requestType, peers...), p)
}

// reply answers req on behalf of t.
func (c *Chord) reply(t task.Task, req types.RequestObject, peers []types.Peer) {
	resp, err := req.Message.GenerateResponse()
	if err != nil {
		c.Err(err).Msg("failed to generate response")
		return
	}
	resp.SetPeers(peers)
	c.engine.Reply(t, req.WithMessage(resp))
}
