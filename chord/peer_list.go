package chord

import (
	"go.dedis.ch/peerpaste/task"
	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

// PeerList fetches a slice of the routing table of a remote node. Its kind
// selects which slice:
//
//	KindGetSuccessorList:   successors
//	KindGetPredAndSuccList: predecessor then successors, empty without predecessor
//	KindGetSelfAndSuccList: the node itself then its successors
type PeerList struct {
	*task.Base
	c *Chord

	requestType string
	target      types.Peer
	req         types.RequestObject

	peers []types.Peer
}

var listRequests = map[task.Kind]string{
	KindGetSuccessorList:   types.GetSuccessorListType,
	KindGetPredAndSuccList: types.GetPredAndSuccListType,
	KindGetSelfAndSuccList: types.GetSelfAndSuccListType,
}

func newPeerList(c *Chord, kind task.Kind, target types.Peer) *PeerList {
	return &PeerList{Base: task.NewBase(kind), c: c, requestType: listRequests[kind], target: target}
}

func servePeerList(c *Chord, kind task.Kind, req types.RequestObject) *PeerList {
	return &PeerList{Base: task.NewBase(kind), c: c, requestType: listRequests[kind], req: req}
}

// Peers returns the fetched list once the task is done.
func (l *PeerList) Peers() []types.Peer {
	return l.peers
}

// Target returns the node asked.
func (l *PeerList) Target() types.Peer {
	return l.target
}

func (l *PeerList) CreateRequest() {
	l.c.engine.Request(l, l.c.request(l.requestType, l.target), l.handleResponse)
}

func (l *PeerList) handleResponse(resp types.RequestObject) {
	if err := validPeers(resp.Message.Peers); err != nil {
		l.Fail(xerrors.Errorf("%s response: %w", l.requestType, err))
		return
	}
	l.peers = resp.Message.Peers
	l.Complete()
}

func (l *PeerList) HandleRequest() {
	rt := l.c.rt

	switch l.Kind() {
	case KindGetSuccessorList:
		l.peers = rt.Peers()
	case KindGetPredAndSuccList:
		if pred, ok := rt.TryGetPredecessor(); ok {
			l.peers = append([]types.Peer{pred}, rt.Peers()...)
		}
	case KindGetSelfAndSuccList:
		self, ok := rt.TryGetSelf()
		if !ok {
			l.Fail(xerrors.Errorf("serve %s: %w", l.requestType, ErrNotReady))
			return
		}
		l.peers = append([]types.Peer{self}, rt.Peers()...)
	}

	l.c.reply(l, l.req, l.peers)
	l.Complete()
}
