package chord

import (
	"go.dedis.ch/peerpaste/task"
	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

// shape is the payload a request type must carry. -1 means at least one.
type shape struct {
	peers int
	files int
}

var shapes = map[string]shape{
	types.QueryType:              {peers: 1},
	types.FindSuccessorType:      {peers: 1},
	types.GetSuccessorListType:   {},
	types.GetPredAndSuccListType: {},
	types.GetSelfAndSuccListType: {},
	types.NotifyType:             {peers: 1},
	types.CheckPredecessorType:   {},
	types.BroadcastFileListType:  {peers: -1},
	types.GetFileType:            {files: 1},
}

// Serves tells whether the ring answers requests of this type.
func Serves(requestType string) bool {
	_, ok := shapes[requestType]
	return ok
}

// FromRequest builds the task serving req. It returns ErrUnknownRequest
// for types the ring does not serve and ErrMalformed for payloads of the
// wrong shape.
func (c *Chord) FromRequest(req types.RequestObject) (task.Task, error) {
	msg := req.Message
	if msg == nil || !msg.IsRequest() {
		return nil, xerrors.Errorf("serve: %w", types.ErrNotARequest)
	}

	s, ok := shapes[msg.RequestType()]
	if !ok {
		return nil, xerrors.Errorf("serve %q: %w", msg.RequestType(), ErrUnknownRequest)
	}
	if !s.fits(len(msg.Peers), len(msg.Files)) {
		return nil, xerrors.Errorf("serve %s with %d peers and %d files: %w", msg.RequestType(),
			len(msg.Peers), len(msg.Files), ErrMalformed)
	}
	if err := wellFormed(msg); err != nil {
		return nil, xerrors.Errorf("serve %s: %w", msg.RequestType(), err)
	}

	switch msg.RequestType() {
	case types.QueryType:
		return serveQuery(c, req), nil
	case types.FindSuccessorType:
		return serveFindSuccessor(c, req), nil
	case types.GetSuccessorListType:
		return servePeerList(c, KindGetSuccessorList, req), nil
	case types.GetPredAndSuccListType:
		return servePeerList(c, KindGetPredAndSuccList, req), nil
	case types.GetSelfAndSuccListType:
		return servePeerList(c, KindGetSelfAndSuccList, req), nil
	case types.NotifyType:
		return serveNotify(c, req), nil
	case types.CheckPredecessorType:
		return serveCheckPredecessor(c, req), nil
	case types.BroadcastFileListType:
		return serveBroadcastFileList(c, req), nil
	default:
		return serveGetFile(c, req), nil
	}
}

func (s shape) fits(peers, files int) bool {
	if s.peers == -1 {
		return peers >= 1
	}
	return peers == s.peers && files == s.files
}

// wellFormed checks the content of the payload. A find_successor key only
// needs the ring width, a query only the port the asker listens on.
func wellFormed(msg *types.Message) error {
	switch msg.RequestType() {
	case types.FindSuccessorType:
		if !types.ValidID(msg.Peers[0].ID) {
			return xerrors.Errorf("key %q: %w", msg.Peers[0].ID, ErrMalformed)
		}
	case types.QueryType:
		if msg.Peers[0].Port == "" {
			return xerrors.Errorf("query without port: %w", ErrMalformed)
		}
	case types.GetFileType:
		f := msg.Files[0]
		if f.Name == "" || f.Offset > f.Size {
			return xerrors.Errorf("file %q at %d: %w", f.Name, f.Offset, ErrMalformed)
		}
	default:
		return validPeers(msg.Peers)
	}
	return nil
}

// validPeers rejects any peer without a ring identifier or an address.
func validPeers(peers []types.Peer) error {
	for _, p := range peers {
		if !p.Valid() {
			return xerrors.Errorf("peer %q at %q: %w", p.ID, p.Addr(), ErrMalformed)
		}
	}
	return nil
}
