package aggregator

import (
	"time"

	"go.dedis.ch/peerpaste/secret"
	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

var (
	// ErrUnmatched is returned for a response no aggregat waits for.
	ErrUnmatched = xerrors.New("no aggregat waits for this response")
	// ErrNoPattern is returned when no result can be derived for the type
	// of the original request.
	ErrNoPattern = xerrors.New("no result pattern for request type")
	// ErrMalformed is returned when the collected responses do not carry
	// what the result needs.
	ErrMalformed = xerrors.New("malformed aggregated response")
)

// Aggregat waits for a set of responses before the answer to its original
// request can be built.
type Aggregat struct {
	ids      map[string]struct{}
	messages []*types.Message
	request  types.RequestObject
	created  time.Time
}

// NewAggregat waits for the responses correlated with ids.
func NewAggregat(req types.RequestObject, ids ...string) *Aggregat {
	a := &Aggregat{
		ids:     make(map[string]struct{}, len(ids)),
		request: req,
		created: time.Now(),
	}
	for _, id := range ids {
		a.ids[id] = struct{}{}
	}
	return a
}

// Waits tells whether a response with this correlation id is expected.
func (a *Aggregat) Waits(id string) bool {
	_, ok := a.ids[id]
	return ok
}

// AddMessage collects a response. Requests and unexpected responses are
// rejected.
func (a *Aggregat) AddMessage(msg *types.Message) bool {
	if msg.IsRequest() || !a.Waits(msg.CorrelationID()) {
		return false
	}
	delete(a.ids, msg.CorrelationID())
	a.messages = append(a.messages, msg)
	return true
}

// IsComplete is true once every expected response arrived.
func (a *Aggregat) IsComplete() bool {
	return len(a.ids) == 0
}

// Request returns the original request.
func (a *Aggregat) Request() types.RequestObject {
	return a.request
}

// ResultMessage builds what answers the original request, depending on its
// type:
//
//	find_successor  a query response seeds a find_successor for the learned
//	                identity; otherwise the found successor is answered
//	put             the id the data is stored under
//	get             the data
//	put_dummy       the key followed by the id of the encrypted data
//	get_dummy       the decrypted data
func (a *Aggregat) ResultMessage(msgs *types.Factory) (types.RequestObject, error) {
	orig := a.request.Message
	if len(a.messages) == 0 {
		return types.RequestObject{}, xerrors.Errorf("%s: %w", orig.RequestType(), ErrMalformed)
	}
	first := a.messages[0]

	if orig.RequestType() == types.FindSuccessorType && first.RequestType() == types.QueryType {
		if len(first.Peers) != 1 {
			return types.RequestObject{}, xerrors.Errorf("query with %d peers: %w", len(first.Peers), ErrMalformed)
		}
		seed := orig.Copy()
		seed.SetPeers(first.Peers)
		msgs.GenerateTransactionID(seed)
		return a.request.WithMessage(seed), nil
	}

	resp, err := orig.GenerateResponse()
	if err != nil {
		return types.RequestObject{}, err
	}
	resp.Header.ResponseCode = first.Header.ResponseCode

	switch orig.RequestType() {
	case types.FindSuccessorType:
		if len(first.Peers) != 1 {
			return types.RequestObject{}, xerrors.Errorf("successor with %d peers: %w", len(first.Peers), ErrMalformed)
		}
		resp.SetPeers(first.Peers)

	case types.PutType, types.GetType:
		resp.SetData(first.Data)

	case types.PutEncryptedType:
		resp.SetData(append(append([]byte(nil), orig.Data...), first.Data...))

	case types.GetEncryptedType:
		if resp.Header.ResponseCode == "" {
			plain, err := secret.Open(string(orig.Data), first.Data)
			if err != nil {
				return types.RequestObject{}, xerrors.Errorf("get encrypted: %w", err)
			}
			resp.SetData(plain)
		}

	default:
		return types.RequestObject{}, xerrors.Errorf("%q: %w", orig.RequestType(), ErrNoPattern)
	}

	return a.request.WithMessage(resp), nil
}
