package aggregator

import (
	"sync"
	"time"

	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

// Aggregator routes responses to the aggregat waiting for them.
type Aggregator struct {
	sync.Mutex
	msgs      *types.Factory
	aggregats []*Aggregat
}

// New returns an empty aggregator. msgs issues the transaction ids of the
// requests it synthesizes.
func New(msgs *types.Factory) *Aggregator {
	return &Aggregator{msgs: msgs}
}

// Add waits for the responses correlated with ids before answering req.
func (a *Aggregator) Add(req types.RequestObject, ids ...string) {
	a.Lock()
	defer a.Unlock()
	a.aggregats = append(a.aggregats, NewAggregat(req, ids...))
}

// Deliver hands resp to the first aggregat waiting for it. Once that
// aggregat is complete, it is removed and its result returned with true. If
// the result cannot be built, the original request is returned with the
// error.
func (a *Aggregator) Deliver(resp types.RequestObject) (types.RequestObject, bool, error) {
	a.Lock()
	defer a.Unlock()

	for i, agg := range a.aggregats {
		if !agg.AddMessage(resp.Message) {
			continue
		}
		if !agg.IsComplete() {
			return types.RequestObject{}, false, nil
		}
		a.aggregats = append(a.aggregats[:i], a.aggregats[i+1:]...)
		result, err := agg.ResultMessage(a.msgs)
		if err != nil {
			return agg.Request(), false, err
		}
		return result, true, nil
	}
	return types.RequestObject{}, false, xerrors.Errorf("%s: %w", resp.Message, ErrUnmatched)
}

// Remove drops the aggregat waiting for the response correlated with id,
// typically because the request carrying id could not be sent. It reports
// whether one was found.
func (a *Aggregator) Remove(id string) bool {
	a.Lock()
	defer a.Unlock()

	for i, agg := range a.aggregats {
		if agg.Waits(id) {
			a.aggregats = append(a.aggregats[:i], a.aggregats[i+1:]...)
			return true
		}
	}
	return false
}

// Expire drops the aggregats created before the given time and returns
// their original requests.
func (a *Aggregator) Expire(before time.Time) []types.RequestObject {
	a.Lock()
	defer a.Unlock()

	var expired []types.RequestObject
	kept := a.aggregats[:0]
	for _, agg := range a.aggregats {
		if agg.created.Before(before) {
			expired = append(expired, agg.request)
			continue
		}
		kept = append(kept, agg)
	}
	for i := len(kept); i < len(a.aggregats); i++ {
		a.aggregats[i] = nil
	}
	a.aggregats = kept
	return expired
}

// Len returns the number of aggregats waiting.
func (a *Aggregator) Len() int {
	a.Lock()
	defer a.Unlock()
	return len(a.aggregats)
}
