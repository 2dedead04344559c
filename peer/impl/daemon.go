package impl

import (
	"context"
	"time"

	"go.dedis.ch/peerpaste/types"
)

// expireDaemon fails the aggregations whose responses never came.
func (n *node) expireDaemon(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	for !n.isKilled() {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
		for _, orig := range n.aggr.Expire(time.Now().Add(-n.conf.TaskTimeout)) {
			n.Debug().Msgf("aggregation of %s expired", orig.Message)
			n.abort(orig, types.CodeTimeout)
		}
	}
	return nil
}
