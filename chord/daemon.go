package chord

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	KILL = iota
	ALIVE
)

// Run runs the maintenance daemons until ctx is done or Stop is called.
func (c *Chord) Run(ctx context.Context) error {
	atomic.StoreInt32(&c.stat, ALIVE)

	g, ctx := errgroup.WithContext(ctx)
	c.daemon(ctx, g, "stabilize", c.conf.StabilizeInterval, func() { c.Stabilize() })
	c.daemon(ctx, g, "check predecessor", c.conf.CheckPredecessorInterval, func() { c.CheckPredecessor() })
	c.daemon(ctx, g, "sweep", c.conf.SweepInterval, func() { c.engine.Sweep(time.Now()) })
	c.daemon(ctx, g, "broadcast", c.conf.BroadcastInterval, func() { c.BroadcastFiles() })

	return g.Wait()
}

func (c *Chord) daemon(ctx context.Context, g *errgroup.Group, name string, interval time.Duration, tick func()) {
	if interval <= 0 {
		return
	}

	g.Go(func() error {
		for !c.isKilled() {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
				tick()
			}
		}
		c.Debug().Msgf("%s daemon stopped", name)
		return nil
	})
}
