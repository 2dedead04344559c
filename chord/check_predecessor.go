package chord

import (
	"go.dedis.ch/peerpaste/task"
	"go.dedis.ch/peerpaste/types"
)

// CheckPredecessor pings the predecessor and forgets it when it does not
// answer in time.
type CheckPredecessor struct {
	*task.Base
	c *Chord

	pinged types.Peer
	req    types.RequestObject
}

func newCheckPredecessor(c *Chord) *CheckPredecessor {
	return &CheckPredecessor{Base: task.NewBase(KindCheckPredecessor), c: c}
}

func serveCheckPredecessor(c *Chord, req types.RequestObject) *CheckPredecessor {
	return &CheckPredecessor{Base: task.NewBase(KindCheckPredecessor), c: c, req: req}
}

func (p *CheckPredecessor) CreateRequest() {
	pred, ok := p.c.rt.TryGetPredecessor()
	if !ok {
		// no predecessor
		p.Complete()
		return
	}
	p.pinged = pred
	p.c.engine.Request(p, p.c.request(types.CheckPredecessorType, pred), func(types.RequestObject) {
		p.Complete()
	})
}

func (p *CheckPredecessor) HandleFailed() {
	if p.c.rt.ResetPredecessorIf(p.pinged) {
		p.c.Info().Msgf("predecessor %s is gone", p.pinged)
	}
}

func (p *CheckPredecessor) HandleRequest() {
	p.c.reply(p, p.req, nil)
	p.Complete()
}
