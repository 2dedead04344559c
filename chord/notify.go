package chord

import (
	"go.dedis.ch/peerpaste/task"
	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

// Notify tells our successor that we think we are its predecessor.
type Notify struct {
	*task.Base
	c *Chord

	req types.RequestObject
}

func newNotify(c *Chord) *Notify {
	return &Notify{Base: task.NewBase(KindNotify), c: c}
}

func serveNotify(c *Chord, req types.RequestObject) *Notify {
	return &Notify{Base: task.NewBase(KindNotify), c: c, req: req}
}

func (n *Notify) CreateRequest() {
	self, ok := n.c.rt.TryGetSelf()
	if !ok {
		n.Fail(xerrors.Errorf("notify: %w", ErrNotReady))
		return
	}
	successor, ok := n.c.rt.TryGetSuccessor()
	if !ok {
		n.Fail(xerrors.Errorf("notify: %w", ErrNotReady))
		return
	}
	n.c.engine.Request(n, n.c.request(types.NotifyType, successor, self), func(types.RequestObject) {
		n.Complete()
	})
}

// HandleRequest adopts the notifier as predecessor when we have none or when
// it sits between the current one and us.
func (n *Notify) HandleRequest() {
	notifier := n.req.Message.Peers[0]
	self, ok := n.c.rt.TryGetSelf()

	if ok && !notifier.Equal(self) {
		pred, known := n.c.rt.TryGetPredecessor()
		if !known || types.Between(pred.ID, notifier.ID, self.ID) {
			n.c.rt.SetPredecessor(notifier)
			n.c.Debug().Msgf("new predecessor %s", notifier)
		}
	}

	n.c.reply(n, n.req, nil)
	n.Complete()
}
