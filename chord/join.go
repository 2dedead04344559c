package chord

import (
	"go.dedis.ch/peerpaste/task"
	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

// Join links the node into the ring known by a bootstrap node:
// Query(bootstrap) -> FindSuccessor(self) at bootstrap -> GetSuccessorList(successor).
type Join struct {
	*task.Base
	c *Chord

	bootstrap types.Peer

	query *Query
	find  *FindSuccessor
	list  *PeerList
}

func newJoin(c *Chord, bootstrap types.Peer) *Join {
	return &Join{Base: task.NewBase(KindJoin), c: c, bootstrap: bootstrap}
}

func (j *Join) CreateRequest() {
	j.query = newQuery(j.c, j.bootstrap)
	j.c.engine.Spawn(j, j.query, true)
}

func (j *Join) OnDependencyDone(dep task.Task) {
	if dep.State() == task.Failed {
		j.Fail(xerrors.Errorf("join via %s, %s failed: %w", j.bootstrap.Addr(), dep.Kind(), dep.Err()))
		return
	}

	switch dep.Kind() {
	case KindQuery:
		j.find = newFindSuccessorVia(j.c, j.query.Self().ID, j.bootstrap)
		j.Touch()
		j.c.engine.Spawn(j, j.find, true)

	case KindFindSuccessor:
		successor := j.find.Successor()
		if successor.Equal(j.query.Self()) {
			j.Fail(xerrors.Errorf("join via %s: id %s already on the ring", j.bootstrap.Addr(), successor.ID))
			return
		}
		j.c.rt.SetSuccessor(successor)
		j.list = newPeerList(j.c, KindGetSuccessorList, successor)
		j.Touch()
		j.c.engine.Spawn(j, j.list, true)

	case KindGetSuccessorList:
		j.c.rt.ReplaceAfterSuccessor(j.list.Peers())
		j.c.Info().Msgf("joined the ring, successor %s", j.find.Successor())
		j.Complete()
	}
}
