package chord

import (
	"go.dedis.ch/peerpaste/task"
	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

// Stabilize is one repair cycle of the successor list:
//
//	GetPredAndSuccList(successor)
//	  -> GetSelfAndSuccList(successor's predecessor), if it sits between us
//	  -> Notify(successor)
type Stabilize struct {
	*task.Base
	c *Chord

	successor types.Peer

	predAndSucc *PeerList
	selfAndSucc *PeerList
	notify      *Notify
}

func newStabilize(c *Chord) *Stabilize {
	return &Stabilize{Base: task.NewBase(KindStabilize), c: c}
}

func (s *Stabilize) CreateRequest() {
	successor, ok := s.c.rt.TryGetSuccessor()
	if !ok {
		s.Fail(xerrors.Errorf("stabilize: %w", ErrNotReady))
		return
	}
	s.successor = successor
	s.predAndSucc = newPeerList(s.c, KindGetPredAndSuccList, successor)
	s.c.engine.Spawn(s, s.predAndSucc, false)
}

func (s *Stabilize) OnDependencyDone(dep task.Task) {
	switch dep.Kind() {
	case KindGetPredAndSuccList:
		if dep.State() == task.Failed {
			log := s.c.With().Str("func", "Stabilize").Logger()
			if s.c.rt.PopFrontSuccessor() {
				log.Info().Err(dep.Err()).Msgf("successor %s is gone", s.successor)
			} else {
				log.Warn().Err(dep.Err()).Msgf("last successor %s does not answer", s.successor)
			}
			s.spawnNotify()
			return
		}
		s.updateFromSuccessor(s.predAndSucc.Peers())

	case KindGetSelfAndSuccList:
		if dep.State() == task.Done {
			s.c.rt.ReplaceSuccessorList(s.selfAndSucc.Peers())
			s.c.Debug().Msgf("new successor %s", s.selfAndSucc.Target())
		}
		s.spawnNotify()

	case KindNotify:
		if dep.State() == task.Failed {
			s.Fail(xerrors.Errorf("stabilize: %w", dep.Err()))
			return
		}
		s.Complete()
	}
}

// updateFromSuccessor takes the successor's [predecessor, successors...]
// view into account.
func (s *Stabilize) updateFromSuccessor(view []types.Peer) {
	if len(view) == 0 {
		// the successor does not know a predecessor yet
		s.spawnNotify()
		return
	}

	self, ok := s.c.rt.TryGetSelf()
	if !ok {
		s.Fail(xerrors.Errorf("stabilize: %w", ErrNotReady))
		return
	}

	succPred := view[0]
	list := append([]types.Peer{s.successor}, view[1:]...)
	s.c.rt.ReplaceSuccessorList(list)

	if types.Between(self.ID, succPred.ID, s.successor.ID) {
		s.selfAndSucc = newPeerList(s.c, KindGetSelfAndSuccList, succPred)
		s.Touch()
		s.c.engine.Spawn(s, s.selfAndSucc, false)
		return
	}
	s.spawnNotify()
}

func (s *Stabilize) spawnNotify() {
	s.notify = newNotify(s.c)
	s.Touch()
	s.c.engine.Spawn(s, s.notify, true)
}
