package chord

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.dedis.ch/peerpaste/types"
)

// SuccessorListSize bounds the successor list.
const SuccessorListSize = 10

// RoutingTable is the ring view of a node: itself, its predecessor and an
// ordered list of successors. Every method is safe for concurrent use.
type RoutingTable struct {
	mu   sync.Mutex
	cond *sync.Cond

	self        *types.Peer
	predecessor *types.Peer
	successors  []types.Peer
}

// NewRoutingTable returns an empty table.
func NewRoutingTable() *RoutingTable {
	rt := &RoutingTable{}
	rt.cond = sync.NewCond(&rt.mu)
	return rt
}

// SetSelf sets the identity of the node.
func (rt *RoutingTable) SetSelf(p types.Peer) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.self = &p
	rt.cond.Broadcast()
}

// TryGetSelf returns the identity of the node, if set.
func (rt *RoutingTable) TryGetSelf() (types.Peer, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.self == nil {
		return types.Peer{}, false
	}
	return *rt.self, true
}

// SetPredecessor sets the predecessor.
func (rt *RoutingTable) SetPredecessor(p types.Peer) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.predecessor = &p
	rt.cond.Broadcast()
}

// TryGetPredecessor returns the predecessor, if known.
func (rt *RoutingTable) TryGetPredecessor() (types.Peer, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.predecessor == nil {
		return types.Peer{}, false
	}
	return *rt.predecessor, true
}

// ResetPredecessor forgets the predecessor. It returns whether there was
// one.
func (rt *RoutingTable) ResetPredecessor() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.predecessor == nil {
		return false
	}
	rt.predecessor = nil
	rt.cond.Broadcast()
	return true
}

// ResetPredecessorIf forgets the predecessor only if it is still p. It
// returns whether it did.
func (rt *RoutingTable) ResetPredecessorIf(p types.Peer) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.predecessor == nil || !rt.predecessor.Equal(p) {
		return false
	}
	rt.predecessor = nil
	rt.cond.Broadcast()
	return true
}

// SetSuccessor replaces the first successor, or adds it to an empty list.
func (rt *RoutingTable) SetSuccessor(p types.Peer) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if len(rt.successors) == 0 {
		rt.successors = []types.Peer{p}
	} else {
		rt.successors[0] = p
	}
	rt.cond.Broadcast()
}

// TryGetSuccessor returns the first successor, if any.
func (rt *RoutingTable) TryGetSuccessor() (types.Peer, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if len(rt.successors) == 0 {
		return types.Peer{}, false
	}
	return rt.successors[0], true
}

// ReplaceSuccessorList installs peers as the successor list, truncated to
// SuccessorListSize.
func (rt *RoutingTable) ReplaceSuccessorList(peers []types.Peer) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.successors = truncate(peers)
	rt.cond.Broadcast()
}

// ReplaceAfterSuccessor keeps the first successor and replaces the rest of
// the list with peers.
func (rt *RoutingTable) ReplaceAfterSuccessor(peers []types.Peer) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	list := make([]types.Peer, 0, len(peers)+1)
	if len(rt.successors) > 0 {
		list = append(list, rt.successors[0])
	}
	rt.successors = truncate(append(list, peers...))
	rt.cond.Broadcast()
}

// PushBackSuccessor appends p to the successor list unless it is full.
func (rt *RoutingTable) PushBackSuccessor(p types.Peer) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if len(rt.successors) >= SuccessorListSize {
		return false
	}
	rt.successors = append(rt.successors, p)
	rt.cond.Broadcast()
	return true
}

// PopFrontSuccessor drops the first successor. It refuses to empty the list
// and returns whether a successor was dropped.
func (rt *RoutingTable) PopFrontSuccessor() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if len(rt.successors) <= 1 {
		return false
	}
	rt.successors = append([]types.Peer(nil), rt.successors[1:]...)
	rt.cond.Broadcast()
	return true
}

// Peers returns a copy of the successor list.
func (rt *RoutingTable) Peers() []types.Peer {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]types.Peer(nil), rt.successors...)
}

// Size returns the length of the successor list.
func (rt *RoutingTable) Size() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.successors)
}

// IsValid tells whether the node is linked into a ring: it knows a
// predecessor and a successor, both distinct from itself.
func (rt *RoutingTable) IsValid() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.valid()
}

func (rt *RoutingTable) valid() bool {
	if rt.self == nil || rt.predecessor == nil || len(rt.successors) == 0 {
		return false
	}
	return !rt.predecessor.Equal(*rt.self) && !rt.successors[0].Equal(*rt.self)
}

// WaitUntilValid blocks until the table is valid or ctx is done.
func (rt *RoutingTable) WaitUntilValid(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		rt.cond.Broadcast()
	})
	defer stop()

	rt.mu.Lock()
	defer rt.mu.Unlock()
	for !rt.valid() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rt.cond.Wait()
	}
	return nil
}

// Snapshot is a consistent copy of a routing table.
type Snapshot struct {
	Self        *types.Peer
	Predecessor *types.Peer
	Successors  []types.Peer
	Valid       bool
}

// Snapshot copies the table under a single lock.
func (rt *RoutingTable) Snapshot() Snapshot {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	snap := Snapshot{Successors: append([]types.Peer(nil), rt.successors...), Valid: rt.valid()}
	if rt.self != nil {
		self := *rt.self
		snap.Self = &self
	}
	if rt.predecessor != nil {
		pred := *rt.predecessor
		snap.Predecessor = &pred
	}
	return snap
}

func (s Snapshot) String() string {
	out := new(strings.Builder)
	fmt.Fprintf(out, "self:        %s\n", optional(s.Self))
	fmt.Fprintf(out, "predecessor: %s\n", optional(s.Predecessor))
	for i, p := range s.Successors {
		fmt.Fprintf(out, "successor %d: %s\n", i, p)
	}
	fmt.Fprintf(out, "valid:       %t", s.Valid)
	return out.String()
}

func optional(p *types.Peer) string {
	if p == nil {
		return "-"
	}
	return p.String()
}

func truncate(peers []types.Peer) []types.Peer {
	if len(peers) > SuccessorListSize {
		peers = peers[:SuccessorListSize]
	}
	return append([]types.Peer(nil), peers...)
}
