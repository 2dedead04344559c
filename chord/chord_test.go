package chord

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/peerpaste/storage"
	"go.dedis.ch/peerpaste/task"
	"go.dedis.ch/peerpaste/types"
)

// network delivers envelopes between chord instances of the same process.
type network struct {
	sync.Mutex
	nodes map[string]*Chord
	down  map[string]bool
	log   []envelope
}

// envelope is a message put on the network.
type envelope struct {
	from, to    string
	requestType string
}

func newNetwork() *network {
	return &network{nodes: map[string]*Chord{}, down: map[string]bool{}}
}

// sent counts the messages c put on the network.
func (n *network) sent(c *Chord) int {
	n.Lock()
	defer n.Unlock()
	count := 0
	for _, s := range n.log {
		if s.from == selfOf(c).Addr() {
			count++
		}
	}
	return count
}

// requests returns the requests of the given type sent to c.
func (n *network) requests(c *Chord, requestType string) []envelope {
	n.Lock()
	defer n.Unlock()
	var res []envelope
	for _, s := range n.log {
		if s.to == selfOf(c).Addr() && s.requestType == requestType {
			res = append(res, s)
		}
	}
	return res
}

func (n *network) kill(c *Chord) {
	n.Lock()
	defer n.Unlock()
	self, _ := c.rt.TryGetSelf()
	n.down[self.Addr()] = true
}

type link struct {
	net  *network
	from string
}

func (l link) Send(req types.RequestObject) error {
	l.net.Lock()
	if req.IsRequest() {
		l.net.log = append(l.net.log, envelope{from: l.from, to: req.Destination(), requestType: req.RequestType()})
	} else {
		l.net.log = append(l.net.log, envelope{from: l.from, to: req.Destination()})
	}
	dest, ok := l.net.nodes[req.Destination()]
	down := l.net.down[req.Destination()] || l.net.down[l.from]
	l.net.Unlock()

	if !ok || down {
		return nil
	}

	in := types.RequestObject{Message: req.Message.Copy(), Conn: l.from}
	go func() {
		if in.IsRequest() {
			_ = dest.HandleRequest(in)
			return
		}
		dest.engine.Deliver(in)
	}()
	return nil
}

func newTestChord(t *testing.T, net *network, port int, timeout time.Duration) *Chord {
	self := peerAt(port)
	pool := task.NewPool(4)
	t.Cleanup(pool.Close)

	engine := task.NewEngine(link{net: net, from: self.Addr()}, pool, task.WithTimeout(timeout))
	c := NewChord(self, engine, types.NewFactory(), storage.NewMemory(), Config{}, zerolog.Nop())

	net.Lock()
	net.nodes[self.Addr()] = c
	net.Unlock()
	return c
}

func successorOf(c *Chord) types.Peer {
	p, _ := c.rt.TryGetSuccessor()
	return p
}

func predecessorOf(c *Chord) types.Peer {
	p, _ := c.rt.TryGetPredecessor()
	return p
}

func selfOf(c *Chord) types.Peer {
	p, _ := c.rt.TryGetSelf()
	return p
}

// stabilized runs stabilize cycles until every node points to the next one
// in id order.
func stabilized(t *testing.T, nodes ...*Chord) {
	sorted := append([]*Chord(nil), nodes...)
	sort.Slice(sorted, func(i, j int) bool { return selfOf(sorted[i]).ID < selfOf(sorted[j]).ID })

	require.Eventually(t, func() bool {
		for _, c := range sorted {
			c.Stabilize()
		}
		for i, c := range sorted {
			next := sorted[(i+1)%len(sorted)]
			if !successorOf(c).Equal(selfOf(next)) || !predecessorOf(next).Equal(selfOf(c)) {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
}

func join(t *testing.T, c *Chord, bootstrap *Chord) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Join(ctx, selfOf(bootstrap).Addr()))
}

func Test_Chord_twoNodes(t *testing.T) {
	net := newNetwork()
	a := newTestChord(t, net, 4001, time.Second)
	b := newTestChord(t, net, 4002, time.Second)

	a.CreateRing()
	join(t, b, a)
	require.Equal(t, selfOf(a), successorOf(b))

	stabilized(t, a, b)

	require.True(t, a.rt.IsValid())
	require.True(t, b.rt.IsValid())
	require.Equal(t, selfOf(b), predecessorOf(a))
	require.Equal(t, selfOf(a), successorOf(b))
}

func Test_Chord_joinUnreachable(t *testing.T) {
	net := newNetwork()
	a := newTestChord(t, net, 4001, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- a.Join(ctx, "127.0.0.1:9999")
	}()

	var err error
	require.Eventually(t, func() bool {
		a.engine.Sweep(time.Now())
		select {
		case err = <-done:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, errors.Is(err, task.ErrTimeout))
	_, ok := a.rt.TryGetSuccessor()
	require.False(t, ok)
}

func Test_Chord_lookup(t *testing.T) {
	net := newNetwork()
	nodes := []*Chord{
		newTestChord(t, net, 4001, time.Second),
		newTestChord(t, net, 4002, time.Second),
		newTestChord(t, net, 4003, time.Second),
		newTestChord(t, net, 4004, time.Second),
	}
	nodes[0].CreateRing()
	for _, c := range nodes[1:] {
		join(t, c, nodes[0])
	}
	stabilized(t, nodes...)

	ids := make([]string, len(nodes))
	for i, c := range nodes {
		ids[i] = selfOf(c).ID
	}
	sort.Strings(ids)

	responsible := func(key string) string {
		for _, id := range ids {
			if key <= id {
				return id
			}
		}
		return ids[0]
	}

	for _, key := range []string{types.HashID("a"), types.HashID("b"), types.HashID("paste"), ids[2]} {
		for _, c := range nodes {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			p, err := c.Lookup(ctx, key)
			cancel()
			require.NoError(t, err)
			require.Equal(t, responsible(key), p.ID)
		}
	}
}

func Test_Chord_checkPredecessorClearsOnce(t *testing.T) {
	net := newNetwork()
	a := newTestChord(t, net, 4001, 50*time.Millisecond)
	b := newTestChord(t, net, 4002, 50*time.Millisecond)
	a.CreateRing()
	join(t, b, a)
	stabilized(t, a, b)

	net.kill(a)

	check := b.CheckPredecessor()
	require.NotNil(t, check)
	require.Nil(t, b.CheckPredecessor())

	require.Eventually(t, func() bool {
		b.engine.Sweep(time.Now())
		return check.State() == task.Failed
	}, 2*time.Second, 10*time.Millisecond)
	<-check.Done()

	_, ok := b.rt.TryGetPredecessor()
	require.False(t, ok)

	// no predecessor left: the cycle is a no-op
	sent := net.sent(b)
	again := b.CheckPredecessor()
	require.NotNil(t, again)
	<-again.Done()
	require.Equal(t, task.Done, again.State())
	require.NoError(t, again.Err())
	require.Equal(t, sent, net.sent(b))
	_, ok = b.rt.TryGetPredecessor()
	require.False(t, ok)
}

func Test_Chord_stabilizeDropsDeadSuccessor(t *testing.T) {
	net := newNetwork()
	nodes := []*Chord{
		newTestChord(t, net, 4001, 50*time.Millisecond),
		newTestChord(t, net, 4002, 50*time.Millisecond),
		newTestChord(t, net, 4003, 50*time.Millisecond),
	}
	nodes[0].CreateRing()
	join(t, nodes[1], nodes[0])
	join(t, nodes[2], nodes[0])
	stabilized(t, nodes...)

	// let every successor list learn the whole ring
	for i := 0; i < 3; i++ {
		for _, c := range nodes {
			s := c.Stabilize()
			if s != nil {
				<-s.Done()
			}
		}
	}

	c := nodes[0]
	dead := successorOf(c)
	require.Greater(t, c.rt.Size(), 1)
	for _, n := range nodes {
		if selfOf(n).Equal(dead) {
			net.kill(n)
		}
	}

	require.Eventually(t, func() bool {
		c.engine.Sweep(time.Now())
		c.Stabilize()
		return !successorOf(c).Equal(dead)
	}, 3*time.Second, 10*time.Millisecond)
}

func Test_Chord_stabilizeKeepsSuccessorWhenItsPredecessorIsDead(t *testing.T) {
	net := newNetwork()
	a := newTestChord(t, net, 4001, 50*time.Millisecond)
	b := newTestChord(t, net, 4002, 50*time.Millisecond)
	a.CreateRing()
	join(t, b, a)
	stabilized(t, a, b)

	// b believes in a predecessor sitting between a and b that never answers
	var dead types.Peer
	for port := 5000; port < 6000; port++ {
		p := peerAt(port)
		if types.Between(selfOf(a).ID, p.ID, selfOf(b).ID) {
			dead = p
			break
		}
	}
	require.NotEmpty(t, dead.ID)
	b.rt.SetPredecessor(dead)

	// wait out a cycle left running by stabilized
	var s *Stabilize
	require.Eventually(t, func() bool {
		s = a.Stabilize()
		return s != nil
	}, 2*time.Second, 10*time.Millisecond)
	notified := len(net.requests(b, types.NotifyType))
	require.Eventually(t, func() bool {
		a.engine.Sweep(time.Now())
		select {
		case <-s.Done():
			return true
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	require.Equal(t, task.Done, s.State())
	require.Equal(t, selfOf(b), a.rt.Peers()[0])
	require.Eventually(t, func() bool {
		return len(net.requests(b, types.NotifyType)) == notified+1
	}, time.Second, 10*time.Millisecond)
}

func Test_Chord_rejectsMalformed(t *testing.T) {
	net := newNetwork()
	a := newTestChord(t, net, 4001, time.Second)
	a.CreateRing()
	msgs := types.NewFactory()

	err := a.HandleRequest(types.RequestObject{Message: msgs.CreateRequest(types.NotifyType), Conn: "127.0.0.1:1"})
	require.True(t, errors.Is(err, ErrMalformed))

	two := msgs.CreateRequest(types.NotifyType, peerAt(1), peerAt(2))
	err = a.HandleRequest(types.RequestObject{Message: two, Conn: "127.0.0.1:1"})
	require.True(t, errors.Is(err, ErrMalformed))

	err = a.HandleRequest(types.RequestObject{Message: msgs.CreateRequest("gossip"), Conn: "127.0.0.1:1"})
	require.True(t, errors.Is(err, ErrUnknownRequest))

	// the right count of peers is not enough, they must be usable
	bad := []types.Peer{
		{},
		{ID: "zz", IP: "127.0.0.1", Port: "2"},
		{ID: types.HashID("x")[:types.IDLength-2], IP: "127.0.0.1", Port: "2"},
		{ID: types.HashID("x"), Port: "2"},
	}
	for _, p := range bad {
		err = a.HandleRequest(types.RequestObject{Message: msgs.CreateRequest(types.NotifyType, p), Conn: "127.0.0.1:2"})
		require.True(t, errors.Is(err, ErrMalformed), p)

		files := msgs.CreateRequest(types.BroadcastFileListType, peerAt(3), p)
		err = a.HandleRequest(types.RequestObject{Message: files, Conn: "127.0.0.1:2"})
		require.True(t, errors.Is(err, ErrMalformed), p)
	}

	err = a.HandleRequest(types.RequestObject{Message: msgs.CreateRequest(types.FindSuccessorType, types.Peer{ID: "zz"}), Conn: "127.0.0.1:1"})
	require.True(t, errors.Is(err, ErrMalformed))
	err = a.HandleRequest(types.RequestObject{Message: msgs.CreateRequest(types.QueryType, types.Peer{}), Conn: "127.0.0.1:1"})
	require.True(t, errors.Is(err, ErrMalformed))

	getFile := msgs.CreateRequest(types.GetFileType)
	getFile.SetFileList([]types.FileInfo{{Name: "p1", Size: 3, Offset: 4}})
	err = a.HandleRequest(types.RequestObject{Message: getFile, Conn: "127.0.0.1:1"})
	require.True(t, errors.Is(err, ErrMalformed))

	_, ok := a.rt.TryGetPredecessor()
	require.False(t, ok)

	_, err = a.Lookup(context.Background(), "zz")
	require.True(t, errors.Is(err, ErrMalformed))
}

func Test_single_rejectsUnusablePeers(t *testing.T) {
	msgs := types.NewFactory()
	req := msgs.CreateRequest(types.FindSuccessorType, peerAt(1))

	resp, err := req.GenerateResponse()
	require.NoError(t, err)
	resp.AddPeer(types.Peer{ID: "zz", IP: "127.0.0.1", Port: "2"})
	_, err = single(types.RequestObject{Message: resp})
	require.True(t, errors.Is(err, ErrMalformed))

	resp.SetPeers([]types.Peer{peerAt(2)})
	p, err := single(types.RequestObject{Message: resp})
	require.NoError(t, err)
	require.Equal(t, peerAt(2), p)
}

func Test_Chord_notifyAdoption(t *testing.T) {
	net := newNetwork()
	a := newTestChord(t, net, 4001, time.Second)
	msgs := types.NewFactory()

	notify := func(p types.Peer) {
		req := types.RequestObject{Message: msgs.CreateRequest(types.NotifyType, p), Conn: p.Addr()}
		require.NoError(t, a.HandleRequest(req))
	}

	me := selfOf(a)
	far := types.Peer{ID: types.HashID("far"), IP: "127.0.0.1", Port: "2"}
	notify(far)
	require.Eventually(t, func() bool { return predecessorOf(a).Equal(far) }, time.Second, time.Millisecond)

	// a node between the predecessor and us takes its place, others do not
	var closer, outside types.Peer
	for i := 0; closer.ID == "" || outside.ID == ""; i++ {
		p := types.Peer{ID: types.HashID("candidate", string(rune('a'+i%26)), string(rune('0'+i/26))), IP: "127.0.0.1", Port: "3"}
		if types.Between(far.ID, p.ID, me.ID) {
			closer = p
		} else if p.ID != me.ID && p.ID != far.ID {
			outside = p
		}
	}

	notify(outside)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, far, predecessorOf(a))

	notify(closer)
	require.Eventually(t, func() bool { return predecessorOf(a).Equal(closer) }, time.Second, time.Millisecond)

	// notifying ourselves changes nothing
	notify(me)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, closer, predecessorOf(a))
}

func Test_Chord_broadcastFiles(t *testing.T) {
	net := newNetwork()
	nodes := []*Chord{
		newTestChord(t, net, 4001, time.Second),
		newTestChord(t, net, 4002, time.Second),
		newTestChord(t, net, 4003, time.Second),
	}
	nodes[0].CreateRing()
	join(t, nodes[1], nodes[0])
	join(t, nodes[2], nodes[0])
	stabilized(t, nodes...)

	require.NoError(t, nodes[0].store.Put([]byte("first paste"), "p1"))
	require.NoError(t, nodes[0].store.Put([]byte("second paste"), "p2"))
	require.NoError(t, nodes[1].store.Put([]byte("first paste"), "p1"))

	b := nodes[0].BroadcastFiles()
	<-b.Done()
	require.Equal(t, task.Done, b.State())

	for _, c := range nodes[1:] {
		c := c
		require.Eventually(t, func() bool {
			return c.store.Exists("p1") && c.store.Exists("p2")
		}, 2*time.Second, 10*time.Millisecond)

		data, err := c.store.Get("p2")
		require.NoError(t, err)
		require.Equal(t, "second paste", string(data))
	}
}

func Test_Chord_getFileInChunks(t *testing.T) {
	net := newNetwork()
	a := newTestChord(t, net, 4001, time.Second)
	b := newTestChord(t, net, 4002, time.Second)
	a.CreateRing()
	join(t, b, a)
	stabilized(t, a, b)

	data := make([]byte, 3*FileChunkSize+FileChunkSize/2)
	for i := range data {
		data[i] = byte(i * 7)
	}
	require.NoError(t, b.store.Put(data, "big"))
	info := types.NewFileInfo("big", data)

	fetch := newGetFile(a, selfOf(b), info)
	a.engine.Start(fetch)
	<-fetch.Done()
	require.Equal(t, task.Done, fetch.State())

	got, err := a.store.Get("big")
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.Len(t, net.requests(b, types.GetFileType), 4)

	// a file whose content changed on the way fails its hash check
	info.Name = "stale"
	info.Hash = types.ContentHash([]byte("something else"))
	require.NoError(t, b.store.Put(data, "stale"))

	stale := newGetFile(a, selfOf(b), info)
	a.engine.Start(stale)
	<-stale.Done()
	require.Equal(t, task.Failed, stale.State())
	require.True(t, errors.Is(stale.Err(), ErrMalformed))
	require.False(t, a.store.Exists("stale"))
}
