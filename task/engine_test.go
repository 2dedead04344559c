package task

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

type recorder struct {
	sync.Mutex
	sent []types.RequestObject
	err  error
}

func (r *recorder) Send(req types.RequestObject) error {
	r.Lock()
	defer r.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, req)
	return nil
}

func (r *recorder) last() types.RequestObject {
	r.Lock()
	defer r.Unlock()
	return r.sent[len(r.sent)-1]
}

func (r *recorder) count() int {
	r.Lock()
	defer r.Unlock()
	return len(r.sent)
}

func newEngine(t *testing.T, sender Sender, opts ...EngineOption) *Engine {
	pool := NewPool(4)
	t.Cleanup(pool.Close)
	return NewEngine(sender, pool, opts...)
}

func respond(t *testing.T, req types.RequestObject) types.RequestObject {
	resp, err := req.Message.GenerateResponse()
	require.NoError(t, err)
	return types.RequestObject{Message: resp, Conn: req.Destination()}
}

func waitDone(t *testing.T, task Task) {
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("task %s still %s", task.Kind(), task.State())
	}
}

// failing counts its failure hook calls.
type failing struct {
	*Base
	failed int32
	req    types.RequestObject
}

func (p *failing) CreateRequest() {
	p.Engine().Request(p, p.req, func(types.RequestObject) { p.Complete() })
}

func (p *failing) HandleFailed() {
	atomic.AddInt32(&p.failed, 1)
}

// chain spawns child and completes when it succeeds.
type chain struct {
	*Base
	child    Task
	required bool
	seen     int32
}

func (c *chain) CreateRequest() {
	c.Engine().Spawn(c, c.child, c.required)
}

func (c *chain) OnDependencyDone(dep Task) {
	atomic.AddInt32(&c.seen, 1)
	if dep.State() == Done {
		c.Complete()
	}
}

func Test_Engine_requestResponse(t *testing.T) {
	rec := &recorder{}
	e := newEngine(t, rec)

	msg := types.NewFactory().CreateRequest(types.QueryType)
	call := NewCall(types.NewRequestTo(msg, types.NewPeer("127.0.0.1", "1")))
	e.Start(call)

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, 1, e.Awaiting())

	resp := respond(t, rec.last())
	require.True(t, e.Deliver(resp))
	waitDone(t, call)

	require.Equal(t, Done, call.State())
	require.NoError(t, call.Err())
	require.Equal(t, msg.TransactionID(), call.Response().CorrelationID())
	require.Equal(t, 0, e.Awaiting())
	require.Equal(t, 0, e.Live())

	// a second response with the same correlation id is a miss
	require.False(t, e.Deliver(resp))
}

func Test_Engine_unknownCorrelation(t *testing.T) {
	e := newEngine(t, &recorder{})

	msg := &types.Message{Header: types.Header{RequestType: types.NotifyType, CorrelationID: "nobody"}}
	require.False(t, e.Deliver(types.RequestObject{Message: msg}))
}

func Test_Engine_sweepTimesOut(t *testing.T) {
	rec := &recorder{}
	e := newEngine(t, rec, WithTimeout(20*time.Millisecond))

	msg := types.NewFactory().CreateRequest(types.CheckPredecessorType)
	p := &failing{Base: NewBase("failing"), req: types.NewRequestTo(msg, types.NewPeer("127.0.0.1", "1"))}
	e.Start(p)

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, 0, e.Sweep(time.Now()))

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, 1, e.Sweep(time.Now()))
	waitDone(t, p)

	require.Equal(t, Failed, p.State())
	require.True(t, errors.Is(p.Err(), ErrTimeout))
	require.Equal(t, int32(1), atomic.LoadInt32(&p.failed))

	// the late response finds nobody, and sweeping again changes nothing
	require.False(t, e.Deliver(respond(t, rec.last())))
	require.Equal(t, 0, e.Sweep(time.Now().Add(time.Hour)))
	require.Equal(t, int32(1), atomic.LoadInt32(&p.failed))
}

func Test_Engine_sendErrorFails(t *testing.T) {
	rec := &recorder{err: xerrors.New("unreachable")}
	e := newEngine(t, rec)

	msg := types.NewFactory().CreateRequest(types.NotifyType)
	p := &failing{Base: NewBase("failing"), req: types.NewRequestTo(msg, types.NewPeer("127.0.0.1", "1"))}
	e.Start(p)
	waitDone(t, p)

	require.Equal(t, Failed, p.State())
	require.Error(t, p.Err())
	require.Equal(t, int32(1), atomic.LoadInt32(&p.failed))
	require.Equal(t, 0, e.Awaiting())
}

func Test_Engine_closedPoolFails(t *testing.T) {
	pool := NewPool(1)
	pool.Close()
	rec := &recorder{}
	e := NewEngine(rec, pool)

	msg := types.NewFactory().CreateRequest(types.NotifyType)
	p := &failing{Base: NewBase("failing"), req: types.NewRequestTo(msg, types.NewPeer("127.0.0.1", "1"))}
	e.Start(p)
	waitDone(t, p)

	require.Equal(t, Failed, p.State())
	require.True(t, errors.Is(p.Err(), ErrStopped))
	require.Equal(t, int32(1), atomic.LoadInt32(&p.failed))
	require.Equal(t, 0, rec.count())
	require.Equal(t, 0, e.Live())
}

func Test_Base_finishesOnce(t *testing.T) {
	b := NewBase("once")
	calls := 0
	b.AtFinish(func(Task) { calls++ })

	require.True(t, b.Complete())
	require.False(t, b.Complete())
	require.False(t, b.Fail(xerrors.New("late")))
	require.Equal(t, Done, b.State())
	require.NoError(t, b.Err())
	require.Equal(t, 1, calls)

	b.AtFinish(func(Task) { calls++ })
	require.Equal(t, 2, calls)
}

func Test_Engine_dependencyCompletes(t *testing.T) {
	rec := &recorder{}
	e := newEngine(t, rec)

	msg := types.NewFactory().CreateRequest(types.QueryType)
	child := NewCall(types.NewRequestTo(msg, types.NewPeer("127.0.0.1", "1")))
	parent := &chain{Base: NewBase("chain"), child: child, required: true}
	e.Start(parent)

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	require.Len(t, parent.Dependencies(), 1)

	require.True(t, e.Deliver(respond(t, rec.last())))
	waitDone(t, parent)

	require.Equal(t, Done, parent.State())
	require.Equal(t, int32(1), atomic.LoadInt32(&parent.seen))
}

func Test_Engine_failureCascades(t *testing.T) {
	rec := &recorder{}
	e := newEngine(t, rec, WithTimeout(20*time.Millisecond))

	msg := types.NewFactory().CreateRequest(types.QueryType)
	child := NewCall(types.NewRequestTo(msg, types.NewPeer("127.0.0.1", "1")))
	parent := &chain{Base: NewBase("chain"), child: child, required: true}
	e.Start(parent)

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	// only the child is swept, the parent waits on it
	require.Equal(t, 1, e.Sweep(time.Now()))
	waitDone(t, parent)

	require.Equal(t, Failed, child.State())
	require.Equal(t, Failed, parent.State())
	require.True(t, errors.Is(parent.Err(), ErrDependencyFailed))
	require.Equal(t, int32(1), atomic.LoadInt32(&parent.seen))
	require.Equal(t, 0, e.Live())
}

func Test_Engine_optionalDependencyDoesNotCascade(t *testing.T) {
	rec := &recorder{err: xerrors.New("unreachable")}
	e := newEngine(t, rec)

	msg := types.NewFactory().CreateRequest(types.QueryType)
	child := NewCall(types.NewRequestTo(msg, types.NewPeer("127.0.0.1", "1")))
	parent := &chain{Base: NewBase("chain"), child: child, required: false}
	e.Start(parent)

	waitDone(t, child)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&parent.seen) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, Pending, parent.State())
}

func Test_Engine_mailboxSerializes(t *testing.T) {
	e := newEngine(t, &recorder{})
	b := NewBase("counter")
	c := &chain{Base: b}

	counter := 0
	var wg sync.WaitGroup
	wg.Add(500)
	for i := 0; i < 500; i++ {
		go e.post(c, func() {
			counter++
			wg.Done()
		})
	}
	wg.Wait()

	require.Equal(t, 500, counter)
}
