package task

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

// Sender puts an envelope on the wire.
type Sender interface {
	Send(req types.RequestObject) error
}

// Engine runs tasks. Every callback of a task runs on the task's mailbox,
// so a task never observes two of its callbacks concurrently. Callbacks of
// different tasks run in parallel on the pool.
type Engine struct {
	log     zerolog.Logger
	sender  Sender
	pool    *Pool
	timeout time.Duration

	mu      sync.Mutex
	live    map[xid.ID]Task
	pending map[string]continuation
}

type continuation struct {
	task    Task
	handler func(types.RequestObject)
}

// EngineOption tunes an engine.
type EngineOption func(*Engine)

// WithTimeout sets the lifetime of tasks started by the engine.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithLogger sets the logger of the engine.
func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

// NewEngine returns an engine sending through sender and running callbacks
// on pool.
func NewEngine(sender Sender, pool *Pool, opts ...EngineOption) *Engine {
	e := &Engine{
		log:     zerolog.Nop(),
		sender:  sender,
		pool:    pool,
		timeout: DefaultTimeout,
		live:    make(map[xid.ID]Task),
		pending: make(map[string]continuation),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start registers t and runs its CreateRequest.
func (e *Engine) Start(t Task) {
	e.register(t)
	e.post(t, t.CreateRequest)
}

// Serve registers t and runs its HandleRequest.
func (e *Engine) Serve(t Task) {
	e.register(t)
	e.post(t, t.HandleRequest)
}

// Spawn makes child a dependency of parent and starts it. The parent is not
// swept while it has unfinished dependencies.
func (e *Engine) Spawn(parent Observer, child Task, required bool) {
	pb, cb := parent.base(), child.base()

	cb.mu.Lock()
	cb.parent = parent
	cb.required = required
	cb.mu.Unlock()

	pb.mu.Lock()
	pb.deps = append(pb.deps, Dependency{Task: child, Required: required})
	pb.mu.Unlock()
	atomic.AddInt32(&pb.outstanding, 1)

	e.Start(child)
}

// Request sends req on behalf of t and runs handler with the response whose
// correlation id matches the transaction id of req. A request that cannot
// be sent fails t.
func (e *Engine) Request(t Task, req types.RequestObject, handler func(types.RequestObject)) {
	id := req.Message.TransactionID()

	e.mu.Lock()
	e.pending[id] = continuation{task: t, handler: handler}
	e.mu.Unlock()

	b := t.base()
	b.mu.Lock()
	b.awaiting = id
	b.mu.Unlock()

	err := e.sender.Send(req)
	if err != nil {
		e.mu.Lock()
		delete(e.pending, id)
		e.mu.Unlock()
		e.post(t, func() {
			e.fail(t, xerrors.Errorf("failed to send %s to %s: %v", req.RequestType(),
				req.Destination(), err))
		})
	}
}

// Reply sends a message that expects no answer, typically a response.
func (e *Engine) Reply(t Task, resp types.RequestObject) {
	err := e.sender.Send(resp)
	if err != nil {
		e.log.Warn().Err(err).Str("kind", string(t.Kind())).Msgf("failed to reply %s", resp.RequestType())
	}
}

// Deliver hands a response to the task awaiting it. It returns false when no
// task awaits its correlation id.
func (e *Engine) Deliver(resp types.RequestObject) bool {
	id := resp.CorrelationID()

	e.mu.Lock()
	c, ok := e.pending[id]
	delete(e.pending, id)
	e.mu.Unlock()

	if !ok {
		return false
	}

	b := c.task.base()
	b.mu.Lock()
	if b.awaiting == id {
		b.awaiting = ""
	}
	b.mu.Unlock()

	e.post(c.task, func() {
		if c.task.State() != Pending {
			return
		}
		c.handler(resp)
	})
	return true
}

// Sweep fails every pending task whose deadline passed before now and that
// does not wait on a dependency. It returns how many tasks it expired.
func (e *Engine) Sweep(now time.Time) int {
	e.mu.Lock()
	var expired []Task
	for _, t := range e.live {
		b := t.base()
		if t.State() != Pending || atomic.LoadInt32(&b.outstanding) > 0 {
			continue
		}
		if now.After(b.Deadline()) {
			expired = append(expired, t)
		}
	}
	e.mu.Unlock()

	for _, t := range expired {
		t := t
		e.log.Debug().Str("kind", string(t.Kind())).Str("task", t.ID().String()).Msg("task timed out")
		e.post(t, func() {
			e.fail(t, ErrTimeout)
		})
	}
	return len(expired)
}

// Live returns the number of unfinished tasks.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.live)
}

// Awaiting returns the number of registered continuations.
func (e *Engine) Awaiting() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

func (e *Engine) register(t Task) {
	t.base().attach(e, t)

	e.mu.Lock()
	e.live[t.ID()] = t
	e.mu.Unlock()
}

// fail runs the failure hook of a still pending task then fails it.
func (e *Engine) fail(t Task, err error) {
	if t.State() != Pending {
		return
	}
	t.HandleFailed()
	t.base().Fail(err)
}

// finished is called once per task, when it leaves Pending.
func (e *Engine) finished(t Task) {
	b := t.base()

	b.mu.Lock()
	awaiting, parent, required := b.awaiting, b.parent, b.required
	b.awaiting = ""
	b.mu.Unlock()

	e.mu.Lock()
	delete(e.live, t.ID())
	if awaiting != "" {
		delete(e.pending, awaiting)
	}
	e.mu.Unlock()

	if t.State() == Failed {
		e.log.Debug().Str("kind", string(t.Kind())).Err(t.Err()).Msg("task failed")
	}

	if parent == nil {
		return
	}

	// the parent gets a full lifetime to react before the sweep sees it
	pb := parent.base()
	pb.Touch()
	atomic.AddInt32(&pb.outstanding, -1)

	e.post(parent, func() {
		if parent.State() != Pending {
			return
		}
		parent.OnDependencyDone(t)

		// a parent that neither moved on nor finished follows its required
		// dependency into failure
		if required && t.State() == Failed && parent.State() == Pending &&
			atomic.LoadInt32(&pb.outstanding) == 0 {
			e.fail(parent, xerrors.Errorf("%s: %w", t.Kind(), ErrDependencyFailed))
		}
	})
}

// post appends job to the mailbox of t and schedules the mailbox if idle.
func (e *Engine) post(t Task, job func()) {
	b := t.base()

	b.box.Lock()
	b.box.jobs = append(b.box.jobs, job)
	if b.box.running {
		b.box.Unlock()
		return
	}
	b.box.running = true
	b.box.Unlock()

	if e.pool.Submit(func() { e.drain(b) }) {
		return
	}

	b.box.Lock()
	b.box.jobs = nil
	b.box.running = false
	b.box.Unlock()

	e.log.Warn().Str("kind", string(t.Kind())).Str("task", t.ID().String()).Msg("pool closed, dropping task")
	e.fail(t, ErrStopped)
}

func (e *Engine) drain(b *Base) {
	for {
		b.box.Lock()
		if len(b.box.jobs) == 0 {
			b.box.running = false
			b.box.Unlock()
			return
		}
		job := b.box.jobs[0]
		b.box.jobs[0] = nil
		b.box.jobs = b.box.jobs[1:]
		b.box.Unlock()

		job()
	}
}
