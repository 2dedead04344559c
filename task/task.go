package task

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"golang.org/x/xerrors"
)

// DefaultTimeout is the lifetime of a task before the sweep fails it.
const DefaultTimeout = 10 * time.Second

var (
	// ErrTimeout is the error of a task failed by the sweep.
	ErrTimeout = xerrors.New("task timed out")
	// ErrDependencyFailed is the error of a task whose required dependency
	// failed and which did not recover from it.
	ErrDependencyFailed = xerrors.New("required dependency failed")
	// ErrStopped is the error of a task that could not be scheduled because
	// the pool is closed.
	ErrStopped = xerrors.New("engine stopped")
)

// State of a task. A task leaves Pending exactly once.
type State int32

const (
	Pending State = iota
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Kind tags the closed set of task implementations. Parents dispatch on it
// when a dependency finishes.
type Kind string

// Task is a unit of asynchronous work. A task either originates a request
// (CreateRequest) or serves one (HandleRequest). Waiting for a network
// response never blocks: the task registers a continuation through
// Engine.Request and returns.
type Task interface {
	ID() xid.ID
	Kind() Kind
	State() State
	Err() error
	Done() <-chan struct{}

	CreateRequest()
	HandleRequest()
	// HandleFailed is called when the engine fails the task, on timeout or
	// when its request could not be sent.
	HandleFailed()

	base() *Base
}

// Observer is a task that waits on dependencies. OnDependencyDone is called
// once per finished dependency, on the observer's own mailbox.
type Observer interface {
	Task
	OnDependencyDone(dep Task)
}

// Dependency is a child task and whether its failure fails the parent.
type Dependency struct {
	Task     Task
	Required bool
}

// Base carries the bookkeeping shared by every task. Implementations embed
// *Base and get ID, Kind, State, Err, Done and the default no-op
// HandleRequest/HandleFailed.
type Base struct {
	id    xid.ID
	kind  Kind
	state int32

	deadline    int64
	outstanding int32

	mu       sync.Mutex
	err      error
	self     Task
	engine   *Engine
	parent   Observer
	required bool
	deps     []Dependency
	awaiting string
	atFinish []func(Task)

	done chan struct{}
	box  mailbox
}

// NewBase returns the bookkeeping of a new pending task.
func NewBase(kind Kind) *Base {
	return &Base{
		id:       xid.New(),
		kind:     kind,
		state:    int32(Pending),
		deadline: time.Now().Add(DefaultTimeout).UnixNano(),
		done:     make(chan struct{}),
	}
}

func (b *Base) base() *Base { return b }

// ID is the unique id of the task.
func (b *Base) ID() xid.ID { return b.id }

// Kind is the tag of the task.
func (b *Base) Kind() Kind { return b.kind }

// State returns the current state.
func (b *Base) State() State { return State(atomic.LoadInt32(&b.state)) }

// Err returns why the task failed, nil otherwise.
func (b *Base) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Done is closed once the task left Pending.
func (b *Base) Done() <-chan struct{} { return b.done }

// Deadline returns the time after which the sweep fails the task.
func (b *Base) Deadline() time.Time {
	return time.Unix(0, atomic.LoadInt64(&b.deadline))
}

// Engine returns the engine running the task, nil before it is started.
func (b *Base) Engine() *Engine {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.engine
}

// Dependencies returns the dependencies spawned so far.
func (b *Base) Dependencies() []Dependency {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Dependency(nil), b.deps...)
}

// Touch pushes the deadline one timeout away from now.
func (b *Base) Touch() {
	timeout := DefaultTimeout
	if e := b.Engine(); e != nil {
		timeout = e.timeout
	}
	atomic.StoreInt64(&b.deadline, time.Now().Add(timeout).UnixNano())
}

// AtFinish registers fn to run when the task leaves Pending. It runs
// immediately if the task already finished.
func (b *Base) AtFinish(fn func(Task)) {
	b.mu.Lock()
	if b.State() == Pending {
		b.atFinish = append(b.atFinish, fn)
		b.mu.Unlock()
		return
	}
	self := b.self
	b.mu.Unlock()
	fn(self)
}

// Wait blocks until the task finished or ctx is done. It is meant for top
// level drivers, never for task callbacks.
func (b *Base) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return b.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleRequest implements Task. Tasks that serve requests override it.
func (b *Base) HandleRequest() {}

// HandleFailed implements Task.
func (b *Base) HandleFailed() {}

// Complete moves the task to Done.
func (b *Base) Complete() bool {
	return b.finish(Done, nil)
}

// Fail moves the task to Failed with err.
func (b *Base) Fail(err error) bool {
	return b.finish(Failed, err)
}

func (b *Base) finish(s State, err error) bool {
	b.mu.Lock()
	if !atomic.CompareAndSwapInt32(&b.state, int32(Pending), int32(s)) {
		b.mu.Unlock()
		return false
	}
	b.err = err
	hooks := b.atFinish
	b.atFinish = nil
	engine, self := b.engine, b.self
	b.mu.Unlock()

	for _, fn := range hooks {
		fn(self)
	}
	if engine != nil {
		engine.finished(self)
	}
	close(b.done)
	return true
}

func (b *Base) attach(e *Engine, self Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engine = e
	b.self = self
	atomic.StoreInt64(&b.deadline, time.Now().Add(e.timeout).UnixNano())
}

// mailbox serializes the callbacks of one task.
type mailbox struct {
	sync.Mutex
	jobs    []func()
	running bool
}
