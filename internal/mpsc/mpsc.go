// Package mpsc implements the multi-producer, single-consumer queue
// double used by the harness in place of a runtime-backed channel.
//
// Bounded and unbounded variants share one mutex-guarded state block
// referenced by every Sender and Receiver handle. Send and receive are
// exposed as poll-driven operations: a full bounded queue or an empty
// queue reports "suspended", and progress resumes only when the test
// injects stimulus (a receive frees capacity, a send queues a value,
// a handle is closed) and polls again.
package mpsc

import (
	"errors"
	"sync"

	"github.com/roach88/lockstep/internal/poll"
)

var (
	// ErrClosed reports a send on an inactive channel or a receive
	// on a drained channel with no live producers. The offered value
	// is never consumed on failure.
	ErrClosed = errors.New("mpsc: channel closed")

	// ErrFull reports a non-suspending send against a bounded queue
	// at capacity.
	ErrFull = errors.New("mpsc: no capacity available")

	// ErrEmpty reports a non-suspending receive against an empty
	// queue with live producers.
	ErrEmpty = errors.New("mpsc: no message available")
)

// Msg pairs a received value with an end-of-stream marker, mirroring
// the two-valued channel receive form. OK is false exactly when the
// queue is drained and every producer handle has been closed; that
// end-of-stream is an explicit result, not an error.
type Msg[T any] struct {
	Value T
	OK    bool
}

// state is the shared channel state block. All handles derived from
// one constructor call reference the same instance.
type state[T any] struct {
	mu       sync.Mutex
	queue    []T
	capacity int // meaningful only when bounded
	bounded  bool
	senders  int
	active   bool
}

// hasRoom reports whether a send may enqueue immediately.
// Caller holds mu.
func (st *state[T]) hasRoom() bool {
	return !st.bounded || len(st.queue) < st.capacity
}

// tryRecv dequeues the head or classifies the failure.
// Caller holds mu.
func (st *state[T]) tryRecv() (T, error) {
	var zero T
	if len(st.queue) > 0 {
		v := st.queue[0]
		st.queue[0] = zero
		st.queue = st.queue[1:]
		return v, nil
	}
	if st.senders == 0 {
		return zero, ErrClosed
	}
	return zero, ErrEmpty
}

// trySend enqueues at the tail or classifies the failure.
// Caller holds mu.
func (st *state[T]) trySend(v T) error {
	if !st.active {
		return ErrClosed
	}
	if !st.hasRoom() {
		return ErrFull
	}
	st.queue = append(st.queue, v)
	return nil
}

// New creates a bounded channel with a fixed capacity and returns the
// initial Sender and Receiver handles. Capacity is fixed for the life
// of the channel; New panics if it is less than one.
func New[T any](capacity int) (*Sender[T], *Receiver[T]) {
	if capacity < 1 {
		panic("mpsc: bounded channel capacity must be at least 1")
	}
	st := &state[T]{capacity: capacity, bounded: true, senders: 1, active: true}
	return &Sender[T]{st: st}, &Receiver[T]{st: st}
}

// NewUnbounded creates a channel without a capacity bound.
func NewUnbounded[T any]() (*Sender[T], *Receiver[T]) {
	st := &state[T]{senders: 1, active: true}
	return &Sender[T]{st: st}, &Receiver[T]{st: st}
}

// Sender is a producer handle. Handles may be cloned; the channel
// reports end-of-stream to the receiver only after every clone has
// been closed.
type Sender[T any] struct {
	st     *state[T]
	closed bool
	mu     sync.Mutex // guards closed
}

// Send returns a suspending send operation for v.
//
// Polling the operation enqueues v and completes with nil as soon as
// the channel is active and has room; it completes with ErrClosed if
// the channel is inactive (v is returned to the caller untouched); it
// stays suspended while an active bounded queue is full. Once
// completed, the result is cached and re-polling has no further
// effect.
func (s *Sender[T]) Send(v T) *SendOp[T] {
	return &SendOp[T]{st: s.st, value: v}
}

// TrySend is the non-suspending send. It returns nil on success,
// ErrFull when an active bounded queue is at capacity, and ErrClosed
// when the channel is inactive. The caller keeps v in every failure
// case.
func (s *Sender[T]) TrySend(v T) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.trySend(v)
}

// Clone creates another live producer handle, incrementing the shared
// producer count. Cloning an already-closed handle is a test-authoring
// error and panics.
func (s *Sender[T]) Clone() *Sender[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		panic("mpsc: Clone of closed Sender")
	}
	s.st.mu.Lock()
	s.st.senders++
	s.st.mu.Unlock()
	return &Sender[T]{st: s.st}
}

// Close releases this producer handle, decrementing the shared
// producer count exactly once; further calls are no-ops. When the
// count reaches zero the receive side observes end-of-stream after
// draining the queue.
func (s *Sender[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.st.mu.Lock()
	if s.st.senders > 0 {
		s.st.senders--
	}
	s.st.mu.Unlock()
}

// SendOp is one suspending send attempt.
type SendOp[T any] struct {
	st    *state[T]
	value T
	done  bool
	out   poll.Outcome[error]
}

// Poll advances the send one step.
func (op *SendOp[T]) Poll() poll.Outcome[error] {
	if op.done {
		return op.out
	}
	op.st.mu.Lock()
	defer op.st.mu.Unlock()
	if !op.st.active {
		op.done = true
		op.out = poll.ReadyNow[error](ErrClosed)
		return op.out
	}
	if !op.st.hasRoom() {
		return poll.Pending[error]()
	}
	op.st.queue = append(op.st.queue, op.value)
	var zero T
	op.value = zero
	op.done = true
	op.out = poll.ReadyNow[error](nil)
	return op.out
}

// Receiver is the single consumer handle.
type Receiver[T any] struct {
	st *state[T]
}

// Recv returns a suspending receive operation.
//
// Polling dequeues the head when the queue is non-empty; completes
// with Msg.OK == false when the queue is empty and no producer handles
// remain; and stays suspended while the queue is empty with live
// producers.
func (r *Receiver[T]) Recv() *RecvOp[T] {
	return &RecvOp[T]{st: r.st}
}

// TryRecv is the non-suspending receive, distinguishing ErrEmpty
// (producers remain) from ErrClosed (drained with no producers).
func (r *Receiver[T]) TryRecv() (T, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return r.st.tryRecv()
}

// Close marks the channel inactive immediately and unconditionally,
// regardless of the remaining producer count: consumer disinterest is
// global and instantaneous, while producer disinterest is refcounted.
// Every current and future send fails after Close; the queue may still
// be drained through this handle.
func (r *Receiver[T]) Close() {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.active = false
}

// RecvOp is one suspending receive attempt.
type RecvOp[T any] struct {
	st   *state[T]
	done bool
	out  poll.Outcome[Msg[T]]
}

// Poll advances the receive one step.
func (op *RecvOp[T]) Poll() poll.Outcome[Msg[T]] {
	if op.done {
		return op.out
	}
	op.st.mu.Lock()
	v, err := op.st.tryRecv()
	op.st.mu.Unlock()
	switch err {
	case nil:
		op.done = true
		op.out = poll.ReadyNow(Msg[T]{Value: v, OK: true})
	case ErrClosed:
		op.done = true
		op.out = poll.ReadyNow(Msg[T]{})
	default: // ErrEmpty
		return poll.Pending[Msg[T]]()
	}
	return op.out
}
