// Package oneshot implements the notify-once channel double: a single
// value slot shared by one Sender and one Receiver handle.
//
// The Receiver is itself the suspending operation — it is polled
// directly rather than through a separate receive call, matching the
// notify-once shape where at most one value ever arrives.
package oneshot

import (
	"errors"
	"sync"

	"github.com/roach88/lockstep/internal/poll"
)

var (
	// ErrClosed reports that the opposite side was closed: a send
	// after the receiver closed, or a receive after the sender
	// closed without sending.
	ErrClosed = errors.New("oneshot: channel closed")

	// ErrEmpty reports a non-suspending receive while the sender is
	// alive but has not sent yet.
	ErrEmpty = errors.New("oneshot: no value available")
)

// Result is the completion payload of a receive: the value on
// success, or ErrClosed when the sender was dropped without sending.
type Result[T any] struct {
	Value T
	Err   error
}

// state is shared by the Sender and Receiver handles. At most one
// value is ever stored.
type state[T any] struct {
	mu         sync.Mutex
	value      *T
	recvClosed bool
	sendClosed bool
}

// New creates a notify-once channel.
func New[T any]() (*Sender[T], *Receiver[T]) {
	st := &state[T]{}
	return &Sender[T]{st: st}, &Receiver[T]{st: st}
}

// Sender is the producer handle. It delivers at most one value.
type Sender[T any] struct {
	st   *state[T]
	used bool
	mu   sync.Mutex // guards used
}

// Send delivers v and consumes the sender. It fails with ErrClosed if
// the receiver side has already been closed, in which case the caller
// keeps v. Calling Send twice on one sender is a test-authoring error
// and panics.
func (s *Sender[T]) Send(v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used {
		panic("oneshot: Send on consumed Sender")
	}
	s.used = true

	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if s.st.recvClosed {
		// The sender is still consumed: a failed delivery cannot
		// be retried on a notify-once channel.
		s.st.sendClosed = true
		return ErrClosed
	}
	s.st.value = &v
	s.st.sendClosed = true
	return nil
}

// Closed returns a suspending operation that completes once the
// receiver side has been closed. It lets a producer cooperate with
// cancellation without attempting delivery.
func (s *Sender[T]) Closed() poll.Op[struct{}] {
	st := s.st
	return poll.Func[struct{}](func() poll.Outcome[struct{}] {
		st.mu.Lock()
		defer st.mu.Unlock()
		if st.recvClosed {
			return poll.ReadyNow(struct{}{})
		}
		return poll.Pending[struct{}]()
	})
}

// IsClosed is the non-suspending check of the same condition.
func (s *Sender[T]) IsClosed() bool {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.recvClosed
}

// Close drops the sender without sending. A receiver polled after
// Close completes with ErrClosed. Idempotent; a no-op after Send.
func (s *Sender[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used {
		return
	}
	s.used = true
	s.st.mu.Lock()
	s.st.sendClosed = true
	s.st.mu.Unlock()
}

// Receiver is the consumer handle and the suspending receive
// operation in one.
type Receiver[T any] struct {
	st *state[T]
}

// Poll advances the receive one step: suspended while no value is
// present and the sender is alive; completed with the value once sent;
// completed with ErrClosed if the sender was dropped without sending.
func (r *Receiver[T]) Poll() poll.Outcome[Result[T]] {
	v, err := r.TryRecv()
	switch err {
	case nil:
		return poll.ReadyNow(Result[T]{Value: v})
	case ErrClosed:
		return poll.ReadyNow(Result[T]{Err: ErrClosed})
	default: // ErrEmpty
		return poll.Pending[Result[T]]()
	}
}

// TryRecv is the non-suspending receive, distinguishing ErrEmpty
// (sender alive, nothing sent yet) from ErrClosed (sender gone).
func (r *Receiver[T]) TryRecv() (T, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var zero T
	if r.st.value != nil {
		v := *r.st.value
		r.st.value = nil
		return v, nil
	}
	if r.st.sendClosed {
		return zero, ErrClosed
	}
	return zero, ErrEmpty
}

// Close drops the receiver. Once set, a send permanently fails: the
// consumer is unreachable. Idempotent.
func (r *Receiver[T]) Close() {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.recvClosed = true
}
