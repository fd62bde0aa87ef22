package mpsc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lockstep/internal/polltest"
)

func TestNew_CapacityMustBePositive(t *testing.T) {
	require.PanicsWithValue(t, "mpsc: bounded channel capacity must be at least 1", func() {
		New[int](0)
	})
}

func TestUnbounded_SendNeverSuspends(t *testing.T) {
	tx, rx := NewUnbounded[string]()

	for i := 0; i < 100; i++ {
		polltest.ReadyOK(t, tx.Send(fmt.Sprintf("msg-%d", i)).Poll())
	}

	for i := 0; i < 100; i++ {
		msg := polltest.Ready(t, rx.Recv().Poll())
		require.True(t, msg.OK)
		assert.Equal(t, fmt.Sprintf("msg-%d", i), msg.Value)
	}
}

func TestBounded_TrySendFullAndRecvFreesCapacity(t *testing.T) {
	tx, rx := New[string](1)

	require.NoError(t, tx.TrySend("a"))
	assert.ErrorIs(t, tx.TrySend("b"), ErrFull)

	msg := polltest.Ready(t, rx.Recv().Poll())
	assert.Equal(t, "a", msg.Value)

	require.NoError(t, tx.TrySend("b"))
}

func TestBounded_SendSuspendsUntilCapacityFrees(t *testing.T) {
	tx, rx := New[string](1)
	require.NoError(t, tx.TrySend("first"))

	op := tx.Send("second")
	polltest.Pending(t, op.Poll())
	polltest.Pending(t, op.Poll()) // nothing resumes it by itself

	msg := polltest.Ready(t, rx.Recv().Poll())
	assert.Equal(t, "first", msg.Value)

	polltest.ReadyOK(t, op.Poll())

	msg = polltest.Ready(t, rx.Recv().Poll())
	assert.Equal(t, "second", msg.Value)
}

func TestBounded_CapacitySixteen(t *testing.T) {
	tx, rx := New[int](16)

	for i := 0; i < 16; i++ {
		require.NoError(t, tx.TrySend(i))
	}
	assert.ErrorIs(t, tx.TrySend(16), ErrFull)

	op := tx.Send(16)
	polltest.Pending(t, op.Poll())

	// One receive frees exactly one slot.
	msg := polltest.Ready(t, rx.Recv().Poll())
	assert.Equal(t, 0, msg.Value)
	polltest.ReadyOK(t, op.Poll())
	assert.ErrorIs(t, tx.TrySend(17), ErrFull)
}

func TestSendOp_CompletionIsCachedNotReExecuted(t *testing.T) {
	tx, rx := NewUnbounded[string]()

	op := tx.Send("once")
	polltest.ReadyOK(t, op.Poll())
	polltest.ReadyOK(t, op.Poll())
	polltest.ReadyOK(t, op.Poll())

	// The value was enqueued exactly once.
	msg := polltest.Ready(t, rx.Recv().Poll())
	assert.Equal(t, "once", msg.Value)
	_, err := rx.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRecv_SuspendsUntilValueArrives(t *testing.T) {
	tx, rx := NewUnbounded[string]()

	op := rx.Recv()
	polltest.Pending(t, op.Poll())
	polltest.Pending(t, op.Poll())

	require.NoError(t, tx.TrySend("hello"))
	msg := polltest.Ready(t, op.Poll())
	require.True(t, msg.OK)
	assert.Equal(t, "hello", msg.Value)
}

func TestRecv_EndOfStreamAfterDrain(t *testing.T) {
	tx, rx := NewUnbounded[string]()
	require.NoError(t, tx.TrySend("a"))
	require.NoError(t, tx.TrySend("b"))
	tx.Close()

	// Queued values drain first.
	assert.Equal(t, "a", polltest.Ready(t, rx.Recv().Poll()).Value)
	assert.Equal(t, "b", polltest.Ready(t, rx.Recv().Poll()).Value)

	// Then end-of-stream, repeatedly.
	assert.False(t, polltest.Ready(t, rx.Recv().Poll()).OK)
	assert.False(t, polltest.Ready(t, rx.Recv().Poll()).OK)
}

func TestRecv_SuspendedRecvObservesSenderClose(t *testing.T) {
	tx, rx := NewUnbounded[string]()

	op := rx.Recv()
	polltest.Pending(t, op.Poll())

	tx.Close()
	msg := polltest.Ready(t, op.Poll())
	assert.False(t, msg.OK)
}

func TestTryRecv_DistinguishesEmptyFromClosed(t *testing.T) {
	tx, rx := NewUnbounded[int]()

	_, err := rx.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty)

	tx.Close()
	_, err = rx.TryRecv()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSender_CloneKeepsChannelAlive(t *testing.T) {
	tx, rx := NewUnbounded[string]()
	tx2 := tx.Clone()

	tx.Close()
	op := rx.Recv()
	polltest.Pending(t, op.Poll()) // one producer still live

	require.NoError(t, tx2.TrySend("from-clone"))
	assert.Equal(t, "from-clone", polltest.Ready(t, op.Poll()).Value)

	tx2.Close()
	assert.False(t, polltest.Ready(t, rx.Recv().Poll()).OK)
}

func TestSender_CloseIsIdempotentPerHandle(t *testing.T) {
	tx, rx := NewUnbounded[string]()
	tx2 := tx.Clone()

	// Double close of one handle must not release the clone's count.
	tx.Close()
	tx.Close()
	tx.Close()

	polltest.Pending(t, rx.Recv().Poll())
	tx2.Close()
	assert.False(t, polltest.Ready(t, rx.Recv().Poll()).OK)
}

func TestSender_CloneOfClosedPanics(t *testing.T) {
	tx, _ := NewUnbounded[int]()
	tx.Close()
	require.PanicsWithValue(t, "mpsc: Clone of closed Sender", func() {
		tx.Clone()
	})
}

func TestSender_SendAfterCloseOfAllHandles(t *testing.T) {
	// Closing a sender handle releases the producer count but the
	// shared state stays active; only receiver Close deactivates it.
	// A closed handle's TrySend still enqueues if the channel is
	// active, matching the refcount-only meaning of sender Close.
	tx, rx := NewUnbounded[string]()
	tx.Close()

	require.NoError(t, tx.TrySend("late"))
	assert.Equal(t, "late", polltest.Ready(t, rx.Recv().Poll()).Value)
}

func TestReceiver_CloseFailsAllSends(t *testing.T) {
	tx, rx := New[string](4)
	require.NoError(t, tx.TrySend("queued"))

	rx.Close()

	assert.ErrorIs(t, tx.TrySend("x"), ErrClosed)
	err := polltest.ReadyErr(t, tx.Send("y").Poll())
	assert.ErrorIs(t, err, ErrClosed)

	// The queue may still be drained through the handle.
	v, err := rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, "queued", v)
}

func TestReceiver_CloseUnblocksSuspendedSend(t *testing.T) {
	tx, rx := New[string](1)
	require.NoError(t, tx.TrySend("fill"))

	op := tx.Send("waiting")
	polltest.Pending(t, op.Poll())

	rx.Close()
	err := polltest.ReadyErr(t, op.Poll())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestChannel_FIFOAcrossProducers(t *testing.T) {
	tx, rx := NewUnbounded[string]()
	tx2 := tx.Clone()

	require.NoError(t, tx.TrySend("a"))
	require.NoError(t, tx2.TrySend("b"))
	require.NoError(t, tx.TrySend("c"))

	assert.Equal(t, "a", polltest.Ready(t, rx.Recv().Poll()).Value)
	assert.Equal(t, "b", polltest.Ready(t, rx.Recv().Poll()).Value)
	assert.Equal(t, "c", polltest.Ready(t, rx.Recv().Poll()).Value)
}
