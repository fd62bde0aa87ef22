// Package iomock provides a scripted duplex byte-stream double.
//
// A Stream stands in for one endpoint of a byte stream; a companion
// Script handle pre-programs its behavior. The read side and the write
// side are independent: each is Open with an ordered queue of byte
// chunks, Closed, or Failing with a caller-chosen error. Chunks are
// boundary-preserving — a read or write consumes exactly one scripted
// chunk, never part of one.
//
// Two error classes apply. Scripted failures (a side forced Failing)
// are ordinary completion results simulating lower-level I/O errors.
// Scripting-contract violations — an undersized read buffer, written
// bytes that do not match the next expected chunk — are test-authoring
// bugs and panic immediately with a diagnostic.
package iomock

import (
	"fmt"
	"io"
	"sync"

	"github.com/roach88/lockstep/internal/poll"
)

// IOResult is the completion payload of a read, write, flush, or
// shutdown operation: a byte count and an error. A read completing
// with (0, io.EOF) is the explicit end-of-stream signal.
type IOResult struct {
	N   int
	Err error
}

type sideMode int

const (
	modeOpen sideMode = iota
	modeClosed
	modeFailing
)

// side is one scripted direction of the stream.
type side struct {
	mode   sideMode
	chunks [][]byte
	err    error // meaningful only in modeFailing
}

// push queues a chunk, re-arming a Closed or Failing side: new script
// data discards the prior terminal state and reopens the side.
func (s *side) push(chunk []byte) {
	if s.mode != modeOpen {
		s.mode = modeOpen
		s.err = nil
		s.chunks = nil
	}
	s.chunks = append(s.chunks, chunk)
}

// streamState is shared by the Stream and its Script handle.
type streamState struct {
	mu           sync.Mutex
	read         side
	write        side
	writePending bool
}

// New creates a scripted stream and its scripting handle. Both sides
// start Open with empty queues, so the first unscripted read or write
// is suspended.
func New() (*Stream, *Script) {
	st := &streamState{}
	return &Stream{st: st}, &Script{st: st}
}

// Stream is the endpoint handed to the code under test.
type Stream struct {
	st *streamState
}

// Read returns a suspending read operation delivering into p.
//
// Polling delivers the next scripted chunk when the read side is Open
// and non-empty; suspends when Open and empty; completes (0, io.EOF)
// when Closed; completes (0, err) while Failing. A buffer smaller than
// the scripted chunk violates the scripting contract and panics.
func (s *Stream) Read(p []byte) *ReadOp {
	return &ReadOp{st: s.st, buf: p}
}

// Write returns a suspending write operation for p.
//
// Polling compares p byte-for-byte against the next expected chunk
// when the write side is Open and non-empty — a mismatch panics with
// both byte strings in hex; on match it completes (len(p), nil) and
// clears the pending-write flag. When Open and empty it records a
// pending write and suspends; when Closed it completes as if all bytes
// were accepted with zero effect; while Failing it completes (0, err).
func (s *Stream) Write(p []byte) *WriteOp {
	return &WriteOp{st: s.st, buf: p}
}

// Flush returns an operation that completes immediately. The double
// has no buffering of its own, so there is never anything to flush.
func (s *Stream) Flush() poll.Op[IOResult] {
	return poll.Func[IOResult](func() poll.Outcome[IOResult] {
		return poll.ReadyNow(IOResult{})
	})
}

// Shutdown returns an operation that completes immediately. Scripted
// teardown behavior belongs to the Script handle, not the endpoint.
func (s *Stream) Shutdown() poll.Op[IOResult] {
	return poll.Func[IOResult](func() poll.Outcome[IOResult] {
		return poll.ReadyNow(IOResult{})
	})
}

// ReadOp is one suspending read attempt.
type ReadOp struct {
	st   *streamState
	buf  []byte
	done bool
	out  poll.Outcome[IOResult]
}

// Poll advances the read one step.
func (op *ReadOp) Poll() poll.Outcome[IOResult] {
	if op.done {
		return op.out
	}
	op.st.mu.Lock()
	defer op.st.mu.Unlock()

	rd := &op.st.read
	switch rd.mode {
	case modeClosed:
		op.complete(IOResult{N: 0, Err: io.EOF})
	case modeFailing:
		op.complete(IOResult{N: 0, Err: rd.err})
	default: // modeOpen
		if len(rd.chunks) == 0 {
			return poll.Pending[IOResult]()
		}
		chunk := rd.chunks[0]
		if len(op.buf) < len(chunk) {
			panic(fmt.Sprintf(
				"iomock: read buffer too small (len = %d) for scripted chunk (len = %d)",
				len(op.buf), len(chunk)))
		}
		rd.chunks = rd.chunks[1:]
		copy(op.buf, chunk)
		op.complete(IOResult{N: len(chunk)})
	}
	return op.out
}

func (op *ReadOp) complete(r IOResult) {
	op.done = true
	op.out = poll.ReadyNow(r)
}

// WriteOp is one suspending write attempt.
type WriteOp struct {
	st   *streamState
	buf  []byte
	done bool
	out  poll.Outcome[IOResult]
}

// Poll advances the write one step.
func (op *WriteOp) Poll() poll.Outcome[IOResult] {
	if op.done {
		return op.out
	}
	op.st.mu.Lock()
	defer op.st.mu.Unlock()

	wr := &op.st.write
	switch wr.mode {
	case modeClosed:
		op.complete(IOResult{N: len(op.buf)})
	case modeFailing:
		op.complete(IOResult{N: 0, Err: wr.err})
	default: // modeOpen
		if len(wr.chunks) == 0 {
			op.st.writePending = true
			return poll.Pending[IOResult]()
		}
		expected := wr.chunks[0]
		if !bytesEqual(op.buf, expected) {
			panic(fmt.Sprintf(
				"iomock: unexpected write:\n expected: [% 02X]\n received: [% 02X]",
				expected, op.buf))
		}
		wr.chunks = wr.chunks[1:]
		op.st.writePending = false
		op.complete(IOResult{N: len(op.buf)})
	}
	return op.out
}

func (op *WriteOp) complete(r IOResult) {
	op.done = true
	op.out = poll.ReadyNow(r)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Script is the companion handle a test uses to program the stream.
type Script struct {
	st *streamState
}

// QueueRead schedules data to be delivered by the next read. Queuing
// onto a Closed or Failing read side re-arms it Open. The bytes are
// copied.
func (h *Script) QueueRead(data []byte) {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	h.st.read.push(cloneBytes(data))
}

// ExpectWrite schedules bytes the code under test is expected to
// write, matched in order against actual writes. Queuing onto a Closed
// or Failing write side re-arms it Open. The bytes are copied.
func (h *Script) ExpectWrite(data []byte) {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	h.st.write.push(cloneBytes(data))
}

// FailRead forces the read side Failing: reads complete with err until
// the side is re-armed by new scripted data.
func (h *Script) FailRead(err error) {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	h.st.read.mode = modeFailing
	h.st.read.err = err
	h.st.read.chunks = nil
}

// FailWrite forces the write side Failing.
func (h *Script) FailWrite(err error) {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	h.st.write.mode = modeFailing
	h.st.write.err = err
	h.st.write.chunks = nil
}

// CloseRead forces the read side Closed: reads complete with
// end-of-stream until the side is re-armed.
func (h *Script) CloseRead() {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	h.st.read.mode = modeClosed
	h.st.read.chunks = nil
}

// CloseWrite forces the write side Closed: writes complete as accepted
// with zero effect.
func (h *Script) CloseWrite() {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	h.st.write.mode = modeClosed
	h.st.write.chunks = nil
}

// Close forces both sides Closed. Tests should Close (or defer Close)
// the script handle when done so an abandoned script can never leave a
// read or write suspended forever. Unconsumed scripted items are
// discarded, not reported.
func (h *Script) Close() {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	h.st.read.mode = modeClosed
	h.st.read.chunks = nil
	h.st.write.mode = modeClosed
	h.st.write.chunks = nil
}

// ReadExhausted reports whether every scripted read chunk has been
// consumed.
func (h *Script) ReadExhausted() bool {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	return len(h.st.read.chunks) == 0
}

// WriteExhausted reports whether every expected write chunk has been
// matched.
func (h *Script) WriteExhausted() bool {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	return len(h.st.write.chunks) == 0
}

// WritePending reports whether the most recent write attempt found an
// empty Open queue. Introspection only; it plays no role in control
// flow.
func (h *Script) WritePending() bool {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	return h.st.writePending
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
