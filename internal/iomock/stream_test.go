package iomock

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lockstep/internal/polltest"
)

func TestRead_DeliversScriptedChunk(t *testing.T) {
	stream, script := New()
	script.QueueRead([]byte{0x2A})

	buf := make([]byte, 16)
	r := polltest.Ready(t, stream.Read(buf).Poll())
	require.NoError(t, r.Err)
	require.Equal(t, 1, r.N)
	assert.Equal(t, byte(0x2A), buf[0])
	assert.True(t, script.ReadExhausted())
}

func TestRead_SuspendsUntilDataScripted(t *testing.T) {
	stream, script := New()

	buf := make([]byte, 16)
	op := stream.Read(buf)
	polltest.Pending(t, op.Poll())
	polltest.Pending(t, op.Poll())

	script.QueueRead([]byte("hello"))
	r := polltest.Ready(t, op.Poll())
	require.NoError(t, r.Err)
	assert.Equal(t, []byte("hello"), buf[:r.N])
}

func TestRead_ChunkBoundariesArePreserved(t *testing.T) {
	stream, script := New()
	script.QueueRead([]byte("ab"))
	script.QueueRead([]byte("cd"))

	buf := make([]byte, 16)
	r := polltest.Ready(t, stream.Read(buf).Poll())
	assert.Equal(t, 2, r.N) // one chunk per read, never merged
	assert.Equal(t, []byte("ab"), buf[:2])

	r = polltest.Ready(t, stream.Read(buf).Poll())
	assert.Equal(t, []byte("cd"), buf[:2])
}

func TestRead_UndersizedBufferPanics(t *testing.T) {
	stream, script := New()
	script.QueueRead([]byte("too long for buffer"))

	buf := make([]byte, 4)
	require.PanicsWithValue(t,
		"iomock: read buffer too small (len = 4) for scripted chunk (len = 19)",
		func() { stream.Read(buf).Poll() })
}

func TestRead_ClosedSideReturnsEOF(t *testing.T) {
	stream, script := New()
	script.CloseRead()

	buf := make([]byte, 4)
	r := polltest.Ready(t, stream.Read(buf).Poll())
	assert.Equal(t, 0, r.N)
	assert.ErrorIs(t, r.Err, io.EOF)

	// EOF persists until re-armed.
	r = polltest.Ready(t, stream.Read(buf).Poll())
	assert.ErrorIs(t, r.Err, io.EOF)
}

func TestRead_QueueReArmsClosedSide(t *testing.T) {
	stream, script := New()
	script.CloseRead()
	script.QueueRead([]byte{0x01})

	buf := make([]byte, 4)
	r := polltest.Ready(t, stream.Read(buf).Poll())
	require.NoError(t, r.Err)
	assert.Equal(t, byte(0x01), buf[0])
}

func TestRead_FailingSideReturnsScriptedError(t *testing.T) {
	stream, script := New()
	scripted := errors.New("connection reset")
	script.FailRead(scripted)

	buf := make([]byte, 4)
	r := polltest.Ready(t, stream.Read(buf).Poll())
	assert.Equal(t, 0, r.N)
	assert.Equal(t, scripted, r.Err)

	// The failure persists across reads.
	r = polltest.Ready(t, stream.Read(buf).Poll())
	assert.Equal(t, scripted, r.Err)

	// Until the side is re-armed.
	script.QueueRead([]byte{0x02})
	r = polltest.Ready(t, stream.Read(buf).Poll())
	require.NoError(t, r.Err)
}

func TestWrite_MatchesExpectedChunk(t *testing.T) {
	stream, script := New()
	script.ExpectWrite([]byte("ping"))

	r := polltest.Ready(t, stream.Write([]byte("ping")).Poll())
	require.NoError(t, r.Err)
	assert.Equal(t, 4, r.N)
	assert.True(t, script.WriteExhausted())
}

func TestWrite_MismatchPanicsWithHexDiagnostic(t *testing.T) {
	stream, script := New()
	script.ExpectWrite([]byte{0x01, 0x02})

	require.PanicsWithValue(t,
		"iomock: unexpected write:\n expected: [01 02]\n received: [01 03]",
		func() { stream.Write([]byte{0x01, 0x03}).Poll() })
}

func TestWrite_SuspendsWhenNothingExpected(t *testing.T) {
	stream, script := New()

	op := stream.Write([]byte("data"))
	polltest.Pending(t, op.Poll())
	assert.True(t, script.WritePending())

	script.ExpectWrite([]byte("data"))
	r := polltest.Ready(t, op.Poll())
	require.NoError(t, r.Err)
	assert.Equal(t, 4, r.N)
	assert.False(t, script.WritePending())
}

func TestWrite_ClosedSideSwallowsBytes(t *testing.T) {
	stream, script := New()
	script.CloseWrite()

	r := polltest.Ready(t, stream.Write([]byte("discarded")).Poll())
	require.NoError(t, r.Err)
	assert.Equal(t, 9, r.N)
}

func TestWrite_FailingSideReturnsScriptedError(t *testing.T) {
	stream, script := New()
	scripted := errors.New("broken pipe")
	script.FailWrite(scripted)

	r := polltest.Ready(t, stream.Write([]byte("x")).Poll())
	assert.Equal(t, 0, r.N)
	assert.Equal(t, scripted, r.Err)
}

func TestStream_ReadAndWriteSidesAreIndependent(t *testing.T) {
	stream, script := New()
	script.CloseRead()
	script.ExpectWrite([]byte("still open"))

	buf := make([]byte, 4)
	r := polltest.Ready(t, stream.Read(buf).Poll())
	assert.ErrorIs(t, r.Err, io.EOF)

	w := polltest.Ready(t, stream.Write([]byte("still open")).Poll())
	require.NoError(t, w.Err)
}

func TestFlushAndShutdown_CompleteImmediately(t *testing.T) {
	stream, _ := New()

	r := polltest.Ready(t, stream.Flush().Poll())
	require.NoError(t, r.Err)

	r = polltest.Ready(t, stream.Shutdown().Poll())
	require.NoError(t, r.Err)
}

func TestScript_CloseDiscardsUnconsumedItems(t *testing.T) {
	stream, script := New()
	script.QueueRead([]byte("never read"))
	script.ExpectWrite([]byte("never written"))

	script.Close()

	buf := make([]byte, 16)
	r := polltest.Ready(t, stream.Read(buf).Poll())
	assert.ErrorIs(t, r.Err, io.EOF)

	w := polltest.Ready(t, stream.Write([]byte("anything")).Poll())
	require.NoError(t, w.Err)
	assert.Equal(t, 8, w.N)

	assert.True(t, script.ReadExhausted())
	assert.True(t, script.WriteExhausted())
}

func TestReadOp_CompletionIsCached(t *testing.T) {
	stream, script := New()
	script.QueueRead([]byte{0xAA})
	script.QueueRead([]byte{0xBB})

	buf := make([]byte, 4)
	op := stream.Read(buf)
	r := polltest.Ready(t, op.Poll())
	assert.Equal(t, byte(0xAA), buf[0])

	// Re-polling a completed op does not consume the next chunk.
	r = polltest.Ready(t, op.Poll())
	assert.Equal(t, 1, r.N)
	assert.False(t, script.ReadExhausted())
}
