package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_SequenceStartsAtOne(t *testing.T) {
	rec := NewRecorder()
	assert.Equal(t, int64(0), rec.Current())

	ev := rec.Record("advance", "", map[string]any{"duration": "100ms"})
	assert.Equal(t, int64(1), ev.Seq)

	ev = rec.Record("poll", "ch", nil)
	assert.Equal(t, int64(2), ev.Seq)
	assert.Equal(t, int64(2), rec.Current())
}

func TestRecorder_EventsReturnsCopy(t *testing.T) {
	rec := NewRecorder()
	rec.Record("poll", "a", nil)
	rec.Record("poll", "b", nil)

	events := rec.Events()
	require.Len(t, events, 2)
	events[0].Kind = "mutated"

	assert.Equal(t, "poll", rec.Events()[0].Kind)
}

func TestRecorder_ResetRewindsSequence(t *testing.T) {
	rec := NewRecorder()
	rec.Record("poll", "a", nil)
	rec.Record("poll", "b", nil)

	rec.Reset()
	assert.Equal(t, int64(0), rec.Current())
	assert.Empty(t, rec.Events())

	ev := rec.Record("poll", "a", nil)
	assert.Equal(t, int64(1), ev.Seq)
}

func TestMarshalEvents_OmitsEmptyFields(t *testing.T) {
	events := []Event{
		{Seq: 1, Kind: "advance", Detail: map[string]any{"duration": "1s"}},
		{Seq: 2, Kind: "poll", Target: "ch"},
	}

	b, err := MarshalEvents(events)
	require.NoError(t, err)
	assert.Equal(t,
		`[{"detail":{"duration":"1s"},"kind":"advance","seq":1},{"kind":"poll","seq":2,"target":"ch"}]`,
		string(b))
}

func TestMarshalEvents_IsDeterministic(t *testing.T) {
	events := []Event{
		{Seq: 1, Kind: "poll", Target: "ch", Detail: map[string]any{
			"op": "recv", "outcome": "completed", "value": "x", "eos": false,
		}},
	}

	first, err := MarshalEvents(events)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := MarshalEvents(events)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestMarshalCanonical_SortsKeysByUTF16(t *testing.T) {
	// U+10000 encodes as a surrogate pair whose first unit (0xD800)
	// sorts before U+FF01 in UTF-16, while UTF-8 byte order puts
	// U+FF01 first.
	b, err := MarshalCanonical(map[string]any{
		"\U00010000": 1,
		"\uff01":     2,
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":1,\"\uff01\":2}", string(b))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	b, err := MarshalCanonical(map[string]any{"k": "<a> & </a>"})
	require.NoError(t, err)
	assert.Equal(t, `{"k":"<a> & </a>"}`, string(b))
}

func TestMarshalCanonical_NFCNormalization(t *testing.T) {
	// "e" + combining acute accent normalizes to precomposed U+00E9.
	b, err := MarshalCanonical("cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"caf\u00e9\"", string(b))
}

func TestMarshalCanonical_LineSeparatorsStayLiteral(t *testing.T) {
	// Go's json encoder escapes U+2028/U+2029; canonical JSON keeps
	// them literal.
	b, err := MarshalCanonical("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(b))
}

func TestMarshalCanonical_RejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"n": 1.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestMarshalCanonical_RejectsNull(t *testing.T) {
	_, err := MarshalCanonical(nil)
	require.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"k": nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `value for key "k"`)
}

func TestMarshalCanonical_NestedStructures(t *testing.T) {
	b, err := MarshalCanonical(map[string]any{
		"list": []any{int64(1), "two", true},
		"obj":  map[string]any{"b": 2, "a": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"list":[1,"two",true],"obj":{"a":1,"b":2}}`, string(b))
}
