package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lockstep/internal/trace"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func sampleEvents() []trace.Event {
	return []trace.Event{
		{Seq: 1, Kind: "try_send", Target: "ch", Detail: map[string]any{"outcome": "ok", "value": "a"}},
		{Seq: 2, Kind: "advance", Detail: map[string]any{"duration": "100ms"}},
		{Seq: 3, Kind: "poll", Target: "ch", Detail: map[string]any{"op": "recv", "outcome": "completed", "value": "a"}},
	}
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j1.Close())

	j2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j2.Close())
}

func TestWriteRun_RoundTrip(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	run := Run{
		ID:           "run-1",
		ScenarioName: "basic",
		ScenarioYAML: "name: basic\n",
		Pass:         true,
		CreatedAt:    "2026-08-23T12:00:00Z",
	}
	require.NoError(t, j.WriteRun(ctx, run, sampleEvents()))

	got, err := j.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, got)

	events, err := j.ReadRunEvents(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, "try_send", events[0].Kind)
	assert.Equal(t, "ch", events[0].Target)
	assert.Equal(t, `{"outcome":"ok","value":"a"}`, events[0].Detail)
	assert.Equal(t, "advance", events[1].Kind)
	assert.Empty(t, events[1].Target)
}

func TestWriteRun_RequiresID(t *testing.T) {
	j := openTestJournal(t)

	err := j.WriteRun(context.Background(), Run{ScenarioName: "x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run ID is required")
}

func TestWriteRun_DefaultsCreatedAt(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.WriteRun(ctx, Run{ID: "run-1", ScenarioName: "x"}, nil))

	got, err := j.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.NotEmpty(t, got.CreatedAt)
}

func TestWriteRun_DuplicateIDFails(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.WriteRun(ctx, Run{ID: "run-1", ScenarioName: "x"}, nil))
	err := j.WriteRun(ctx, Run{ID: "run-1", ScenarioName: "y"}, nil)
	require.Error(t, err)
}

func TestReadRun_NotFound(t *testing.T) {
	j := openTestJournal(t)

	_, err := j.ReadRun(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found: missing")
}

func TestListRuns_NewestFirst(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.WriteRun(ctx, Run{ID: "run-1", ScenarioName: "a", Pass: true}, nil))
	require.NoError(t, j.WriteRun(ctx, Run{ID: "run-2", ScenarioName: "b"}, nil))
	require.NoError(t, j.WriteRun(ctx, Run{ID: "run-3", ScenarioName: "c", Pass: true}, nil))

	runs, err := j.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-2", runs[1].ID)
	assert.Equal(t, "run-1", runs[2].ID)
	assert.False(t, runs[1].Pass)
	assert.True(t, runs[2].Pass)
}

func TestEncodeDetail_EmptyIsBraces(t *testing.T) {
	s, err := EncodeDetail(trace.Event{Seq: 1, Kind: "advance"})
	require.NoError(t, err)
	assert.Equal(t, "{}", s)
}

func TestEncodeDetail_CanonicalKeyOrder(t *testing.T) {
	s, err := EncodeDetail(trace.Event{
		Seq:    1,
		Kind:   "poll",
		Detail: map[string]any{"outcome": "completed", "op": "recv", "value": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"op":"recv","outcome":"completed","value":"x"}`, s)
}
