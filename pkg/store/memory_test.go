package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssistantVersionAndOwnerInvariants(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a, err := s.Assistants().Create(ctx, Assistant{GraphID: "agent", Name: "A"}, "u1", IfExistsRaise)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Version)
	assert.Equal(t, "u1", a.Owner())

	updated, err := s.Assistants().Update(ctx, a.AssistantID, JSONMap{"metadata": JSONMap{"color": "red"}}, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "u1", updated.Owner(), "owner must survive a metadata patch")
	assert.Equal(t, "red", updated.Metadata["color"])

	// A metadata patch that tries to steal ownership must not succeed.
	stolen, err := s.Assistants().Update(ctx, a.AssistantID, JSONMap{"metadata": JSONMap{"owner": "attacker"}}, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", stolen.Owner())
	assert.Equal(t, 3, stolen.Version)
}

func TestAssistantLifecycleOwnerIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a, err := s.Assistants().Create(ctx, Assistant{GraphID: "agent"}, "u1", IfExistsRaise)
	require.NoError(t, err)

	_, err = s.Assistants().Get(ctx, a.AssistantID, "u1")
	require.NoError(t, err)

	err = s.Assistants().Delete(ctx, a.AssistantID, "u2")
	assert.ErrorIs(t, err, ErrNotFound, "a different owner must not be able to delete")

	err = s.Assistants().Delete(ctx, a.AssistantID, "u1")
	require.NoError(t, err)

	_, err = s.Assistants().Get(ctx, a.AssistantID, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssistantCreateIfExists(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a, err := s.Assistants().Create(ctx, Assistant{AssistantID: "fixed", GraphID: "agent"}, "u1", IfExistsRaise)
	require.NoError(t, err)

	_, err = s.Assistants().Create(ctx, Assistant{AssistantID: "fixed", GraphID: "agent"}, "u1", IfExistsRaise)
	assert.ErrorIs(t, err, ErrConflict)

	again, err := s.Assistants().Create(ctx, Assistant{AssistantID: "fixed", GraphID: "agent"}, "u1", IfExistsDoNothing)
	require.NoError(t, err)
	assert.Equal(t, a.AssistantID, again.AssistantID)
}

func TestThreadStateAndHistoryNotOwnerScoped(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	th, err := s.Threads().Create(ctx, Thread{}, "u1", IfExistsRaise)
	require.NoError(t, err)

	_, err = s.Threads().AddStateSnapshot(ctx, th.ThreadID, JSONMap{"values": JSONMap{"messages": []any{"hi"}}})
	require.NoError(t, err)

	// A different, unrelated owner can still read state/history: the
	// thread ID itself is the access token (spec.md §3).
	snap, err := s.Threads().GetState(ctx, th.ThreadID)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.Values["messages"])

	hist, err := s.Threads().GetHistory(ctx, th.ThreadID, 10, "")
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	// But writes and deletes remain owner-scoped.
	err = s.Threads().Delete(ctx, th.ThreadID, "u2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddStateSnapshotToleratesBareValues(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	th, err := s.Threads().Create(ctx, Thread{}, "u1", IfExistsRaise)
	require.NoError(t, err)

	// No "values" wrapper key: the bare map itself is treated as the values.
	snap, err := s.Threads().AddStateSnapshot(ctx, th.ThreadID, JSONMap{"messages": []any{"hi"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"hi"}, snap.Values["messages"])
}

func TestStateSnapshotHistoryOrderingAndUniqueCheckpoints(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	th, err := s.Threads().Create(ctx, Thread{}, "u1", IfExistsRaise)
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 3; i++ {
		snap, err := s.Threads().AddStateSnapshot(ctx, th.ThreadID, JSONMap{"values": JSONMap{"n": i}})
		require.NoError(t, err)
		ids = append(ids, snap.CheckpointID)
	}

	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "checkpoint ids must be unique within a thread")
		seen[id] = true
	}

	hist, err := s.Threads().GetHistory(ctx, th.ThreadID, 10, "")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	for i := 1; i < len(hist); i++ {
		assert.False(t, hist[i].CreatedAt.After(hist[i-1].CreatedAt))
	}

	none, err := s.Threads().GetHistory(ctx, th.ThreadID, 10, "unknown-checkpoint")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRunStatusTerminalImmutability(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	run, err := s.Runs().Create(ctx, Run{ThreadID: "t1", AssistantID: "a1"})
	require.NoError(t, err)

	_, err = s.Runs().UpdateStatus(ctx, run.RunID, RunStatusSuccess)
	require.NoError(t, err)

	final, err := s.Runs().UpdateStatus(ctx, run.RunID, RunStatusError)
	require.NoError(t, err)
	assert.Equal(t, RunStatusSuccess, final.Status, "a terminal run must never transition again")
}

func TestGetActiveRunReturnsNonTerminalRun(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Runs().Create(ctx, Run{ThreadID: "t1", AssistantID: "a1"})
	require.NoError(t, err)

	active, err := s.Runs().GetActiveRun(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, active.Status.Terminal())
}

func TestStoreItemPutIsIdempotentInValue(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.StoreItems().Put(ctx, "prefs", "lang", JSONMap{"lang": "de"}, "u1", nil)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	second, err := s.StoreItems().Put(ctx, "prefs", "lang", JSONMap{"lang": "de"}, "u1", nil)
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt, "re-putting an equal value must not change created_at")
	assert.True(t, !second.UpdatedAt.Before(first.UpdatedAt))
	assert.Equal(t, "de", second.Value["lang"])
}

func TestStoreItemOwnerIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.StoreItems().Put(ctx, "prefs", "lang", JSONMap{"lang": "de"}, "u1", nil)
	require.NoError(t, err)

	_, err = s.StoreItems().Get(ctx, "prefs", "lang", "u2")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.StoreItems().Get(ctx, "prefs", "lang", "u1")
	require.NoError(t, err)

	nsU1, err := s.StoreItems().ListNamespaces(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"prefs"}, nsU1)

	nsU2, err := s.StoreItems().ListNamespaces(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, nsU2)
}

func TestSearchFiltersClampLimit(t *testing.T) {
	f := SearchFilters{Limit: -5, Offset: -1}
	f.ClampLimit()
	assert.Equal(t, 10, f.Limit)
	assert.Equal(t, 0, f.Offset)

	f2 := SearchFilters{Limit: 5000}
	f2.ClampLimit()
	assert.Equal(t, 1000, f2.Limit)
}

func TestGetStateSynthesizesFromThreadValuesWhenNoSnapshots(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	th, err := s.Threads().Create(ctx, Thread{}, "u1", IfExistsRaise)
	require.NoError(t, err)

	snap, err := s.Threads().GetState(ctx, th.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, th.Values, snap.Values)
	assert.NotZero(t, snap.CreatedAt)
}

func TestTimeFieldAcceptsTimeAndRFC3339String(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	v, ok := timeField(now)
	require.True(t, ok)
	assert.True(t, v.Equal(now))

	v2, ok := timeField(now.Format(time.RFC3339))
	require.True(t, ok)
	assert.True(t, v2.Equal(now))

	_, ok = timeField("not-a-time")
	assert.False(t, ok)

	_, ok = timeField(42)
	assert.False(t, ok)
}

func TestCronUpdateAcceptsJSONDecodedPatch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	c, err := s.Crons().Create(ctx, Cron{Schedule: "* * * * *", AssistantID: "a1", UserID: "u1", NextRunDate: time.Now().UTC()})
	require.NoError(t, err)

	next := time.Now().Add(time.Hour).UTC()
	// Simulate a JSON-decoded PATCH body: next_run_date arrives as an
	// RFC3339 string, not a native time.Time.
	patch := JSONMap{"next_run_date": next.Format(time.RFC3339)}
	updated, err := s.Crons().Update(ctx, c.CronID, patch, "")
	require.NoError(t, err)
	assert.True(t, updated.NextRunDate.Equal(next.Truncate(time.Second)) || updated.NextRunDate.Unix() == next.Unix())
}

func TestCronDue(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	past := time.Now().Add(-time.Hour).UTC()
	future := time.Now().Add(time.Hour).UTC()

	_, err := s.Crons().Create(ctx, Cron{Schedule: "* * * * *", AssistantID: "a1", UserID: "u1", NextRunDate: past})
	require.NoError(t, err)
	_, err = s.Crons().Create(ctx, Cron{Schedule: "* * * * *", AssistantID: "a1", UserID: "u1", NextRunDate: future})
	require.NoError(t, err)

	due, err := s.Crons().Due(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Len(t, due, 1)
}
