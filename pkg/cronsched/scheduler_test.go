package cronsched

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentrt/pkg/engine"
	"github.com/codeready-toolchain/agentrt/pkg/graphs"
	"github.com/codeready-toolchain/agentrt/pkg/metrics"
	"github.com/codeready-toolchain/agentrt/pkg/store"
)

func testScheduler(t *testing.T) (*Scheduler, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	reg := engine.NewRegistry()
	reg.Register(graphs.EchoGraphID, graphs.NewEchoFactory(graphs.EchoGraphID))
	eng := engine.New(st, reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(st, eng, metrics.NewRegistry(), logger, time.Hour)
	return s, st
}

func TestTickFiresDueCronAndAdvancesNextRunDate(t *testing.T) {
	s, st := testScheduler(t)
	ctx := context.Background()

	assistant, err := st.Assistants().Create(ctx, store.Assistant{GraphID: graphs.EchoGraphID, Name: "a"}, "user-1", store.IfExistsRaise)
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Hour)
	cr, err := st.Crons().Create(ctx, store.Cron{
		Schedule:    "* * * * *",
		AssistantID: assistant.AssistantID,
		UserID:      "user-1",
		NextRunDate: past,
		Payload:     store.JSONMap{"input": "hello from cron"},
	})
	require.NoError(t, err)

	s.tick(ctx)

	updated, err := st.Crons().Get(ctx, cr.CronID, "user-1")
	require.NoError(t, err)
	assert.True(t, updated.NextRunDate.After(past), "next_run_date must advance past the fired time")
	require.NotEmpty(t, updated.ThreadID, "the thread created on first firing must be bound back onto the cron")

	runs, err := st.Runs().ListByThread(ctx, updated.ThreadID, 10, 0, "")
	require.NoError(t, err)
	require.Len(t, runs, 1)

	// A second tick, now that next_run_date has advanced past "now", must
	// not fire again...
	s.tick(ctx)
	runsAfter, err := st.Runs().ListByThread(ctx, updated.ThreadID, 10, 0, "")
	require.NoError(t, err)
	assert.Len(t, runsAfter, 1, "a cron whose next_run_date is in the future must not refire")
}

func TestTickSwallowsPerCronFailures(t *testing.T) {
	s, st := testScheduler(t)
	ctx := context.Background()

	// A cron pointing at an assistant that doesn't exist must not stop the
	// tick or panic; it's logged and skipped.
	_, err := st.Crons().Create(ctx, store.Cron{
		Schedule:    "* * * * *",
		AssistantID: "does-not-exist",
		UserID:      "user-1",
		NextRunDate: time.Now().UTC().Add(-time.Hour),
		Payload:     store.JSONMap{"input": "x"},
	})
	require.NoError(t, err)

	assert.NotPanics(t, func() { s.tick(ctx) })
}

func TestFireHonorsPayloadMultitaskStrategy(t *testing.T) {
	s, st := testScheduler(t)
	ctx := context.Background()

	assistant, err := st.Assistants().Create(ctx, store.Assistant{GraphID: graphs.EchoGraphID, Name: "a"}, "user-1", store.IfExistsRaise)
	require.NoError(t, err)

	thread, err := st.Threads().Create(ctx, store.Thread{}, "user-1", store.IfExistsRaise)
	require.NoError(t, err)

	// Seed an active run on the thread so a "reject" strategy would bounce.
	_, err = st.Runs().Create(ctx, store.Run{ThreadID: thread.ThreadID, AssistantID: assistant.AssistantID})
	require.NoError(t, err)

	cr := &store.Cron{
		CronID:      "c1",
		Schedule:    "* * * * *",
		AssistantID: assistant.AssistantID,
		ThreadID:    thread.ThreadID,
		UserID:      "user-1",
		Payload:     store.JSONMap{"input": "x", "multitask_strategy": "reject"},
	}

	err = s.fire(ctx, cr, time.Now().UTC())
	var reject *engine.ErrMultitaskReject
	assert.ErrorAs(t, err, &reject, "an explicit reject strategy in the payload must be honored, not silently overridden by the enqueue default")
}
