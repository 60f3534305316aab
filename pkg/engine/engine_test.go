package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentrt/pkg/store"
)

func TestResolveMultitaskNoActiveRun(t *testing.T) {
	s := store.NewMemoryStore()
	err := ResolveMultitask(context.Background(), s.Runs(), "t1", store.MultitaskReject)
	assert.NoError(t, err)
}

func TestResolveMultitaskRejectDefault(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	_, err := s.Runs().Create(ctx, store.Run{ThreadID: "t1", AssistantID: "a1"})
	require.NoError(t, err)

	err = ResolveMultitask(ctx, s.Runs(), "t1", "")
	var reject *ErrMultitaskReject
	require.ErrorAs(t, err, &reject)
}

func TestResolveMultitaskInterrupt(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	active, err := s.Runs().Create(ctx, store.Run{ThreadID: "t1", AssistantID: "a1"})
	require.NoError(t, err)

	err = ResolveMultitask(ctx, s.Runs(), "t1", store.MultitaskInterrupt)
	require.NoError(t, err)

	updated, err := s.Runs().Get(ctx, active.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusInterrupted, updated.Status)
}

func TestResolveMultitaskRollback(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	active, err := s.Runs().Create(ctx, store.Run{ThreadID: "t1", AssistantID: "a1"})
	require.NoError(t, err)

	err = ResolveMultitask(ctx, s.Runs(), "t1", store.MultitaskRollback)
	require.NoError(t, err)

	updated, err := s.Runs().Get(ctx, active.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusError, updated.Status)
}

func TestResolveMultitaskEnqueueNeverRejects(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	_, err := s.Runs().Create(ctx, store.Run{ThreadID: "t1", AssistantID: "a1"})
	require.NoError(t, err)

	err = ResolveMultitask(ctx, s.Runs(), "t1", store.MultitaskEnqueue)
	assert.NoError(t, err)
}

func TestBuildRunnableConfigPrecedenceAndCheckpointNSStripped(t *testing.T) {
	assistantConfigurable := store.JSONMap{"model": "a-model", "checkpoint_ns": "should-not-survive"}
	runConfigurable := store.JSONMap{"model": "run-override", "extra": "val"}
	assistant := &store.Assistant{AssistantID: "asst-1", Name: "My Assistant"}

	cfg, err := BuildRunnableConfig(assistantConfigurable, runConfigurable, "run-1", "thread-1", "asst-1", assistant, "tok-123")
	require.NoError(t, err)

	assert.Equal(t, "run-override", cfg.Configurable["model"], "run-level configurable must win over assistant-level")
	assert.Equal(t, "val", cfg.Configurable["extra"])
	assert.Equal(t, "run-1", cfg.Configurable["run_id"])
	assert.Equal(t, "thread-1", cfg.Configurable["thread_id"])
	assert.Equal(t, "asst-1", cfg.Configurable["assistant_id"])
	assert.Equal(t, assistant, cfg.Configurable["assistant"], "the whole assistant record must be carried, not just its name")
	assert.Equal(t, "tok-123", cfg.Configurable["langgraph_auth_user_token"])
	_, hasNS := cfg.Configurable["checkpoint_ns"]
	assert.False(t, hasNS, "checkpoint_ns must never be forwarded into the runnable config")
}

func TestBuildRunnableConfigRuntimeMetadataWinsOverCallerSuppliedValues(t *testing.T) {
	runConfigurable := store.JSONMap{"run_id": "caller-supplied", "thread_id": "caller-supplied"}
	cfg, err := BuildRunnableConfig(nil, runConfigurable, "real-run-id", "real-thread-id", "", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "real-run-id", cfg.Configurable["run_id"])
	assert.Equal(t, "real-thread-id", cfg.Configurable["thread_id"])
}

func TestBuildRunnableConfigNoTokenNoKey(t *testing.T) {
	cfg, err := BuildRunnableConfig(nil, nil, "r", "t", "", nil, "")
	require.NoError(t, err)
	_, ok := cfg.Configurable["langgraph_auth_user_token"]
	assert.False(t, ok)
}

func TestNormalizeInputString(t *testing.T) {
	out := NormalizeInput("My name is Luke")
	msgs, ok := out["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	m := msgs[0].(store.JSONMap)
	assert.Equal(t, "human", m["type"])
	assert.Equal(t, "My name is Luke", m["content"])
	assert.NotEmpty(t, m["id"])
}

func TestNormalizeInputMessagesArray(t *testing.T) {
	in := store.JSONMap{
		"messages": []any{
			"hi there",
			map[string]any{"content": "a reply", "role": "assistant"},
			map[string]any{"content": "pre-id", "type": "human", "id": "fixed-id"},
		},
	}
	out := NormalizeInput(in)
	msgs := out["messages"].([]any)
	require.Len(t, msgs, 3)

	m0 := msgs[0].(store.JSONMap)
	assert.Equal(t, "human", m0["type"])
	assert.Equal(t, "hi there", m0["content"])

	m1 := msgs[1].(store.JSONMap)
	assert.Equal(t, "ai", m1["type"], "role=assistant must map to type=ai")

	m2 := msgs[2].(store.JSONMap)
	assert.Equal(t, "fixed-id", m2["id"], "an explicit id must be preserved")
}

func TestNormalizeInputFallbackKey(t *testing.T) {
	out := NormalizeInput(store.JSONMap{"input": "fallback text"})
	msgs := out["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "fallback text", msgs[0].(store.JSONMap)["content"])
}

func TestNormalizeInputNil(t *testing.T) {
	out := NormalizeInput(nil)
	assert.Equal(t, store.JSONMap{}, out)
}
