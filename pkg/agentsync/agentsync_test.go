package agentsync

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentrt/pkg/metrics"
	"github.com/codeready-toolchain/agentrt/pkg/store"
)

func TestParseScopeNoneAndEmpty(t *testing.T) {
	for _, raw := range []string{"", "none"} {
		s, err := ParseScope(raw)
		require.NoError(t, err)
		assert.Equal(t, ScopeNone, s.Kind)
	}
}

func TestParseScopeAll(t *testing.T) {
	s, err := ParseScope("all")
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, s.Kind)
}

func TestParseScopeOrgSingle(t *testing.T) {
	id := "9d3e3c2a-6b2a-4b37-8f3a-8f2f6b6b1111"
	s, err := ParseScope("org:" + id)
	require.NoError(t, err)
	assert.Equal(t, ScopeOrgs, s.Kind)
	assert.Equal(t, []string{id}, s.OrgID)
}

func TestParseScopeOrgRequiresPrefixOnEveryToken(t *testing.T) {
	id1 := "9d3e3c2a-6b2a-4b37-8f3a-8f2f6b6b1111"
	id2 := "9d3e3c2a-6b2a-4b37-8f3a-8f2f6b6b2222"

	s, err := ParseScope("org:" + id1 + ",org:" + id2)
	require.NoError(t, err)
	assert.Equal(t, ScopeOrgs, s.Kind)
	assert.ElementsMatch(t, []string{id1, id2}, s.OrgID)

	// A bare uuid after the comma, without its own "org:" prefix, must be
	// rejected rather than silently accepted as a second org id.
	_, err = ParseScope("org:" + id1 + "," + id2)
	assert.Error(t, err)
}

func TestParseScopeOrgInvalidUUID(t *testing.T) {
	_, err := ParseScope("org:not-a-uuid")
	assert.Error(t, err)
}

func TestParseScopeUnrecognized(t *testing.T) {
	_, err := ParseScope("whatever")
	assert.Error(t, err)
}

func TestScopeMatches(t *testing.T) {
	none := Scope{Kind: ScopeNone}
	all := Scope{Kind: ScopeAll}
	orgs := Scope{Kind: ScopeOrgs, OrgID: []string{"a", "b"}}

	assert.False(t, none.Matches("a"))
	assert.True(t, all.Matches("anything"))
	assert.True(t, orgs.Matches("a"))
	assert.False(t, orgs.Matches("c"))
}

func TestCatalogRowToConfigurableSpreadsSamplingParamsFlat(t *testing.T) {
	row := CatalogRow{
		AgentID:        "agent-1",
		SamplingParams: map[string]any{"temperature": 0.2, "top_p": 0.9},
	}
	cfg := row.ToConfigurable()
	assert.Equal(t, 0.2, cfg["temperature"])
	assert.Equal(t, 0.9, cfg["top_p"])
	_, hasMCP := cfg["mcp_config"]
	assert.False(t, hasMCP)
}

func TestCatalogRowToConfigurableGroupsMCPToolsByEndpoint(t *testing.T) {
	row := CatalogRow{
		AgentID: "agent-1",
		MCPTools: []MCPToolRow{
			{Endpoint: "https://mcp.example/a", ToolName: "search"},
			{Endpoint: "https://mcp.example/a", ToolName: "fetch"},
			{Endpoint: "https://mcp.example/b", ToolName: "lookup"},
		},
	}
	cfg := row.ToConfigurable()
	mcpConfig, ok := cfg["mcp_config"].(map[string]any)
	require.True(t, ok)
	servers, ok := mcpConfig["servers"].(map[string]any)
	require.True(t, ok)
	require.Len(t, servers, 2)

	a, ok := servers["https://mcp.example/a"].(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"search", "fetch"}, a["tool_names"])

	b, ok := servers["https://mcp.example/b"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"lookup"}, b["tool_names"])

	_, hasTools := cfg["tools"]
	assert.False(t, hasTools, "a per-tool allowlist key must never be populated")
}

// fakeCatalog is an in-memory Catalog stub for reconciler tests.
type fakeCatalog struct {
	rows []CatalogRow
}

func (f *fakeCatalog) ListAgents(ctx context.Context, scope Scope) ([]CatalogRow, error) {
	return f.rows, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReconcilerCreatesMissingAssistant(t *testing.T) {
	st := store.NewMemoryStore()
	cat := &fakeCatalog{rows: []CatalogRow{
		{AgentID: "agent-1", OrgID: "org-1", Name: "Agent One", GraphID: "echo", SamplingParams: map[string]any{"temperature": 0.3}},
	}}
	r := New(cat, nil, st, metrics.NewRegistry(), testLogger(), Scope{Kind: ScopeAll}, 0)

	result, err := r.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, result.Skipped)

	found, err := r.findByAgentID(context.Background(), "agent-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Agent One", found.Name)
	assert.Equal(t, "echo", found.GraphID)
	assert.Equal(t, reqctxSystemOwnerFromMetadata(found.Metadata), true)
}

func reqctxSystemOwnerFromMetadata(meta store.JSONMap) bool {
	v, _ := meta["agent_sync"].(bool)
	return v
}

func TestReconcilerSkipsUnchangedRowOnSecondSync(t *testing.T) {
	st := store.NewMemoryStore()
	cat := &fakeCatalog{rows: []CatalogRow{
		{AgentID: "agent-1", OrgID: "org-1", Name: "Agent One", GraphID: "echo", SamplingParams: map[string]any{"temperature": 0.3}},
	}}
	r := New(cat, nil, st, metrics.NewRegistry(), testLogger(), Scope{Kind: ScopeAll}, 0)

	_, err := r.Sync(context.Background())
	require.NoError(t, err)

	result, err := r.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 1, result.Skipped)
}

func TestReconcilerUpdatesChangedRow(t *testing.T) {
	st := store.NewMemoryStore()
	cat := &fakeCatalog{rows: []CatalogRow{
		{AgentID: "agent-1", OrgID: "org-1", Name: "Agent One", GraphID: "echo", SamplingParams: map[string]any{"temperature": 0.3}},
	}}
	r := New(cat, nil, st, metrics.NewRegistry(), testLogger(), Scope{Kind: ScopeAll}, 0)

	_, err := r.Sync(context.Background())
	require.NoError(t, err)

	cat.rows[0].SamplingParams = map[string]any{"temperature": 0.9}
	result, err := r.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Skipped)

	found, err := r.findByAgentID(context.Background(), "agent-1")
	require.NoError(t, err)
	configurable, _ := store.AsJSONMap(found.Config["configurable"])
	assert.Equal(t, 0.9, configurable["temperature"])
}

func TestReconcilerScopeNoneSkipsEntirely(t *testing.T) {
	st := store.NewMemoryStore()
	cat := &fakeCatalog{rows: []CatalogRow{{AgentID: "agent-1"}}}
	r := New(cat, nil, st, metrics.NewRegistry(), testLogger(), Scope{Kind: ScopeNone}, 0)

	result, err := r.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, result)

	found, err := r.findByAgentID(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Nil(t, found)
}

// recordingWriteBack captures RecordAssistantID calls.
type recordingWriteBack struct {
	calls map[string]string
}

func (w *recordingWriteBack) RecordAssistantID(ctx context.Context, agentID, assistantID string) error {
	if w.calls == nil {
		w.calls = map[string]string{}
	}
	w.calls[agentID] = assistantID
	return nil
}

func TestReconcilerInvokesWriteBackOnCreate(t *testing.T) {
	st := store.NewMemoryStore()
	cat := &fakeCatalog{rows: []CatalogRow{{AgentID: "agent-1", Name: "Agent One", GraphID: "echo"}}}
	wb := &recordingWriteBack{}
	r := New(cat, wb, st, metrics.NewRegistry(), testLogger(), Scope{Kind: ScopeAll}, 0)

	_, err := r.Sync(context.Background())
	require.NoError(t, err)

	assistantID, ok := wb.calls["agent-1"]
	require.True(t, ok)
	assert.NotEmpty(t, assistantID)
}

func TestNeedsRefresh(t *testing.T) {
	st := store.NewMemoryStore()
	cat := &fakeCatalog{}
	r := New(cat, nil, st, metrics.NewRegistry(), testLogger(), Scope{Kind: ScopeAll}, 0)

	assert.True(t, r.NeedsRefresh("never-synced"))
}
