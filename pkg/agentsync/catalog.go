package agentsync

import "context"

// CatalogRow is one external agent catalog entry as it comes back from the
// upstream source of truth (a database, an admin API — whatever Catalog
// wraps).
type CatalogRow struct {
	AgentID        string
	OrgID          string
	Name           string
	GraphID        string
	SamplingParams map[string]any
	MCPTools       []MCPToolRow
}

// MCPToolRow is one MCP tool binding attached to a catalog agent row.
type MCPToolRow struct {
	Endpoint string
	ToolName string
}

// Catalog fetches the current set of agent rows in scope. Implementations
// typically wrap a database query or an admin API client.
type Catalog interface {
	ListAgents(ctx context.Context, scope Scope) ([]CatalogRow, error)
}

// WriteBack optionally records the assistant_id the reconciler assigned to
// a catalog row, so the external system can display/link it. Reconcilers
// work without one; it's best-effort when present.
type WriteBack interface {
	RecordAssistantID(ctx context.Context, agentID, assistantID string) error
}

// ToConfigurable maps a catalog row onto the configurable dict an
// assistant's config carries. sampling_params fields are spread flat
// rather than nested — this mirrors how the reference catalog has always
// encoded them, and downstream graphs read e.g. configurable.temperature
// directly. MCP tool rows are grouped by endpoint into
// configurable.mcp_config.servers; a "tools" filter key is intentionally
// never populated here — every upstream agent exposes every tool its
// endpoint serves, so a per-tool allowlist in configurable would just be
// dead weight the graph never reads.
func (r CatalogRow) ToConfigurable() map[string]any {
	configurable := map[string]any{}
	for k, v := range r.SamplingParams {
		configurable[k] = v
	}

	if len(r.MCPTools) > 0 {
		servers := map[string]any{}
		for _, t := range r.MCPTools {
			entry, _ := servers[t.Endpoint].(map[string]any)
			if entry == nil {
				entry = map[string]any{"endpoint": t.Endpoint, "tool_names": []string{}}
			}
			names, _ := entry["tool_names"].([]string)
			entry["tool_names"] = append(names, t.ToolName)
			servers[t.Endpoint] = entry
		}
		configurable["mcp_config"] = map[string]any{"servers": servers}
	}

	return configurable
}
