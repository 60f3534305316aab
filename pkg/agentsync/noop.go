package agentsync

import "context"

// NoopCatalog is the zero-value external collaborator: it reports no agents
// in any scope. Selected by cmd/agentrt whenever AGENT_SYNC_SCOPE is "none"
// or no catalog data source is configured, so Reconciler always has a
// non-nil Catalog to call even when sync is effectively disabled.
type NoopCatalog struct{}

func (NoopCatalog) ListAgents(ctx context.Context, scope Scope) ([]CatalogRow, error) {
	return nil, nil
}
