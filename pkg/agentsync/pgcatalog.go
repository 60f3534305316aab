package agentsync

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGCatalog reads the external agent catalog from a relational schema
// (§4.7: "relational, rows with agent attributes, optional joins for MCP
// tools"). It is a separate pool from the runtime's own store — the
// catalog is conventionally owned by a different service — grounded on the
// teacher's pattern of opening a dedicated pgxpool per external dependency
// rather than reusing the primary database handle.
type PGCatalog struct {
	pool *pgxpool.Pool
}

// OpenPGCatalog connects to the external catalog database at dsn.
func OpenPGCatalog(ctx context.Context, dsn string) (*PGCatalog, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("agentsync: open catalog pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("agentsync: ping catalog pool: %w", err)
	}
	return &PGCatalog{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (c *PGCatalog) Close() {
	c.pool.Close()
}

// ListAgents fetches every agent row in scope, along with its MCP tool
// bindings. org_id filtering is pushed into SQL for ScopeOrgs; ScopeAll
// fetches every row; ScopeNone short-circuits before reaching here (the
// Reconciler never calls ListAgents in that case, but we also guard it
// here in case a caller invokes this directly).
func (c *PGCatalog) ListAgents(ctx context.Context, scope Scope) ([]CatalogRow, error) {
	if scope.Kind == ScopeNone {
		return nil, nil
	}

	query := `SELECT id, org_id, name, graph_id, sampling_params FROM agents`
	args := []any{}
	if scope.Kind == ScopeOrgs {
		query += ` WHERE org_id = ANY($1)`
		args = append(args, scope.OrgID)
	}

	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("agentsync: list agents: %w", err)
	}
	defer rows.Close()

	byID := map[string]*CatalogRow{}
	var order []string
	for rows.Next() {
		var row CatalogRow
		var sampling map[string]any
		if err := rows.Scan(&row.AgentID, &row.OrgID, &row.Name, &row.GraphID, &sampling); err != nil {
			return nil, fmt.Errorf("agentsync: scan agent row: %w", err)
		}
		row.SamplingParams = sampling
		byID[row.AgentID] = &row
		order = append(order, row.AgentID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := c.attachMCPTools(ctx, byID); err != nil {
		return nil, err
	}

	out := make([]CatalogRow, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func (c *PGCatalog) attachMCPTools(ctx context.Context, byID map[string]*CatalogRow) error {
	if len(byID) == 0 {
		return nil
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	rows, err := c.pool.Query(ctx, `SELECT agent_id, endpoint, tool_name FROM agent_mcp_tools WHERE agent_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("agentsync: list agent mcp tools: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var agentID, endpoint, toolName string
		if err := rows.Scan(&agentID, &endpoint, &toolName); err != nil {
			return fmt.Errorf("agentsync: scan mcp tool row: %w", err)
		}
		if row, ok := byID[agentID]; ok {
			row.MCPTools = append(row.MCPTools, MCPToolRow{Endpoint: endpoint, ToolName: toolName})
		}
	}
	return rows.Err()
}

var _ Catalog = (*PGCatalog)(nil)
