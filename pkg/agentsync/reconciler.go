package agentsync

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentrt/pkg/metrics"
	"github.com/codeready-toolchain/agentrt/pkg/reqctx"
	"github.com/codeready-toolchain/agentrt/pkg/store"
)

// Reconciler keeps assistants in sync with an external agent Catalog.
// Every resource it creates is stamped with the system owner so that
// catalog-managed assistants remain readable by every caller but writable
// only through another reconciliation pass.
type Reconciler struct {
	catalog   Catalog
	writeBack WriteBack
	store     store.Store
	metrics   *metrics.Registry
	logger    *slog.Logger
	scope     Scope
	ttl       time.Duration

	mu       sync.Mutex
	lastSync map[string]time.Time // agentID -> last reconciled
}

// New builds a Reconciler. writeBack may be nil.
func New(catalog Catalog, writeBack WriteBack, st store.Store, m *metrics.Registry, logger *slog.Logger, scope Scope, ttl time.Duration) *Reconciler {
	return &Reconciler{
		catalog: catalog, writeBack: writeBack, store: st, metrics: m, logger: logger,
		scope: scope, ttl: ttl, lastSync: map[string]time.Time{},
	}
}

// SyncResult summarizes one reconciliation pass.
type SyncResult struct {
	Created, Updated, Skipped int
}

// Sync fetches every in-scope catalog row and reconciles each one:
// create if absent, update if its mapped configurable differs from the
// stored assistant's, skip otherwise. Runs under the system owner.
func (r *Reconciler) Sync(ctx context.Context) (SyncResult, error) {
	var result SyncResult
	if r.scope.Kind == ScopeNone {
		return result, nil
	}
	r.metrics.IncAgentSyncRun()

	rows, err := r.catalog.ListAgents(ctx, r.scope)
	if err != nil {
		r.metrics.IncAgentSyncError()
		return result, err
	}

	for _, row := range rows {
		assistantID, changed, err := r.reconcileOne(ctx, row)
		if err != nil {
			r.metrics.IncAgentSyncError()
			r.logger.Error("agent_sync_row_failed", "agent_id", row.AgentID, "error", err)
			continue
		}
		switch changed {
		case rowCreated:
			result.Created++
		case rowUpdated:
			result.Updated++
		default:
			result.Skipped++
		}

		r.mu.Lock()
		r.lastSync[row.AgentID] = time.Now()
		r.mu.Unlock()

		if r.writeBack != nil && assistantID != "" {
			if err := r.writeBack.RecordAssistantID(ctx, row.AgentID, assistantID); err != nil {
				r.logger.Warn("agent_sync_writeback_failed", "agent_id", row.AgentID, "error", err)
			}
		}
	}
	return result, nil
}

type rowOutcome int

const (
	rowSkipped rowOutcome = iota
	rowCreated
	rowUpdated
)

func (r *Reconciler) reconcileOne(ctx context.Context, row CatalogRow) (string, rowOutcome, error) {
	ctx = reqctx.WithIdentity(ctx, reqctx.SystemOwner)
	configurable := row.ToConfigurable()

	existing, err := r.findByAgentID(ctx, row.AgentID)
	if err != nil {
		return "", rowSkipped, err
	}

	if existing == nil {
		created, err := r.store.Assistants().Create(ctx, store.Assistant{
			GraphID: row.GraphID,
			Name:    row.Name,
			Config:  store.JSONMap{"configurable": configurable},
			Metadata: store.JSONMap{
				"owner":      reqctx.SystemOwner,
				"agent_id":   row.AgentID,
				"org_id":     row.OrgID,
				"agent_sync": true,
			},
		}, reqctx.SystemOwner, store.IfExistsRaise)
		if err != nil {
			return "", rowSkipped, err
		}
		return created.AssistantID, rowCreated, nil
	}

	existingConfigurable, _ := store.AsJSONMap(existing.Config["configurable"])
	if configurableEqual(existingConfigurable, configurable) && existing.GraphID == row.GraphID {
		return existing.AssistantID, rowSkipped, nil
	}

	updated, err := r.store.Assistants().Update(ctx, existing.AssistantID, store.JSONMap{
		"graph_id": row.GraphID,
		"config":   store.JSONMap{"configurable": configurable},
	}, reqctx.SystemOwner)
	if err != nil {
		return "", rowSkipped, err
	}
	return updated.AssistantID, rowUpdated, nil
}

func (r *Reconciler) findByAgentID(ctx context.Context, agentID string) (*store.Assistant, error) {
	rows, err := r.store.Assistants().Search(ctx, store.SearchFilters{
		Metadata: store.JSONMap{"agent_id": agentID},
		Limit:    1,
	}, reqctx.SystemOwner)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func configurableEqual(a, b map[string]any) bool {
	return reflect.DeepEqual(a, b)
}

// NeedsRefresh reports whether agentID hasn't been reconciled within TTL,
// for the lazy per-assistant refresh path handlers can trigger on demand
// rather than waiting for the next full Sync pass.
func (r *Reconciler) NeedsRefresh(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.lastSync[agentID]
	return !ok || time.Since(last) > r.ttl
}
