// Package engine implements the run engine (§4.6): multitask conflict
// resolution, runnable-config assembly, input normalization, synchronous
// execution with checkpointer read-back, SSE streaming, and join/cancel.
package engine

import (
	"context"

	"github.com/codeready-toolchain/agentrt/pkg/store"
)

// Graph is the external-collaborator contract every compiled agent graph
// satisfies. The engine never inspects a graph's internals — it only
// invokes and reads state back through this narrow seam.
type Graph interface {
	// Invoke runs the graph once against input under config and returns the
	// values the graph wants to surface immediately (best-effort; the
	// authoritative post-run state always comes from GetState).
	Invoke(ctx context.Context, input store.JSONMap, config RunnableConfig) (store.JSONMap, error)

	// GetState reads back the checkpointer-accumulated state for config's
	// thread. This is the load-bearing call: the engine never persists
	// checkpoints itself, it only mirrors what the graph's checkpointer
	// already holds into thread.values after every run.
	GetState(ctx context.Context, config RunnableConfig) (store.JSONMap, error)
}

// StreamingGraph is optionally implemented by graphs that can emit
// incremental message/update events while running. Graphs that don't
// implement it still stream via Invoke + a single values/end sequence.
type StreamingGraph interface {
	Graph
	InvokeStream(ctx context.Context, input store.JSONMap, config RunnableConfig, emit func(kind string, delta store.JSONMap) error) (store.JSONMap, error)
}

// Checkpointer is the persistence seam a graph factory is handed so that
// graphs constructed for the same thread share accumulated state across
// runs. The engine supplies one implementation per store backend.
type Checkpointer interface {
	Load(ctx context.Context, threadID string) (store.JSONMap, error)
	Save(ctx context.Context, threadID string, values store.JSONMap) error
}

// GraphDeps bundles the collaborators a GraphFactory needs to construct a
// graph instance. Checkpointer is supplied by the engine; factories must
// not construct their own.
type GraphDeps struct {
	Checkpointer Checkpointer
}

// GraphFactory builds a Graph bound to a specific assistant configuration.
// Registered once per graph_id at boot (see cmd/agentrt).
type GraphFactory func(configurable store.JSONMap, deps GraphDeps) (Graph, error)

// Registry maps graph_id to the factory that builds it.
type Registry struct {
	factories map[string]GraphFactory
}

// NewRegistry returns an empty graph registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]GraphFactory{}}
}

// Register binds graphID to factory, overwriting any prior registration.
func (r *Registry) Register(graphID string, factory GraphFactory) {
	r.factories[graphID] = factory
}

// Lookup returns the factory for graphID, or false if none is registered.
func (r *Registry) Lookup(graphID string) (GraphFactory, bool) {
	f, ok := r.factories[graphID]
	return f, ok
}

// GraphIDs returns every registered graph id.
func (r *Registry) GraphIDs() []string {
	out := make([]string, 0, len(r.factories))
	for id := range r.factories {
		out = append(out, id)
	}
	return out
}
