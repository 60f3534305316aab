package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentrt/pkg/httpkit"
	"github.com/codeready-toolchain/agentrt/pkg/store"
)

// Engine owns run execution: building runnable config, invoking the graph,
// reading state back, and persisting the result. It never persists
// checkpoints itself — that's the graph's own concern via the Checkpointer
// handed to its factory — but it IS responsible for reading the
// checkpointer-accumulated state back after every run and mirroring it onto
// the thread, which is what makes multi-turn history show up on
// thread.values instead of only inside the graph's own checkpoint store.
type Engine struct {
	store    store.Store
	registry *Registry

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New builds an Engine bound to st and reg.
func New(st store.Store, reg *Registry) *Engine {
	return &Engine{store: st, registry: reg, cancels: map[string]context.CancelFunc{}}
}

// CreateRunParams bundles the inputs a create-run request carries.
type CreateRunParams struct {
	ThreadID          string
	AssistantID       string
	Input             store.JSONMap
	Config            store.JSONMap
	Metadata          store.JSONMap
	MultitaskStrategy store.MultitaskStrategy
	Token             string
}

// CreateRun resolves multitask conflicts against the thread's current
// active run, then records a new pending Run. It does not execute the
// graph — callers invoke Execute or ExecuteStream afterward.
func (e *Engine) CreateRun(ctx context.Context, p CreateRunParams) (*store.Run, error) {
	strategy := p.MultitaskStrategy
	if strategy == "" {
		strategy = store.MultitaskReject
	}
	if err := ResolveMultitask(ctx, e.store.Runs(), p.ThreadID, strategy); err != nil {
		return nil, err
	}

	meta := p.Metadata
	if meta == nil {
		meta = store.JSONMap{}
	}
	kwargs := store.JSONMap{"input": p.Input, "config": p.Config}

	run, err := e.store.Runs().Create(ctx, store.Run{
		ThreadID:          p.ThreadID,
		AssistantID:       p.AssistantID,
		Status:            store.RunStatusPending,
		Metadata:          meta,
		Kwargs:            kwargs,
		MultitaskStrategy: strategy,
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Execute runs the graph synchronously to completion: builds the runnable
// config, invokes the graph, reads its state back, persists a new snapshot,
// and mirrors thread.values — then marks the run terminal.
func (e *Engine) Execute(ctx context.Context, run *store.Run, assistant *store.Assistant, runConfig store.JSONMap, input store.JSONMap, token string) (*store.Run, store.JSONMap, error) {
	factory, ok := e.registry.Lookup(assistant.GraphID)
	if !ok {
		return e.fail(ctx, run, fmt.Errorf("no graph registered for graph_id %q", assistant.GraphID))
	}

	runConfigurable, _ := store.AsJSONMap(runConfig["configurable"])
	assistantConfigurable, _ := store.AsJSONMap(assistant.Config["configurable"])
	cfg, err := BuildRunnableConfig(assistantConfigurable, runConfigurable, run.RunID, run.ThreadID, assistant.AssistantID, assistant, token)
	if err != nil {
		return e.fail(ctx, run, err)
	}

	ckpt := NewStoreCheckpointer(e.store.Threads())
	graph, err := factory(cfg.Configurable, GraphDeps{Checkpointer: ckpt})
	if err != nil {
		return e.fail(ctx, run, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.registerCancel(run.RunID, cancel)
	defer e.clearCancel(run.RunID)

	if _, err := e.store.Runs().UpdateStatus(ctx, run.RunID, store.RunStatusRunning); err != nil {
		return e.fail(ctx, run, err)
	}

	if _, err := graph.Invoke(runCtx, input, cfg); err != nil {
		if runCtx.Err() == context.Canceled {
			return e.interrupt(ctx, run)
		}
		return e.fail(ctx, run, err)
	}

	values, err := graph.GetState(ctx, cfg)
	if err != nil {
		return e.fail(ctx, run, err)
	}
	if _, err := e.store.Threads().AddStateSnapshot(ctx, run.ThreadID, store.JSONMap{"values": values}); err != nil {
		return e.fail(ctx, run, err)
	}

	finalRun, err := e.store.Runs().UpdateStatus(ctx, run.RunID, store.RunStatusSuccess)
	if err != nil {
		return nil, nil, err
	}
	return finalRun, values, nil
}

// ExecuteStream mirrors Execute but frames SSE events as it goes: metadata
// first, then values/messages/updates as the graph progresses, and a final
// end event. It delegates the streaming increments to the graph when it
// implements StreamingGraph, falling back to a single values+end sequence.
func (e *Engine) ExecuteStream(ctx context.Context, run *store.Run, assistant *store.Assistant, runConfig, input store.JSONMap, token string, sse *httpkit.SSEWriter) error {
	factory, ok := e.registry.Lookup(assistant.GraphID)
	if !ok {
		sse.SendError(fmt.Sprintf("no graph registered for graph_id %q", assistant.GraphID))
		_, _, _ = e.fail(ctx, run, fmt.Errorf("no graph registered"))
		return sse.End()
	}

	runConfigurable, _ := store.AsJSONMap(runConfig["configurable"])
	assistantConfigurable, _ := store.AsJSONMap(assistant.Config["configurable"])
	cfg, err := BuildRunnableConfig(assistantConfigurable, runConfigurable, run.RunID, run.ThreadID, assistant.AssistantID, assistant, token)
	if err != nil {
		sse.SendError(err.Error())
		return sse.End()
	}

	if err := sse.Send(httpkit.SSEMetadata, store.JSONMap{"run_id": run.RunID, "thread_id": run.ThreadID}); err != nil {
		return err
	}

	ckpt := NewStoreCheckpointer(e.store.Threads())
	graph, err := factory(cfg.Configurable, GraphDeps{Checkpointer: ckpt})
	if err != nil {
		sse.SendError(err.Error())
		_, _, _ = e.fail(ctx, run, err)
		return sse.End()
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.registerCancel(run.RunID, cancel)
	defer e.clearCancel(run.RunID)

	if _, err := e.store.Runs().UpdateStatus(ctx, run.RunID, store.RunStatusRunning); err != nil {
		sse.SendError(err.Error())
		return sse.End()
	}

	var values store.JSONMap
	if streaming, ok := graph.(StreamingGraph); ok {
		emit := func(kind string, delta store.JSONMap) error {
			return sse.Send(httpkit.SSEEventKind(kind), delta)
		}
		values, err = streaming.InvokeStream(runCtx, input, cfg, emit)
	} else {
		_, err = graph.Invoke(runCtx, input, cfg)
		if err == nil {
			values, err = graph.GetState(ctx, cfg)
			if err == nil {
				_ = sse.Send(httpkit.SSEValues, values)
			}
		}
	}

	if err != nil {
		if runCtx.Err() == context.Canceled {
			_, _, _ = e.interrupt(ctx, run)
			sse.SendError("run interrupted")
			return sse.End()
		}
		sse.SendError(err.Error())
		_, _, _ = e.fail(ctx, run, err)
		return sse.End()
	}

	if values == nil {
		values, err = graph.GetState(ctx, cfg)
		if err != nil {
			sse.SendError(err.Error())
			_, _, _ = e.fail(ctx, run, err)
			return sse.End()
		}
	}
	if _, err := e.store.Threads().AddStateSnapshot(ctx, run.ThreadID, store.JSONMap{"values": values}); err != nil {
		sse.SendError(err.Error())
		return sse.End()
	}
	if _, err := e.store.Runs().UpdateStatus(ctx, run.RunID, store.RunStatusSuccess); err != nil {
		sse.SendError(err.Error())
		return sse.End()
	}
	return sse.End()
}

func (e *Engine) fail(ctx context.Context, run *store.Run, cause error) (*store.Run, store.JSONMap, error) {
	_, _ = e.store.Runs().UpdateStatus(ctx, run.RunID, store.RunStatusError)
	return nil, nil, cause
}

func (e *Engine) interrupt(ctx context.Context, run *store.Run) (*store.Run, store.JSONMap, error) {
	r, err := e.store.Runs().UpdateStatus(ctx, run.RunID, store.RunStatusInterrupted)
	return r, nil, err
}

// Join blocks until the run reaches a terminal status or ctx is done,
// polling the store at a short fixed interval (grounded on the teacher's
// queue pool wait pattern, which polls worker completion the same way).
func (e *Engine) Join(ctx context.Context, runID string) (*store.Run, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		run, err := e.store.Runs().Get(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run.Status.Terminal() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// JoinStream re-attaches to a run already in flight (or already finished) and
// frames the same terminal SSE sequence ExecuteStream would have produced,
// for a client that reconnects after a disconnect (§6: GET .../runs/:id/stream).
// This process does not keep the original invocation's intermediate deltas
// around, so a reattach after the run has gone terminal replays only the
// final metadata/values/end frames rather than the messages the first caller
// saw as they arrived.
func (e *Engine) JoinStream(ctx context.Context, runID string, sse *httpkit.SSEWriter) error {
	run, err := e.Join(ctx, runID)
	if err != nil {
		sse.SendError(err.Error())
		return sse.End()
	}
	if err := sse.Send(httpkit.SSEMetadata, store.JSONMap{"run_id": run.RunID, "thread_id": run.ThreadID}); err != nil {
		return err
	}
	if run.Status == store.RunStatusSuccess {
		snap, err := e.store.Threads().GetState(ctx, run.ThreadID)
		if err != nil {
			sse.SendError(err.Error())
			return sse.End()
		}
		if err := sse.Send(httpkit.SSEValues, snap.Values); err != nil {
			return err
		}
	} else if run.Status == store.RunStatusError || run.Status == store.RunStatusTimeout {
		_ = sse.SendError("run ended with status " + string(run.Status))
	}
	return sse.End()
}

// Cancel stops an in-flight run, if this process is the one running it, and
// marks it interrupted. If no cancel func is registered (e.g. the run is
// owned by a different process, or already finished) it still marks the
// run interrupted when non-terminal.
func (e *Engine) Cancel(ctx context.Context, runID string) (*store.Run, error) {
	e.mu.Lock()
	cancel, ok := e.cancels[runID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	run, err := e.store.Runs().Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return run, nil
	}
	return e.store.Runs().UpdateStatus(ctx, runID, store.RunStatusInterrupted)
}

func (e *Engine) registerCancel(runID string, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels[runID] = cancel
}

func (e *Engine) clearCancel(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cancels, runID)
}

// NewRunID mints a fresh run id for callers that need one before the store
// assigns one.
func NewRunID() string { return uuid.NewString() }
