// Package graphs supplies one concrete GraphFactory so the runtime has
// something to execute out of the box. Real graph implementations
// (react-agent, research-agent, and friends) are explicitly out of scope for
// this core — §0 treats them as an external collaborator behind the
// GraphFactory contract — so this one stands in as the default "agent"
// graph: it appends the incoming message to history via the checkpointer and
// echoes it back, which is enough to exercise the full run lifecycle,
// multitask handling and SSE framing end to end without an LLM dependency.
package graphs

import (
	"context"
	"fmt"
	"time"

	"github.com/codeready-toolchain/agentrt/pkg/engine"
	"github.com/codeready-toolchain/agentrt/pkg/store"
)

// EchoGraphID is the graph_id this factory registers under.
const EchoGraphID = "agent"

// NewEchoFactory builds the default graph factory. graphID is closed over
// for the metadata it stamps on streamed message deltas, since the engine
// doesn't pass its own graph_id into configurable (§4.6 only injects
// run_id/thread_id/assistant_id/assistant there).
func NewEchoFactory(graphID string) engine.GraphFactory {
	return func(configurable store.JSONMap, deps engine.GraphDeps) (engine.Graph, error) {
		return &echoGraph{graphID: graphID, configurable: configurable, checkpointer: deps.Checkpointer}, nil
	}
}

type echoGraph struct {
	graphID      string
	configurable store.JSONMap
	checkpointer engine.Checkpointer
}

var _ engine.Graph = (*echoGraph)(nil)
var _ engine.StreamingGraph = (*echoGraph)(nil)

func (g *echoGraph) Invoke(ctx context.Context, input store.JSONMap, cfg engine.RunnableConfig) (store.JSONMap, error) {
	threadID, _ := cfg.Configurable["thread_id"].(string)

	prior, err := g.checkpointer.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}

	messages := appendMessages(prior, input)
	values := store.JSONMap{"messages": messages}

	if err := g.checkpointer.Save(ctx, threadID, values); err != nil {
		return nil, err
	}
	return values, nil
}

func (g *echoGraph) GetState(ctx context.Context, cfg engine.RunnableConfig) (store.JSONMap, error) {
	threadID, _ := cfg.Configurable["thread_id"].(string)
	return g.checkpointer.Load(ctx, threadID)
}

// InvokeStream emits a single messages delta carrying the echoed reply, then
// a values event with the same accumulated state Invoke produces.
func (g *echoGraph) InvokeStream(ctx context.Context, input store.JSONMap, cfg engine.RunnableConfig, emit func(kind string, delta store.JSONMap) error) (store.JSONMap, error) {
	assistantID, _ := cfg.Configurable["assistant_id"].(string)
	runID, _ := cfg.Configurable["run_id"].(string)
	threadID, _ := cfg.Configurable["thread_id"].(string)

	reply := store.JSONMap{
		"type":    "ai",
		"content": echoContent(input),
	}

	delta := store.JSONMap{
		"messages": []store.JSONMap{reply},
		"metadata": store.JSONMap{
			"graph_id":                g.graphID,
			"assistant_id":            assistantID,
			"run_id":                  runID,
			"thread_id":               threadID,
			"langgraph_node":          "model",
			"langgraph_step":          1,
			"langgraph_checkpoint_ns": "",
		},
	}
	if err := emit("messages", delta); err != nil {
		return nil, err
	}

	values, err := g.Invoke(ctx, input, cfg)
	if err != nil {
		return nil, err
	}
	if err := emit("values", values); err != nil {
		return nil, err
	}
	return values, nil
}

func echoContent(input store.JSONMap) string {
	if msgs, ok := input["messages"].([]any); ok && len(msgs) > 0 {
		if m, ok := store.AsJSONMap(msgs[len(msgs)-1]); ok {
			if content, ok := m["content"].(string); ok {
				return content
			}
		}
	}
	return fmt.Sprintf("received at %s", time.Now().UTC().Format(time.RFC3339))
}

func appendMessages(prior store.JSONMap, input store.JSONMap) []any {
	var history []any
	if prior != nil {
		if existing, ok := prior["messages"].([]any); ok {
			history = append(history, existing...)
		}
	}
	if incoming, ok := input["messages"].([]any); ok {
		history = append(history, incoming...)
	}
	history = append(history, map[string]any{
		"type":    "ai",
		"content": echoContent(input),
	})
	return history
}
