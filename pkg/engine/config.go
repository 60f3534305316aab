package engine

import (
	"dario.cat/mergo"

	"github.com/codeready-toolchain/agentrt/pkg/store"
)

// bearerTokenKey is the well-known configurable key the engine stamps the
// caller's bearer token under, so tool calls inside the graph (MCP
// fan-out, RAG lookups) can perform token exchange.
const bearerTokenKey = "langgraph_auth_user_token"

// RunnableConfig is what gets handed to a Graph's Invoke/GetState calls.
// Configurable is assembled by BuildRunnableConfig; callers must never set
// checkpoint_ns on it — per spec this key is reserved for the graph's own
// checkpointer and engine-injected values must not clobber it.
type RunnableConfig struct {
	Configurable store.JSONMap
}

// BuildRunnableConfig merges configuration in the documented precedence
// order, lowest first: assistant config.configurable, then run
// config.configurable, then engine-owned runtime metadata (which always
// wins), with the bearer token layered in last under its well-known key.
//
// checkpoint_ns is stripped from every input layer — the engine must never
// inject or forward it, regardless of what a caller supplied.
func BuildRunnableConfig(assistantConfigurable, runConfigurable store.JSONMap, runID, threadID, assistantID string, assistant *store.Assistant, token string) (RunnableConfig, error) {
	merged := store.JSONMap{}

	if err := mergo.Merge(&merged, cloneWithoutCheckpointNS(assistantConfigurable)); err != nil {
		return RunnableConfig{}, err
	}
	if err := mergo.Merge(&merged, cloneWithoutCheckpointNS(runConfigurable), mergo.WithOverride); err != nil {
		return RunnableConfig{}, err
	}

	runtime := store.JSONMap{
		"run_id":    runID,
		"thread_id": threadID,
	}
	if assistantID != "" {
		runtime["assistant_id"] = assistantID
	}
	if assistant != nil {
		runtime["assistant"] = assistant
	}
	if err := mergo.Merge(&merged, runtime, mergo.WithOverride); err != nil {
		return RunnableConfig{}, err
	}

	if token != "" {
		merged[bearerTokenKey] = token
	}
	delete(merged, "checkpoint_ns")

	return RunnableConfig{Configurable: merged}, nil
}

func cloneWithoutCheckpointNS(m store.JSONMap) store.JSONMap {
	out := store.JSONMap{}
	for k, v := range m {
		if k == "checkpoint_ns" {
			continue
		}
		out[k] = v
	}
	return out
}
