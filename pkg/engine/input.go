package engine

import (
	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentrt/pkg/store"
)

// NormalizeInput accepts the raw decoded value of a request body's "input"
// field and normalises it to the canonical {messages: [...]} shape (§4.6.4):
//
//   - a bare string is wrapped as a single human message;
//   - {messages: [...]} has each element normalised — a string element
//     becomes a human message, an object element is given a canonical
//     type (from "type", falling back to a mapped "role", defaulting to
//     "human") and a fresh id if one wasn't supplied;
//   - {input: "..."} is treated as the string case;
//   - nil, or a value that is neither a string nor a map, yields empty
//     input; a map with neither key is returned unchanged.
func NormalizeInput(raw any) store.JSONMap {
	switch v := raw.(type) {
	case nil:
		return store.JSONMap{}
	case string:
		return store.JSONMap{"messages": []any{humanMessage(v)}}
	case store.JSONMap:
		return normalizeInputMap(v)
	case map[string]any:
		return normalizeInputMap(store.JSONMap(v))
	default:
		return store.JSONMap{}
	}
}

func normalizeInputMap(m store.JSONMap) store.JSONMap {
	if m == nil {
		return store.JSONMap{}
	}
	if msgs, ok := m["messages"]; ok {
		return store.JSONMap{"messages": normalizeMessages(msgs)}
	}
	if s, ok := m["input"].(string); ok {
		return store.JSONMap{"messages": []any{humanMessage(s)}}
	}
	return m
}

func normalizeMessages(raw any) []any {
	arr, ok := raw.([]any)
	if !ok {
		return []any{}
	}
	out := make([]any, 0, len(arr))
	for _, item := range arr {
		switch m := item.(type) {
		case string:
			out = append(out, humanMessage(m))
		default:
			if obj, ok := store.AsJSONMap(item); ok {
				out = append(out, normalizeMessageObject(obj))
			}
		}
	}
	return out
}

func humanMessage(content string) store.JSONMap {
	return store.JSONMap{"type": "human", "content": content, "id": uuid.NewString()}
}

func normalizeMessageObject(m store.JSONMap) store.JSONMap {
	out := store.JSONMap{}
	for k, v := range m {
		out[k] = v
	}
	if t, ok := out["type"].(string); !ok || t == "" {
		if role, ok := out["role"].(string); ok {
			out["type"] = canonicalMessageType(role)
		} else {
			out["type"] = "human"
		}
	}
	if id, ok := out["id"].(string); !ok || id == "" {
		out["id"] = uuid.NewString()
	}
	return out
}

func canonicalMessageType(role string) string {
	switch role {
	case "user", "human":
		return "human"
	case "assistant", "ai":
		return "ai"
	default:
		return role
	}
}
