package rpc

import (
	"context"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentrt/pkg/engine"
	"github.com/codeready-toolchain/agentrt/pkg/reqctx"
	"github.com/codeready-toolchain/agentrt/pkg/store"
)

// InvokeAssistantParams is the input schema for the "invoke_assistant" MCP tool.
type InvokeAssistantParams struct {
	AssistantID string         `json:"assistant_id" jsonschema:"the assistant to invoke"`
	ThreadID    string         `json:"thread_id,omitempty" jsonschema:"existing thread id; a new thread is created when empty"`
	Input       map[string]any `json:"input" jsonschema:"graph input"`
}

// GetThreadStateParams is the input schema for the "get_thread_state" MCP tool.
type GetThreadStateParams struct {
	ThreadID string `json:"thread_id" jsonschema:"thread to read"`
}

// RegisterMCP mounts the Streamable HTTP MCP surface at /mcp, exposing the
// runtime's assistants as callable tools so any MCP client can drive a run
// the same way the REST surface does.
func RegisterMCP(e *echo.Echo, st store.Store, eng *engine.Engine, reg *engine.Registry) {
	getServer := func(r *http.Request) *mcpsdk.Server {
		server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "agentrt", Version: "1.0.0"}, nil)

		mcpsdk.AddTool(server, &mcpsdk.Tool{
			Name:        "invoke_assistant",
			Description: "Run an assistant synchronously and return its resulting state.",
		}, func(ctx context.Context, req *mcpsdk.CallToolRequest, params InvokeAssistantParams) (*mcpsdk.CallToolResult, any, error) {
			identity := reqctx.Identity(r.Context())
			ctx = reqctx.WithIdentity(ctx, identity)
			ctx = reqctx.WithToken(ctx, reqctx.Token(r.Context()))

			assistant, err := st.Assistants().Get(ctx, params.AssistantID, identity)
			if err != nil {
				return toolError(err), nil, nil
			}

			threadID := params.ThreadID
			if threadID == "" {
				thread, err := st.Threads().Create(ctx, store.Thread{}, identity, store.IfExistsRaise)
				if err != nil {
					return toolError(err), nil, nil
				}
				threadID = thread.ThreadID
			}

			input := engine.NormalizeInput(params.Input)

			run, err := eng.CreateRun(ctx, engine.CreateRunParams{
				ThreadID:          threadID,
				AssistantID:       assistant.AssistantID,
				Input:             input,
				MultitaskStrategy: store.MultitaskReject,
				Token:             reqctx.Token(ctx),
			})
			if err != nil {
				return toolError(err), nil, nil
			}

			_, values, err := eng.Execute(ctx, run, assistant, nil, input, reqctx.Token(ctx))
			if err != nil {
				return toolError(err), nil, nil
			}
			return nil, values, nil
		})

		mcpsdk.AddTool(server, &mcpsdk.Tool{
			Name:        "get_thread_state",
			Description: "Read a thread's current accumulated state.",
		}, func(ctx context.Context, req *mcpsdk.CallToolRequest, params GetThreadStateParams) (*mcpsdk.CallToolResult, any, error) {
			snap, err := st.Threads().GetState(ctx, params.ThreadID)
			if err != nil {
				return toolError(err), nil, nil
			}
			return nil, snap, nil
		})

		return server
	}

	handler := mcpsdk.NewStreamableHTTPHandler(getServer, nil)
	e.Any("/mcp", echo.WrapHandler(handler))
}

func toolError(err error) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
	}
}
