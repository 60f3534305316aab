package rpc

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentrt/pkg/engine"
	"github.com/codeready-toolchain/agentrt/pkg/reqctx"
	"github.com/codeready-toolchain/agentrt/pkg/store"
)

// RegisterA2A mounts the agent-to-agent JSON-RPC 2.0 surface at
// /a2a/:assistant_id (§4.9). It supports message/send, tasks/get and
// tasks/cancel; message/stream is a well-formed method this transport can't
// carry and returns CodeUnsupportedOperation rather than 404ing.
func RegisterA2A(e *echo.Echo, st store.Store, eng *engine.Engine, reg *engine.Registry) {
	e.POST("/a2a/:assistant_id", func(c echo.Context) error {
		assistantID := c.Param("assistant_id")

		var req Request
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusOK, ErrorResponse(nil, CodeParseError, "invalid JSON-RPC request", nil))
		}
		if req.JSONRPC != "2.0" || req.Method == "" {
			return c.JSON(http.StatusOK, ErrorResponse(req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\" and method is required", nil))
		}

		ctx := c.Request().Context()
		identity := reqctx.Identity(ctx)

		switch req.Method {
		case "message/send":
			return handleMessageSend(c, st, eng, assistantID, identity, req)
		case "tasks/get":
			return handleTasksGet(c, st, assistantID, identity, req)
		case "tasks/cancel":
			return handleTasksCancel(c, eng, st, assistantID, identity, req)
		case "message/stream":
			return c.JSON(http.StatusOK, ErrorResponse(req.ID, CodeUnsupportedOperation, "message/stream is not supported on the JSON-RPC transport; use the REST SSE run endpoint instead", nil))
		default:
			return c.JSON(http.StatusOK, ErrorResponse(req.ID, CodeMethodNotFound, "unknown method "+req.Method, nil))
		}
	})
}

func handleMessageSend(c echo.Context, st store.Store, eng *engine.Engine, assistantID, identity string, req Request) error {
	params, ok := store.AsJSONMap(req.Params)
	if !ok {
		return c.JSON(http.StatusOK, ErrorResponse(req.ID, CodeInvalidParams, "params must be an object", nil))
	}

	assistant, err := st.Assistants().Get(c.Request().Context(), assistantID, identity)
	if err != nil {
		return c.JSON(http.StatusOK, ErrorResponse(req.ID, CodeInvalidParams, err.Error(), nil))
	}

	threadID, _ := params["thread_id"].(string)
	if threadID == "" {
		thread, err := st.Threads().Create(c.Request().Context(), store.Thread{}, identity, store.IfExistsRaise)
		if err != nil {
			return c.JSON(http.StatusOK, ErrorResponse(req.ID, CodeInternalError, err.Error(), nil))
		}
		threadID = thread.ThreadID
	}

	input := engine.NormalizeInput(store.JSONMap{"messages": []any{params["message"]}})

	run, err := eng.CreateRun(c.Request().Context(), engine.CreateRunParams{
		ThreadID:          threadID,
		AssistantID:       assistant.AssistantID,
		Input:             input,
		MultitaskStrategy: store.MultitaskReject,
		Token:             reqctx.Token(c.Request().Context()),
	})
	if err != nil {
		if reject, ok := err.(*engine.ErrMultitaskReject); ok {
			return c.JSON(http.StatusOK, ErrorResponse(req.ID, CodeInvalidRequest, reject.Error(), map[string]any{"active_run_id": reject.ActiveRunID}))
		}
		return c.JSON(http.StatusOK, ErrorResponse(req.ID, CodeInternalError, err.Error(), nil))
	}

	finalRun, values, err := eng.Execute(c.Request().Context(), run, assistant, nil, input, reqctx.Token(c.Request().Context()))
	if err != nil {
		return c.JSON(http.StatusOK, ErrorResponse(req.ID, CodeInternalError, err.Error(), map[string]any{"run_id": run.RunID}))
	}

	return c.JSON(http.StatusOK, Result(req.ID, taskFromRun(finalRun, values)))
}

func handleTasksGet(c echo.Context, st store.Store, assistantID, identity string, req Request) error {
	params, ok := store.AsJSONMap(req.Params)
	if !ok {
		return c.JSON(http.StatusOK, ErrorResponse(req.ID, CodeInvalidParams, "params must be an object", nil))
	}
	runID, _ := params["task_id"].(string)
	threadID, _ := params["thread_id"].(string)
	if runID == "" || threadID == "" {
		return c.JSON(http.StatusOK, ErrorResponse(req.ID, CodeInvalidParams, "task_id and thread_id are required", nil))
	}

	run, err := st.Runs().GetByThread(c.Request().Context(), threadID, runID)
	if err != nil {
		return c.JSON(http.StatusOK, ErrorResponse(req.ID, CodeInvalidParams, err.Error(), nil))
	}

	var values store.JSONMap
	if run.Status == store.RunStatusSuccess {
		snap, err := st.Threads().GetState(c.Request().Context(), threadID)
		if err == nil {
			values = snap.Values
		}
	}
	return c.JSON(http.StatusOK, Result(req.ID, taskFromRun(run, values)))
}

func handleTasksCancel(c echo.Context, eng *engine.Engine, st store.Store, assistantID, identity string, req Request) error {
	params, ok := store.AsJSONMap(req.Params)
	if !ok {
		return c.JSON(http.StatusOK, ErrorResponse(req.ID, CodeInvalidParams, "params must be an object", nil))
	}
	runID, _ := params["task_id"].(string)
	if runID == "" {
		return c.JSON(http.StatusOK, ErrorResponse(req.ID, CodeInvalidParams, "task_id is required", nil))
	}

	run, err := eng.Cancel(c.Request().Context(), runID)
	if err != nil {
		return c.JSON(http.StatusOK, ErrorResponse(req.ID, CodeInvalidParams, err.Error(), nil))
	}
	return c.JSON(http.StatusOK, Result(req.ID, taskFromRun(run, nil)))
}

// taskFromRun maps a run onto the A2A task shape callers poll against.
func taskFromRun(run *store.Run, values store.JSONMap) map[string]any {
	task := map[string]any{
		"id":         run.RunID,
		"context_id": run.ThreadID,
		"status":     a2aStatus(run.Status),
		"created_at": run.CreatedAt.Format(time.RFC3339),
		"updated_at": run.UpdatedAt.Format(time.RFC3339),
	}
	if values != nil {
		task["result"] = values
	}
	return task
}

func a2aStatus(s store.RunStatus) string {
	switch s {
	case store.RunStatusPending:
		return "submitted"
	case store.RunStatusRunning:
		return "working"
	case store.RunStatusSuccess:
		return "completed"
	case store.RunStatusInterrupted:
		return "canceled"
	case store.RunStatusTimeout, store.RunStatusError:
		return "failed"
	default:
		return "unknown"
	}
}
