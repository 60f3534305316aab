package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentrt/pkg/engine"
	"github.com/codeready-toolchain/agentrt/pkg/httpkit"
	"github.com/codeready-toolchain/agentrt/pkg/reqctx"
	"github.com/codeready-toolchain/agentrt/pkg/store"
)

// registerRunSubRoutes wires the /threads/:thread_id/runs family.
func registerRunSubRoutes(g *echo.Group, h *handlers) {
	g.POST("/threads/:thread_id/runs", h.createRun)
	g.POST("/threads/:thread_id/runs/stream", h.createRunStream)
	g.POST("/threads/:thread_id/runs/wait", h.createRunWait)
	g.GET("/threads/:thread_id/runs", h.listRuns)
	g.GET("/threads/:thread_id/runs/:run_id", h.getRun)
	g.DELETE("/threads/:thread_id/runs/:run_id", h.deleteRun)
	g.POST("/threads/:thread_id/runs/:run_id/cancel", h.cancelRun)
	g.GET("/threads/:thread_id/runs/:run_id/join", h.joinRun)
	g.GET("/threads/:thread_id/runs/:run_id/stream", h.joinRunStream)
}

// registerRunRoutes wires the thread-less background-run endpoints (plain
// and streaming), which create their own thread on the fly.
func registerRunRoutes(g *echo.Group, h *handlers) {
	g.POST("/runs", h.createBackgroundRun)
	g.POST("/runs/stream", h.createBackgroundRunStream)
}

func (h *handlers) loadAssistantForRun(c echo.Context, body store.JSONMap) (*store.Assistant, error) {
	assistantID := stringOf(body["assistant_id"])
	return resolveAssistant(c.Request().Context(), h.deps.Store.Assistants(), assistantID, owner(c))
}

func (h *handlers) createRun(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	threadID := c.Param("thread_id")
	assistant, err := h.loadAssistantForRun(c, body)
	if err != nil {
		return mapStoreErr(c, err)
	}

	run, err := h.deps.Engine.CreateRun(c.Request().Context(), engine.CreateRunParams{
		ThreadID:          threadID,
		AssistantID:       assistant.AssistantID,
		Input:             engine.NormalizeInput(body["input"]),
		Config:            jsonMapOf(body["config"]),
		Metadata:          jsonMapOf(body["metadata"]),
		MultitaskStrategy: store.MultitaskStrategy(stringOf(body["multitask_strategy"])),
		Token:             token(c),
	})
	if err != nil {
		if mt, ok := err.(*engine.ErrMultitaskReject); ok {
			return httpkit.Error(c, http.StatusConflict, mt.Error())
		}
		return mapStoreErr(c, err)
	}

	go func() {
		_, _, _ = h.deps.Engine.Execute(backgroundCtx(c), run, assistant, jsonMapOf(body["config"]), engine.NormalizeInput(body["input"]), token(c))
	}()

	return httpkit.Created(c, run)
}

func (h *handlers) createRunWait(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	threadID := c.Param("thread_id")
	assistant, err := h.loadAssistantForRun(c, body)
	if err != nil {
		return mapStoreErr(c, err)
	}
	run, err := h.deps.Engine.CreateRun(c.Request().Context(), engine.CreateRunParams{
		ThreadID:          threadID,
		AssistantID:       assistant.AssistantID,
		Input:             engine.NormalizeInput(body["input"]),
		Config:            jsonMapOf(body["config"]),
		Metadata:          jsonMapOf(body["metadata"]),
		MultitaskStrategy: store.MultitaskStrategy(stringOf(body["multitask_strategy"])),
		Token:             token(c),
	})
	if err != nil {
		if mt, ok := err.(*engine.ErrMultitaskReject); ok {
			return httpkit.Error(c, http.StatusConflict, mt.Error())
		}
		return mapStoreErr(c, err)
	}

	_, values, err := h.deps.Engine.Execute(c.Request().Context(), run, assistant, jsonMapOf(body["config"]), engine.NormalizeInput(body["input"]), token(c))
	if err != nil {
		return httpkit.Error(c, http.StatusInternalServerError, err.Error())
	}
	return httpkit.JSON(c, http.StatusOK, values)
}

func (h *handlers) createRunStream(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	threadID := c.Param("thread_id")
	assistant, err := h.loadAssistantForRun(c, body)
	if err != nil {
		return mapStoreErr(c, err)
	}
	run, err := h.deps.Engine.CreateRun(c.Request().Context(), engine.CreateRunParams{
		ThreadID:          threadID,
		AssistantID:       assistant.AssistantID,
		Input:             engine.NormalizeInput(body["input"]),
		Config:            jsonMapOf(body["config"]),
		Metadata:          jsonMapOf(body["metadata"]),
		MultitaskStrategy: store.MultitaskStrategy(stringOf(body["multitask_strategy"])),
		Token:             token(c),
	})
	if err != nil {
		if mt, ok := err.(*engine.ErrMultitaskReject); ok {
			return httpkit.Error(c, http.StatusConflict, mt.Error())
		}
		return mapStoreErr(c, err)
	}

	sse := httpkit.NewSSEWriter(c)
	return h.deps.Engine.ExecuteStream(c.Request().Context(), run, assistant, jsonMapOf(body["config"]), engine.NormalizeInput(body["input"]), token(c), sse)
}

func (h *handlers) createBackgroundRun(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	assistant, err := h.loadAssistantForRun(c, body)
	if err != nil {
		return mapStoreErr(c, err)
	}
	thread, err := h.deps.Store.Threads().Create(c.Request().Context(), store.Thread{}, owner(c), store.IfExistsRaise)
	if err != nil {
		return mapStoreErr(c, err)
	}
	strategy := store.MultitaskStrategy(stringOf(body["multitask_strategy"]))
	if strategy == "" {
		strategy = store.MultitaskEnqueue
	}
	run, err := h.deps.Engine.CreateRun(c.Request().Context(), engine.CreateRunParams{
		ThreadID:          thread.ThreadID,
		AssistantID:       assistant.AssistantID,
		Input:             engine.NormalizeInput(body["input"]),
		Config:            jsonMapOf(body["config"]),
		Metadata:          jsonMapOf(body["metadata"]),
		MultitaskStrategy: strategy,
		Token:             token(c),
	})
	if err != nil {
		return mapStoreErr(c, err)
	}
	go func() {
		_, _, _ = h.deps.Engine.Execute(backgroundCtx(c), run, assistant, jsonMapOf(body["config"]), engine.NormalizeInput(body["input"]), token(c))
	}()
	return httpkit.Created(c, run)
}

func (h *handlers) createBackgroundRunStream(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	assistant, err := h.loadAssistantForRun(c, body)
	if err != nil {
		return mapStoreErr(c, err)
	}
	thread, err := h.deps.Store.Threads().Create(c.Request().Context(), store.Thread{}, owner(c), store.IfExistsRaise)
	if err != nil {
		return mapStoreErr(c, err)
	}
	run, err := h.deps.Engine.CreateRun(c.Request().Context(), engine.CreateRunParams{
		ThreadID:    thread.ThreadID,
		AssistantID: assistant.AssistantID,
		Input:       engine.NormalizeInput(body["input"]),
		Config:      jsonMapOf(body["config"]),
		Metadata:    jsonMapOf(body["metadata"]),
		Token:       token(c),
	})
	if err != nil {
		return mapStoreErr(c, err)
	}
	sse := httpkit.NewSSEWriter(c)
	return h.deps.Engine.ExecuteStream(c.Request().Context(), run, assistant, jsonMapOf(body["config"]), engine.NormalizeInput(body["input"]), token(c), sse)
}

func (h *handlers) listRuns(c echo.Context) error {
	threadID := c.Param("thread_id")
	limit := queryInt(c, "limit", 10)
	offset := queryInt(c, "offset", 0)
	status := store.RunStatus(c.QueryParam("status"))
	runs, err := h.deps.Store.Runs().ListByThread(c.Request().Context(), threadID, limit, offset, status)
	if err != nil {
		return mapStoreErr(c, err)
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	return httpkit.JSON(c, http.StatusOK, runs)
}

func (h *handlers) getRun(c echo.Context) error {
	run, err := h.deps.Store.Runs().GetByThread(c.Request().Context(), c.Param("thread_id"), c.Param("run_id"))
	if err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.JSON(c, http.StatusOK, run)
}

func (h *handlers) deleteRun(c echo.Context) error {
	if err := h.deps.Store.Runs().DeleteByThread(c.Request().Context(), c.Param("thread_id"), c.Param("run_id")); err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.Deleted(c)
}

func (h *handlers) cancelRun(c echo.Context) error {
	run, err := h.deps.Engine.Cancel(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.JSON(c, http.StatusOK, run)
}

func (h *handlers) joinRun(c echo.Context) error {
	run, err := h.deps.Engine.Join(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.JSON(c, http.StatusOK, run)
}

func (h *handlers) joinRunStream(c echo.Context) error {
	sse := httpkit.NewSSEWriter(c)
	return h.deps.Engine.JoinStream(c.Request().Context(), c.Param("run_id"), sse)
}

// backgroundCtx detaches a context from the request lifecycle for
// fire-and-forget execution, but preserves the identity/token values the
// auth middleware stamped so multi-turn tool calls inside the graph still
// have the caller's credentials available.
func backgroundCtx(c echo.Context) context.Context {
	reqCtx := c.Request().Context()
	ctx := reqctx.WithIdentity(context.Background(), reqctx.Identity(reqCtx))
	return reqctx.WithToken(ctx, reqctx.Token(reqCtx))
}
