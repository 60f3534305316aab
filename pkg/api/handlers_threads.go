package api

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentrt/pkg/httpkit"
	"github.com/codeready-toolchain/agentrt/pkg/store"
)

// registerThreadRoutes wires /threads. Fixed-path routes ("/search",
// "/count") are registered before the "/:thread_id" family for the same
// literal-before-wildcard reason as assistants.
func registerThreadRoutes(g *echo.Group, h *handlers) {
	g.POST("/threads", h.createThread)
	g.POST("/threads/search", h.searchThreads)
	g.POST("/threads/count", h.countThreads)
	g.GET("/threads/:thread_id", h.getThread)
	g.PATCH("/threads/:thread_id", h.updateThread)
	g.DELETE("/threads/:thread_id", h.deleteThread)

	g.GET("/threads/:thread_id/state", h.getThreadState)
	g.POST("/threads/:thread_id/state", h.addThreadState)
	g.GET("/threads/:thread_id/history", h.getThreadHistory)
	g.POST("/threads/:thread_id/history", h.getThreadHistory)

	registerRunSubRoutes(g, h)
}

func (h *handlers) createThread(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	t := store.Thread{
		ThreadID: stringOf(body["thread_id"]),
		Metadata: jsonMapOf(body["metadata"]),
		Config:   jsonMapOf(body["config"]),
	}
	created, err := h.deps.Store.Threads().Create(c.Request().Context(), t, owner(c), ifExistsFromBody(body))
	if err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.Created(c, created)
}

func (h *handlers) searchThreads(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	out, err := h.deps.Store.Threads().Search(c.Request().Context(), searchFiltersFromBody(body), owner(c))
	if err != nil {
		return mapStoreErr(c, err)
	}
	if out == nil {
		out = []*store.Thread{}
	}
	return httpkit.JSON(c, http.StatusOK, out)
}

func (h *handlers) countThreads(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	n, err := h.deps.Store.Threads().Count(c.Request().Context(), searchFiltersFromBody(body), owner(c))
	if err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.Count(c, n)
}

func (h *handlers) getThread(c echo.Context) error {
	t, err := h.deps.Store.Threads().Get(c.Request().Context(), c.Param("thread_id"), owner(c))
	if err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.JSON(c, http.StatusOK, t)
}

func (h *handlers) updateThread(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	t, err := h.deps.Store.Threads().Update(c.Request().Context(), c.Param("thread_id"), body, owner(c))
	if err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.JSON(c, http.StatusOK, t)
}

func (h *handlers) deleteThread(c echo.Context) error {
	if err := h.deps.Store.Threads().Delete(c.Request().Context(), c.Param("thread_id"), owner(c)); err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.Deleted(c)
}

// getThreadState is deliberately NOT owner-scoped: the thread ID itself is
// the access token for state/history reads, per §4.1's owner-semantics
// split between thread CRUD (owner-scoped) and thread state (not).
func (h *handlers) getThreadState(c echo.Context) error {
	snap, err := h.deps.Store.Threads().GetState(c.Request().Context(), c.Param("thread_id"))
	if err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.JSON(c, http.StatusOK, snap)
}

func (h *handlers) addThreadState(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	snap, err := h.deps.Store.Threads().AddStateSnapshot(c.Request().Context(), c.Param("thread_id"), body)
	if err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.JSON(c, http.StatusOK, snap)
}

func (h *handlers) getThreadHistory(c echo.Context) error {
	limit := queryInt(c, "limit", 10)
	before := c.QueryParam("before")
	if c.Request().Method == http.MethodPost {
		body, err := bindJSONMap(c)
		if err != nil {
			return httpkit.BadRequest(c, err.Error())
		}
		if v, ok := body["limit"].(float64); ok {
			limit = int(v)
		}
		if v, ok := body["before"].(string); ok {
			before = v
		}
	}
	hist, err := h.deps.Store.Threads().GetHistory(c.Request().Context(), c.Param("thread_id"), limit, before)
	if err != nil {
		return mapStoreErr(c, err)
	}
	if hist == nil {
		hist = []*store.StateSnapshot{}
	}
	return httpkit.JSON(c, http.StatusOK, hist)
}
