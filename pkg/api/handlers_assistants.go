package api

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentrt/pkg/httpkit"
	"github.com/codeready-toolchain/agentrt/pkg/store"
)

// registerAssistantRoutes wires /assistants in literal-before-wildcard
// order: "/assistants/search" and "/assistants/count" must be registered
// ahead of "/assistants/:assistant_id" or Echo would never reach them.
func registerAssistantRoutes(g *echo.Group, h *handlers) {
	g.POST("/assistants", h.createAssistant)
	g.POST("/assistants/search", h.searchAssistants)
	g.POST("/assistants/count", h.countAssistants)
	g.GET("/assistants/:assistant_id", h.getAssistant)
	g.PATCH("/assistants/:assistant_id", h.updateAssistant)
	g.DELETE("/assistants/:assistant_id", h.deleteAssistant)
}

func (h *handlers) createAssistant(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	a := store.Assistant{
		AssistantID: stringOf(body["assistant_id"]),
		GraphID:     stringOf(body["graph_id"]),
		Name:        stringOf(body["name"]),
		Description: stringOf(body["description"]),
		Config:      jsonMapOf(body["config"]),
		Context:     jsonMapOf(body["context"]),
		Metadata:    jsonMapOf(body["metadata"]),
	}
	created, err := h.deps.Store.Assistants().Create(c.Request().Context(), a, owner(c), ifExistsFromBody(body))
	if err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.Created(c, created)
}

func (h *handlers) searchAssistants(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	f := searchFiltersFromBody(body)
	out, err := h.deps.Store.Assistants().Search(c.Request().Context(), f, owner(c))
	if err != nil {
		return mapStoreErr(c, err)
	}
	if out == nil {
		out = []*store.Assistant{}
	}
	return httpkit.JSON(c, http.StatusOK, out)
}

func (h *handlers) countAssistants(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	f := searchFiltersFromBody(body)
	n, err := h.deps.Store.Assistants().Count(c.Request().Context(), f, owner(c))
	if err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.Count(c, n)
}

func (h *handlers) getAssistant(c echo.Context) error {
	a, err := resolveAssistant(c.Request().Context(), h.deps.Store.Assistants(), c.Param("assistant_id"), owner(c))
	if err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.JSON(c, http.StatusOK, a)
}

func (h *handlers) updateAssistant(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	a, err := h.deps.Store.Assistants().Update(c.Request().Context(), c.Param("assistant_id"), body, owner(c))
	if err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.JSON(c, http.StatusOK, a)
}

func (h *handlers) deleteAssistant(c echo.Context) error {
	if err := h.deps.Store.Assistants().Delete(c.Request().Context(), c.Param("assistant_id"), owner(c)); err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.Deleted(c)
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func jsonMapOf(v any) store.JSONMap {
	m, _ := store.AsJSONMap(v)
	if m == nil {
		return store.JSONMap{}
	}
	return m
}
