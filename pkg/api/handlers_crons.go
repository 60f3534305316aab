package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentrt/pkg/httpkit"
	"github.com/codeready-toolchain/agentrt/pkg/store"
)

// registerCronRoutes wires /runs/crons (§6). Fixed-path routes ("/search",
// "/count") are registered before the "/:cron_id" family for the usual
// literal-before-wildcard reason.
func registerCronRoutes(g *echo.Group, h *handlers) {
	g.POST("/runs/crons", h.createCron)
	g.POST("/runs/crons/search", h.searchCrons)
	g.POST("/runs/crons/count", h.countCrons)
	g.GET("/runs/crons/:cron_id", h.getCron)
	g.PATCH("/runs/crons/:cron_id", h.updateCron)
	g.DELETE("/runs/crons/:cron_id", h.deleteCron)
}

func (h *handlers) createCron(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	next := time.Now().UTC()
	if v, ok := body["next_run_date"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			next = parsed
		}
	}
	cr := store.Cron{
		Schedule:    stringOf(body["schedule"]),
		AssistantID: stringOf(body["assistant_id"]),
		ThreadID:    stringOf(body["thread_id"]),
		Payload:     jsonMapOf(body["payload"]),
		UserID:      owner(c),
		NextRunDate: next,
		Metadata:    jsonMapOf(body["metadata"]),
	}
	if cr.Metadata == nil {
		cr.Metadata = store.JSONMap{}
	}
	if owner(c) != "" {
		cr.Metadata["owner"] = owner(c)
	}
	created, err := h.deps.Store.Crons().Create(c.Request().Context(), cr)
	if err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.Created(c, created)
}

func (h *handlers) searchCrons(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	f := searchFiltersFromBody(body)
	crons, err := h.deps.Store.Crons().List(c.Request().Context(), owner(c), f)
	if err != nil {
		return mapStoreErr(c, err)
	}
	if crons == nil {
		crons = []*store.Cron{}
	}
	return httpkit.JSON(c, http.StatusOK, crons)
}

func (h *handlers) countCrons(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	n, err := h.deps.Store.Crons().Count(c.Request().Context(), owner(c), searchFiltersFromBody(body))
	if err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.Count(c, n)
}

func (h *handlers) getCron(c echo.Context) error {
	cr, err := h.deps.Store.Crons().Get(c.Request().Context(), c.Param("cron_id"), owner(c))
	if err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.JSON(c, http.StatusOK, cr)
}

func (h *handlers) updateCron(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	cr, err := h.deps.Store.Crons().Update(c.Request().Context(), c.Param("cron_id"), body, owner(c))
	if err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.JSON(c, http.StatusOK, cr)
}

func (h *handlers) deleteCron(c echo.Context) error {
	if err := h.deps.Store.Crons().Delete(c.Request().Context(), c.Param("cron_id"), owner(c)); err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.Deleted(c)
}
