package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentrt/pkg/httpkit"
	"github.com/codeready-toolchain/agentrt/pkg/reqctx"
	"github.com/codeready-toolchain/agentrt/pkg/store"
	"github.com/codeready-toolchain/agentrt/pkg/version"
)

type handlers struct {
	deps Deps
}

func (h *handlers) root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"service": version.AppName})
}

func (h *handlers) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) info(c echo.Context) error {
	return c.JSON(http.StatusOK, version.Current())
}

func (h *handlers) openapi(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"openapi": "3.0.0",
		"info":    map[string]string{"title": version.AppName, "version": version.Current().Version},
		"paths":   map[string]any{},
	})
}

func (h *handlers) metricsJSON(c echo.Context) error {
	body, err := h.deps.Metrics.JSONSnapshot()
	if err != nil {
		return httpkit.Error(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSONBlob(http.StatusOK, body)
}

func owner(c echo.Context) string {
	return reqctx.OwnerFilter(c.Request().Context())
}

func token(c echo.Context) string {
	return reqctx.Token(c.Request().Context())
}

func bindJSONMap(c echo.Context) (store.JSONMap, error) {
	body := store.JSONMap{}
	if c.Request().ContentLength == 0 {
		return body, nil
	}
	dec := json.NewDecoder(c.Request().Body)
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}

func queryInt(c echo.Context, key string, def int) int {
	v := c.QueryParam(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func searchFiltersFromBody(body store.JSONMap) store.SearchFilters {
	f := store.SearchFilters{}
	if v, ok := store.AsJSONMap(body["metadata"]); ok {
		f.Metadata = v
	}
	if v, ok := body["graph_id"].(string); ok {
		f.GraphID = v
	}
	if v, ok := body["name"].(string); ok {
		f.NameLike = v
	}
	if v, ok := body["limit"].(float64); ok {
		f.Limit = int(v)
	}
	if v, ok := body["offset"].(float64); ok {
		f.Offset = int(v)
	}
	if v, ok := body["sort_by"].(string); ok {
		f.SortBy = v
	}
	if v, ok := body["sort_order"].(string); ok {
		f.SortOrder = v
	}
	f.ClampLimit()
	return f
}

func ifExistsFromBody(body store.JSONMap) store.IfExists {
	v, _ := body["if_exists"].(string)
	if v == string(store.IfExistsDoNothing) {
		return store.IfExistsDoNothing
	}
	return store.IfExistsRaise
}

// resolveAssistant looks up id directly; on miss, id is treated as a
// graph_id alias and the first matching assistant is returned instead (§4.5:
// "assistant_id may be either a UUID or a graph_id alias").
func resolveAssistant(ctx context.Context, assistants store.Assistants, id, ownerID string) (*store.Assistant, error) {
	a, err := assistants.Get(ctx, id, ownerID)
	if err == nil {
		return a, nil
	}
	if err != store.ErrNotFound {
		return nil, err
	}

	matches, searchErr := assistants.Search(ctx, store.SearchFilters{GraphID: id, Limit: 1}, ownerID)
	if searchErr != nil {
		return nil, searchErr
	}
	if len(matches) == 0 {
		return nil, store.ErrNotFound
	}
	return matches[0], nil
}

func mapStoreErr(c echo.Context, err error) error {
	switch err {
	case store.ErrNotFound:
		return httpkit.NotFound(c, "Not found")
	case store.ErrConflict:
		return httpkit.Conflict(c, "Resource already exists")
	default:
		return httpkit.Error(c, http.StatusInternalServerError, err.Error())
	}
}
