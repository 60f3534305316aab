package api

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentrt/pkg/httpkit"
	"github.com/codeready-toolchain/agentrt/pkg/store"
)

// registerStoreRoutes wires the cross-thread key-value store (§4.5).
func registerStoreRoutes(g *echo.Group, h *handlers) {
	g.GET("/store/namespaces", h.listNamespaces)
	g.PUT("/store/items", h.putStoreItem)
	g.POST("/store/items/search", h.searchStoreItems)
	g.GET("/store/items", h.getStoreItem)
	g.DELETE("/store/items", h.deleteStoreItem)
}

func (h *handlers) putStoreItem(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	namespace := stringOf(body["namespace"])
	key := stringOf(body["key"])
	item, err := h.deps.Store.StoreItems().Put(c.Request().Context(), namespace, key, jsonMapOf(body["value"]), owner(c), jsonMapOf(body["metadata"]))
	if err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.JSON(c, http.StatusOK, item)
}

func (h *handlers) getStoreItem(c echo.Context) error {
	namespace := c.QueryParam("namespace")
	key := c.QueryParam("key")
	item, err := h.deps.Store.StoreItems().Get(c.Request().Context(), namespace, key, owner(c))
	if err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.JSON(c, http.StatusOK, item)
}

func (h *handlers) deleteStoreItem(c echo.Context) error {
	namespace := c.QueryParam("namespace")
	key := c.QueryParam("key")
	if err := h.deps.Store.StoreItems().Delete(c.Request().Context(), namespace, key, owner(c)); err != nil {
		return mapStoreErr(c, err)
	}
	return httpkit.Deleted(c)
}

func (h *handlers) searchStoreItems(c echo.Context) error {
	body, err := bindJSONMap(c)
	if err != nil {
		return httpkit.BadRequest(c, err.Error())
	}
	namespace := stringOf(body["namespace"])
	prefix := stringOf(body["prefix"])
	limit, offset := 10, 0
	if v, ok := body["limit"].(float64); ok {
		limit = int(v)
	}
	if v, ok := body["offset"].(float64); ok {
		offset = int(v)
	}
	items, err := h.deps.Store.StoreItems().Search(c.Request().Context(), namespace, owner(c), prefix, limit, offset)
	if err != nil {
		return mapStoreErr(c, err)
	}
	if items == nil {
		items = []*store.StoreItem{}
	}
	return httpkit.JSON(c, http.StatusOK, items)
}

func (h *handlers) listNamespaces(c echo.Context) error {
	namespaces, err := h.deps.Store.StoreItems().ListNamespaces(c.Request().Context(), owner(c))
	if err != nil {
		return mapStoreErr(c, err)
	}
	if namespaces == nil {
		namespaces = []string{}
	}
	return httpkit.JSON(c, http.StatusOK, namespaces)
}
