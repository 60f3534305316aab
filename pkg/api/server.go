// Package api implements the HTTP surface (§4.4, §4.5): route registration
// in literal-before-wildcard order, auth/instrumentation middleware, and
// the REST handlers for assistants, threads, the cross-thread store and
// crons. Grounded on the teacher's pkg/api/server.go, which builds an Echo
// v5 instance the same way.
package api

import (
	"log/slog"

	"github.com/labstack/echo/v5"
	echomw "github.com/labstack/echo/v5/middleware"

	"github.com/codeready-toolchain/agentrt/pkg/agentsync"
	"github.com/codeready-toolchain/agentrt/pkg/cronsched"
	"github.com/codeready-toolchain/agentrt/pkg/engine"
	"github.com/codeready-toolchain/agentrt/pkg/metrics"
	"github.com/codeready-toolchain/agentrt/pkg/prompts"
	"github.com/codeready-toolchain/agentrt/pkg/rpc"
	"github.com/codeready-toolchain/agentrt/pkg/store"
)

// Deps bundles every collaborator the HTTP surface needs.
type Deps struct {
	Store    store.Store
	Engine   *engine.Engine
	Registry *engine.Registry
	Metrics  *metrics.Registry
	Prompts  *prompts.Registry
	Sync     *agentsync.Reconciler
	Cron     *cronsched.Scheduler
	Verifier Verifier // nil disables auth
	Logger   *slog.Logger
}

// NewServer builds an Echo instance with every route registered. Route
// registration order matters: Echo (like the reference LangGraph server)
// matches literal segments before wildcard/param segments only when more
// specific routes are added first, so fixed-path routes such as
// "/threads/search" are registered ahead of the "/threads/:thread_id"
// family they would otherwise be shadowed by.
func NewServer(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(requestLogger(d.Logger))
	e.Use(instrumentationMiddleware(d.Metrics))

	h := &handlers{deps: d}

	authed := e.Group("", authMiddleware(d.Verifier))

	registerAssistantRoutes(authed, h)
	registerThreadRoutes(authed, h)
	registerStoreRoutes(authed, h)
	registerCronRoutes(authed, h)
	registerRunRoutes(authed, h)

	rpc.RegisterMCP(e, d.Store, d.Engine, d.Registry)
	rpc.RegisterA2A(e, d.Store, d.Engine, d.Registry)

	e.GET("/", h.root)
	e.GET("/health", h.health)
	e.GET("/ok", h.health)
	e.GET("/info", h.info)
	e.GET("/openapi.json", h.openapi)
	e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	e.GET("/metrics/json", h.metricsJSON)

	return e
}
