// Command agentrt boots the control-plane server (C11): load configuration,
// open storage (falling back to memory if Postgres is unreachable), wire the
// engine/agent-sync/cron subsystems, register the default graph, start the
// HTTP listener, and shut everything down cleanly on signal. Grounded on the
// teacher's cmd/*/main.go bootstrap shape: godotenv for local .env files,
// context-cancellation-driven shutdown, structured startup logging.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/agentrt/pkg/agentsync"
	"github.com/codeready-toolchain/agentrt/pkg/api"
	"github.com/codeready-toolchain/agentrt/pkg/config"
	"github.com/codeready-toolchain/agentrt/pkg/cronsched"
	"github.com/codeready-toolchain/agentrt/pkg/engine"
	"github.com/codeready-toolchain/agentrt/pkg/graphs"
	"github.com/codeready-toolchain/agentrt/pkg/metrics"
	"github.com/codeready-toolchain/agentrt/pkg/prompts"
	"github.com/codeready-toolchain/agentrt/pkg/store"
	"github.com/codeready-toolchain/agentrt/pkg/version"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("dotenv_load_failed", "error", err)
	}

	cfgPath := os.Getenv("AGENTRT_CONFIG_FILE")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("config_load_failed", "error", err)
		os.Exit(1)
	}

	logger.Info("starting", "build", version.Current().String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, storeCloser := openStore(ctx, cfg, logger)
	defer storeCloser()

	reg := engine.NewRegistry()
	reg.Register(graphs.EchoGraphID, graphs.NewEchoFactory(graphs.EchoGraphID))

	eng := engine.New(st, reg)
	metricsReg := metrics.NewRegistry()

	promptSource := func(ctx context.Context, name string) (string, error) {
		return "", errors.New("prompts: no prompt source configured for " + name)
	}
	promptReg := prompts.NewRegistry(promptSource, cfg.PromptTTL)

	scope, err := agentsync.ParseScope(cfg.AgentSyncScope)
	if err != nil {
		logger.Error("agent_sync_scope_invalid", "error", err)
		os.Exit(1)
	}
	catalog, catalogCloser := openCatalog(ctx, cfg, scope, logger)
	defer catalogCloser()

	sync := agentsync.New(catalog, nil, st, metricsReg, logger, scope, cfg.AgentSyncInterval)
	if scope.Kind != agentsync.ScopeNone {
		result, err := sync.Sync(ctx)
		if err != nil {
			logger.Warn("agent_sync_startup_failed", "error", err)
		} else {
			logger.Info("agent_sync_startup_complete", "created", result.Created, "updated", result.Updated, "skipped", result.Skipped)
		}
	}

	cron := cronsched.New(st, eng, metricsReg, logger, cfg.CronInterval)
	go cron.Run(ctx)

	var verifier api.Verifier
	if cfg.AuthSecret != "" {
		verifier = api.NewDefaultVerifier(cfg.AuthSecret)
	} else {
		logger.Warn("auth_disabled_no_secret_configured")
	}

	e := api.NewServer(api.Deps{
		Store:    st,
		Engine:   eng,
		Registry: reg,
		Metrics:  metricsReg,
		Prompts:  promptReg,
		Sync:     sync,
		Cron:     cron,
		Verifier: verifier,
		Logger:   logger,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: e}
	go func() {
		logger.Info("http_listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", "error", err)
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, func()) {
	if cfg.DatabaseURL == "" {
		logger.Info("store_backend", "backend", "memory")
		mem := store.NewMemoryStore()
		return mem, func() { _ = mem.Close() }
	}

	pg, err := store.OpenPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn("postgres_unreachable_falling_back_to_memory", "error", err)
		mem := store.NewMemoryStore()
		return mem, func() { _ = mem.Close() }
	}
	logger.Info("store_backend", "backend", "postgres")
	return pg, func() { _ = pg.Close() }
}

func openCatalog(ctx context.Context, cfg config.Config, scope agentsync.Scope, logger *slog.Logger) (agentsync.Catalog, func()) {
	if scope.Kind == agentsync.ScopeNone || cfg.DatabaseURL == "" {
		return agentsync.NoopCatalog{}, func() {}
	}

	cat, err := agentsync.OpenPGCatalog(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn("agent_catalog_unreachable", "error", err)
		return agentsync.NoopCatalog{}, func() {}
	}
	return cat, cat.Close
}
