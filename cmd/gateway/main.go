// Command gateway boots a federation Manager from a catalog file, mounts
// the re-exporter on a Streamable HTTP endpoint, and serves until an
// interrupt or SIGTERM asks it to shut down.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpgateway "github.com/mcpfederation/gateway/pkg/mcp-gateway"
	"github.com/mcpfederation/gateway/pkg/mcpmgr"

	"github.com/mcpfederation/gateway/internal/catalogfile"
)

func main() {
	logger := slog.Default()

	authToken := os.Getenv("MCP_SERVER_AUTH_TOKEN")
	if authToken == "" {
		logger.Error("MCP_SERVER_AUTH_TOKEN is required and was not set")
		os.Exit(1)
	}

	catalogPath := os.Getenv("MCP_CATALOG_FILE")
	basePath := os.Getenv("MCP_BASE_PATH")
	if basePath == "" {
		if wd, err := os.Getwd(); err == nil {
			basePath = wd
		}
	}
	addr := os.Getenv("MCP_GATEWAY_ADDR")
	if addr == "" {
		addr = ":8700"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	raw, err := catalogfile.Resolve(catalogPath, logger)
	if err != nil {
		logger.Error("resolving catalog", "err", err)
		os.Exit(1)
	}

	defaults := mcpmgr.ManagerDefaults{}
	loader := mcpmgr.NewLoader(defaults)
	loader.BasePath = basePath

	params, err := loader.Load(raw)
	if err != nil {
		logger.Error("parsing catalog", "err", err)
		os.Exit(1)
	}

	manager := mcpmgr.NewManager(defaults, logger)
	manager.LoadCatalog(params)

	initCtx, cancelInit := context.WithTimeout(ctx, 2*time.Minute)
	summary := manager.Initialize(initCtx)
	cancelInit()

	logger.Info("manager initialized",
		"ready", summary.Ready,
		"failed", summary.Failed,
		"disabled", summary.Disabled,
		"duration", summary.Duration,
	)

	gateway, err := mcpgateway.NewGateway(manager, &mcpgateway.Options{
		Addr:        addr,
		Path:        "/mcp",
		AuthToken:   authToken,
		CatalogPath: catalogPath,
		BasePath:    basePath,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("building gateway", "err", err)
		os.Exit(1)
	}

	logger.Info("gateway listening", "addr", addr, "path", "/mcp")
	if err := gateway.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("gateway stopped", "err", err)
		os.Exit(1)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("manager shutdown", "err", err)
	}
}
