package main

import (
	"context"
	"fmt"

	"github.com/rakunlabs/into"
	"github.com/rakunlabs/logi"

	"github.com/rakunlabs/aasmw/internal/config"
	"github.com/rakunlabs/aasmw/internal/middleware"
	"github.com/rakunlabs/aasmw/internal/registry"
	"github.com/rakunlabs/aasmw/internal/registry/sqlstore"
	"github.com/rakunlabs/aasmw/internal/telemetry"
)

var (
	name    = "aasmw"
	version = "v0.0.0"
)

func main() {
	config.Service = name + "/" + version

	into.Init(run,
		into.WithLogger(logi.InitializeLog(logi.WithCaller(false))),
		into.WithMsgf("%s [%s]", name, version),
	)
}

// ///////////////////////////////////////////////////////////////////

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	counters, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}

	facade := middleware.New(config.Service, cfg.Server.BasePath)
	facade.SetCounters(counters)

	if cfg.Persistence.Enabled() {
		defaultConnector, err := sqlstore.New(ctx, "default", cfg.Persistence.SQLStoreConfig(), "")
		if err != nil {
			return fmt.Errorf("failed to open persistence backend: %w", err)
		}
		// A bare fallback connection point: any data model/connector
		// registered without its own connection info can still be added
		// against this ConnectionInfo by name "default" from host code
		// that builds on top of the facade.
		if err := facade.AddConnector(ctx, "default", defaultConnector, "", &registry.ConnectionInfo{
			DataModelName: "_default",
			ModelID:       "default",
		}); err != nil {
			return fmt.Errorf("failed to register persistence backend: %w", err)
		}
	}

	// Data models, connectors, and workflows are registered by the host
	// application that embeds this module (see pkg/aasfixtures for a
	// worked example); this entrypoint only starts the generated HTTP
	// surface for whatever has been registered so far.
	facade.GenerateConnectorEndpoints()
	facade.GenerateWorkflowEndpoints()

	if err := facade.Start(ctx, cfg.Server.Host, cfg.Server.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	facade.Shutdown(ctx)
	return nil
}
