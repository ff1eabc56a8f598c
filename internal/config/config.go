package config

import (
	"context"
	"fmt"
	"log/slog"

	_ "github.com/rakunlabs/chu/loader/external/loaderconsul"
	_ "github.com/rakunlabs/chu/loader/external/loadervault"
	"github.com/rakunlabs/chu/loader/loaderenv"
	"github.com/rakunlabs/logi"

	"github.com/rakunlabs/chu"
	"github.com/rakunlabs/tell"

	"github.com/rakunlabs/aasmw/internal/registry/sqlstore"
)

var Service = ""

type Config struct {
	LogLevel string `cfg:"log_level,no_prefix" default:"info"`

	// Server configures the generated HTTP API: REST routes per data
	// model, the single GraphQL endpoint, connector endpoints, and
	// workflow endpoints, all mounted under BasePath.
	Server Server `cfg:"server"`

	// Persistence configures the reference SQL-backed persistence
	// connector (internal/registry/sqlstore). Left with an empty
	// Datasource, no data model is auto-persisted to SQL; callers can
	// still register in-memory or external connectors by hand via the
	// Middleware Facade.
	Persistence Persistence `cfg:"persistence"`

	Telemetry tell.Config `cfg:"telemetry,noprefix"`
}

type Server struct {
	BasePath string `cfg:"base_path" default:"/api/v1"`

	Port string `cfg:"port" default:"8080"`
	Host string `cfg:"host"`
}

// Persistence mirrors sqlstore.Config with string-typed config-loader
// fields, so the dialect can be selected from env/file config before the
// connector is dialed up in cmd/aasmw.
type Persistence struct {
	// Dialect selects the backing store: "sqlite" or "postgres". Empty
	// disables the reference SQL connector entirely.
	Dialect string `cfg:"dialect"`

	// Datasource is the driver-specific DSN (a file path for sqlite, a
	// connection string for postgres).
	Datasource string `cfg:"datasource" log:"-"`

	// TablePrefix names the entities/migrations tables, defaulting to
	// sqlstore.DefaultTablePrefix when empty.
	TablePrefix string `cfg:"table_prefix"`

	// EncryptionKey, if set, enables AES-256-GCM encryption of every
	// stored entity value (internal/crypto). Any non-empty string
	// works; it is hashed to a 32-byte key internally.
	EncryptionKey string `cfg:"encryption_key" log:"-"`
}

// SQLStoreConfig adapts Persistence into the shape sqlstore.New expects.
func (p Persistence) SQLStoreConfig() sqlstore.Config {
	return sqlstore.Config{
		Dialect:       sqlstore.Dialect(p.Dialect),
		Datasource:    p.Datasource,
		TablePrefix:   p.TablePrefix,
		EncryptionKey: p.EncryptionKey,
	}
}

// Enabled reports whether a SQL persistence backend was configured.
func (p Persistence) Enabled() bool {
	return p.Dialect != "" && p.Datasource != ""
}

func Load(ctx context.Context, path string) (*Config, error) {
	var cfg Config
	if err := chu.Load(ctx, path, &cfg, chu.WithLoaderOption(loaderenv.New(loaderenv.WithPrefix("AASMW_")))); err != nil {
		return nil, err
	}

	if err := logi.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("set log level %s: %w", cfg.LogLevel, err)
	}

	slog.Info("loaded configuration", "config", chu.MarshalMap(cfg))

	return &cfg, nil
}
