// Package sqlstore implements a Provider+Consumer persistence connector
// backed by a single key/value table, for either SQLite or Postgres.
// Grounded on the teacher's sqlite3/postgres store pair
// (internal/store/sqlite3/sqlite3.go, internal/store/postgres/postgres.go):
// same sql.Open + goqu.Database wiring, same muz-driven migration step
// before the pool opens, same WAL/foreign-key pragmas for the SQLite case.
// Generalized from many hand-written domain tables to one generic
// entity-value table, since the data model's shapes are user-defined.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/rakunlabs/muz"

	"github.com/rakunlabs/aasmw/internal/apperr"
	"github.com/rakunlabs/aasmw/internal/crypto"
)

//go:embed migrations/*
var migrationFS embed.FS

// Dialect selects the SQL driver/dialect pair.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Config configures the underlying connection pool and table naming.
type Config struct {
	Dialect     Dialect
	Datasource  string
	TablePrefix string

	// EncryptionKey, if set, enables AES-256-GCM encryption (via
	// internal/crypto) of every stored entity value. Any non-empty
	// string works; it is hashed to a 32-byte key with crypto.DeriveKey.
	// When empty, values are stored as plain JSON.
	EncryptionKey string
}

var DefaultTablePrefix = "aasmw_"

// Connector is a Provider+Consumer persistence connector backed by a
// goqu-managed SQL table of (key, value, created_at, updated_at) rows.
type Connector struct {
	name string
	cfg  Config
	key  []byte

	db    *sql.DB
	goqu  *goqu.Database
	table exp.IdentifierExpression
}

// New opens the connection, runs migrations via muz, and returns a ready
// Connector. dataModelName is only logged: rows are keyed by key alone, so
// data models that share one table share one key space.
func New(ctx context.Context, name string, cfg Config, dataModelName string) (*Connector, error) {
	if cfg.Datasource == "" {
		return nil, errors.New("sqlstore: datasource is required")
	}
	tablePrefix := cfg.TablePrefix
	if tablePrefix == "" {
		tablePrefix = DefaultTablePrefix
	}

	driverName, dialect := driverAndDialect(cfg.Dialect)

	if err := migrate(ctx, driverName, cfg, tablePrefix); err != nil {
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}

	db, err := sql.Open(driverName, cfg.Datasource)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driverName, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping: %w", err)
	}

	if cfg.Dialect == SQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlstore: set WAL mode: %w", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlstore: enable foreign keys: %w", err)
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetConnMaxLifetime(15 * time.Minute)
		db.SetMaxIdleConns(3)
		db.SetMaxOpenConns(3)
	}

	slog.Info("sqlstore: connected", "dialect", cfg.Dialect, "data_model", dataModelName)

	var key []byte
	if cfg.EncryptionKey != "" {
		key, err = crypto.DeriveKey(cfg.EncryptionKey)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlstore: derive encryption key: %w", err)
		}
	}

	return &Connector{
		name:  name,
		cfg:   cfg,
		key:   key,
		db:    db,
		goqu:  goqu.New(dialect, db),
		table: goqu.T(tablePrefix + "entities"),
	}, nil
}

func driverAndDialect(d Dialect) (driver, dialect string) {
	if d == Postgres {
		return "pgx", "postgres"
	}
	return "sqlite", "sqlite3"
}

func migrate(ctx context.Context, driverName string, cfg Config, tablePrefix string) error {
	db, err := sql.Open(driverName, cfg.Datasource)
	if err != nil {
		return fmt.Errorf("open for migration: %w", err)
	}
	defer db.Close()

	m := muz.Migrate{
		Path:      migrationsPath(cfg.Dialect),
		FS:        migrationFS,
		Extension: ".sql",
		Values:    map[string]string{"TABLE_PREFIX": tablePrefix},
	}

	var driver muz.Driver
	if cfg.Dialect == Postgres {
		driver = muz.NewPostgresDriver(db, tablePrefix+"migrations", slog.Default())
	} else {
		driver = muz.NewSQLiteDriver(db, tablePrefix+"migrations", slog.Default())
	}

	return m.Migrate(ctx, driver)
}

func migrationsPath(d Dialect) string {
	if d == Postgres {
		return "migrations/postgres"
	}
	return "migrations/sqlite"
}

func (c *Connector) Name() string { return c.name }

func (c *Connector) Connect(_ context.Context) error { return nil }

func (c *Connector) Disconnect(_ context.Context) error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

type entityRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

func (c *Connector) Provide(ctx context.Context, key string) (any, error) {
	query, _, err := c.goqu.From(c.table).Select("key", "value").Where(goqu.I("key").Eq(key)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: build query: %w", err)
	}

	var row entityRow
	err = c.db.QueryRowContext(ctx, query).Scan(&row.Key, &row.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlstore: provide %q: %w", key, apperr.ErrKeyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: provide %q: %w", key, err)
	}

	raw := row.Value
	if c.key != nil {
		raw, err = crypto.Decrypt(raw, c.key)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: provide %q: decrypt: %w", key, apperr.ErrMapping)
		}
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("sqlstore: provide %q: decode: %w", key, apperr.ErrMapping)
	}
	return parsed, nil
}

// Consume upserts value under key (insert-or-replace semantics), or deletes
// the row when value is nil.
func (c *Connector) Consume(ctx context.Context, key string, value any) error {
	if value == nil {
		query, _, err := c.goqu.Delete(c.table).Where(goqu.I("key").Eq(key)).ToSQL()
		if err != nil {
			return fmt.Errorf("sqlstore: build delete: %w", err)
		}
		_, err = c.db.ExecContext(ctx, query)
		return err
	}

	payloadBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("sqlstore: consume %q: encode: %w", key, apperr.ErrMapping)
	}
	payload := string(payloadBytes)
	if c.key != nil {
		payload, err = crypto.Encrypt(payload, c.key)
		if err != nil {
			return fmt.Errorf("sqlstore: consume %q: encrypt: %w", key, apperr.ErrMapping)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)

	existing, err := c.exists(ctx, key)
	if err != nil {
		return err
	}

	if existing {
		query, _, err := c.goqu.Update(c.table).Set(goqu.Record{
			"value":      payload,
			"updated_at": now,
		}).Where(goqu.I("key").Eq(key)).ToSQL()
		if err != nil {
			return fmt.Errorf("sqlstore: build update: %w", err)
		}
		_, err = c.db.ExecContext(ctx, query)
		return err
	}

	query, _, err := c.goqu.Insert(c.table).Rows(goqu.Record{
		"key":        key,
		"value":      payload,
		"created_at": now,
		"updated_at": now,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("sqlstore: build insert: %w", err)
	}
	_, err = c.db.ExecContext(ctx, query)
	return err
}

func (c *Connector) exists(ctx context.Context, key string) (bool, error) {
	query, _, err := c.goqu.From(c.table).Select("key").Where(goqu.I("key").Eq(key)).ToSQL()
	if err != nil {
		return false, fmt.Errorf("sqlstore: build exists query: %w", err)
	}
	var k string
	err = c.db.QueryRowContext(ctx, query).Scan(&k)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
