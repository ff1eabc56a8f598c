package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rakunlabs/aasmw/internal/apperr"
)

// testDSN returns a named, shared-cache in-memory SQLite database so the
// separate connections opened by migrate() and New() see the same data
// instead of two independent anonymous ":memory:" databases.
func testDSN(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
}

func newTestConnector(t *testing.T, encryptionKey string) *Connector {
	t.Helper()
	cfg := Config{
		Dialect:       SQLite,
		Datasource:    testDSN(t),
		TablePrefix:   "test_",
		EncryptionKey: encryptionKey,
	}
	c, err := New(context.Background(), "test", cfg, "dm")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Disconnect(context.Background()) })
	return c
}

func TestConsumeProvide_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestConnector(t, "")

	if err := c.Consume(ctx, "k1", map[string]any{"name": "widget"}); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	got, err := c.Provide(ctx, "k1")
	if err != nil {
		t.Fatalf("Provide: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok || m["name"] != "widget" {
		t.Fatalf("expected {name: widget}, got %#v", got)
	}
}

func TestConsume_UpdatesExistingRow(t *testing.T) {
	ctx := context.Background()
	c := newTestConnector(t, "")

	if err := c.Consume(ctx, "k1", map[string]any{"v": 1}); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := c.Consume(ctx, "k1", map[string]any{"v": 2}); err != nil {
		t.Fatalf("Consume update: %v", err)
	}

	got, err := c.Provide(ctx, "k1")
	if err != nil {
		t.Fatalf("Provide: %v", err)
	}
	m := got.(map[string]any)
	if m["v"] != float64(2) {
		t.Fatalf("expected updated value 2, got %#v", m["v"])
	}
}

func TestConsume_NilValueDeletes(t *testing.T) {
	ctx := context.Background()
	c := newTestConnector(t, "")

	if err := c.Consume(ctx, "k1", map[string]any{"v": 1}); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := c.Consume(ctx, "k1", nil); err != nil {
		t.Fatalf("Consume delete: %v", err)
	}

	if _, err := c.Provide(ctx, "k1"); !errors.Is(err, apperr.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound after delete, got %v", err)
	}
}

func TestProvide_UnknownKeyFails(t *testing.T) {
	c := newTestConnector(t, "")
	if _, err := c.Provide(context.Background(), "missing"); !errors.Is(err, apperr.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestEncryptionKey_RoundTripsAndObscuresStorage(t *testing.T) {
	ctx := context.Background()
	c := newTestConnector(t, "s3cr3t-passphrase")

	if err := c.Consume(ctx, "k1", map[string]any{"name": "widget"}); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	got, err := c.Provide(ctx, "k1")
	if err != nil {
		t.Fatalf("Provide: %v", err)
	}
	m := got.(map[string]any)
	if m["name"] != "widget" {
		t.Fatalf("expected round-tripped plaintext, got %#v", got)
	}

	var stored string
	query, _, err := c.goqu.From(c.table).Select("value").ToSQL()
	if err != nil {
		t.Fatalf("build raw query: %v", err)
	}
	if err := c.db.QueryRowContext(ctx, query).Scan(&stored); err != nil {
		t.Fatalf("scan raw row: %v", err)
	}
	if stored == `{"name":"widget"}` {
		t.Fatal("expected the stored row to be encrypted, found plaintext JSON")
	}
}

func TestNew_RequiresDatasource(t *testing.T) {
	_, err := New(context.Background(), "test", Config{Dialect: SQLite}, "dm")
	if err == nil {
		t.Fatal("expected an error when Datasource is empty")
	}
}
