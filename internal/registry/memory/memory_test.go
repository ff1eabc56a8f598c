package memory

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/rakunlabs/aasmw/internal/apperr"
)

func TestConsumeProvide_RoundTrip(t *testing.T) {
	c := New("test")
	ctx := context.Background()

	if err := c.Consume(ctx, "k1", "v1"); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	got, err := c.Provide(ctx, "k1")
	if err != nil {
		t.Fatalf("Provide: %v", err)
	}
	if got != "v1" {
		t.Fatalf("expected v1, got %v", got)
	}
}

func TestConsume_NilValueDeletes(t *testing.T) {
	c := New("test")
	ctx := context.Background()

	c.Consume(ctx, "k1", "v1")
	if err := c.Consume(ctx, "k1", nil); err != nil {
		t.Fatalf("Consume delete: %v", err)
	}
	if _, err := c.Provide(ctx, "k1"); !errors.Is(err, apperr.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound after delete, got %v", err)
	}
}

func TestProvide_UnknownKeyFails(t *testing.T) {
	c := New("test")
	if _, err := c.Provide(context.Background(), "missing"); !errors.Is(err, apperr.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestKeys_ReflectsStoredData(t *testing.T) {
	c := New("test")
	ctx := context.Background()
	c.Consume(ctx, "k1", "v1")
	c.Consume(ctx, "k2", "v2")

	keys := c.Keys()
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "k1" || keys[1] != "k2" {
		t.Fatalf("expected [k1 k2], got %v", keys)
	}
}
