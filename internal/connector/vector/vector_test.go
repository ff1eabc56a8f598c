package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/rakunlabs/aasmw/internal/apperr"
)

func TestConsume_BeforeConnectFails(t *testing.T) {
	c := New("test", Config{Collection: "widgets"})
	err := c.Consume(context.Background(), "k1", Record{Key: "k1", Vector: []float32{1, 2}})
	if !errors.Is(err, apperr.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestProvide_BeforeConnectFails(t *testing.T) {
	c := New("test", Config{Collection: "widgets"})
	if _, err := c.Provide(context.Background(), "k1"); !errors.Is(err, apperr.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestConsume_WrongValueTypeFails(t *testing.T) {
	c := New("test", Config{Collection: "widgets"})
	err := c.Consume(context.Background(), "k1", map[string]any{"not": "a record"})
	if !errors.Is(err, apperr.ErrMapping) {
		t.Fatalf("expected ErrMapping, got %v", err)
	}
}

func TestDisconnect_WithoutConnectIsNoop(t *testing.T) {
	c := New("test", Config{Collection: "widgets"})
	if err := c.Disconnect(context.Background()); err != nil {
		t.Fatalf("expected disconnect without connect to be a no-op, got %v", err)
	}
}
