package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/rakunlabs/aasmw/internal/apperr"
	"github.com/rakunlabs/aasmw/internal/connector"
)

func TestPublish_BeforeConnectFails(t *testing.T) {
	c := New("test", Config{ChatID: 1})
	err := c.Publish(context.Background(), connector.Event{Key: "k1", Value: "hi"})
	if !errors.Is(err, apperr.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestSubscribe_BeforeConnectFails(t *testing.T) {
	c := New("test", Config{ChatID: 1})
	err := c.Subscribe(context.Background(), func(connector.Event) {})
	if !errors.Is(err, apperr.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestDisconnect_WithoutConnectIsNoop(t *testing.T) {
	c := New("test", Config{ChatID: 1})
	if err := c.Disconnect(context.Background()); err != nil {
		t.Fatalf("expected disconnect without connect to be a no-op, got %v", err)
	}
}
