package sync

import (
	"context"
	"testing"

	"github.com/rakunlabs/aasmw/internal/registry"
	"github.com/rakunlabs/aasmw/internal/registry/memory"
)

func TestPersistedConnector_GroundTruthPeerWinsOnProvide(t *testing.T) {
	ctx := context.Background()
	e := New()

	ci := registry.ConnectionInfo{DataModelName: "test", ModelID: "m1"}
	persistence := memory.New("primary")
	persistence.Consume(ctx, "m1", "stale")

	groundTruth := memory.New("ground-truth")
	groundTruth.Consume(ctx, "m1", "fresh")

	e.Bind(&Binding{CI: ci, Connector: groundTruth, Role: GroundTruth, Direction: Bidirectional})

	wrapped := e.Wrap(ci, persistence)
	provider := wrapped.(interface {
		Provide(ctx context.Context, key string) (any, error)
	})

	got, err := provider.Provide(ctx, "m1")
	if err != nil {
		t.Fatalf("Provide: %v", err)
	}
	if got != "fresh" {
		t.Fatalf("expected the ground-truth value to win, got %v", got)
	}

	// Bidirectional ground truth also writes the fresh value back to
	// persistence, so a direct read of the underlying connector now
	// observes it too.
	persisted, err := persistence.Provide(ctx, "m1")
	if err != nil {
		t.Fatalf("Provide underlying: %v", err)
	}
	if persisted != "fresh" {
		t.Fatalf("expected persistence to be updated with the ground-truth value, got %v", persisted)
	}
}

func TestPersistedConnector_ConsumeFansOutToPeers(t *testing.T) {
	ctx := context.Background()
	e := New()

	ci := registry.ConnectionInfo{DataModelName: "test", ModelID: "m1"}
	persistence := memory.New("primary")
	mirror := memory.New("mirror")

	e.Bind(&Binding{CI: ci, Connector: mirror, Role: ReadWrite, Direction: FromPersistence})

	wrapped := e.Wrap(ci, persistence)
	consumer := wrapped.(interface {
		Consume(ctx context.Context, key string, value any) error
	})

	if err := consumer.Consume(ctx, "m1", "written"); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	got, err := mirror.Provide(ctx, "m1")
	if err != nil {
		t.Fatalf("expected the mirror to have received the fan-out write: %v", err)
	}
	if got != "written" {
		t.Fatalf("expected 'written', got %v", got)
	}
}

func TestPersistedConnector_ConsumeSkipsToPersistenceOnlyPeers(t *testing.T) {
	ctx := context.Background()
	e := New()

	ci := registry.ConnectionInfo{DataModelName: "test", ModelID: "m1"}
	persistence := memory.New("primary")
	toPersistenceOnly := memory.New("push-only")

	e.Bind(&Binding{CI: ci, Connector: toPersistenceOnly, Role: ReadWrite, Direction: ToPersistence})

	wrapped := e.Wrap(ci, persistence)
	consumer := wrapped.(interface {
		Consume(ctx context.Context, key string, value any) error
	})

	if err := consumer.Consume(ctx, "m1", "written"); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	if _, err := toPersistenceOnly.Provide(ctx, "m1"); err == nil {
		t.Fatal("expected a TO_PERSISTENCE-only peer to not receive reverse fan-out")
	}
}

func TestPersistedConnector_ConsumeSkipsGroundTruthPeers(t *testing.T) {
	ctx := context.Background()
	e := New()

	ci := registry.ConnectionInfo{DataModelName: "test", ModelID: "m1"}
	persistence := memory.New("primary")
	groundTruth := memory.New("ground-truth")

	e.Bind(&Binding{CI: ci, Connector: groundTruth, Role: GroundTruth, Direction: Bidirectional})

	wrapped := e.Wrap(ci, persistence)
	consumer := wrapped.(interface {
		Consume(ctx context.Context, key string, value any) error
	})

	if err := consumer.Consume(ctx, "m1", "written"); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	if _, err := groundTruth.Provide(ctx, "m1"); err == nil {
		t.Fatal("expected a GROUND_TRUTH peer to never receive reverse fan-out")
	}
}

func TestUnbind_RemovesPeerBindings(t *testing.T) {
	ctx := context.Background()
	e := New()

	ci := registry.ConnectionInfo{DataModelName: "test", ModelID: "m1"}
	mirror := memory.New("mirror")
	e.Bind(&Binding{CI: ci, Connector: mirror, Role: ReadWrite, Direction: FromPersistence})

	e.Unbind(ci)

	if len(e.peers(ci)) != 0 {
		t.Fatal("expected Unbind to clear every binding for ci")
	}

	persistence := memory.New("primary")
	wrapped := e.Wrap(ci, persistence)
	consumer := wrapped.(interface {
		Consume(ctx context.Context, key string, value any) error
	})
	consumer.Consume(ctx, "m1", "written")

	if _, err := mirror.Provide(ctx, "m1"); err == nil {
		t.Fatal("expected the unbound mirror to receive no fan-out")
	}
}
