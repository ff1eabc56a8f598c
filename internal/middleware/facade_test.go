package middleware

import (
	"context"
	"testing"

	"github.com/rakunlabs/aasmw/internal/connector"
	"github.com/rakunlabs/aasmw/internal/datamodel"
	"github.com/rakunlabs/aasmw/internal/registry"
	"github.com/rakunlabs/aasmw/internal/registry/memory"
	syncengine "github.com/rakunlabs/aasmw/internal/sync"
	"github.com/rakunlabs/aasmw/internal/workflow"
)

type Gadget struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestLoadDataModel_PersistsTopLevelInstances(t *testing.T) {
	ctx := context.Background()
	f := New("test-svc", "/api")

	dm, err := datamodel.FromModels("test", &Gadget{ID: "g1", Name: "widget"})
	if err != nil {
		t.Fatalf("from models: %v", err)
	}

	if err := f.LoadDataModel(ctx, "test", dm, true); err != nil {
		t.Fatalf("load data model: %v", err)
	}

	conn, err := f.Registry.GetConnection(registry.ConnectionInfo{DataModelName: "test", ModelID: "g1"})
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	provider, ok := conn.(connector.Provider)
	if !ok {
		t.Fatal("expected persisted connector to be a Provider")
	}
	v, err := provider.Provide(ctx, "g1")
	if err != nil {
		t.Fatalf("provide: %v", err)
	}
	gadget, ok := v.(*Gadget)
	if !ok || gadget.Name != "widget" {
		t.Fatalf("expected persisted gadget named widget, got %#v", v)
	}

	if got, ok := f.DataModel("test"); !ok || got != dm {
		t.Fatal("expected DataModel to return the registered data model")
	}
}

func TestAddConnector_WithConnectionInfoRegistersInPersistence(t *testing.T) {
	ctx := context.Background()
	f := New("test-svc", "/api")

	c := memory.New("mem")
	ci := registry.ConnectionInfo{DataModelName: "test", ModelID: "g2"}
	if err := f.AddConnector(ctx, "mem", c, "Gadget", &ci); err != nil {
		t.Fatalf("add connector: %v", err)
	}

	found := false
	for _, got := range f.Registry.Connections() {
		if got.ModelID == "g2" && got.ModelType == "Gadget" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected connector to be discoverable via Connections() with ModelType set")
	}
}

func TestSyncConnector_ReverseFanOutReachesPeer(t *testing.T) {
	ctx := context.Background()
	f := New("test-svc", "/api")

	ci := registry.ConnectionInfo{DataModelName: "test", ModelID: "g3"}
	factory := func(ctx context.Context, ci registry.ConnectionInfo) (connector.Connector, error) {
		return memory.New("primary"), nil
	}
	if _, err := f.Registry.AddToPersistence(ctx, ci, factory); err != nil {
		t.Fatalf("add to persistence: %v", err)
	}

	mirror := memory.New("mirror")
	if err := f.AddConnector(ctx, "mirror", mirror, "Gadget", nil); err != nil {
		t.Fatalf("add connector: %v", err)
	}

	if err := f.SyncConnector(ctx, "mirror", ci, syncengine.ReadWrite, syncengine.FromPersistence, 0, nil, nil); err != nil {
		t.Fatalf("sync connector: %v", err)
	}

	conn, err := f.Registry.GetConnection(ci)
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	consumer, ok := conn.(connector.Consumer)
	if !ok {
		t.Fatal("expected persisted connector to be a Consumer")
	}
	if err := consumer.Consume(ctx, "g3", &Gadget{ID: "g3", Name: "mirrored"}); err != nil {
		t.Fatalf("consume: %v", err)
	}

	v, err := mirror.Provide(ctx, "g3")
	if err != nil {
		t.Fatalf("expected reverse fan-out to have written to mirror: %v", err)
	}
	gadget, ok := v.(*Gadget)
	if !ok || gadget.Name != "mirrored" {
		t.Fatalf("expected mirrored gadget, got %#v", v)
	}
}

func TestDefineWorkflow_RegistersAndExecutes(t *testing.T) {
	f := New("test-svc", "/api")

	_, err := f.DefineWorkflow(workflow.Description{Name: "greet"}, func(ctx context.Context, name string) (string, error) {
		return "hello " + name, nil
	})
	if err != nil {
		t.Fatalf("define workflow: %v", err)
	}

	result, err := f.Workflow.Execute(context.Background(), "greet", []any{"world"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result != "hello world" {
		t.Fatalf("expected 'hello world', got %v", result)
	}
}
