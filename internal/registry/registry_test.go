package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/rakunlabs/aasmw/internal/apperr"
	"github.com/rakunlabs/aasmw/internal/connector"
	"github.com/rakunlabs/aasmw/internal/registry/memory"
)

func TestConnectionInfo_Type(t *testing.T) {
	cases := []struct {
		ci   ConnectionInfo
		want ConnectionType
	}{
		{ConnectionInfo{DataModelName: "d"}, ConnDataModel},
		{ConnectionInfo{DataModelName: "d", ModelID: "m"}, ConnModel},
		{ConnectionInfo{DataModelName: "d", ModelID: "m", ContainedModelID: "c"}, ConnContainedModel},
		{ConnectionInfo{DataModelName: "d", ModelID: "m", FieldID: "f"}, ConnField},
		{ConnectionInfo{DataModelName: "d", ModelID: "m", ContainedModelID: "c", FieldID: "f"}, ConnContainedModel},
	}
	for _, c := range cases {
		if got := c.ci.Type(); got != c.want {
			t.Fatalf("Type(%+v) = %v, want %v", c.ci, got, c.want)
		}
	}
}

func TestConnectionInfo_KeyIgnoresModelType(t *testing.T) {
	a := ConnectionInfo{DataModelName: "d", ModelID: "m", ModelType: "Foo"}
	b := ConnectionInfo{DataModelName: "d", ModelID: "m", ModelType: "Bar"}
	if a.Key() != b.Key() {
		t.Fatalf("expected Key() to ignore ModelType, got %+v vs %+v", a.Key(), b.Key())
	}
}

func TestConnectionInfo_EndpointID(t *testing.T) {
	cases := []struct {
		ci   ConnectionInfo
		want string
	}{
		{ConnectionInfo{DataModelName: "d"}, "d"},
		{ConnectionInfo{DataModelName: "d", ModelID: "m"}, "m"},
		{ConnectionInfo{DataModelName: "d", ModelID: "m", ContainedModelID: "c"}, "c"},
		{ConnectionInfo{DataModelName: "d", ModelID: "m", ContainedModelID: "c", FieldID: "f"}, "f"},
	}
	for _, c := range cases {
		if got := c.ci.EndpointID(); got != c.want {
			t.Fatalf("EndpointID(%+v) = %q, want %q", c.ci, got, c.want)
		}
	}
}

func TestAddToPersistence_AndGetConnection(t *testing.T) {
	ctx := context.Background()
	r := New()

	ci := ConnectionInfo{DataModelName: "d", ModelID: "m1", ModelType: "Gadget"}
	factory := func(ctx context.Context, ci ConnectionInfo) (connector.Connector, error) {
		return memory.New("mem"), nil
	}
	c, err := r.AddToPersistence(ctx, ci, factory)
	if err != nil {
		t.Fatalf("AddToPersistence: %v", err)
	}
	if c == nil {
		t.Fatal("expected a non-nil connector")
	}

	got, err := r.GetConnection(ci)
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	if got != c {
		t.Fatal("expected GetConnection to return the registered connector")
	}
}

func TestGetConnection_HierarchicalFallback(t *testing.T) {
	ctx := context.Background()
	r := New()

	modelCI := ConnectionInfo{DataModelName: "d", ModelID: "m1"}
	factory := func(ctx context.Context, ci ConnectionInfo) (connector.Connector, error) {
		return memory.New("mem"), nil
	}
	if _, err := r.AddToPersistence(ctx, modelCI, factory); err != nil {
		t.Fatalf("AddToPersistence: %v", err)
	}

	fieldCI := ConnectionInfo{DataModelName: "d", ModelID: "m1", FieldID: "f1"}
	got, err := r.GetConnection(fieldCI)
	if err != nil {
		t.Fatalf("expected field-level lookup to fall back to the model-level connector: %v", err)
	}
	if got == nil {
		t.Fatal("expected a connector from fallback")
	}
}

func TestGetConnection_NotFound(t *testing.T) {
	r := New()
	_, err := r.GetConnection(ConnectionInfo{DataModelName: "nope"})
	if !errors.Is(err, apperr.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestRemoveConnection_NotifiesAndDisconnects(t *testing.T) {
	ctx := context.Background()
	r := New()

	var notified ConnectionInfo
	r.SetNotify(func(ci ConnectionInfo) { notified = ci })

	ci := ConnectionInfo{DataModelName: "d", ModelID: "m1"}
	factory := func(ctx context.Context, ci ConnectionInfo) (connector.Connector, error) {
		return memory.New("mem"), nil
	}
	if _, err := r.AddToPersistence(ctx, ci, factory); err != nil {
		t.Fatalf("AddToPersistence: %v", err)
	}

	if err := r.RemoveConnection(ctx, ci); err != nil {
		t.Fatalf("RemoveConnection: %v", err)
	}
	if notified != ci {
		t.Fatalf("expected notify to fire with %+v, got %+v", ci, notified)
	}
	if _, err := r.GetConnection(ci); err == nil {
		t.Fatal("expected the connection to be gone after removal")
	}
}

func TestConnections_IncludesModelType(t *testing.T) {
	ctx := context.Background()
	r := New()

	ci := ConnectionInfo{DataModelName: "d", ModelID: "m1", ModelType: "Gadget"}
	factory := func(ctx context.Context, ci ConnectionInfo) (connector.Connector, error) {
		return memory.New("mem"), nil
	}
	if _, err := r.AddToPersistence(ctx, ci, factory); err != nil {
		t.Fatalf("AddToPersistence: %v", err)
	}

	found := false
	for _, got := range r.Connections() {
		if got.ModelID == "m1" && got.ModelType == "Gadget" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected Connections() to report the ModelType hint")
	}
}

func TestWrap_AppliesOnRegistration(t *testing.T) {
	ctx := context.Background()
	r := New()

	wrapped := false
	r.SetWrap(func(ci ConnectionInfo, c connector.Connector) connector.Connector {
		wrapped = true
		return c
	})

	ci := ConnectionInfo{DataModelName: "d", ModelID: "m1"}
	factory := func(ctx context.Context, ci ConnectionInfo) (connector.Connector, error) {
		return memory.New("mem"), nil
	}
	if _, err := r.AddToPersistence(ctx, ci, factory); err != nil {
		t.Fatalf("AddToPersistence: %v", err)
	}
	if !wrapped {
		t.Fatal("expected the wrap hook to run during registration")
	}
}
