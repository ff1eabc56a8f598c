package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/rakunlabs/aasmw/internal/connector"
	"github.com/rakunlabs/aasmw/internal/datamodel"
	"github.com/rakunlabs/aasmw/internal/registry"
	"github.com/rakunlabs/aasmw/internal/registry/memory"
	syncengine "github.com/rakunlabs/aasmw/internal/sync"
	"github.com/rakunlabs/aasmw/pkg/aasfixtures"
)

// TestScenario_RESTCRUDLifecycle exercises spec.md's end-to-end scenario 3
// against the ValidAAS fixture: create, duplicate-reject, read, update,
// delete.
func TestScenario_RESTCRUDLifecycle(t *testing.T) {
	dm := datamodel.FromModelTypes("test", reflect.TypeOf(aasfixtures.ValidAAS{}))
	reg := registry.New()
	engine := syncengine.New()
	reg.SetWrap(engine.Wrap)
	reg.SetNotify(engine.Unbind)

	mux := http.NewServeMux()
	RegisterDataModel(muxRouter{mux}, "", dm, reg)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ValidAAS/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var list []aasfixtures.ValidAAS
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list) != 0 {
		t.Fatalf("expected an empty list before any create, got %d", len(list))
	}

	body, _ := json.Marshal(aasfixtures.NewValidAAS())

	resp, err = http.Post(srv.URL+"/ValidAAS/", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Post(srv.URL+"/ValidAAS/", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate create: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/ValidAAS/valid_aas_id")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got aasfixtures.ValidAAS
	json.NewDecoder(resp.Body).Decode(&got)
	resp.Body.Close()
	if got.IdShort != "valid_aas_id" {
		t.Fatalf("expected valid_aas_id, got %+v", got)
	}

	updated := got
	updated.IdShort = "new"
	updatedBody, _ := json.Marshal(updated)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/ValidAAS/valid_aas_id", bytes.NewReader(updatedBody))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	if _, ok := dm.GetModel("valid_aas_id"); ok {
		t.Fatal("expected the old id to be gone after a re-persisting PUT")
	}
	if _, ok := dm.GetModel("new"); !ok {
		t.Fatal("expected the new id to be indexed after the PUT")
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/ValidAAS/new", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, _ = http.Get(srv.URL + "/ValidAAS/")
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
}

// fixedFloatSensor is a minimal read-only sensor-style connector: Provide
// always reports a fixed fresh reading. It implements no Consumer, the way
// a real hardware feed that only ever reports readings would — enforcement
// of its GROUND_TRUTH role and folding its reading into the live data model
// root is the sync engine's job (sync.SyncedConnector), not this type's.
type fixedFloatSensor struct {
	value float64
}

func (f *fixedFloatSensor) Name() string                        { return "K" }
func (f *fixedFloatSensor) Connect(ctx context.Context) error    { return nil }
func (f *fixedFloatSensor) Disconnect(ctx context.Context) error { return nil }

func (f *fixedFloatSensor) Provide(ctx context.Context, key string) (any, error) {
	return f.value, nil
}

// TestScenario_GroundTruthPropagation exercises spec.md's end-to-end
// scenario 4: a GROUND_TRUTH, BIDIRECTIONAL connector targeting
// example_submodel_id.FloatAttribute reports a fresh reading on its own
// /value endpoint and, in the same call, folds that reading back into the
// live ValidAAS root (via sync.SyncedConnector's ApplyWrite-driven
// writeback, the same wiring middleware.Facade.SyncConnector installs) so a
// subsequent GET on the REST CRUD route observes it.
func TestScenario_GroundTruthPropagation(t *testing.T) {
	ctx := context.Background()
	dm, err := datamodel.FromModels("test", aasfixtures.NewValidAAS())
	if err != nil {
		t.Fatalf("FromModels: %v", err)
	}
	root, ok := dm.GetModel("valid_aas_id")
	if !ok {
		t.Fatal("expected valid_aas_id to be indexed")
	}

	reg := registry.New()
	engine := syncengine.New()
	reg.SetWrap(engine.Wrap)
	reg.SetNotify(engine.Unbind)

	// Seed the model-level persistence connector, mirroring what
	// middleware.Facade.LoadDataModel(ctx, name, dm, true) does for every
	// top-level instance: a memory connector pre-seeded with the same
	// pointer dm indexes, so in-place mutation stays visible through both.
	modelCI := registry.ConnectionInfo{DataModelName: "test", ModelID: "valid_aas_id"}
	modelFactory := func(ctx context.Context, ci registry.ConnectionInfo) (connector.Connector, error) {
		c := memory.New("valid_aas_id")
		if err := c.Consume(ctx, "valid_aas_id", root); err != nil {
			return nil, err
		}
		return c, nil
	}
	if _, err := reg.AddToPersistence(ctx, modelCI, modelFactory); err != nil {
		t.Fatalf("add model persistence: %v", err)
	}

	// Bind and re-register the sensor at its sync target ci exactly as
	// middleware.Facade.SyncConnector does: Bind makes it discoverable as a
	// peer of fieldCI, and registering it wrapped in a SyncedConnector at
	// fieldCI itself is what lets a direct GET on its own endpoint (and the
	// reverse pull PersistedConnector.Provide triggers) enforce role and
	// granularity instead of bypassing them.
	fieldCI := registry.ConnectionInfo{
		DataModelName:    "test",
		ModelID:          "valid_aas_id",
		ContainedModelID: "example_submodel_id",
		FieldID:          "FloatAttribute",
	}
	sensor := &fixedFloatSensor{value: 7.5}
	engine.Bind(&syncengine.Binding{
		CI:        fieldCI,
		Connector: sensor,
		Role:      syncengine.GroundTruth,
		Direction: syncengine.Bidirectional,
	})
	syncedFactory := func(ctx context.Context, ci registry.ConnectionInfo) (connector.Connector, error) {
		return engine.WrapSynced(fieldCI, sensor, reg, syncengine.GroundTruth, syncengine.Bidirectional, nil), nil
	}
	if _, err := reg.AddToPersistence(ctx, fieldCI, syncedFactory); err != nil {
		t.Fatalf("add synced connector: %v", err)
	}

	restMux := http.NewServeMux()
	RegisterDataModel(muxRouter{restMux}, "", dm, reg)
	connectorMux := http.NewServeMux()
	RegisterConnectorEndpoints(muxRouter{connectorMux}, "", reg)

	top := http.NewServeMux()
	top.Handle("/", restMux)
	top.Handle("/connectors/", connectorMux)
	srv := httptest.NewServer(top)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/connectors/FloatAttribute/value")
	if err != nil {
		t.Fatalf("get connector value: %v", err)
	}
	var value float64
	json.NewDecoder(resp.Body).Decode(&value)
	resp.Body.Close()
	if value != 7.5 {
		t.Fatalf("expected the ground-truth reading 7.5, got %v", value)
	}

	resp, err = http.Get(srv.URL + "/ValidAAS/valid_aas_id")
	if err != nil {
		t.Fatalf("get aas: %v", err)
	}
	var got aasfixtures.ValidAAS
	json.NewDecoder(resp.Body).Decode(&got)
	resp.Body.Close()
	if got.ExampleSubmodel.FloatAttribute != 7.5 {
		t.Fatalf("expected the ground-truth reading to propagate into the persisted AAS, got %+v", got.ExampleSubmodel)
	}
}
