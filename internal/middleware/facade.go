// Package middleware implements the Middleware Facade of spec.md §4.K: it
// owns the persistence registry (internal/registry), the synchronization
// engine (internal/sync), the workflow engine (internal/workflow), and the
// two generated routers (internal/restapi, internal/graphqlapi), exposing
// the registration DSL (load_data_model/add_connector/sync_connector/
// @workflow/generate_*_api) and the startup/shutdown lifecycle. Grounded on
// the teacher's internal/server/server.go: an ada.Server wrapped with the
// same recover/server/cors/requestid/log/telemetry middleware chain, routes
// mounted via ada.Group, generalized from a fixed set of LLM-gateway routes
// to routes synthesized per registered data model/connector/workflow.
package middleware

import (
	"context"
	"fmt"
	"net"
	"reflect"
	"sync"

	"github.com/rakunlabs/ada"
	mcors "github.com/rakunlabs/ada/middleware/cors"
	mlog "github.com/rakunlabs/ada/middleware/log"
	mrecover "github.com/rakunlabs/ada/middleware/recover"
	mrequestid "github.com/rakunlabs/ada/middleware/requestid"
	mserver "github.com/rakunlabs/ada/middleware/server"
	mtelemetry "github.com/rakunlabs/ada/middleware/telemetry"
	"github.com/graphql-go/graphql"

	"github.com/rakunlabs/aasmw/internal/apperr"
	"github.com/rakunlabs/aasmw/internal/connector"
	"github.com/rakunlabs/aasmw/internal/datamodel"
	"github.com/rakunlabs/aasmw/internal/entity"
	"github.com/rakunlabs/aasmw/internal/graphqlapi"
	"github.com/rakunlabs/aasmw/internal/mapper"
	"github.com/rakunlabs/aasmw/internal/registry"
	"github.com/rakunlabs/aasmw/internal/registry/memory"
	"github.com/rakunlabs/aasmw/internal/restapi"
	syncengine "github.com/rakunlabs/aasmw/internal/sync"
	"github.com/rakunlabs/aasmw/internal/telemetry"
	"github.com/rakunlabs/aasmw/internal/workflow"
)

// Facade wires together every core component and exposes the registration
// DSL of spec.md §4.K. Host applications build one Facade per process.
type Facade struct {
	mu         sync.RWMutex
	basePath   string
	server     *ada.Server
	dataModels map[string]*datamodel.DataModel
	connectors map[string]connector.Connector

	Registry *registry.Registry
	Sync     *syncengine.Engine
	Workflow *workflow.Engine
}

// New builds a Facade with its own ada server, mounting the teacher's
// standard middleware chain (recover, server-name, cors, requestid, log,
// telemetry), and wires the registry's wrap/notify hooks to the sync
// engine per spec.md §4.F's "a PersistedConnector wrapper is transparently
// applied on registration".
func New(serviceName, basePath string) *Facade {
	mux := ada.New()
	mux.Use(
		mrecover.Middleware(),
		mserver.Middleware(serviceName),
		mcors.Middleware(),
		mrequestid.Middleware(),
		mlog.Middleware(),
		mtelemetry.Middleware(),
	)

	reg := registry.New()
	syncEngine := syncengine.New()
	reg.SetWrap(syncEngine.Wrap)
	reg.SetNotify(syncEngine.Unbind)

	return &Facade{
		basePath:   basePath,
		server:     mux,
		dataModels: make(map[string]*datamodel.DataModel),
		connectors: make(map[string]connector.Connector),
		Registry:   reg,
		Sync:       syncEngine,
		Workflow:   workflow.New(),
	}
}

// SetCounters attaches the ambient telemetry counters (SPEC_FULL.md §9)
// to every component that records them.
func (f *Facade) SetCounters(c *telemetry.Counters) {
	f.Sync.SetCounters(c)
	f.Workflow.SetCounters(c)
	restapi.SetCounters(c)
}

// typeNameOf mirrors internal/datamodel's unexported typeNameOf: the bare
// (pointer-stripped) struct type name, used to derive a ConnectionInfo's
// ModelType hint for a data model instance.
func typeNameOf(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

// LoadDataModel registers dm under name, per spec.md §4.K's
// load_data_model(name, data_model, persist_instances?). When
// persistInstances is true, every top-level model currently in dm is
// seeded into an in-memory persistence connector at ConnectionInfo
// {DataModelName: name, ModelID: id}, so generate_connector_endpoints and
// the synchronization engine have something to address immediately
// without a caller having to add_connector for every instance by hand.
func (f *Facade) LoadDataModel(ctx context.Context, name string, dm *datamodel.DataModel, persistInstances bool) error {
	f.mu.Lock()
	f.dataModels[name] = dm
	f.mu.Unlock()

	if !persistInstances {
		return nil
	}

	for _, v := range dm.GetTopLevelModels() {
		id, err := entity.ID(v)
		if err != nil {
			continue
		}
		ci := registry.ConnectionInfo{DataModelName: name, ModelID: id, ModelType: typeNameOf(v)}
		value := v
		factory := func(ctx context.Context, ci registry.ConnectionInfo) (connector.Connector, error) {
			c := memory.New(id)
			if err := c.Consume(ctx, id, value); err != nil {
				return nil, err
			}
			return c, nil
		}
		if _, err := f.Registry.AddToPersistence(ctx, ci, factory); err != nil {
			return fmt.Errorf("middleware: load_data_model %q: persist %q: %w", name, id, err)
		}
	}
	return nil
}

// DataModel returns the data model registered under name.
func (f *Facade) DataModel(name string) (*datamodel.DataModel, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	dm, ok := f.dataModels[name]
	return dm, ok
}

// AddConnector registers c under id, per spec.md §4.K's
// add_connector(id, connector, model_type, ci?). If ci is supplied, c is
// additionally connected to persistence at that ConnectionInfo (with
// ci.ModelType filled in from modelType); otherwise c is still tracked so
// GenerateConnectorEndpoints can expose it under a synthetic
// ConnectionInfo keyed purely by id.
func (f *Facade) AddConnector(ctx context.Context, id string, c connector.Connector, modelType string, ci *registry.ConnectionInfo) error {
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("middleware: add_connector %q: connect: %w", id, apperr.ErrConnection)
	}

	f.mu.Lock()
	f.connectors[id] = c
	f.mu.Unlock()

	target := registry.ConnectionInfo{DataModelName: "_connectors", ModelID: id, ModelType: modelType}
	if ci != nil {
		target = *ci
		target.ModelType = modelType
	}

	factory := func(ctx context.Context, ci registry.ConnectionInfo) (connector.Connector, error) { return c, nil }
	if _, err := f.Registry.AddToPersistence(ctx, target, factory); err != nil {
		return fmt.Errorf("middleware: add_connector %q: %w", id, err)
	}
	return nil
}

// SyncConnector binds the connector previously registered under id as a
// synced peer of ci's persistence point, per spec.md §4.K's
// sync_connector(id, ci, role, direction, priority?, mappers?, formatter?)
// and §4.G's role/direction contract. formatter is accepted for
// signature-compatibility with the spec's DSL but is not itself part of
// the Binding: a Formatter renders to a display string (used by
// notification connectors directly), not a schema-to-schema Mapper, so it
// has no slot in the read/write transform path PersistedConnector drives.
//
// Besides binding the peer into the sync engine, c is also re-registered
// into the registry at ci itself, wrapped as a syncengine.SyncedConnector.
// Without this, a write arriving through c's own endpoint (e.g. a REST
// POST to /connectors/{id}/value) would never enforce role/direction or
// fold into the persisted root: the binding alone only teaches
// PersistedConnector.peers about c, it does not give c itself the
// enforcing wrapper.
func (f *Facade) SyncConnector(ctx context.Context, id string, ci registry.ConnectionInfo, role syncengine.Role, direction syncengine.Direction, priority int, m mapper.Mapper, formatter mapper.Formatter) error {
	f.mu.RLock()
	c, ok := f.connectors[id]
	f.mu.RUnlock()
	if !ok {
		return fmt.Errorf("middleware: sync_connector %q: %w", id, apperr.ErrKeyNotFound)
	}

	f.Sync.Bind(&syncengine.Binding{
		CI:        ci,
		Connector: c,
		Role:      role,
		Direction: direction,
		Mapper:    m,
		Priority:  priority,
	})

	factory := func(ctx context.Context, ci registry.ConnectionInfo) (connector.Connector, error) {
		return f.Sync.WrapSynced(ci, c, f.Registry, role, direction, m), nil
	}
	if _, err := f.Registry.AddToPersistence(ctx, ci, factory); err != nil {
		return fmt.Errorf("middleware: sync_connector %q: register at sync target: %w", id, err)
	}
	return nil
}

// DefineWorkflow registers fn under desc with pre-bound defaults, per
// spec.md §4.K's @workflow decorator — the reflective counterpart of a
// Python decorator that inspects fn's signature at registration time.
func (f *Facade) DefineWorkflow(desc workflow.Description, fn any, defaults ...any) (*workflow.Workflow, error) {
	return f.Workflow.DefineTyped(desc, fn, defaults...)
}

// GenerateRESTAPIForDataModel mounts CRUD + sub-attribute + blob routes for
// every type in the named data model's type graph, per spec.md §4.K's
// generate_rest_api_for_data_model(name).
func (f *Facade) GenerateRESTAPIForDataModel(name string) error {
	dm, ok := f.DataModel(name)
	if !ok {
		return fmt.Errorf("middleware: generate_rest_api_for_data_model %q: %w", name, apperr.ErrKeyNotFound)
	}
	restapi.RegisterDataModel(f.server.Group(f.basePath), "", dm, f.Registry)
	return nil
}

// GenerateGraphQLAPIForDataModel builds a read-only GraphQL schema for the
// named data model and mounts it at POST {basePath}/graphql, per spec.md
// §4.K's generate_graphql_api_for_data_model(name) and §6's "mounted at
// /graphql, single-schema, query-only".
func (f *Facade) GenerateGraphQLAPIForDataModel(name string) (graphql.Schema, error) {
	dm, ok := f.DataModel(name)
	if !ok {
		return graphql.Schema{}, fmt.Errorf("middleware: generate_graphql_api_for_data_model %q: %w", name, apperr.ErrKeyNotFound)
	}
	schema, err := graphqlapi.BuildSchema(dm, f.Registry)
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("middleware: generate_graphql_api_for_data_model %q: %w", name, err)
	}
	f.server.Group(f.basePath).POST("/graphql", graphqlapi.Handler(schema))
	return schema, nil
}

// GenerateConnectorEndpoints mounts description/value routes for every
// connection point currently registered in the persistence registry, per
// spec.md §4.K's generate_connector_endpoints().
func (f *Facade) GenerateConnectorEndpoints() {
	restapi.RegisterConnectorEndpoints(f.server.Group(f.basePath), "", f.Registry)
}

// GenerateWorkflowEndpoints mounts execute/execute_background/description/
// interrupt routes for every registered workflow, per spec.md §6's
// workflow endpoint table. Not named explicitly among §4.K's DSL bullets,
// but every registered workflow must get these routes per §6, so it is
// exposed alongside generate_connector_endpoints rather than folded into
// it (the two enumerate different registries).
func (f *Facade) GenerateWorkflowEndpoints() {
	restapi.RegisterWorkflowEndpoints(f.server.Group(f.basePath), "", f.Workflow)
}

// Start launches onStartup workflows and interval schedules, then serves
// HTTP on addr until ctx is cancelled, mirroring the teacher's
// Server.Start (server.go's StartWithContext).
func (f *Facade) Start(ctx context.Context, host, port string) error {
	if err := f.Workflow.Start(ctx); err != nil {
		return fmt.Errorf("middleware: start: %w", err)
	}
	return f.server.StartWithContext(ctx, net.JoinHostPort(host, port))
}

// Shutdown awaits onShutdown workflows and interrupts every still-active
// run, per spec.md §4.K's shutdown contract. Driven by into's context
// cancellation in cmd/aasmw/main.go.
func (f *Facade) Shutdown(ctx context.Context) {
	f.Workflow.Shutdown(ctx)
}
