// Package registry implements the persistence registry of spec.md §4.F: a
// ConnectionInfo-keyed directory of persistence connectors with
// hierarchical fallback lookup and factory-based lazy instantiation.
// Grounded on the teacher's store layer shape (internal/store/store.go
// defines a narrow Store interface implemented by memory/sqlite3/postgres)
// generalized from "one store, one backend" to "many connection points,
// each independently backed, resolved by specificity".
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/rakunlabs/aasmw/internal/apperr"
	"github.com/rakunlabs/aasmw/internal/connector"
)

// ConnectionType is the derived classification of a ConnectionInfo, per
// spec.md §3.
type ConnectionType int

const (
	ConnDataModel ConnectionType = iota
	ConnModel
	ConnContainedModel
	ConnField
)

// ConnectionInfo is the immutable addressing tuple for any node or sub-node
// under a data model (spec.md §3/§4.F). Equality and hashing (map key use)
// ignore ModelType; it is metadata that the registry retains and reports
// back through Connections(). It does not take part in factory selection.
type ConnectionInfo struct {
	DataModelName    string
	ModelID          string
	ContainedModelID string
	FieldID          string
	ModelType        string
}

// Type derives the connection type: data_model if only DataModelName is
// set; model if only ModelID is set; contained_model if ContainedModelID
// is set, whether or not FieldID also is (a field nested inside a
// contained model is still addressed relative to that contained model,
// per ApplyWrite's rule 4); field if FieldID is set with no
// ContainedModelID (a field directly on the top-level model).
func (ci ConnectionInfo) Type() ConnectionType {
	switch {
	case ci.ContainedModelID != "":
		return ConnContainedModel
	case ci.FieldID != "":
		return ConnField
	case ci.ModelID != "":
		return ConnModel
	default:
		return ConnDataModel
	}
}

// Key is the hashable equality key: every field but ModelType. Map key used
// by Registry internally and by the sync engine to bind peers to the same
// persistence id regardless of their individual ModelType hints.
func (ci ConnectionInfo) Key() ConnectionInfo {
	return ConnectionInfo{
		DataModelName:    ci.DataModelName,
		ModelID:          ci.ModelID,
		ContainedModelID: ci.ContainedModelID,
		FieldID:          ci.FieldID,
	}
}

// EndpointID derives the path/field segment external interfaces (REST's
// /connectors/{K}, GraphQL's list resolvers) key a connection point by: the
// most specific id ci carries, per spec.md §6.
func (ci ConnectionInfo) EndpointID() string {
	switch {
	case ci.FieldID != "":
		return ci.FieldID
	case ci.ContainedModelID != "":
		return ci.ContainedModelID
	case ci.ModelID != "":
		return ci.ModelID
	default:
		return ci.DataModelName
	}
}

// parent returns the next-less-specific ConnectionInfo in the fallback
// chain (field -> contained_model -> model -> data_model), or ok=false at
// the data_model level (the root of the chain).
func (ci ConnectionInfo) parent() (ConnectionInfo, bool) {
	switch {
	case ci.FieldID != "":
		p := ci
		p.FieldID = ""
		return p, true
	case ci.ContainedModelID != "":
		p := ci
		p.ContainedModelID = ""
		return p, true
	case ci.ModelID != "":
		p := ci
		p.ModelID = ""
		return p, true
	default:
		return ConnectionInfo{}, false
	}
}

// Factory lazily constructs a connector.Connector the first time its
// ConnectionInfo level is resolved without an already-registered instance.
type Factory func(ctx context.Context, ci ConnectionInfo) (connector.Connector, error)

// Registry is the persistence directory of spec.md §4.F.
type Registry struct {
	mu         sync.RWMutex
	connectors map[ConnectionInfo]connector.Connector
	factories  map[ConnectionInfo]Factory

	// modelTypes retains the ModelType hint a connection was registered
	// with, keyed by the same stripped Key() the connectors/factories maps
	// use. ModelType is excluded from equality (Key()) but external
	// interfaces (REST's connector description, GraphQL's per-type list
	// resolvers) need it back to classify a connection by type name, so it
	// is tracked alongside rather than recovered from the map key.
	modelTypes map[ConnectionInfo]string

	// wrap transparently applies the sync engine's PersistedConnector
	// wrapper on registration, per spec.md §4.F ("a PersistedConnector
	// wrapper is transparently applied on registration"). Nil means no
	// wrapping (used by tests and by registries with no sync engine
	// attached).
	wrap func(ci ConnectionInfo, c connector.Connector) connector.Connector

	// notify is called by RemoveConnection, letting the sync engine drop
	// any peer bindings to the removed connection point.
	notify func(ci ConnectionInfo)
}

func New() *Registry {
	return &Registry{
		connectors: make(map[ConnectionInfo]connector.Connector),
		factories:  make(map[ConnectionInfo]Factory),
		modelTypes: make(map[ConnectionInfo]string),
	}
}

// SetWrap installs the sync engine's wrapping function. Must be called
// before any AddToPersistence/GetConnection use, typically once during
// middleware facade wiring.
func (r *Registry) SetWrap(wrap func(ConnectionInfo, connector.Connector) connector.Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wrap = wrap
}

// SetNotify installs the removal-notification callback.
func (r *Registry) SetNotify(notify func(ConnectionInfo)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notify = notify
}

// AddPersistenceFactory attaches a lazy constructor scoped at ci's level.
func (r *Registry) AddPersistenceFactory(ci ConnectionInfo, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[ci.Key()] = factory
}

// AddToPersistence instantiates and registers a connector at ci, picking
// the most-specific factory by precedence exact -> dataModel -> default,
// unless factory is supplied directly. Factories are stored under Key(),
// which drops ModelType, so no factory is selected by ci's ModelType.
func (r *Registry) AddToPersistence(ctx context.Context, ci ConnectionInfo, factory Factory) (connector.Connector, error) {
	r.mu.Lock()
	if factory == nil {
		factory = r.resolveFactoryLocked(ci)
	}
	wrap := r.wrap
	r.mu.Unlock()

	if factory == nil {
		return nil, fmt.Errorf("registry: add %+v: no factory available: %w", ci, apperr.ErrKeyNotFound)
	}

	c, err := factory(ctx, ci)
	if err != nil {
		return nil, fmt.Errorf("registry: add %+v: %w", ci, err)
	}
	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("registry: add %+v: connect: %w", ci, apperr.ErrConnection)
	}

	if wrap != nil {
		c = wrap(ci, c)
	}

	r.mu.Lock()
	r.connectors[ci.Key()] = c
	if ci.ModelType != "" {
		r.modelTypes[ci.Key()] = ci.ModelType
	}
	r.mu.Unlock()
	return c, nil
}

// resolveFactoryLocked picks the most-specific registered factory for ci:
// exact match, then dataModel-only, then the zero-value ConnectionInfo as
// process-wide default. The ModelType branch looks up the same
// dataModel-only key as the step after it, since factory keys carry no
// ModelType. Caller must hold r.mu.
func (r *Registry) resolveFactoryLocked(ci ConnectionInfo) Factory {
	if f, ok := r.factories[ci.Key()]; ok {
		return f
	}
	if ci.ModelType != "" {
		typed := ConnectionInfo{DataModelName: ci.DataModelName}
		if f, ok := r.factories[typed.Key()]; ok {
			return f
		}
	}
	dataModelOnly := ConnectionInfo{DataModelName: ci.DataModelName}
	if f, ok := r.factories[dataModelOnly.Key()]; ok {
		return f
	}
	if f, ok := r.factories[(ConnectionInfo{}).Key()]; ok {
		return f
	}
	return nil
}

// GetConnection performs hierarchical lookup, walking from ci down through
// parent levels (field -> contained_model -> model -> data_model),
// returning the first registered connector. Fails with ErrKeyNotFound if
// no level matches.
func (r *Registry) GetConnection(ci ConnectionInfo) (connector.Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cur := ci
	for {
		if c, ok := r.connectors[cur.Key()]; ok {
			return c, nil
		}
		parent, ok := cur.parent()
		if !ok {
			return nil, fmt.Errorf("registry: get connection %+v: %w", ci, apperr.ErrKeyNotFound)
		}
		cur = parent
	}
}

// RemoveConnection removes ci's connector and factory, notifying the sync
// engine so it can drop derived indices and peer bindings.
func (r *Registry) RemoveConnection(ctx context.Context, ci ConnectionInfo) error {
	r.mu.Lock()
	c, ok := r.connectors[ci.Key()]
	delete(r.connectors, ci.Key())
	delete(r.factories, ci.Key())
	delete(r.modelTypes, ci.Key())
	notify := r.notify
	r.mu.Unlock()

	if notify != nil {
		notify(ci)
	}
	if !ok {
		return nil
	}
	return c.Disconnect(ctx)
}

// Connections returns a snapshot of every registered ConnectionInfo, used
// by the REST/GraphQL generators to enumerate connector endpoints.
func (r *Registry) Connections() []ConnectionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ConnectionInfo, 0, len(r.connectors))
	for ci := range r.connectors {
		ci.ModelType = r.modelTypes[ci]
		out = append(out, ci)
	}
	return out
}
