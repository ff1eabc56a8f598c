// Package sync implements the synchronization engine of spec.md §4.G:
// every persistence connector registered through internal/registry is
// wrapped so that writes fan out to peer synced connectors, and reads
// pull fresh values from GROUND_TRUTH peers first. Grounded on the
// teacher's workflow engine orchestration style (internal/service/workflow/
// engine.go coordinates many independently-registered node runs against a
// shared Registry) generalized from "coordinate workflow nodes" to
// "coordinate connector peers bound to the same persistence id".
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rakunlabs/aasmw/internal/apperr"
	"github.com/rakunlabs/aasmw/internal/connector"
	"github.com/rakunlabs/aasmw/internal/mapper"
	"github.com/rakunlabs/aasmw/internal/registry"
	"github.com/rakunlabs/aasmw/internal/telemetry"
)

// Role classifies how a synced connector participates in reads/writes,
// per spec.md §4.G.
type Role int

const (
	GroundTruth Role = iota
	ReadOnly
	ReadWrite
	WriteOnly
)

// Direction classifies which way transformed values are allowed to flow
// between the connector and persistence.
type Direction int

const (
	ToPersistence Direction = iota
	FromPersistence
	Bidirectional
)

func (d Direction) allowsToPersistence() bool {
	return d == ToPersistence || d == Bidirectional
}

func (d Direction) allowsFromPersistence() bool {
	return d == FromPersistence || d == Bidirectional
}

// Binding is one connector's synced configuration: its role/direction
// contract, the mapper used to transform values crossing
// the connector/persistence boundary, and a priority used to disambiguate
// conflicting GROUND_TRUTH writers.
type Binding struct {
	CI        registry.ConnectionInfo
	Connector connector.Connector
	Role      Role
	Direction Direction
	Mapper    mapper.Mapper
	Priority  int
}

// Engine owns the peer bindings for every persistence id and wraps
// registry connectors in a PersistedConnector on registration.
type Engine struct {
	mu       sync.RWMutex
	bindings map[registry.ConnectionInfo][]*Binding
	counters *telemetry.Counters
}

func New() *Engine {
	return &Engine{bindings: make(map[registry.ConnectionInfo][]*Binding)}
}

// SetCounters attaches the ambient telemetry counters (SPEC_FULL.md §9):
// every reverse fan-out attempt increments aasmw.sync.fanout_attempts,
// labeled by peer and outcome. Optional — a nil counters set is a no-op.
func (e *Engine) SetCounters(c *telemetry.Counters) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counters = c
}

func (e *Engine) recordFanout(ctx context.Context, peer string, ok bool) {
	e.mu.RLock()
	c := e.counters
	e.mu.RUnlock()
	if c == nil || c.SyncFanoutAttempts == nil {
		return
	}
	c.SyncFanoutAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("peer", peer),
		attribute.Bool("ok", ok),
	))
}

// Bind registers a synced connector against ci's persistence id.
func (e *Engine) Bind(b *Binding) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := b.CI.Key()
	e.bindings[key] = append(e.bindings[key], b)
}

// Unbind drops every binding registered for ci, mirroring
// registry.Registry.RemoveConnection's notify callback.
func (e *Engine) Unbind(ci registry.ConnectionInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.bindings, ci.Key())
}

func (e *Engine) peers(ci registry.ConnectionInfo) []*Binding {
	e.mu.RLock()
	defer e.mu.RUnlock()
	key := ci.Key()
	out := make([]*Binding, len(e.bindings[key]))
	copy(out, e.bindings[key])
	return out
}

// Wrap returns the function registry.Registry.SetWrap expects: it builds a
// PersistedConnector around c, scoped to ci.
func (e *Engine) Wrap(ci registry.ConnectionInfo, c connector.Connector) connector.Connector {
	return &PersistedConnector{engine: e, ci: ci, underlying: c}
}

// PersistedConnector is the reverse-fan-out wrapper described in spec.md
// §4.G: consume triggers notification of peer synced connectors bound to
// the same persistence id; provide first pulls from any GROUND_TRUTH
// peers so persistence observes the latest truth.
type PersistedConnector struct {
	engine     *Engine
	ci         registry.ConnectionInfo
	underlying connector.Connector
}

func (p *PersistedConnector) Name() string { return p.underlying.Name() }

func (p *PersistedConnector) Connect(ctx context.Context) error    { return p.underlying.Connect(ctx) }
func (p *PersistedConnector) Disconnect(ctx context.Context) error { return p.underlying.Disconnect(ctx) }

// Provide pulls the freshest value: any GROUND_TRUTH peer is read (and, if
// its direction allows write, pushed into persistence) before persistence
// itself is read.
func (p *PersistedConnector) Provide(ctx context.Context, key string) (any, error) {
	provider, ok := p.underlying.(connector.Provider)
	if !ok {
		return nil, fmt.Errorf("sync: provide %q: underlying connector is not a Provider: %w", key, apperr.ErrMapping)
	}

	for _, peer := range p.engine.peers(p.ci) {
		if peer.Role != GroundTruth {
			continue
		}
		peerProvider, ok := peer.Connector.(connector.Provider)
		if !ok {
			continue
		}
		fresh, err := peerProvider.Provide(ctx, key)
		if err != nil {
			slog.Warn("sync: ground truth peer provide failed", "peer", peer.Connector.Name(), "key", key, "error", err)
			p.engine.recordFanout(ctx, peer.Connector.Name(), false)
			continue
		}
		if peer.Direction.allowsToPersistence() {
			underlyingConsumer, ok := p.underlying.(connector.Consumer)
			if !ok {
				continue
			}
			transformed, err := transformTo(peer.Mapper, fresh)
			if err != nil {
				slog.Warn("sync: ground truth peer transform failed", "peer", peer.Connector.Name(), "key", key, "error", err)
				p.engine.recordFanout(ctx, peer.Connector.Name(), false)
				continue
			}
			if err := underlyingConsumer.Consume(ctx, key, transformed); err != nil {
				slog.Warn("sync: ground truth peer writeback failed", "peer", peer.Connector.Name(), "key", key, "error", err)
				p.engine.recordFanout(ctx, peer.Connector.Name(), false)
				continue
			}
			p.engine.recordFanout(ctx, peer.Connector.Name(), true)
		}
	}

	return provider.Provide(ctx, key)
}

// Consume writes value to persistence, then notifies every peer whose role
// is not GROUND_TRUTH and whose direction is not TO_PERSISTENCE-only.
// Reverse fan-out failures are logged per-peer and never abort the call.
func (p *PersistedConnector) Consume(ctx context.Context, key string, value any) error {
	consumer, ok := p.underlying.(connector.Consumer)
	if !ok {
		return fmt.Errorf("sync: consume %q: underlying connector is not a Consumer: %w", key, apperr.ErrMapping)
	}
	if err := consumer.Consume(ctx, key, value); err != nil {
		return err
	}

	for _, peer := range p.engine.peers(p.ci) {
		if peer.Role == GroundTruth {
			continue
		}
		if peer.Direction == ToPersistence {
			continue
		}
		peerConsumer, ok := peer.Connector.(connector.Consumer)
		if !ok {
			continue
		}
		transformed, err := transformFrom(peer.Mapper, value)
		if err != nil {
			slog.Error("sync: fan-out transform failed", "peer", peer.Connector.Name(), "key", key, "error", err)
			p.engine.recordFanout(ctx, peer.Connector.Name(), false)
			continue
		}
		if err := peerConsumer.Consume(ctx, key, transformed); err != nil {
			slog.Error("sync: fan-out consume failed", "peer", peer.Connector.Name(), "key", key, "error", err)
			p.engine.recordFanout(ctx, peer.Connector.Name(), false)
			continue
		}
		p.engine.recordFanout(ctx, peer.Connector.Name(), true)
	}
	return nil
}

// WrapSynced returns the wrapper middleware.Facade.SyncConnector installs at a
// binding's own sync target ci: a SyncedConnector around external, scoped
// to ci and reg so direct reads/writes against the connector's own
// endpoint enforce role/direction and fold into the shared persisted root.
func (e *Engine) WrapSynced(ci registry.ConnectionInfo, external connector.Connector, reg *registry.Registry, role Role, direction Direction, m mapper.Mapper) connector.Connector {
	return &SyncedConnector{ci: ci, external: external, reg: reg, role: role, direction: direction, mapper: m}
}

// SyncedConnector is the inverse of PersistedConnector (spec.md's glossary
// distinguishes the two): where PersistedConnector wraps the persistence
// side and fans writes out to peers, SyncedConnector wraps a peer's own
// connector so that traffic arriving through *that* connector's endpoint
// (e.g. a direct POST to its /connectors/{id}/value route) still honors
// its role/direction contract and lands in persistence at the right
// granularity via ApplyWrite, instead of bypassing the contract entirely.
type SyncedConnector struct {
	ci        registry.ConnectionInfo
	external  connector.Connector
	reg       *registry.Registry
	role      Role
	direction Direction
	mapper    mapper.Mapper
}

func (s *SyncedConnector) Name() string { return s.external.Name() }

func (s *SyncedConnector) Connect(ctx context.Context) error    { return s.external.Connect(ctx) }
func (s *SyncedConnector) Disconnect(ctx context.Context) error { return s.external.Disconnect(ctx) }

// Provide rejects WRITE_ONLY peers (they have nothing meaningful to read)
// and otherwise delegates straight to the external connector.
func (s *SyncedConnector) Provide(ctx context.Context, key string) (any, error) {
	if s.role == WriteOnly {
		return nil, fmt.Errorf("sync: synced connector %q has role WRITE_ONLY: %w", s.external.Name(), apperr.ErrMapping)
	}
	provider, ok := s.external.(connector.Provider)
	if !ok {
		return nil, fmt.Errorf("sync: synced connector %q is not a Provider: %w", s.external.Name(), apperr.ErrMapping)
	}
	return provider.Provide(ctx, key)
}

// Consume rejects READ_ONLY peers, then forwards to the external connector
// (if it is itself a Consumer) and, when direction allows a flow into
// persistence, folds the value into the shared persisted root at ci's
// granularity via ApplyWrite.
func (s *SyncedConnector) Consume(ctx context.Context, key string, value any) error {
	if s.role == ReadOnly {
		return fmt.Errorf("sync: synced connector %q has role READ_ONLY: %w", s.external.Name(), apperr.ErrMapping)
	}

	transformed, err := transformFrom(s.mapper, value)
	if err != nil {
		return fmt.Errorf("sync: synced connector %q: %w", s.external.Name(), err)
	}

	if consumer, ok := s.external.(connector.Consumer); ok {
		if err := consumer.Consume(ctx, key, transformed); err != nil {
			return err
		}
	}

	if !s.direction.allowsToPersistence() {
		return nil
	}
	return s.writeIntoPersistence(ctx, transformed)
}

// writeIntoPersistence locates the persisted root at ci's model level,
// applies the granular write, and stores the result back.
func (s *SyncedConnector) writeIntoPersistence(ctx context.Context, value any) error {
	modelCI := registry.ConnectionInfo{DataModelName: s.ci.DataModelName, ModelID: s.ci.ModelID}
	persisted, err := s.reg.GetConnection(modelCI)
	if err != nil {
		return fmt.Errorf("sync: synced connector %q: locate persisted root: %w", s.external.Name(), err)
	}
	provider, ok := persisted.(connector.Provider)
	if !ok {
		return fmt.Errorf("sync: synced connector %q: persisted root is not a Provider: %w", s.external.Name(), apperr.ErrMapping)
	}
	root, err := provider.Provide(ctx, s.ci.ModelID)
	if err != nil {
		return fmt.Errorf("sync: synced connector %q: read persisted root: %w", s.external.Name(), err)
	}
	updated, err := ApplyWrite(s.ci, root, value)
	if err != nil {
		return fmt.Errorf("sync: synced connector %q: %w", s.external.Name(), err)
	}
	consumer, ok := persisted.(connector.Consumer)
	if !ok {
		return fmt.Errorf("sync: synced connector %q: persisted root is not a Consumer: %w", s.external.Name(), apperr.ErrMapping)
	}
	return consumer.Consume(ctx, s.ci.ModelID, updated)
}

func transformTo(m mapper.Mapper, v any) (any, error) {
	if m == nil {
		return v, nil
	}
	return m.ToExternal(v)
}

func transformFrom(m mapper.Mapper, v any) (any, error) {
	if m == nil {
		return v, nil
	}
	return m.FromExternal(v)
}
