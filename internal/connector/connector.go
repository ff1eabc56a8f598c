// Package connector defines the capability interfaces of spec.md §4.D: a
// connector is any external system the middleware can exchange data with,
// described by which of Provider/Consumer/Receiver/Publisher/Subscriber it
// implements rather than by a single fixed interface. Grounded on the
// teacher's provider abstraction (pkg/openai-compatible/provider.go defines
// a narrow per-capability interface per backend rather than one god
// interface), generalized from "LLM provider" to "external system".
package connector

import "context"

// Connector is the lifecycle every concrete connector satisfies.
// Capability interfaces below are checked with a type assertion against the
// concrete value, mirroring the teacher's per-request capability probing.
type Connector interface {
	Name() string
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Provider pulls a single entity snapshot from the external system, keyed by
// connector-specific identifier. Used by the sync engine's "pull" direction.
type Provider interface {
	Connector
	Provide(ctx context.Context, key string) (any, error)
}

// Consumer pushes a single entity snapshot to the external system. Used by
// the sync engine's "push" direction and PersistedConnector fan-out.
type Consumer interface {
	Connector
	Consume(ctx context.Context, key string, value any) error
}

// Receiver delivers a stream of inbound change events until ctx is
// cancelled. Used by the sync engine's event-driven pull direction.
type Receiver interface {
	Connector
	Receive(ctx context.Context) (<-chan Event, error)
}

// Publisher emits an outbound change event. Used for fan-out notification
// connectors (chat/email channels) that are write-only.
type Publisher interface {
	Connector
	Publish(ctx context.Context, event Event) error
}

// Subscriber registers a callback invoked for every inbound event,
// complementing Receiver for connectors whose SDK is push-based rather than
// channel-based (e.g. bot frameworks with their own dispatch loop).
type Subscriber interface {
	Connector
	Subscribe(ctx context.Context, handler func(Event)) error
}

// Event is one inbound or outbound change notification, keyed like the data
// model's identifiers so the sync engine can resolve it to an entity.
type Event struct {
	Key     string
	Value   any
	Deleted bool
}
