// Package memory implements an in-memory persistence connector, grounded on
// the teacher's Memory store (internal/store/memory/memory.go): a single
// mutex-guarded map, data does not survive process restarts. Generalized
// from many domain-specific tables to a single Value-keyed map, since the
// persistence registry addresses connectors by ConnectionInfo rather than
// by table.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/rakunlabs/aasmw/internal/apperr"
)

// Connector is a Provider+Consumer persistence connector backed by an
// in-process map.
type Connector struct {
	name string

	mu   sync.RWMutex
	data map[string]any
}

func New(name string) *Connector {
	return &Connector{name: name, data: make(map[string]any)}
}

func (c *Connector) Name() string { return c.name }

func (c *Connector) Connect(_ context.Context) error    { return nil }
func (c *Connector) Disconnect(_ context.Context) error { return nil }

func (c *Connector) Provide(_ context.Context, key string) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	if !ok {
		return nil, fmt.Errorf("memory: provide %q: %w", key, apperr.ErrKeyNotFound)
	}
	return v, nil
}

// Consume stores value under key. Passing a nil value deletes the key,
// matching spec.md §4.D's "passing null is interpreted as delete".
func (c *Connector) Consume(_ context.Context, key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value == nil {
		delete(c.data, key)
		return nil
	}
	c.data[key] = value
	return nil
}

// Keys returns a snapshot of every stored key.
func (c *Connector) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.data))
	for k := range c.data {
		out = append(out, k)
	}
	return out
}
