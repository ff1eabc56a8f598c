// Package vector implements a Provider/Consumer connector backed by a
// Milvus collection, for entities whose mapper.Formatter produces an
// embedding vector alongside a primary key. There is no teacher precedent
// for a vector-store connector; the client construction style (single
// client, Connect/Disconnect lifecycle, context-scoped calls) follows the
// Connect/Disconnect shape of internal/connector/httpconn and
// internal/connector/email so all connector.Connector implementations stay
// uniform.
package vector

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/rakunlabs/aasmw/internal/apperr"
)

// Config configures the Milvus collection this connector reads and writes.
type Config struct {
	Address        string
	Collection     string
	VectorField    string
	PrimaryKeyName string
}

// Record is the value exchanged with Provide/Consume: a primary key plus
// its embedding.
type Record struct {
	Key    string
	Vector []float32
}

type Connector struct {
	name string
	cfg  Config
	cli  client.Client
}

func New(name string, cfg Config) *Connector {
	return &Connector{name: name, cfg: cfg}
}

func (c *Connector) Name() string { return c.name }

func (c *Connector) Connect(ctx context.Context) error {
	cli, err := client.NewClient(ctx, client.Config{Address: c.cfg.Address})
	if err != nil {
		return fmt.Errorf("vector: connect: %w", apperr.ErrConnection)
	}
	c.cli = cli
	return nil
}

func (c *Connector) Disconnect(_ context.Context) error {
	if c.cli == nil {
		return nil
	}
	err := c.cli.Close()
	c.cli = nil
	if err != nil {
		return fmt.Errorf("vector: disconnect: %w", err)
	}
	return nil
}

// Consume upserts a Record's embedding into the collection keyed by its
// primary key.
func (c *Connector) Consume(ctx context.Context, key string, value any) error {
	rec, ok := value.(Record)
	if !ok {
		return fmt.Errorf("vector: consume %q: %w", key, apperr.ErrMapping)
	}
	if c.cli == nil {
		return fmt.Errorf("vector: consume %q: %w", key, apperr.ErrNotRunning)
	}

	pkColumn := entity.NewColumnVarChar(c.cfg.PrimaryKeyName, []string{rec.Key})
	vecColumn := entity.NewColumnFloatVector(c.cfg.VectorField, len(rec.Vector), [][]float32{rec.Vector})

	if _, err := c.cli.Upsert(ctx, c.cfg.Collection, "", pkColumn, vecColumn); err != nil {
		return fmt.Errorf("vector: consume %q: %w", key, apperr.ErrConnection)
	}
	return nil
}

// Provide looks up the record whose primary key equals key and returns the
// query result holding its stored vector field. It runs no similarity or
// nearest-neighbor search.
func (c *Connector) Provide(ctx context.Context, key string) (any, error) {
	if c.cli == nil {
		return nil, fmt.Errorf("vector: provide %q: %w", key, apperr.ErrNotRunning)
	}

	expr := fmt.Sprintf("%s == \"%s\"", c.cfg.PrimaryKeyName, key)
	results, err := c.cli.Query(ctx, c.cfg.Collection, nil, expr, []string{c.cfg.VectorField})
	if err != nil {
		return nil, fmt.Errorf("vector: provide %q: %w", key, apperr.ErrConnection)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("vector: provide %q: %w", key, apperr.ErrKeyNotFound)
	}
	return results, nil
}
