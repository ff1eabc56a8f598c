// Package httpconn implements a Provider/Consumer connector over plain REST,
// grounded on the teacher's httpRequestNode
// (internal/service/workflow/nodes/http-request.go): the same klient client
// construction (proxy / TLS / retry options), adapted from a one-shot
// workflow step into a standing connector whose base URL and per-entity
// path are fixed at construction instead of rendered per call.
package httpconn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/worldline-go/klient"

	"github.com/rakunlabs/aasmw/internal/apperr"
)

// Config configures the underlying klient.Client, mirroring the teacher's
// buildClient option set.
type Config struct {
	BaseURL            string
	Proxy              string
	InsecureSkipVerify bool
	Retry              bool
	Headers            map[string]string
}

// Connector is a Provider+Consumer over a REST resource collection: Provide
// issues GET {BaseURL}/{key}, Consume issues PUT {BaseURL}/{key} with a
// JSON-encoded body.
type Connector struct {
	name   string
	cfg    Config
	client *klient.Client
}

func New(name string, cfg Config) (*Connector, error) {
	opts := []klient.OptionClientFn{
		klient.WithDisableBaseURLCheck(true),
		klient.WithDisableEnvValues(true),
	}
	if cfg.Proxy != "" {
		opts = append(opts, klient.WithProxy(cfg.Proxy))
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, klient.WithInsecureSkipVerify(true))
	}
	opts = append(opts, klient.WithDisableRetry(!cfg.Retry))

	client, err := klient.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("httpconn: build client: %w", err)
	}
	return &Connector{name: name, cfg: cfg, client: client}, nil
}

func (c *Connector) Name() string { return c.name }

func (c *Connector) Connect(_ context.Context) error    { return nil }
func (c *Connector) Disconnect(_ context.Context) error { return nil }

func (c *Connector) url(key string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + key
}

// Provide fetches the entity at key via GET and decodes it as JSON.
func (c *Connector) Provide(ctx context.Context, key string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(key), nil)
	if err != nil {
		return nil, fmt.Errorf("httpconn: provide %q: %w", key, err)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpconn: provide %q: %w", key, apperr.ErrConnection)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("httpconn: provide %q: %w", key, apperr.ErrKeyNotFound)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("httpconn: provide %q: status %d: %w", key, resp.StatusCode, apperr.ErrConnection)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpconn: provide %q: read body: %w", key, err)
	}
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("httpconn: provide %q: decode: %w", key, apperr.ErrMapping)
	}
	return parsed, nil
}

// Consume pushes value to the remote system via PUT, JSON-encoded.
func (c *Connector) Consume(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("httpconn: consume %q: encode: %w", key, apperr.ErrMapping)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.url(key), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("httpconn: consume %q: %w", key, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("httpconn: consume %q: %w", key, apperr.ErrConnection)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("httpconn: consume %q: status %d: %w", key, resp.StatusCode, apperr.ErrConnection)
	}
	return nil
}
