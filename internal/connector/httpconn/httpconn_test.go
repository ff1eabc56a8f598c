package httpconn

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rakunlabs/aasmw/internal/apperr"
)

func TestProvide_DecodesJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/widgets/w1" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"widget"}`))
	}))
	defer srv.Close()

	c, err := New("test", Config{BaseURL: srv.URL + "/widgets"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := c.Provide(context.Background(), "w1")
	if err != nil {
		t.Fatalf("Provide: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok || m["name"] != "widget" {
		t.Fatalf("expected decoded body, got %#v", got)
	}
}

func TestProvide_404MapsToErrKeyNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := New("test", Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Provide(context.Background(), "missing"); !errors.Is(err, apperr.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestProvide_ServerErrorMapsToErrConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New("test", Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Provide(context.Background(), "x"); !errors.Is(err, apperr.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestConsume_SendsJSONBodyViaPUT(t *testing.T) {
	var gotMethod, gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New("test", Config{BaseURL: srv.URL + "/widgets", Headers: map[string]string{"X-Api-Key": "secret"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.Consume(context.Background(), "w1", map[string]any{"name": "widget"}); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Fatalf("expected PUT, got %s", gotMethod)
	}
	if gotPath != "/widgets/w1" {
		t.Fatalf("expected /widgets/w1, got %s", gotPath)
	}
	if gotBody != `{"name":"widget"}` {
		t.Fatalf("unexpected body: %s", gotBody)
	}
}

func TestConsume_ErrorStatusMapsToErrConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New("test", Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Consume(context.Background(), "x", map[string]any{}); !errors.Is(err, apperr.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}
