// Package restapi implements the REST router generator of spec.md §4.I: for
// each top-level type in a data model's type graph it emits CRUD routes,
// plus nested sub-attribute and raw blob/file routes. Grounded on the
// teacher's internal/server handler style (response.go's httpResponse
// helpers, net/http.HandlerFunc methods reading path values via
// r.PathValue, routes mounted through github.com/rakunlabs/ada groups),
// generalized from a fixed set of hand-written handlers to handlers
// synthesized per registered type.
package restapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rakunlabs/aasmw/internal/apperr"
	"github.com/rakunlabs/aasmw/internal/connector"
	"github.com/rakunlabs/aasmw/internal/datamodel"
	"github.com/rakunlabs/aasmw/internal/entity"
	"github.com/rakunlabs/aasmw/internal/reference"
	"github.com/rakunlabs/aasmw/internal/registry"
	"github.com/rakunlabs/aasmw/internal/registry/memory"
	"github.com/rakunlabs/aasmw/internal/telemetry"
	"github.com/rakunlabs/aasmw/internal/workflow"
)

// counters holds the ambient telemetry counters of SPEC_FULL.md §9; nil
// until SetCounters is called, in which case instrumentation is a no-op.
var counters *telemetry.Counters

// SetCounters attaches the ambient telemetry counters: every request the
// generated router serves increments aasmw.rest.requests, labeled by the
// registered type name and response status.
func SetCounters(c *telemetry.Counters) { counters = c }

// statusRecorder captures the status code a handler wrote, for labeling
// the request counter after the handler returns.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument wraps h so that, on return, it increments aasmw.rest.requests
// labeled by typeName and the response's HTTP status.
func instrument(typeName string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if counters == nil || counters.RESTRequests == nil {
			h(w, req)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, req)
		counters.RESTRequests.Add(req.Context(), 1, metric.WithAttributes(
			attribute.String("type", typeName),
			attribute.String("status", strconv.Itoa(rec.status)),
		))
	}
}

// Router is the subset of github.com/rakunlabs/ada's Group/Server method
// set the generator needs. *ada.Group and *ada.Server both satisfy it
// structurally, so callers pass mux.Group("/api") straight through.
type Router interface {
	GET(pattern string, handler http.HandlerFunc)
	POST(pattern string, handler http.HandlerFunc)
	PUT(pattern string, handler http.HandlerFunc)
	DELETE(pattern string, handler http.HandlerFunc)
}

// statusFor maps an apperr kind to a REST status code per spec.md §7.
func statusFor(err error) int {
	switch apperr.Classify(err) {
	case apperr.StatusBadRequest:
		return http.StatusBadRequest
	case apperr.StatusNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}

func writeError(w http.ResponseWriter, err error) {
	writeMessage(w, statusFor(err), err.Error())
}

// RegisterDataModel emits, for each top-level type registered in dm's type
// graph, the CRUD routes and nested sub-attribute/blob routes of spec.md
// §4.I, mounted under basePath on r. reg is optional: when non-nil, every
// route resolves a ConnectionInfo and routes reads/writes through it (so a
// POST/PUT/DELETE fans out to synced peers exactly like a direct
// registry/sync caller would, per spec.md:34's control-flow); when nil the
// routes fall back to operating on dm directly, matching the teacher's
// simpler store-backed CRUD shape for callers with no registry wired up.
func RegisterDataModel(r Router, basePath string, dm *datamodel.DataModel, reg *registry.Registry) {
	tg := dm.TypeGraph()
	for _, typeName := range tg.TypeNames() {
		registerType(r, basePath, dm, typeName, reg)
	}
}

func registerType(r Router, basePath string, dm *datamodel.DataModel, typeName string, reg *registry.Registry) {
	tg := dm.TypeGraph()
	prefix := basePath + "/" + typeName

	r.GET(prefix+"/", instrument(typeName, listHandler(dm, typeName, reg)))
	r.POST(prefix+"/", instrument(typeName, createHandler(dm, typeName, reg)))
	r.GET(prefix+"/{id}", instrument(typeName, getHandler(dm, typeName, reg)))
	r.PUT(prefix+"/{id}", instrument(typeName, updateHandler(dm, typeName, reg)))
	r.DELETE(prefix+"/{id}", instrument(typeName, deleteHandler(dm, reg)))

	for _, f := range tg.Fields(typeName) {
		if f.Kind != reference.ASSOCIATION || f.Slice {
			continue
		}
		attrPrefix := prefix + "/{id}/" + f.Name
		r.GET(attrPrefix, instrument(typeName, getAttrHandler(dm, f.Name)))
		r.PUT(attrPrefix, instrument(typeName, putAttrHandler(dm, f.Name, reg)))
		if f.Optional {
			r.POST(attrPrefix, instrument(typeName, postAttrHandler(dm, f.Name, reg)))
			r.DELETE(attrPrefix, instrument(typeName, deleteAttrHandler(dm, f.Name, reg)))
		}
		r.GET(attrPrefix+"/{subPath...}", instrument(typeName, rawBlobHandler(dm, f.Name)))
	}
}

// modelCI derives the top-level ConnectionInfo LoadDataModel would have
// registered id's persistence connector under, so the REST layer addresses
// the exact same connection point.
func modelCI(dm *datamodel.DataModel, id, typeName string) registry.ConnectionInfo {
	return registry.ConnectionInfo{DataModelName: dm.Name, ModelID: id, ModelType: typeName}
}

// ensureConnection resolves ci's connector, lazily registering an
// in-memory one seeded with seed if nothing is registered yet — mirroring
// middleware.Facade.LoadDataModel's own lazy-seeding factory, so a model
// created through REST (rather than load_data_model) still gets a
// persistence connector other synced peers can bind against.
func ensureConnection(ctx context.Context, reg *registry.Registry, ci registry.ConnectionInfo, seed any) (connector.Connector, error) {
	if c, err := reg.GetConnection(ci); err == nil {
		return c, nil
	}
	factory := func(ctx context.Context, ci registry.ConnectionInfo) (connector.Connector, error) {
		c := memory.New(ci.ModelID)
		if seed != nil {
			if err := c.Consume(ctx, ci.ModelID, seed); err != nil {
				return nil, err
			}
		}
		return c, nil
	}
	return reg.AddToPersistence(ctx, ci, factory)
}

// readThrough resolves id's ConnectionInfo and pulls its value via the
// registry (so a GROUND_TRUTH peer gets consulted), falling back to dm's
// own index when reg is nil or no connector is registered yet for id.
func readThrough(ctx context.Context, reg *registry.Registry, dm *datamodel.DataModel, id string) (any, bool) {
	if reg != nil {
		ci := registry.ConnectionInfo{DataModelName: dm.Name, ModelID: id}
		if c, err := reg.GetConnection(ci); err == nil {
			if provider, ok := c.(connector.Provider); ok {
				if v, err := provider.Provide(ctx, id); err == nil {
					return v, true
				}
			}
		}
	}
	return dm.GetModel(id)
}

func listHandler(dm *datamodel.DataModel, typeName string, reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		values := dm.GetModelsOfTypeName(typeName)
		out := make([]any, 0, len(values))
		for _, v := range values {
			resolved := v
			if id, err := entity.ID(v); err == nil {
				if fresh, ok := readThrough(req.Context(), reg, dm, id); ok {
					resolved = fresh
				}
			}
			out = append(out, stripBlobs(resolved))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func createHandler(dm *datamodel.DataModel, typeName string, reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		t, ok := dm.TypeGraph().Type(typeName)
		if !ok {
			writeMessage(w, http.StatusInternalServerError, fmt.Sprintf("no registered type %q", typeName))
			return
		}

		ptr := reflect.New(t)
		if err := json.NewDecoder(req.Body).Decode(ptr.Interface()); err != nil {
			writeMessage(w, http.StatusBadRequest, fmt.Sprintf("decode body: %v", err))
			return
		}
		// Stored as a pointer, not a value: spec.md §5's shared-resource
		// policy requires entities be mutable references visible to every
		// holder, which putAttrHandler/clearFieldByName rely on.
		v := ptr.Interface()

		if id, err := entity.ID(v); err == nil {
			if _, exists := dm.GetModel(id); exists {
				writeMessage(w, http.StatusBadRequest, fmt.Sprintf("%s %q already exists", typeName, id))
				return
			}
		}

		if err := dm.AddModel(v); err != nil {
			writeError(w, err)
			return
		}

		if reg != nil {
			id, err := entity.ID(v)
			if err == nil {
				ci := modelCI(dm, id, typeName)
				c, err := ensureConnection(req.Context(), reg, ci, v)
				if err != nil {
					writeError(w, err)
					return
				}
				if consumer, ok := c.(connector.Consumer); ok {
					if err := consumer.Consume(req.Context(), id, v); err != nil {
						writeError(w, err)
						return
					}
				}
			}
		}

		writeJSON(w, http.StatusOK, stripBlobs(v))
	}
}

func getHandler(dm *datamodel.DataModel, typeName string, reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		id := req.PathValue("id")
		v, ok := readThrough(req.Context(), reg, dm, id)
		if !ok {
			writeError(w, fmt.Errorf("%s: %w", id, apperr.ErrKeyNotFound))
			return
		}
		writeJSON(w, http.StatusOK, stripBlobs(v))
	}
}

// updateHandler implements PUT /{T}/{id}: idempotent on an equal body, and
// re-persists under a new id (deleting the old one) when the body's
// identifier field differs from the path id, per spec.md §4.I.
func updateHandler(dm *datamodel.DataModel, typeName string, reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		id := req.PathValue("id")
		existing, ok := dm.GetModel(id)
		if !ok {
			writeError(w, fmt.Errorf("%s: %w", id, apperr.ErrKeyNotFound))
			return
		}

		t, ok := dm.TypeGraph().Type(typeName)
		if !ok {
			writeMessage(w, http.StatusInternalServerError, fmt.Sprintf("no registered type %q", typeName))
			return
		}
		ptr := reflect.New(t)
		if err := json.NewDecoder(req.Body).Decode(ptr.Interface()); err != nil {
			writeMessage(w, http.StatusBadRequest, fmt.Sprintf("decode body: %v", err))
			return
		}
		// Kept as a pointer, matching how existing was stored, so
		// reflect.DeepEqual compares pointed-to contents rather than
		// the pointer values themselves.
		updated := ptr.Interface()

		if reflect.DeepEqual(existing, updated) {
			writeMessage(w, http.StatusOK, "already up to date")
			return
		}

		// Re-persist under the (possibly new) identifier and drop the old
		// entry, per spec.md §4.I's "if id changes, re-persist under new
		// id and delete old" — applied unconditionally since an in-place
		// replace with an unchanged id is equivalent to delete+re-add.
		if err := dm.RemoveModel(id, true); err != nil {
			writeError(w, err)
			return
		}
		if err := dm.AddModel(updated); err != nil {
			writeError(w, err)
			return
		}

		if reg != nil {
			newID, err := entity.ID(updated)
			if err == nil {
				if newID != id {
					if err := reg.RemoveConnection(req.Context(), registry.ConnectionInfo{DataModelName: dm.Name, ModelID: id}); err != nil {
						slog.Warn("restapi: remove stale connection failed", "id", id, "error", err)
					}
				}
				ci := modelCI(dm, newID, typeName)
				c, err := ensureConnection(req.Context(), reg, ci, updated)
				if err != nil {
					writeError(w, err)
					return
				}
				if consumer, ok := c.(connector.Consumer); ok {
					if err := consumer.Consume(req.Context(), newID, updated); err != nil {
						writeError(w, err)
						return
					}
				}
			}
		}

		writeJSON(w, http.StatusOK, stripBlobs(updated))
	}
}

func deleteHandler(dm *datamodel.DataModel, reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		id := req.PathValue("id")
		cascade := req.URL.Query().Get("cascade") == "true"
		if err := dm.RemoveModel(id, cascade); err != nil {
			writeError(w, err)
			return
		}
		if reg != nil {
			ci := registry.ConnectionInfo{DataModelName: dm.Name, ModelID: id}
			if err := reg.RemoveConnection(req.Context(), ci); err != nil {
				slog.Warn("restapi: remove connection on delete failed", "id", id, "error", err)
			}
		}
		writeMessage(w, http.StatusOK, fmt.Sprintf("%s deleted", id))
	}
}

// ─── Sub-attribute routes ───

func getAttrHandler(dm *datamodel.DataModel, attr string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		root, ok := dm.GetModel(req.PathValue("id"))
		if !ok {
			writeError(w, fmt.Errorf("%s: %w", req.PathValue("id"), apperr.ErrKeyNotFound))
			return
		}
		v, err := fieldValue(root, attr)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stripBlobs(v))
	}
}

// propagate pushes root (already mutated in place) through the registry's
// model-level connector for id, when one is already registered, so a
// sub-attribute write fans out to synced peers exactly like a top-level
// PUT does. A missing connection is not an error: attribute routes do not
// presuppose the model is under sync control.
func propagate(ctx context.Context, reg *registry.Registry, dm *datamodel.DataModel, id string, root any) error {
	if reg == nil {
		return nil
	}
	ci := registry.ConnectionInfo{DataModelName: dm.Name, ModelID: id}
	c, err := reg.GetConnection(ci)
	if err != nil {
		return nil
	}
	consumer, ok := c.(connector.Consumer)
	if !ok {
		return nil
	}
	return consumer.Consume(ctx, id, root)
}

func putAttrHandler(dm *datamodel.DataModel, attr string, reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		id := req.PathValue("id")
		root, ok := dm.GetModel(id)
		if !ok {
			writeError(w, fmt.Errorf("%s: %w", id, apperr.ErrKeyNotFound))
			return
		}

		current, err := fieldValue(root, attr)
		if err != nil {
			writeError(w, err)
			return
		}

		ptr := reflect.New(reflect.TypeOf(current))
		if err := json.NewDecoder(req.Body).Decode(ptr.Interface()); err != nil {
			writeMessage(w, http.StatusBadRequest, fmt.Sprintf("decode body: %v", err))
			return
		}
		newValue := ptr.Elem().Interface()

		if reflect.DeepEqual(current, newValue) {
			writeMessage(w, http.StatusOK, "already up to date")
			return
		}

		if err := setFieldByName(root, attr, newValue); err != nil {
			writeError(w, err)
			return
		}
		if err := propagate(req.Context(), reg, dm, id, root); err != nil {
			writeError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "updated")
	}
}

func postAttrHandler(dm *datamodel.DataModel, attr string, reg *registry.Registry) http.HandlerFunc {
	return putAttrHandler(dm, attr, reg)
}

func deleteAttrHandler(dm *datamodel.DataModel, attr string, reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		id := req.PathValue("id")
		root, ok := dm.GetModel(id)
		if !ok {
			writeError(w, fmt.Errorf("%s: %w", id, apperr.ErrKeyNotFound))
			return
		}
		if err := clearFieldByName(root, attr); err != nil {
			writeError(w, err)
			return
		}
		if err := propagate(req.Context(), reg, dm, id, root); err != nil {
			writeError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "cleared")
	}
}

// rawBlobHandler streams a File/Blob reached via subPath under attr, per
// spec.md §4.I's raw blob/file route.
func rawBlobHandler(dm *datamodel.DataModel, attr string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		root, ok := dm.GetModel(req.PathValue("id"))
		if !ok {
			writeError(w, fmt.Errorf("%s: %w", req.PathValue("id"), apperr.ErrKeyNotFound))
			return
		}
		attrValue, err := fieldValue(root, attr)
		if err != nil {
			writeError(w, err)
			return
		}

		subPath := strings.Trim(req.PathValue("subPath"), "/")
		segments := []string{}
		if subPath != "" {
			segments = strings.Split(subPath, "/")
		}
		leaf, err := resolvePath(attrValue, segments)
		if err != nil {
			writeError(w, err)
			return
		}

		switch b := leaf.(type) {
		case entity.File:
			resp, err := http.Get(b.Path)
			if err != nil {
				writeError(w, fmt.Errorf("restapi: fetch file %q: %w", b.Path, apperr.ErrConnection))
				return
			}
			defer resp.Body.Close()
			w.Header().Set("Content-Type", b.MediaType)
			io.Copy(w, resp.Body)
		case entity.Blob:
			w.Header().Set("Content-Type", b.MediaType)
			w.Write(b.Content)
		default:
			writeMessage(w, http.StatusBadRequest, "subPath does not resolve to a File or Blob")
		}
	}
}

// ─── Connector endpoints (spec.md §6 "Connector endpoints") ───

// ConnectorDescription mirrors spec.md §6's connector description payload.
type ConnectorDescription struct {
	ConnectorID          string `json:"connector_id"`
	ConnectorType        string `json:"connector_type"`
	PersistenceConnected bool   `json:"persistence_connection"`
	ModelType            string `json:"model_type,omitempty"`
}

// RegisterConnectorEndpoints emits GET .../description, GET .../value
// (Provider), and POST .../value (Consumer) for every connection point
// registered in reg, keyed by its ConnectionInfo's field/model/data-model
// id, per spec.md §6.
func RegisterConnectorEndpoints(r Router, basePath string, reg *registry.Registry) {
	for _, ci := range reg.Connections() {
		ci := ci
		c, err := reg.GetConnection(ci)
		if err != nil {
			continue
		}

		id := ci.EndpointID()
		prefix := basePath + "/connectors/" + id

		r.GET(prefix+"/description", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, ConnectorDescription{
				ConnectorID:          id,
				ConnectorType:        fmt.Sprintf("%T", c),
				PersistenceConnected: true,
				ModelType:            ci.ModelType,
			})
		})

		if p, ok := c.(connector.Provider); ok {
			r.GET(prefix+"/value", func(w http.ResponseWriter, req *http.Request) {
				v, err := p.Provide(req.Context(), id)
				if err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, v)
			})
		}

		if cons, ok := c.(connector.Consumer); ok {
			r.POST(prefix+"/value", func(w http.ResponseWriter, req *http.Request) {
				var body any
				if req.ContentLength != 0 {
					if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
						writeMessage(w, http.StatusBadRequest, fmt.Sprintf("decode body: %v", err))
						return
					}
				}
				if err := cons.Consume(req.Context(), id, body); err != nil {
					writeError(w, err)
					return
				}
				writeMessage(w, http.StatusOK, "ok")
			})
		}
	}
}

// ─── Workflow endpoints (spec.md §6 "Workflow endpoints") ───

// RegisterWorkflowEndpoints emits execute/execute_background/description/
// interrupt routes for every workflow registered in engine, per spec.md §6.
func RegisterWorkflowEndpoints(r Router, basePath string, engine *workflow.Engine) {
	for _, desc := range engine.Describe() {
		name := desc.Name
		prefix := basePath + "/workflows/" + name

		r.POST(prefix+"/execute", func(w http.ResponseWriter, req *http.Request) {
			var args []any
			if req.ContentLength != 0 {
				_ = json.NewDecoder(req.Body).Decode(&args)
			}
			result, err := engine.Execute(req.Context(), name, args)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
		})

		r.POST(prefix+"/execute_background", func(w http.ResponseWriter, req *http.Request) {
			var args []any
			if req.ContentLength != 0 {
				_ = json.NewDecoder(req.Body).Decode(&args)
			}
			msg, err := engine.ExecuteBackground(req.Context(), name, args)
			if err != nil {
				writeError(w, err)
				return
			}
			writeMessage(w, http.StatusOK, msg)
		})

		r.GET(prefix+"/description", func(w http.ResponseWriter, req *http.Request) {
			wf, ok := engine.Get(name)
			if !ok {
				writeError(w, fmt.Errorf("workflow %q: %w", name, apperr.ErrKeyNotFound))
				return
			}
			writeJSON(w, http.StatusOK, wf.Describe())
		})

		r.GET(prefix+"/interrupt", func(w http.ResponseWriter, req *http.Request) {
			if err := engine.Interrupt(name); err != nil {
				writeError(w, err)
				return
			}
			writeMessage(w, http.StatusOK, "interrupted")
		})
	}
}

// ─── reflection helpers ───

func fieldValue(root any, name string) (any, error) {
	v := derefStruct(reflect.ValueOf(root))
	if !v.IsValid() {
		return nil, fmt.Errorf("restapi: field %q: nil root: %w", name, apperr.ErrMapping)
	}
	f := v.FieldByName(name)
	if !f.IsValid() {
		return nil, fmt.Errorf("restapi: no such field %q: %w", name, apperr.ErrKeyNotFound)
	}
	return f.Interface(), nil
}

func setFieldByName(root any, name string, value any) error {
	v := derefStruct(reflect.ValueOf(root))
	f := v.FieldByName(name)
	if !f.IsValid() || !f.CanSet() {
		return fmt.Errorf("restapi: no such settable field %q: %w", name, apperr.ErrMapping)
	}
	nv := reflect.ValueOf(value)
	if !nv.Type().AssignableTo(f.Type()) {
		return fmt.Errorf("restapi: field %q: type %s not assignable to %s: %w", name, nv.Type(), f.Type(), apperr.ErrMapping)
	}
	f.Set(nv)
	return nil
}

func clearFieldByName(root any, name string) error {
	v := derefStruct(reflect.ValueOf(root))
	f := v.FieldByName(name)
	if !f.IsValid() || !f.CanSet() {
		return fmt.Errorf("restapi: no such settable field %q: %w", name, apperr.ErrMapping)
	}
	if f.Kind() != reflect.Ptr {
		return fmt.Errorf("restapi: field %q is not optional: %w", name, apperr.ErrMapping)
	}
	f.Set(reflect.Zero(f.Type()))
	return nil
}

func derefStruct(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// resolvePath walks segments (exported field names, split on '/' by the caller)
// from root, returning the final value reached.
func resolvePath(root any, segments []string) (any, error) {
	cur := root
	for _, seg := range segments {
		v, err := fieldValue(cur, seg)
		if err != nil {
			return nil, err
		}
		cur = v
	}
	return cur, nil
}

// stripBlobs returns a copy of v with every entity.Blob.Content zeroed, per
// spec.md §4.I's "blob contents are stripped from JSON responses" rule.
func stripBlobs(v any) any {
	rv := reflect.ValueOf(v)
	cloned := cloneAndStrip(rv)
	if !cloned.IsValid() {
		return v
	}
	return cloned.Interface()
}

func cloneAndStrip(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return v
		}
		inner := cloneAndStrip(v.Elem())
		out := reflect.New(inner.Type())
		out.Elem().Set(inner)
		return out
	case reflect.Struct:
		if v.Type() == reflect.TypeOf(entity.Blob{}) {
			b := v.Interface().(entity.Blob)
			b.Content = nil
			return reflect.ValueOf(b)
		}
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			out.Field(i).Set(cloneAndStrip(v.Field(i)))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneAndStrip(v.Index(i)))
		}
		return out
	default:
		return v
	}
}
