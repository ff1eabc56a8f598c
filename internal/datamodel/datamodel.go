// Package datamodel implements the typed data-model graph of spec.md §3/§4.C:
// a container of entities indexed by id, type, and reachability, with an
// instance graph and a type graph. Grounded on the teacher's Registry
// pattern (internal/service/workflow/node.go's Registry holds shared
// indices behind a mutex) generalized from a single execution's scope to
// the whole-process data model's scope.
package datamodel

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/rakunlabs/aasmw/internal/apperr"
	"github.com/rakunlabs/aasmw/internal/entity"
	"github.com/rakunlabs/aasmw/internal/reference"
)

// DataModel holds the five indices and two graph views of spec.md §3.
type DataModel struct {
	Name string

	mu sync.RWMutex

	byID       map[string]any
	byTypeName map[string][]string
	topLevel   map[string]struct{}
	refBy      map[string][]string // referenced-by: id -> ids referencing it
	refTo      map[string][]string // referring-to: id -> ids it references
	edges      []reference.Info

	typeGraph *TypeGraph
}

// New creates an empty data model named name.
func New(name string) *DataModel {
	return &DataModel{
		Name:       name,
		byID:       make(map[string]any),
		byTypeName: make(map[string][]string),
		topLevel:   make(map[string]struct{}),
		refBy:      make(map[string][]string),
		refTo:      make(map[string][]string),
		typeGraph:  NewTypeGraph(),
	}
}

// FromModels bulk-ingests instances as top-level roots, per spec.md §4.C.
func FromModels(name string, instances ...any) (*DataModel, error) {
	dm := New(name)
	if err := dm.LoadModels(instances...); err != nil {
		return nil, err
	}
	return dm, nil
}

// FromModelTypes bulk-ingests bare type descriptors (no instances), building
// the type graph only. Supplemented per SPEC_FULL.md §11 ("submodel
// template import"): lets the GraphQL/REST generators run before any
// instance exists.
func FromModelTypes(name string, types ...reflect.Type) *DataModel {
	dm := New(name)
	for _, t := range types {
		dm.typeGraph.AddType(t)
	}
	return dm
}

// LoadModel adds a single top-level instance.
func (dm *DataModel) LoadModel(root any) error {
	return dm.LoadModels(root)
}

// LoadModels ingests instances as top-level roots: traversal + normalization
// occur once per call, per spec.md §4.C's lifecycle note.
func (dm *DataModel) LoadModels(instances ...any) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	for _, root := range instances {
		rootID := entity.IDWithPatch(root)
		if err := dm.ingest(root, rootID, true); err != nil {
			return err
		}
		dm.typeGraph.AddType(reflect.TypeOf(root))
	}
	return nil
}

// ingest adds root (and everything reachable from it) to the indices,
// applying identity-unification normalization on id collisions, per
// spec.md §4.C invariants 2/3.
func (dm *DataModel) ingest(root any, rootID string, isTopLevel bool) error {
	contained, edges := reference.Find(root)

	if _, err := dm.put(rootID, root); err != nil {
		return err
	}
	if isTopLevel {
		dm.topLevel[rootID] = struct{}{}
	}

	for _, child := range contained {
		childID := entity.IDWithPatch(child)
		if _, err := dm.put(childID, child); err != nil {
			return err
		}
		dm.typeGraph.AddType(reflect.TypeOf(child))
	}

	// Normalization rule (spec.md §4.C): a duplicate-but-equal id collision
	// in put() keeps the first-ingested instance canonical and leaves the
	// freshly-walked duplicate discarded. Any field under root that still
	// holds that discarded duplicate is rewritten here to reference the
	// canonical instance instead, so identity (and therefore later in-place
	// mutation) is unified across every holder of the same id.
	normalizeReferences(root, dm.byID)

	for _, e := range edges {
		dm.edges = append(dm.edges, e)
		dm.refTo[e.FromID] = appendUnique(dm.refTo[e.FromID], e.ToID)
		dm.refBy[e.ToID] = appendUnique(dm.refBy[e.ToID], e.FromID)
	}

	return nil
}

// put stores id->value, applying invariants 2/3: conflicting values with
// the same id fail ingestion; equal values are normalized to the single
// already-stored instance.
func (dm *DataModel) put(id string, v any) (any, error) {
	if existing, ok := dm.byID[id]; ok {
		if !valuesEqual(existing, v) {
			return nil, fmt.Errorf("datamodel: id %q: %w", id, apperr.ErrDuplicateIDWithConflict)
		}
		return existing, nil
	}
	dm.byID[id] = v
	typeName := typeNameOf(v)
	dm.byTypeName[typeName] = appendUnique(dm.byTypeName[typeName], id)
	return v, nil
}

func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// normalizeReferences walks every field reachable from root and, for each
// identifiable descendant, rewrites the field to byID's canonical instance
// for that id whenever the two differ, per spec.md §4.C's normalization
// rule. Mirrors internal/reference.Find's traversal shape (container
// flattening, visited-id cycle guard) but mutates instead of collecting.
func normalizeReferences(root any, byID map[string]any) {
	visited := map[string]struct{}{}
	var walk func(reflect.Value)
	walk = func(v reflect.Value) {
		for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
			if v.IsNil() {
				return
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return
		}
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			normalizeField(v.Field(i), byID, visited, walk)
		}
	}
	walk(reflect.ValueOf(root))
}

func normalizeField(fv reflect.Value, byID map[string]any, visited map[string]struct{}, walk func(reflect.Value)) {
	underlying := fv
	for underlying.Kind() == reflect.Ptr || underlying.Kind() == reflect.Interface {
		if underlying.IsNil() {
			return
		}
		underlying = underlying.Elem()
	}

	switch underlying.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < underlying.Len(); i++ {
			normalizeField(underlying.Index(i), byID, visited, walk)
		}
		return
	case reflect.Map:
		iter := underlying.MapRange()
		for iter.Next() {
			normalizeField(iter.Value(), byID, visited, walk)
		}
		return
	}

	if underlying.Kind() != reflect.Struct {
		return
	}

	if entity.IsIdentifiable(underlying.Interface()) {
		id, err := entity.ID(underlying.Interface())
		if err == nil {
			if canon, ok := byID[id]; ok {
				replaceWithCanonical(fv, canon)
			}
			if _, seen := visited[id]; seen {
				return
			}
			visited[id] = struct{}{}
		}
	}

	walk(fv)
}

// replaceWithCanonical overwrites fv (a settable field currently holding a
// duplicate-but-equal entity) with canon, unifying identity so later
// in-place mutation of the canonical instance is visible through every
// field that used to hold its own copy.
func replaceWithCanonical(fv reflect.Value, canon any) {
	if !fv.CanSet() {
		return
	}
	cv := reflect.ValueOf(canon)
	switch fv.Kind() {
	case reflect.Ptr:
		if cv.Kind() == reflect.Ptr && cv.Type() == fv.Type() && fv.Pointer() != cv.Pointer() {
			fv.Set(cv)
		}
	case reflect.Struct:
		target := cv
		for target.Kind() == reflect.Ptr {
			if target.IsNil() {
				return
			}
			target = target.Elem()
		}
		if target.Type() == fv.Type() {
			fv.Set(target)
		}
	}
}

func typeNameOf(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	return t.Name()
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

// ─── Queries ───

func (dm *DataModel) GetModel(id string) (any, bool) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	v, ok := dm.byID[id]
	return v, ok
}

func (dm *DataModel) GetModelsOfTypeName(name string) []any {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	ids := dm.byTypeName[name]
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, dm.byID[id])
	}
	return out
}

func (dm *DataModel) GetModelsOfType(t reflect.Type) []any {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return nil
	}
	return dm.GetModelsOfTypeName(t.Name())
}

func (dm *DataModel) GetTopLevelModels() []any {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	out := make([]any, 0, len(dm.topLevel))
	for id := range dm.topLevel {
		out = append(out, dm.byID[id])
	}
	return out
}

func (dm *DataModel) GetContainedModels() []any {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	out := make([]any, 0, len(dm.byID))
	for id, v := range dm.byID {
		if _, isTop := dm.topLevel[id]; isTop {
			continue
		}
		out = append(out, v)
	}
	return out
}

// GetReferencingModels returns the entities that reference e (e's
// referenced-by set resolved to values).
func (dm *DataModel) GetReferencingModels(e any) ([]any, error) {
	id, err := entity.ID(e)
	if err != nil {
		return nil, err
	}
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	ids := dm.refBy[id]
	out := make([]any, 0, len(ids))
	for _, rid := range ids {
		if v, ok := dm.byID[rid]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// GetReferencedModels returns the entities e refers to.
func (dm *DataModel) GetReferencedModels(e any) ([]any, error) {
	id, err := entity.ID(e)
	if err != nil {
		return nil, err
	}
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	ids := dm.refTo[id]
	out := make([]any, 0, len(ids))
	for _, rid := range ids {
		if v, ok := dm.byID[rid]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// Edges returns a copy of the instance-graph edge list.
func (dm *DataModel) Edges() []reference.Info {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	out := make([]reference.Info, len(dm.edges))
	copy(out, dm.edges)
	return out
}

// TypeGraph returns the type-level graph view.
func (dm *DataModel) TypeGraph() *TypeGraph {
	return dm.typeGraph
}

// ─── Mutation ───

// AddModel registers a new top-level entity, running the same
// ingest+normalization path as LoadModels.
func (dm *DataModel) AddModel(v any) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	id := entity.IDWithPatch(v)
	if err := dm.ingest(v, id, true); err != nil {
		return err
	}
	dm.typeGraph.AddType(reflect.TypeOf(v))
	return nil
}

// RemoveModel removes id from the index. Refuses if id is still referenced
// as ASSOCIATION by a present entity, unless cascade is true, per
// spec.md §4.C.
func (dm *DataModel) RemoveModel(id string, cascade bool) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if _, ok := dm.byID[id]; !ok {
		return fmt.Errorf("datamodel: remove %q: %w", id, apperr.ErrKeyNotFound)
	}

	if !cascade {
		for _, e := range dm.edges {
			if e.ToID == id && e.Kind == reference.ASSOCIATION {
				if _, fromPresent := dm.byID[e.FromID]; fromPresent {
					return fmt.Errorf("datamodel: %q is still referenced by %q (ASSOCIATION); pass cascade=true", id, e.FromID)
				}
			}
		}
	}

	delete(dm.byID, id)
	delete(dm.topLevel, id)
	typeName := ""
	for name, ids := range dm.byTypeName {
		for i, x := range ids {
			if x == id {
				dm.byTypeName[name] = append(ids[:i], ids[i+1:]...)
				typeName = name
				break
			}
		}
	}
	_ = typeName
	delete(dm.refBy, id)
	delete(dm.refTo, id)

	filtered := dm.edges[:0]
	for _, e := range dm.edges {
		if e.FromID == id || e.ToID == id {
			continue
		}
		filtered = append(filtered, e)
	}
	dm.edges = filtered

	return nil
}

// Reindex updates every index entry for oldID to newID, per spec.md §5's
// shared-resource policy: after mutating an identifier field in place, the
// caller must call Reindex or subsequent lookups by newID are undefined.
func (dm *DataModel) Reindex(oldID, newID string) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	v, ok := dm.byID[oldID]
	if !ok {
		return fmt.Errorf("datamodel: reindex %q: %w", oldID, apperr.ErrKeyNotFound)
	}
	delete(dm.byID, oldID)
	dm.byID[newID] = v

	if _, ok := dm.topLevel[oldID]; ok {
		delete(dm.topLevel, oldID)
		dm.topLevel[newID] = struct{}{}
	}

	for name, ids := range dm.byTypeName {
		for i, x := range ids {
			if x == oldID {
				ids[i] = newID
				dm.byTypeName[name] = ids
			}
		}
	}

	renameID := func(ids []string) []string {
		for i, x := range ids {
			if x == oldID {
				ids[i] = newID
			}
		}
		return ids
	}
	dm.refBy[newID] = append(dm.refBy[newID], dm.refBy[oldID]...)
	delete(dm.refBy, oldID)
	dm.refTo[newID] = append(dm.refTo[newID], dm.refTo[oldID]...)
	delete(dm.refTo, oldID)
	for id, ids := range dm.refBy {
		dm.refBy[id] = renameID(ids)
	}
	for id, ids := range dm.refTo {
		dm.refTo[id] = renameID(ids)
	}
	for i := range dm.edges {
		if dm.edges[i].FromID == oldID {
			dm.edges[i].FromID = newID
		}
		if dm.edges[i].ToID == oldID {
			dm.edges[i].ToID = newID
		}
	}

	return nil
}
