package datamodel

import (
	"reflect"
	"sync"

	"github.com/rakunlabs/aasmw/internal/reference"
)

// TypeGraph is the type-level counterpart of the instance graph: nodes are
// struct type names, edges are ATTRIBUTE/ASSOCIATION/REFERENCE relations
// declared between fields, independent of any instance. Used by the REST and
// GraphQL generators to build routes/schema before any data is loaded.
type TypeGraph struct {
	mu sync.RWMutex

	fields map[string][]FieldInfo // type name -> declared fields
	seen   map[string]struct{}
	types  map[string]reflect.Type // type name -> concrete reflect.Type, for route generators that must construct fresh instances
}

// FieldInfo describes one field of a registered type.
type FieldInfo struct {
	Name     string
	TypeName string
	Kind     reference.Kind
	Slice    bool
	Optional bool // true when the field is declared as a pointer, i.e. a nil value means "absent"
}

func NewTypeGraph() *TypeGraph {
	return &TypeGraph{
		fields: make(map[string][]FieldInfo),
		seen:   make(map[string]struct{}),
		types:  make(map[string]reflect.Type),
	}
}

// AddType registers t (dereferencing pointers), walking its exported fields
// once. No-op if t is nil, not a struct, or already registered.
func (tg *TypeGraph) AddType(t reflect.Type) {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return
	}

	tg.mu.Lock()
	if _, ok := tg.seen[t.Name()]; ok {
		tg.mu.Unlock()
		return
	}
	tg.seen[t.Name()] = struct{}{}
	tg.types[t.Name()] = t

	fields := make([]FieldInfo, 0, t.NumField())
	var nested []reflect.Type
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		ft := f.Type
		optional := ft.Kind() == reflect.Ptr
		slice := false
		for ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Slice || ft.Kind() == reflect.Array {
			slice = true
			ft = ft.Elem()
			for ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
		}

		kind := reference.ATTRIBUTE
		switch {
		case ft.Name() == reference.ReferenceTypeMarker:
			kind = reference.REFERENCE
		case hasSuffixMatch(f.Name):
			kind = reference.REFERENCE
		case ft.Kind() == reflect.Struct && !isLeafTypeName(ft.Name()):
			kind = reference.ASSOCIATION
		}

		fields = append(fields, FieldInfo{
			Name:     f.Name,
			TypeName: ft.Name(),
			Kind:     kind,
			Slice:    slice,
			Optional: optional,
		})

		if ft.Kind() == reflect.Struct && !isLeafTypeName(ft.Name()) {
			nested = append(nested, ft)
		}
	}
	tg.fields[t.Name()] = fields
	tg.mu.Unlock()

	for _, nt := range nested {
		tg.AddType(nt)
	}
}

// isLeafTypeName excludes the un-identifiable leaf struct types of
// entity.IsIdentifiable (time.Time, File, Blob) from ASSOCIATION
// classification at the type-graph level.
func isLeafTypeName(name string) bool {
	switch name {
	case "Time", "File", "Blob":
		return true
	default:
		return false
	}
}

func hasSuffixMatch(fieldName string) bool {
	for _, suf := range reference.ReferenceSuffixes {
		if fieldName == suf || len(fieldName) > len(suf) && fieldName[len(fieldName)-len(suf):] == suf {
			return true
		}
	}
	return false
}

// Fields returns the declared fields of typeName.
func (tg *TypeGraph) Fields(typeName string) []FieldInfo {
	tg.mu.RLock()
	defer tg.mu.RUnlock()
	out := make([]FieldInfo, len(tg.fields[typeName]))
	copy(out, tg.fields[typeName])
	return out
}

// TypeNames returns every registered type name.
func (tg *TypeGraph) TypeNames() []string {
	tg.mu.RLock()
	defer tg.mu.RUnlock()
	out := make([]string, 0, len(tg.fields))
	for name := range tg.fields {
		out = append(out, name)
	}
	return out
}

// Type returns the concrete reflect.Type registered under typeName, used to
// construct a fresh zero-value instance (e.g. for JSON-decoding a POST body).
func (tg *TypeGraph) Type(typeName string) (reflect.Type, bool) {
	tg.mu.RLock()
	defer tg.mu.RUnlock()
	t, ok := tg.types[typeName]
	return t, ok
}

// AssociationTargets returns the type names t's ASSOCIATION fields point at,
// used by the REST generator to build nested-resource sub-routes.
func (tg *TypeGraph) AssociationTargets(typeName string) []string {
	tg.mu.RLock()
	defer tg.mu.RUnlock()
	var out []string
	for _, f := range tg.fields[typeName] {
		if f.Kind == reference.ASSOCIATION {
			out = append(out, f.TypeName)
		}
	}
	return out
}
