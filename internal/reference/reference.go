// Package reference walks an entity tree and emits the (from, to, kind)
// edges described in spec.md §4.B, using the same depth-first,
// visited-id-set traversal style the teacher uses for its workflow graph
// walk (internal/service/workflow/engine.go's findDownstream/topoSort).
package reference

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/rakunlabs/aasmw/internal/entity"
)

// Kind classifies a reference edge per spec.md §3.
type Kind int

const (
	ASSOCIATION Kind = iota
	REFERENCE
	ATTRIBUTE
)

func (k Kind) String() string {
	switch k {
	case ASSOCIATION:
		return "ASSOCIATION"
	case REFERENCE:
		return "REFERENCE"
	case ATTRIBUTE:
		return "ATTRIBUTE"
	default:
		return "UNKNOWN"
	}
}

// Info is one edge of the instance or type graph.
type Info struct {
	FromID string
	ToID   string
	Kind   Kind
}

// StandardMetadataFields are excluded from REFERENCE-suffix detection, per
// spec.md §3 ("standard metadata fields {id, description, id_short,
// semantic_id} are excluded").
var StandardMetadataFields = map[string]struct{}{
	"id": {}, "Id": {}, "ID": {},
	"description": {}, "Description": {},
	"id_short": {}, "IdShort": {},
	"semantic_id": {}, "SemanticId": {}, "SemanticID": {},
}

// ReferenceSuffixes is the configurable suffix set used to detect REFERENCE
// edges by field name, per spec.md §3/§9 (Open Question: "must be
// explicitly configurable"). Checked case-sensitively against the bare
// field name and, for compound names, against the trailing suffix.
var ReferenceSuffixes = []string{
	"id", "ids", "Id", "Ids", "ID", "IDs", "Identifier", "Identifiers", "identity", "identities",
}

// ReferenceTypeName is the declared Go type name treated as a string
// identifier reference regardless of field name, matching spec.md's
// "field type Reference" rule. A field of this named type is always a
// REFERENCE edge.
type ReferenceTypeName = string

const ReferenceTypeMarker ReferenceTypeName = "Reference"

// Find walks root depth-first and returns every identifiable descendant
// (the "contained" list) plus the deduplicated edge set, per spec.md §4.B.
func Find(root any) (contained []any, edges []Info) {
	fromID := entity.IDWithPatch(root)
	visited := map[string]struct{}{fromID: {}}
	seen := map[[3]string]struct{}{}

	var contain []any
	var walk func(fromID string, v reflect.Value)
	walk = func(fromID string, v reflect.Value) {
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
			if _, excluded := StandardMetadataFields[f.Name]; excluded {
				continue
			}
			fv := v.Field(i)
			emitField(fromID, f.Name, f.Type.Name(), fv, visited, seen, &contain, walk)
		}
	}

	walk(fromID, reflect.ValueOf(root))

	edges = make([]Info, 0, len(seen))
	for k := range seen {
		edges = append(edges, Info{FromID: k[0], ToID: k[1], Kind: kindFromString(k[2])})
	}
	return contain, edges
}

func kindFromString(s string) Kind {
	switch s {
	case "ASSOCIATION":
		return ASSOCIATION
	case "REFERENCE":
		return REFERENCE
	default:
		return ATTRIBUTE
	}
}

func emitField(
	fromID, fieldName, fieldTypeName string,
	fv reflect.Value,
	visited map[string]struct{},
	seen map[[3]string]struct{},
	contain *[]any,
	walk func(string, reflect.Value),
) {
	// Flatten containers (slices, arrays, maps); nested containers recurse.
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
			emitField(fromID, fieldName, fieldTypeName, underlying.Index(i), visited, seen, contain, walk)
		}
		return
	case reflect.Map:
		iter := underlying.MapRange()
		for iter.Next() {
			emitField(fromID, fieldName, fieldTypeName, iter.Value(), visited, seen, contain, walk)
		}
		return
	}

	if !underlying.IsValid() {
		return
	}

	// String-typed field: either a declared Reference type or a
	// suffix-convention match -> REFERENCE edge. Coerce non-string scalars
	// with suffix-like names via string formatting, ignoring empty strings.
	if fieldTypeName == ReferenceTypeMarker || hasReferenceSuffix(fieldName) {
		toID, ok := coerceToID(underlying)
		if ok && toID != "" && toID != fromID {
			seen[[3]string{fromID, toID, "REFERENCE"}] = struct{}{}
		}
		return
	}

	// Identifiable descendant: ASSOCIATION edge, recurse, collect.
	if underlying.Kind() == reflect.Struct && entity.IsIdentifiable(underlying.Interface()) {
		toID := entity.IDWithPatch(underlying.Interface())
		if toID != fromID {
			seen[[3]string{fromID, toID, "ASSOCIATION"}] = struct{}{}
		}
		if _, ok := visited[toID]; !ok {
			visited[toID] = struct{}{}
			*contain = append(*contain, underlying.Interface())
			walk(toID, underlying)
		}
		return
	}

	// Plain nested struct (not identifiable itself): still walk through it
	// so identifiable grandchildren are found, but attribute to the same
	// fromID (it is not itself an entity).
	if underlying.Kind() == reflect.Struct {
		walk(fromID, underlying)
	}
}

func hasReferenceSuffix(fieldName string) bool {
	for _, suf := range ReferenceSuffixes {
		if fieldName == suf || strings.HasSuffix(fieldName, suf) {
			return true
		}
	}
	return false
}

func coerceToID(v reflect.Value) (string, bool) {
	if v.Kind() == reflect.String {
		return v.String(), true
	}
	// Non-string scalar with a suffix-like field name: coerce via fmt,
	// matching spec.md §4.B's "embedded primitives ... treated as id
	// strings via string coercion".
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fmt.Sprintf("%v", v.Interface()), true
	default:
		return "", false
	}
}
