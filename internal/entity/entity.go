// Package entity extracts stable identifiers from heterogeneous Go values
// and classifies them by capability ({has-id} x {is-container}), mirroring
// spec.md §4.A. Grounded on the teacher's reflection-light, convention-driven
// style (internal/service/schema.go walks maps/slices by type switch rather
// than full reflection-based codecs); here reflection is unavoidable since
// the data model must work over arbitrary user-defined struct types.
package entity

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rakunlabs/aasmw/internal/apperr"
)

// IdentifierFieldName is the value of the `aasmw` struct tag that marks a
// field as the declared identifier field of a type, e.g. `aasmw:"identifier"`.
const IdentifierFieldName = "identifier"

// ConventionalFieldNames lists the field names considered an identifier by
// convention (b) in spec.md §4.A, in precedence order. Open Question in
// spec.md §9 ("the identifier suffix heuristic is source-defined... must be
// configurable") is resolved here: this slice, and ReferenceSuffixes in the
// reference package, are package vars, overridable by callers.
var ConventionalFieldNames = []string{"Id", "IdShort", "ID", "Identifier", "Identity", "id", "id_short"}

// SyntheticPrefix prefixes the fallback identifier derived from a value's
// address when no declared or conventional field yields one.
const SyntheticPrefix = "id_"

// ID extracts a stable identifier from x. Precedence: declared
// identifier-typed field (struct tag `aasmw:"identifier"`) -> conventional
// field name -> failure. Returns apperr.ErrNoIdentifier if none found.
func ID(x any) (string, error) {
	v := reflect.ValueOf(x)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "", fmt.Errorf("entity: nil value: %w", apperr.ErrNoIdentifier)
		}
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return "", fmt.Errorf("entity: %s is not identifiable: %w", v.Kind(), apperr.ErrNoIdentifier)
	}

	if s, ok := fieldByTag(v); ok {
		return s, nil
	}
	if s, ok := fieldByConvention(v); ok {
		return s, nil
	}

	return "", fmt.Errorf("entity: no identifier field on %s: %w", v.Type(), apperr.ErrNoIdentifier)
}

// IDWithPatch never fails: it falls back to a synthetic id (the pointer's
// address, or a fresh ULID for non-pointer values) when no declared field
// is found.
func IDWithPatch(x any) string {
	if id, err := ID(x); err == nil {
		return id
	}
	return syntheticID(x)
}

// syntheticID builds a deterministic-enough fallback id. Pointers use their
// address (stable for the lifetime of the process, matching spec.md's
// "address-of" wording); non-pointer values use a fresh ULID, since a value
// type has no stable address to key off of.
func syntheticID(x any) string {
	v := reflect.ValueOf(x)
	if v.Kind() == reflect.Ptr && !v.IsNil() {
		return fmt.Sprintf("%s%x", SyntheticPrefix, v.Pointer())
	}
	return SyntheticPrefix + strings.ToLower(ulid.Make().String())
}

func fieldByTag(v reflect.Value) (string, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if tag, ok := f.Tag.Lookup("aasmw"); ok && tag == IdentifierFieldName {
			if s, ok := stringValue(v.Field(i)); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func fieldByConvention(v reflect.Value) (string, bool) {
	t := v.Type()
	for _, name := range ConventionalFieldNames {
		f, ok := t.FieldByName(name)
		if !ok || !f.IsExported() {
			continue
		}
		fv := v.FieldByIndex(f.Index)
		if s, ok := stringValue(fv); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func stringValue(v reflect.Value) (string, bool) {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.String {
		return v.String(), true
	}
	return "", false
}

// ─── Kind classification ───

// IsIdentifiable reports whether x is a candidate entity: not a primitive,
// time.Time, []byte, File, or Blob, and not a plain map/slice/array -- and
// resolvable to an identifier.
func IsIdentifiable(x any) bool {
	if isUnidentifiableLeaf(x) {
		return false
	}
	v := reflect.ValueOf(x)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return false
	}
	_, err := ID(x)
	return err == nil
}

// isUnidentifiableLeaf matches spec.md §4.A's un-identifiable set: scalars,
// timestamps, bytes, file/blob handles. Datetime handling follows
// original_source's datetime_datamodel_check.py: time.Time is always a leaf.
func isUnidentifiableLeaf(x any) bool {
	switch x.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		time.Time, *time.Time,
		[]byte:
		return true
	}
	v := reflect.ValueOf(x)
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return true
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	if isFileOrBlob(v) {
		return true
	}
	return false
}

// File and Blob are un-identifiable leaf handle types per spec.md §4.I/§11.
type File struct {
	Path      string `json:"path"`
	MediaType string `json:"media_type"`
}

type Blob struct {
	Content   []byte `json:"content"`
	MediaType string `json:"media_type"`
}

func isFileOrBlob(v reflect.Value) bool {
	t := v.Type()
	return t == reflect.TypeOf(File{}) || t == reflect.TypeOf(Blob{})
}

// IsIdentifiableContainer reports whether x is an ordered sequence, set, or
// mapping whose elements are all identifiable (spec.md §4.A).
func IsIdentifiableContainer(x any) bool {
	v := reflect.ValueOf(x)
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return false
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return false
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return false
		}
		for i := 0; i < v.Len(); i++ {
			if !IsIdentifiable(v.Index(i).Interface()) {
				return false
			}
		}
		return true
	case reflect.Map:
		if v.Len() == 0 {
			return false
		}
		iter := v.MapRange()
		for iter.Next() {
			if !IsIdentifiable(iter.Value().Interface()) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
