package sync

import (
	"fmt"
	"reflect"

	"github.com/rakunlabs/aasmw/internal/apperr"
	"github.com/rakunlabs/aasmw/internal/entity"
	"github.com/rakunlabs/aasmw/internal/registry"
)

// ApplyWrite locates the target inside root using ci's specificity and
// returns the value that should actually be handed to Consume, per
// spec.md §4.G's granularity-of-writes rules:
//
//  1. Only ModelID set: whole-object replace -> newValue as-is.
//  2. ModelID + ContainedModelID: replace the nested identifiable by its
//     id-path.
//  3. ModelID + FieldID: set field by name on root.
//  4. ModelID + ContainedModelID + FieldID: set field of the nested
//     identifiable.
//
// root is mutated in place (matching the data model's "in-place mutation
// is visible through the indexes" rule) and the same root is returned so
// the caller can pass it straight to Consume.
func ApplyWrite(ci registry.ConnectionInfo, root any, newValue any) (any, error) {
	switch ci.Type() {
	case registry.ConnModel:
		return newValue, nil
	case registry.ConnField:
		if err := setField(root, ci.FieldID, newValue); err != nil {
			return nil, err
		}
		return root, nil
	case registry.ConnContainedModel:
		if ci.FieldID == "" {
			if err := replaceContained(root, ci.ContainedModelID, newValue); err != nil {
				return nil, err
			}
			return root, nil
		}
		target, err := findContained(root, ci.ContainedModelID)
		if err != nil {
			return nil, err
		}
		if err := setField(target, ci.FieldID, newValue); err != nil {
			return nil, err
		}
		return root, nil
	default:
		return nil, fmt.Errorf("sync: apply write: connection info %+v has no model scope: %w", ci, apperr.ErrMapping)
	}
}

func setField(target any, fieldName string, value any) error {
	v := reflect.ValueOf(target)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return fmt.Errorf("sync: set field %q: nil target: %w", fieldName, apperr.ErrMapping)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("sync: set field %q: target is not a struct: %w", fieldName, apperr.ErrMapping)
	}
	f := v.FieldByName(fieldName)
	if !f.IsValid() || !f.CanSet() {
		return fmt.Errorf("sync: set field %q: no such settable field: %w", fieldName, apperr.ErrMapping)
	}
	nv := reflect.ValueOf(value)
	if !nv.Type().AssignableTo(f.Type()) {
		return fmt.Errorf("sync: set field %q: value type %s not assignable to %s: %w", fieldName, nv.Type(), f.Type(), apperr.ErrMapping)
	}
	f.Set(nv)
	return nil
}

// findContained walks root's fields looking for the identifiable descendant
// whose id matches containedID, matching the depth-first style of
// internal/reference.Find.
func findContained(root any, containedID string) (any, error) {
	var found any
	var walk func(reflect.Value)
	walk = func(v reflect.Value) {
		if found != nil {
			return
		}
		for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
			if v.IsNil() {
				return
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return
		}
		if entity.IsIdentifiable(v.Interface()) {
			if id, err := entity.ID(v.Interface()); err == nil && id == containedID {
				found = v.Addr().Interface()
				return
			}
		}
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			fv := v.Field(i)
			switch fv.Kind() {
			case reflect.Slice, reflect.Array:
				for j := 0; j < fv.Len() && found == nil; j++ {
					walk(fv.Index(j))
				}
			case reflect.Map:
				iter := fv.MapRange()
				for iter.Next() {
					if found != nil {
						break
					}
					walk(iter.Value())
				}
			default:
				walk(fv)
			}
		}
	}
	walk(reflect.ValueOf(root))

	if found == nil {
		return nil, fmt.Errorf("sync: find contained %q: %w", containedID, apperr.ErrKeyNotFound)
	}
	return found, nil
}

// replaceContained swaps the nested identifiable matching containedID for
// newValue everywhere it is referenced under root (struct fields and
// slice/array elements; map values are not searched), preserving sharing
// ("all other references to it are updated in place").
func replaceContained(root any, containedID string, newValue any) error {
	newV := reflect.ValueOf(newValue)
	replaced := false

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
			if !t.Field(i).IsExported() {
				continue
			}
			fv := v.Field(i)
			if fv.Kind() == reflect.Slice || fv.Kind() == reflect.Array {
				for j := 0; j < fv.Len(); j++ {
					el := fv.Index(j)
					if entity.IsIdentifiable(el.Interface()) {
						if id, err := entity.ID(el.Interface()); err == nil && id == containedID {
							if el.CanSet() && newV.Type().AssignableTo(el.Type()) {
								el.Set(newV)
								replaced = true
							}
							continue
						}
					}
					walk(el)
				}
				continue
			}
			underlying := fv
			for underlying.Kind() == reflect.Ptr || underlying.Kind() == reflect.Interface {
				if underlying.IsNil() {
					break
				}
				underlying = underlying.Elem()
			}
			if underlying.Kind() == reflect.Struct && entity.IsIdentifiable(underlying.Interface()) {
				if id, err := entity.ID(underlying.Interface()); err == nil && id == containedID {
					if fv.CanSet() && newV.Type().AssignableTo(fv.Type()) {
						fv.Set(newV)
						replaced = true
					}
					continue
				}
			}
			walk(fv)
		}
	}
	walk(reflect.ValueOf(root))

	if !replaced {
		return fmt.Errorf("sync: replace contained %q: %w", containedID, apperr.ErrKeyNotFound)
	}
	return nil
}
