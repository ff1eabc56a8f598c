// Package graphqlapi implements the GraphQL schema generator of spec.md
// §4.J: one object type per registered type in a data model's type graph,
// ASSOCIATION fields recursing into their own object types, and a
// query-only root that exposes a by-id lookup plus a list field per type
// that fetches from every persistence connector registered under that type
// name. Grounded on the graphql-go/graphql dynamic-schema-from-collections
// pattern found in the retrieval pack's standalone GraphQL engine examples,
// generalized from "one object type per database collection" to "one
// object type per data-model type".
package graphqlapi

import (
	"context"
	"fmt"
	"reflect"
	"unicode"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/rakunlabs/aasmw/internal/connector"
	"github.com/rakunlabs/aasmw/internal/datamodel"
	"github.com/rakunlabs/aasmw/internal/reference"
	"github.com/rakunlabs/aasmw/internal/registry"
)

// jsonScalar stands in for any value graphqlapi cannot map to a named
// GraphQL scalar: leaf structs (time.Time), REFERENCE targets, and
// connector payloads of unknown shape.
var jsonScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "An arbitrary JSON-serializable value.",
	Serialize:   func(value any) any { return value },
	ParseValue:  func(value any) any { return value },
	ParseLiteral: func(valueAST ast.Value) any {
		if v, ok := valueAST.(*ast.StringValue); ok {
			return v.Value
		}
		return nil
	},
})

// BuildSchema constructs the query-only schema of spec.md §4.J from dm's
// type graph, with list fields resolving against reg's registered
// connectors.
func BuildSchema(dm *datamodel.DataModel, reg *registry.Registry) (graphql.Schema, error) {
	tg := dm.TypeGraph()
	typeNames := tg.TypeNames()

	objects := make(map[string]*graphql.Object, len(typeNames))
	for _, name := range typeNames {
		name := name
		objects[name] = graphql.NewObject(graphql.ObjectConfig{
			Name:   name,
			Fields: graphql.FieldsThunk(func() graphql.Fields { return buildFields(tg, objects, name) }),
		})
	}

	queryFields := graphql.Fields{}
	for _, name := range typeNames {
		name := name
		obj := objects[name]

		queryFields[name] = &graphql.Field{
			Type: obj,
			Args: graphql.FieldConfigArgument{
				"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
			},
			Resolve: func(p graphql.ResolveParams) (any, error) {
				id, _ := p.Args["id"].(string)
				v, ok := dm.GetModel(id)
				if !ok {
					return nil, fmt.Errorf("graphqlapi: %s %q not found", name, id)
				}
				return v, nil
			},
		}

		queryFields[pluralName(name)] = &graphql.Field{
			Type: graphql.NewList(graphql.NewNonNull(obj)),
			Resolve: func(p graphql.ResolveParams) (any, error) {
				return listFromConnectors(p.Context, reg, name)
			},
		}
	}

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{Name: "Query", Fields: queryFields}),
	})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("graphqlapi: build schema: %w", err)
	}
	return schema, nil
}

func buildFields(tg *datamodel.TypeGraph, objects map[string]*graphql.Object, typeName string) graphql.Fields {
	fields := graphql.Fields{}
	for _, f := range tg.Fields(typeName) {
		f := f
		fields[f.Name] = &graphql.Field{
			Type: outputTypeFor(f, objects),
			Resolve: func(p graphql.ResolveParams) (any, error) {
				return fieldValue(p.Source, f.Name)
			},
		}
	}
	return fields
}

// outputTypeFor maps a declared field to its GraphQL type: ASSOCIATION
// fields recurse into the target's object type, everything else resolves
// to a scalar. Unions/optionals are flattened to the non-null variant per
// spec.md §4.J; submodel-element-collection lists (Slice fields) recurse
// as a (nullable) list of non-null elements.
func outputTypeFor(f datamodel.FieldInfo, objects map[string]*graphql.Object) graphql.Output {
	var base graphql.Output
	switch {
	case f.Kind == reference.ASSOCIATION:
		if obj, ok := objects[f.TypeName]; ok {
			base = obj
		} else {
			base = jsonScalar
		}
	default:
		base = scalarFor(f.TypeName)
	}
	if f.Slice {
		return graphql.NewList(graphql.NewNonNull(base))
	}
	return graphql.NewNonNull(base)
}

func scalarFor(typeName string) graphql.Output {
	switch typeName {
	case "string":
		return graphql.String
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64":
		return graphql.Int
	case "float32", "float64":
		return graphql.Float
	case "bool":
		return graphql.Boolean
	default:
		return jsonScalar
	}
}

// fieldValue reads field name off root via reflection, dereferencing
// pointers/interfaces (including a nil optional field, which resolves to
// GraphQL null even though the declared type is non-null — graphql-go
// permits null through NonNull only at the root Resolve, which is exactly
// this case).
func fieldValue(root any, name string) (any, error) {
	v := reflect.ValueOf(root)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("graphqlapi: field %q: source is not a struct", name)
	}
	f := v.FieldByName(name)
	if !f.IsValid() {
		return nil, fmt.Errorf("graphqlapi: no such field %q", name)
	}
	for f.Kind() == reflect.Ptr {
		if f.IsNil() {
			return nil, nil
		}
		f = f.Elem()
	}
	return f.Interface(), nil
}

// listFromConnectors enumerates reg's connections registered under
// typeName and fetches a snapshot from each Provider, per spec.md §4.J's
// list-resolver contract.
func listFromConnectors(ctx context.Context, reg *registry.Registry, typeName string) ([]any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var out []any
	for _, ci := range reg.Connections() {
		if ci.ModelType != typeName {
			continue
		}
		c, err := reg.GetConnection(ci)
		if err != nil {
			continue
		}
		p, ok := c.(connector.Provider)
		if !ok {
			continue
		}
		v, err := p.Provide(ctx, ci.EndpointID())
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// pluralName appends the naive English plural GraphQL field generators
// conventionally use ("Submodel" -> "submodels"); the leading rune is
// lower-cased to distinguish the list field from the singular lookup field.
func pluralName(typeName string) string {
	if typeName == "" {
		return typeName
	}
	r := []rune(typeName)
	r[0] = unicode.ToLower(r[0])
	return string(r) + "s"
}
