package graphqlapi

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/graphql-go/graphql"

	"github.com/rakunlabs/aasmw/internal/connector"
	"github.com/rakunlabs/aasmw/internal/datamodel"
	"github.com/rakunlabs/aasmw/internal/registry"
	"github.com/rakunlabs/aasmw/internal/registry/memory"
)

type Gadget struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestBuildSchema_ByIDLookup(t *testing.T) {
	dm := datamodel.FromModelTypes("test", reflect.TypeOf(Gadget{}))
	if err := dm.AddModel(&Gadget{ID: "g1", Name: "widget"}); err != nil {
		t.Fatalf("add model: %v", err)
	}

	schema, err := BuildSchema(dm, registry.New())
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}

	result := graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: `{ Gadget(id: "g1") { ID Name } }`,
	})
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}

	out, _ := json.Marshal(result.Data)
	var decoded struct {
		Gadget struct {
			ID   string `json:"ID"`
			Name string `json:"Name"`
		} `json:"Gadget"`
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if decoded.Gadget.Name != "widget" {
		t.Fatalf("expected name 'widget', got %q", decoded.Gadget.Name)
	}
}

func TestBuildSchema_ListFromConnectors(t *testing.T) {
	dm := datamodel.FromModelTypes("test", reflect.TypeOf(Gadget{}))
	reg := registry.New()

	ci := registry.ConnectionInfo{DataModelName: "test", ModelID: "g1", ModelType: "Gadget"}
	conn := memory.New("mem")
	conn.Consume(context.Background(), ci.EndpointID(), Gadget{ID: "g1", Name: "from connector"})

	factory := func(ctx context.Context, ci registry.ConnectionInfo) (connector.Connector, error) {
		return conn, nil
	}
	if _, err := reg.AddToPersistence(context.Background(), ci, factory); err != nil {
		t.Fatalf("add to persistence: %v", err)
	}

	schema, err := BuildSchema(dm, reg)
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}

	result := graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: `{ gadgets { ID Name } }`,
	})
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}

	out, _ := json.Marshal(result.Data)
	var decoded struct {
		Gadgets []struct {
			ID   string `json:"ID"`
			Name string `json:"Name"`
		} `json:"gadgets"`
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(decoded.Gadgets) != 1 || decoded.Gadgets[0].Name != "from connector" {
		t.Fatalf("expected one gadget from the connector, got %+v", decoded.Gadgets)
	}
}
