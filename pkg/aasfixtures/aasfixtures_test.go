package aasfixtures

import (
	"errors"
	"testing"

	"github.com/rakunlabs/aasmw/internal/apperr"
	"github.com/rakunlabs/aasmw/internal/datamodel"
)

// TestIngestAndQuery exercises spec.md's end-to-end scenario 1: ingest
// valid_aas_id with its two example submodels, then check the shape of
// get_top_level_models/get_contained_models/get_referencing_models.
func TestIngestAndQuery(t *testing.T) {
	dm, err := datamodel.FromModels("test", NewValidAAS())
	if err != nil {
		t.Fatalf("FromModels: %v", err)
	}

	top := dm.GetTopLevelModels()
	if len(top) != 1 {
		t.Fatalf("expected 1 top-level model, got %d", len(top))
	}

	contained := dm.GetContainedModels()
	if len(contained) != 8 {
		t.Fatalf("expected 8 contained models, got %d: %#v", len(contained), contained)
	}

	submodel, ok := dm.GetModel("example_submodel_id")
	if !ok {
		t.Fatal("expected example_submodel_id to be indexed")
	}
	referencing, err := dm.GetReferencingModels(submodel)
	if err != nil {
		t.Fatalf("GetReferencingModels: %v", err)
	}
	if len(referencing) != 1 {
		t.Fatalf("expected exactly the AAS to reference example_submodel_id, got %d", len(referencing))
	}
	aas, ok := referencing[0].(*ValidAAS)
	if !ok || aas.IdShort != "valid_aas_id" {
		t.Fatalf("expected the referencing model to be valid_aas_id, got %#v", referencing[0])
	}
}

// TestDuplicateConflict exercises scenario 2: two distinct ExampleSubmodel
// values sharing id_short fail ingestion with DuplicateIdWithConflict.
func TestDuplicateConflict(t *testing.T) {
	dm := datamodel.New("test")

	a := NewExampleSubmodel()
	if err := dm.LoadModel(&a); err != nil {
		t.Fatalf("load first: %v", err)
	}

	b := NewExampleSubmodel()
	b.FloatAttribute = 99.9
	err := dm.LoadModel(&b)
	if err == nil {
		t.Fatal("expected a conflicting duplicate id_short to fail")
	}
	if !errors.Is(err, apperr.ErrDuplicateIDWithConflict) {
		t.Fatalf("expected ErrDuplicateIDWithConflict, got %v", err)
	}
}
