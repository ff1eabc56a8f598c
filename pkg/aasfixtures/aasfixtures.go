// Package aasfixtures provides AAS-shaped example types used by this
// repository's own tests and as a starting point for host applications
// wiring a data model for the first time. The shapes follow the
// ExampleSubmodel/ExampleSubmodel2/ValidAAS fixtures of the project this
// middleware is modeled on: one top-level asset shell containing two
// submodels, each holding a mix of scalar attributes and nested
// submodel-element collections.
package aasfixtures

// SimpleSEC is a leaf submodel element collection: scalar attributes only,
// no nested identifiables.
type SimpleSEC struct {
	IdShort          string `json:"id_short"`
	IntegerAttribute int    `json:"integer_attribute"`
	StringAttribute  string `json:"string_attribute"`
	FloatAttribute   float64 `json:"float_attribute"`
}

// CollectionSEC nests one SimpleSEC, giving the example tree a second level
// of containment.
type CollectionSEC struct {
	IdShort          string    `json:"id_short"`
	IntegerAttribute int       `json:"integer_attribute"`
	Nested           SimpleSEC `json:"nested"`
}

// ExampleSubmodel mirrors the richer of the two example submodels: a mix of
// scalar attributes, a flat collection, a collection with its own nested
// collection, and a one-element list of collections.
type ExampleSubmodel struct {
	IdShort          string  `json:"id_short"`
	Description      string  `json:"description,omitempty"`
	IntegerAttribute int     `json:"integer_attribute"`
	StringAttribute  string  `json:"string_attribute"`
	FloatAttribute   float64 `json:"float_attribute"`

	Simple         SimpleSEC     `json:"simple"`
	Collection     CollectionSEC `json:"collection"`
	ListCollection []SimpleSEC   `json:"list_collection"`
}

// ExampleSubmodel2 is the lighter twin: the same scalar attributes plus one
// flat collection and one nested collection, without the list field.
type ExampleSubmodel2 struct {
	IdShort          string  `json:"id_short"`
	IntegerAttribute int     `json:"integer_attribute"`
	StringAttribute  string  `json:"string_attribute"`
	FloatAttribute   float64 `json:"float_attribute"`

	Simple     SimpleSEC     `json:"simple"`
	Collection CollectionSEC `json:"collection"`
}

// ValidAAS is the top-level asset administration shell containing both
// example submodels.
type ValidAAS struct {
	IdShort          string           `json:"id_short"`
	ExampleSubmodel  ExampleSubmodel  `json:"example_submodel"`
	ExampleSubmodel2 ExampleSubmodel2 `json:"example_submodel_2"`
}

// NewExampleSubmodel builds the example submodel fixture, id_short
// "example_submodel_id", with four distinctly identified nested elements.
func NewExampleSubmodel() ExampleSubmodel {
	return ExampleSubmodel{
		IdShort:          "example_submodel_id",
		Description:      "Example Submodel",
		IntegerAttribute: 1,
		StringAttribute:  "string",
		FloatAttribute:   1.1,
		Simple: SimpleSEC{
			IdShort:          "example_submodel_simple_id",
			IntegerAttribute: 1,
			StringAttribute:  "string",
			FloatAttribute:   1.1,
		},
		Collection: CollectionSEC{
			IdShort:          "example_submodel_collection_id",
			IntegerAttribute: 1,
			Nested: SimpleSEC{
				IdShort:          "example_submodel_collection_nested_id",
				IntegerAttribute: 1,
				StringAttribute:  "string",
				FloatAttribute:   1.1,
			},
		},
		ListCollection: []SimpleSEC{
			{
				IdShort:          "example_submodel_list_id",
				IntegerAttribute: 1,
				StringAttribute:  "string",
				FloatAttribute:   1.1,
			},
		},
	}
}

// NewExampleSubmodel2 builds the second example submodel fixture, id_short
// "example_submodel_2_id".
func NewExampleSubmodel2() ExampleSubmodel2 {
	return ExampleSubmodel2{
		IdShort:          "example_submodel_2_id",
		IntegerAttribute: 1,
		StringAttribute:  "string",
		FloatAttribute:   1.1,
		Simple: SimpleSEC{
			IdShort:          "example_submodel_2_simple_id",
			IntegerAttribute: 1,
			StringAttribute:  "string",
			FloatAttribute:   1.1,
		},
		// Collection.Nested is left at its zero value (no id_short), so it
		// is an ordinary attribute here rather than a contained
		// identifiable -- this submodel is the lighter of the two twins.
		Collection: CollectionSEC{
			IdShort:          "example_submodel_2_collection_id",
			IntegerAttribute: 1,
		},
	}
}

// NewValidAAS builds the top-level fixture, id_short "valid_aas_id",
// containing one of each example submodel. Its type graph has exactly 8
// contained identifiables below the AAS itself: the 2 submodels plus 4
// nested submodel element collections under ExampleSubmodel (Simple,
// Collection, Collection.Nested, ListCollection[0]) and 2 under
// ExampleSubmodel2 (Simple, Collection).
func NewValidAAS() *ValidAAS {
	return &ValidAAS{
		IdShort:          "valid_aas_id",
		ExampleSubmodel:  NewExampleSubmodel(),
		ExampleSubmodel2: NewExampleSubmodel2(),
	}
}
