package graphqlapi

import (
	"encoding/json"
	"net/http"

	"github.com/graphql-go/graphql"
)

// request is the standard GraphQL-over-HTTP POST body.
type request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

// Handler mounts schema at a single endpoint (spec.md §6: "Mounted at
// /graphql, single-schema, query-only"), accepting POST bodies of the
// standard {query, variables, operationName} shape.
func Handler(schema graphql.Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body request
		if req.ContentLength != 0 {
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"message": "decode body: " + err.Error()})
				return
			}
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  body.Query,
			VariableValues: body.Variables,
			OperationName:  body.OperationName,
			Context:        req.Context(),
		})

		w.Header().Set("Content-Type", "application/json")
		if len(result.Errors) > 0 {
			w.WriteHeader(http.StatusBadRequest)
		}
		json.NewEncoder(w).Encode(result)
	}
}
