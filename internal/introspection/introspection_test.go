package introspection

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	executor "github.com/hanpama/gqlexec/internal/executor"
	language "github.com/hanpama/gqlexec/internal/language"
	schema "github.com/hanpama/gqlexec/internal/schema"
	validator "github.com/hanpama/gqlexec/internal/validator"
)

const petSDL = `
"""Entry points."""
type Query {
  hello(name: String = "world"): String
  old: Int @deprecated(reason: "use hello")
  pet: Pet
}

interface Pet { name: String }
type Dog implements Pet { name: String }
type Cat implements Pet { name: String }

enum Color { RED GREEN @deprecated }

input Filter {
  color: Color = RED
  limit: Int!
}
`

func buildSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.BuildFromSDL(petSDL)
	require.NoError(t, err)
	return s
}

func execute(t *testing.T, s *schema.Schema, query string) string {
	t.Helper()
	doc, perr := language.ParseQuery(query)
	require.Nil(t, perr)
	require.Empty(t, validator.Default().Validate(s, doc), "query must validate")

	res := executor.NewExecutor().ExecuteRequest(context.Background(), s, doc, "", nil, nil)
	require.Empty(t, res.Errors)
	b, err := json.Marshal(res.Data)
	require.NoError(t, err)
	return string(b)
}

func TestInstall(t *testing.T) {
	base := buildSchema(t)
	ext := Install(base)

	require.True(t, Installed(ext))
	require.False(t, Installed(base), "base schema is left untouched")
	require.Nil(t, base.Types["__Type"])
	require.NotNil(t, ext.Types["__Type"])
	require.Same(t, base.Types["Query"], ext.Types["Query"])
}

func TestIntrospectionQueries(t *testing.T) {
	s := Install(buildSchema(t))

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "root types",
			query: `{ __schema { queryType { name } mutationType { name } } }`,
			want:  `{"__schema":{"queryType":{"name":"Query"},"mutationType":null}}`,
		},
		{
			name:  "object fields skip deprecated",
			query: `{ __type(name: "Query") { kind name description fields { name isDeprecated args { name defaultValue type { name } } } } }`,
			want: `{"__type":{"kind":"OBJECT","name":"Query","description":"Entry points.","fields":[
				{"name":"hello","isDeprecated":false,"args":[{"name":"name","defaultValue":"\"world\"","type":{"name":"String"}}]},
				{"name":"pet","isDeprecated":false,"args":[]}]}}`,
		},
		{
			name:  "deprecated fields on request",
			query: `{ __type(name: "Query") { fields(includeDeprecated: true) { name deprecationReason } } }`,
			want: `{"__type":{"fields":[
				{"name":"hello","deprecationReason":null},
				{"name":"old","deprecationReason":"use hello"},
				{"name":"pet","deprecationReason":null}]}}`,
		},
		{
			name:  "wrapped input field types",
			query: `{ __type(name: "Filter") { inputFields { name defaultValue type { kind name ofType { kind name } } } } }`,
			want: `{"__type":{"inputFields":[
				{"name":"color","defaultValue":"RED","type":{"kind":"ENUM","name":"Color","ofType":null}},
				{"name":"limit","defaultValue":null,"type":{"kind":"NON_NULL","name":null,"ofType":{"kind":"SCALAR","name":"Int"}}}]}}`,
		},
		{
			name:  "interface implementations",
			query: `{ __type(name: "Pet") { kind interfaces { name } possibleTypes { name } } }`,
			want:  `{"__type":{"kind":"INTERFACE","interfaces":[],"possibleTypes":[{"name":"Cat"},{"name":"Dog"}]}}`,
		},
		{
			name:  "enum values",
			query: `{ __type(name: "Color") { enumValues(includeDeprecated: true) { name isDeprecated } } }`,
			want:  `{"__type":{"enumValues":[{"name":"RED","isDeprecated":false},{"name":"GREEN","isDeprecated":true}]}}`,
		},
		{
			name:  "unknown type",
			query: `{ __type(name: "Nope") { name } }`,
			want:  `{"__type":null}`,
		},
		{
			name:  "builtin directive",
			query: `{ __schema { directives { name locations args { name type { kind ofType { name } } } } } }`,
			want: `{"__schema":{"directives":[
				{"name":"deprecated","locations":["FIELD_DEFINITION","ARGUMENT_DEFINITION","INPUT_FIELD_DEFINITION","ENUM_VALUE"],
				 "args":[{"name":"reason","type":{"kind":"SCALAR","ofType":null}}]},
				{"name":"include","locations":["FIELD","FRAGMENT_SPREAD","INLINE_FRAGMENT"],
				 "args":[{"name":"if","type":{"kind":"NON_NULL","ofType":{"name":"Boolean"}}}]},
				{"name":"skip","locations":["FIELD","FRAGMENT_SPREAD","INLINE_FRAGMENT"],
				 "args":[{"name":"if","type":{"kind":"NON_NULL","ofType":{"name":"Boolean"}}}]},
				{"name":"specifiedBy","locations":["SCALAR"],
				 "args":[{"name":"url","type":{"kind":"NON_NULL","ofType":{"name":"String"}}}]}]}}`,
		},
		{
			name:  "typename",
			query: `{ __typename }`,
			want:  `{"__typename":"Query"}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.JSONEq(t, tc.want, execute(t, s, tc.query))
		})
	}
}

func TestTypesListIncludesIntrospectionTypes(t *testing.T) {
	s := Install(buildSchema(t))
	var out struct {
		Schema struct {
			Types []struct {
				Name string `json:"name"`
			} `json:"types"`
		} `json:"__schema"`
	}
	require.NoError(t, json.Unmarshal([]byte(execute(t, s, `{ __schema { types { name } } }`)), &out))

	var names []string
	for _, typ := range out.Schema.Types {
		names = append(names, typ.Name)
	}
	require.IsIncreasing(t, names)
	require.Contains(t, names, "__Schema")
	require.Contains(t, names, "Filter")
	require.Contains(t, names, "Boolean")
}

func TestMetaFieldsRequireInstall(t *testing.T) {
	doc, perr := language.ParseQuery(`{ __schema { queryType { name } } }`)
	require.Nil(t, perr)

	errs := validator.Default().Validate(buildSchema(t), doc)
	require.Len(t, errs, 1)
	require.Equal(t, `Cannot query field "__schema" on type "Query".`, errs[0].Message)
}
