package validator

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/gqlerror"

	language "github.com/hanpama/gqlexec/internal/language"
	schema "github.com/hanpama/gqlexec/internal/schema"
)

const petsSDL = `
type Query {
  hero(episode: Episode): Character
  dog: Dog
  pets: [Pet]
  search(filter: Filter): [String]
  count(n: Int!): Int
  name: String
  greet(name: String = "you"): String
}

type Subscription {
  ticks: Int
  news: String
}

enum Episode { NEWHOPE EMPIRE JEDI }

interface Character { name: String }
interface Pet { name: String }

type Dog implements Pet {
  name: String
  barks: Boolean
  owner: Human
  nickname(short: Boolean): String
}

type Cat implements Pet {
  name: String
  meows: Boolean
}

type Human implements Character {
  name: String
  pets: [Pet]
}

union CatOrDog = Cat | Dog

input Filter {
  required: String!
  limit: Int = 10
}

directive @tag(name: String!) repeatable on FIELD
`

func mustSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.BuildFromSDL(petsSDL)
	require.NoError(t, err)
	return s
}

func validate(t *testing.T, v *Validator, query string) gqlerror.List {
	t.Helper()
	doc, perr := language.ParseQuery(query)
	require.Nil(t, perr, "query must parse")
	return v.Validate(mustSchema(t), doc)
}

func messages(errs gqlerror.List) []string {
	var out []string
	for _, err := range errs {
		out = append(out, err.Message)
	}
	return out
}

func TestDefaultRules(t *testing.T) {
	const conflictHint = " Use different aliases on the fields to fetch both if this was intentional."

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "valid document",
			query: `query Q($e: Episode) { hero(episode: $e) { name } dog { ...DogFields } } fragment DogFields on Dog { barks }`,
		},
		{
			name:  "anonymous operation among several",
			query: `{ name } query Q { name }`,
			want:  []string{"This anonymous operation must be the only defined operation."},
		},
		{
			name:  "duplicate operation name",
			query: `query A { name } query A { dog { name } }`,
			want:  []string{`There can be only one operation named "A".`},
		},
		{
			name:  "unknown type condition",
			query: `{ dog { ... on Pup { name } } }`,
			want:  []string{`Unknown type "Pup".`},
		},
		{
			name:  "fragment on scalar",
			query: `{ dog { ... on Boolean { name } } }`,
			want:  []string{`Fragment cannot condition on non composite type "Boolean".`},
		},
		{
			name:  "output type variable",
			query: `query($d: Dog) { name }`,
			want: []string{
				`Variable "$d" cannot be non-input type "Dog".`,
				`Variable "$d" is never used.`,
			},
		},
		{
			name:  "duplicate variable",
			query: `query($n: Int!, $n: Int!) { count(n: $n) }`,
			want:  []string{`There can be only one variable named "$n".`},
		},
		{
			name:  "unknown field",
			query: `{ dog { meows } }`,
			want:  []string{`Cannot query field "meows" on type "Dog".`},
		},
		{
			name:  "selection on leaf",
			query: `{ name { length } }`,
			want:  []string{`Field "name" must not have a selection since type "String" has no subfields.`},
		},
		{
			name:  "missing selection on object",
			query: `{ dog }`,
			want:  []string{`Field "dog" of type "Dog" must have a selection of subfields. Did you mean "dog { ... }"?`},
		},
		{
			name:  "unknown field argument",
			query: `{ dog { nickname(long: true) } }`,
			want:  []string{`Unknown argument "long" on field "Dog.nickname".`},
		},
		{
			name:  "unknown directive argument",
			query: `{ name @skip(unless: true) }`,
			want: []string{
				`Unknown argument "unless" on directive "@skip".`,
				`Directive "@skip" argument "if" of type "Boolean!" is required, but it was not provided.`,
			},
		},
		{
			name:  "duplicate argument",
			query: `{ count(n: 1, n: 2) }`,
			want:  []string{`There can be only one argument named "n".`},
		},
		{
			name:  "missing required argument",
			query: `{ count }`,
			want:  []string{`Field "count" argument "n" of type "Int!" is required, but it was not provided.`},
		},
		{
			name:  "string for int",
			query: `{ count(n: "x") }`,
			want:  []string{`Expected value of type "Int", found "x"; Int cannot represent non-integer value: x`},
		},
		{
			name:  "null for non-null argument",
			query: `{ count(n: null) }`,
			want:  []string{`Expected value of type "Int!", found null.`},
		},
		{
			name:  "enum literal for builtin scalar",
			query: `{ count(n: FIVE) }`,
			want:  []string{`Expected value of type "Int", found FIVE.`},
		},
		{
			name:  "unknown enum value",
			query: `{ hero(episode: JEDII) { name } }`,
			want:  []string{`Value "JEDII" does not exist in "Episode" enum.`},
		},
		{
			name:  "string for enum",
			query: `{ hero(episode: "JEDI") { name } }`,
			want:  []string{`Enum "Episode" cannot represent non-enum value: "JEDI".`},
		},
		{
			name:  "missing required input field",
			query: `{ search(filter: {limit: 3}) }`,
			want:  []string{`Field "Filter.required" of required type "String!" was not provided.`},
		},
		{
			name:  "unknown input field",
			query: `{ search(filter: {required: "a", extra: 1}) }`,
			want:  []string{`Field "extra" is not defined by type "Filter".`},
		},
		{
			name:  "unknown directive",
			query: `{ name @unknown }`,
			want:  []string{`Unknown directive "@unknown".`},
		},
		{
			name:  "directive in wrong location",
			query: `query @skip(if: true) { name }`,
			want:  []string{`Directive "@skip" may not be used on QUERY.`},
		},
		{
			name:  "repeated directive",
			query: `{ name @skip(if: false) @skip(if: false) }`,
			want:  []string{`The directive "@skip" can only be used once at this location.`},
		},
		{
			name:  "repeatable directive",
			query: `{ name @tag(name: "a") @tag(name: "b") }`,
		},
		{
			name:  "unknown fragment",
			query: `{ dog { ...Missing } }`,
			want:  []string{`Unknown fragment "Missing".`},
		},
		{
			name:  "unused fragment",
			query: `{ name } fragment Unused on Dog { name }`,
			want:  []string{`Fragment "Unused" is never used.`},
		},
		{
			name:  "fragment cycle",
			query: `{ dog { ...A } } fragment A on Dog { ...B } fragment B on Dog { ...A }`,
			want:  []string{`Cannot spread fragment "A" within itself via "B".`},
		},
		{
			name:  "fragment spreads itself",
			query: `{ dog { ...A } } fragment A on Dog { name ...A }`,
			want:  []string{`Cannot spread fragment "A" within itself.`},
		},
		{
			name:  "undefined variable",
			query: `query Q { count(n: $n) }`,
			want:  []string{`Variable "$n" is not defined by operation "Q".`},
		},
		{
			name:  "unused variable",
			query: `query Q($n: Int) { name }`,
			want:  []string{`Variable "$n" is never used in operation "Q".`},
		},
		{
			name:  "nullable variable in non-null position",
			query: `query Q($n: Int) { count(n: $n) }`,
			want:  []string{`Variable "$n" of type "Int" used in position expecting type "Int!".`},
		},
		{
			name:  "nullable variable with default",
			query: `query Q($n: Int = 3) { count(n: $n) }`,
		},
		{
			name:  "variable used through fragment",
			query: `query Q($n: Int) { ...F } fragment F on Query { count(n: $n) }`,
			want:  []string{`Variable "$n" of type "Int" used in position expecting type "Int!".`},
		},
		{
			name:  "list variable in scalar position",
			query: `query Q($e: [Episode]) { hero(episode: $e) { name } }`,
			want:  []string{`Variable "$e" of type "[Episode]" used in position expecting type "Episode".`},
		},
		{
			name:  "same response name for different fields",
			query: `{ dog { name: nickname name } }`,
			want:  []string{`Fields "name" conflict because "nickname" and "name" are different fields.` + conflictHint},
		},
		{
			name:  "same field with different arguments",
			query: `{ dog { nickname(short: true) nickname(short: false) } }`,
			want:  []string{`Fields "nickname" conflict because they have differing arguments.` + conflictHint},
		},
		{
			name:  "conflicting sub-selections under one response name",
			query: `{ dog { x: name } dog { x: barks } }`,
			want:  []string{`Fields "dog" conflict because subfields "x" conflict because "name" and "barks" are different fields.` + conflictHint},
		},
		{
			name:  "conflict through an interface inline fragment",
			query: `{ pets { ... on Pet { x: name } ... on Dog { x: barks } } }`,
			want:  []string{`Fields "x" conflict because "name" and "barks" are different fields.` + conflictHint},
		},
		{
			name:  "conflict through an interface fragment spread",
			query: `{ dog { ...PetName x: barks } } fragment PetName on Pet { x: name }`,
			want:  []string{`Fields "x" conflict because "name" and "barks" are different fields.` + conflictHint},
		},
		{
			name:  "different fields on distinct object types",
			query: `{ pets { ... on Dog { x: barks } ... on Cat { x: meows } } }`,
		},
		{
			name:  "different leaf types on distinct object types",
			query: `{ pets { ... on Dog { name } ... on Cat { name: meows } } }`,
			want:  []string{`Fields "name" conflict because they return conflicting types "String" and "Boolean".` + conflictHint},
		},
		{
			name:  "anonymous subscription with two fields",
			query: `subscription { ticks news }`,
			want:  []string{"Anonymous Subscription must select only one top level field."},
		},
		{
			name:  "named subscription with two fields",
			query: `subscription S { ticks news }`,
			want:  []string{`Subscription "S" must select only one top level field.`},
		},
	}

	v := Default()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := messages(validate(t, v, tc.query))
			// Pattern: Result comparison
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("violations mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOverlappingFieldsCanBeMerged(t *testing.T) {
	const sdl = `
type Query { o: O u: U }
type O { b: String c: String }
union U = A | B
type A { v: [String] w: Int! o: A }
type B { v: String w: Int o: B }
`
	const hint = " Use different aliases on the fields to fetch both if this was intentional."

	s, err := schema.BuildFromSDL(sdl)
	require.NoError(t, err)
	v := New(Rule{Name: "OverlappingFieldsCanBeMerged", Check: overlappingFieldsCanBeMerged})

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "aliases of different fields in merged objects",
			query: `{ o { x: b } o { x: c } }`,
			want:  []string{`Fields "o" conflict because subfields "x" conflict because "b" and "c" are different fields.` + hint},
		},
		{
			name:  "identical merged objects",
			query: `{ o { x: b } o { x: b c } }`,
		},
		{
			name:  "list and non-list",
			query: `{ u { ... on A { v } ... on B { v } } }`,
			want:  []string{`Fields "v" conflict because they return conflicting types "[String]" and "String".` + hint},
		},
		{
			name:  "non-null and nullable",
			query: `{ u { ... on A { w } ... on B { w } } }`,
			want:  []string{`Fields "w" conflict because they return conflicting types "Int!" and "Int".` + hint},
		},
		{
			name:  "shape conflict below distinct object types",
			query: `{ u { ... on A { o { x: w } } ... on B { o { x: v } } } }`,
			want:  []string{`Fields "o" conflict because subfields "x" conflict because they return conflicting types "Int!" and "String".` + hint},
		},
		{
			name:  "different composite types below distinct object types",
			query: `{ u { ... on A { o { __typename } } ... on B { o { __typename } } } }`,
		},
		{
			name:  "fragment spread twice",
			query: `{ o { ...F ...F } } fragment F on O { x: b }`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc, perr := language.ParseQuery(tc.query)
			require.Nil(t, perr)
			got := messages(v.Validate(s, doc))
			// Pattern: Result comparison
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("violations mismatch (-want +got):\n%s", diff)
			}
		})
	}

	doc, perr := language.ParseQuery("{\n  o { x: b }\n  o { x: c }\n}")
	require.Nil(t, perr)
	errs := v.Validate(s, doc)
	require.Len(t, errs, 1)
	require.Equal(t, []gqlerror.Location{{Line: 3, Column: 3}}, errs[0].Locations, "reported at the later field")
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	errs := validate(t, Default(), "query Q($unused: Int) {\n  meows\n  dog { ...Missing }\n}")

	want := []string{
		`Cannot query field "meows" on type "Query".`,
		`Unknown fragment "Missing".`,
		`Variable "$unused" is never used in operation "Q".`,
	}
	if diff := cmp.Diff(want, messages(errs)); diff != "" {
		t.Fatalf("violations mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "FieldsOnCorrectType", errs[0].Rule)
	require.Equal(t, []gqlerror.Location{{Line: 2, Column: 3}}, errs[0].Locations)
	require.Equal(t, "NoUnusedVariables", errs[2].Rule)
}

func TestCustomRule(t *testing.T) {
	noDogs := Rule{
		Name: "NoDogs",
		Check: func(c *Context) {
			for _, f := range c.Fields() {
				if f.Def != nil && f.Def.Type.GetNamedType() == "Dog" {
					c.Report(f.Field.Position, "Dogs are not allowed here.")
				}
			}
		},
	}

	errs := validate(t, New(noDogs), `{ dog { meows } name }`)
	require.Len(t, errs, 1, "only the custom rule runs")
	require.Equal(t, "Dogs are not allowed here.", errs[0].Message)
	require.Equal(t, "NoDogs", errs[0].Rule)

	errs = validate(t, New(append(DefaultRules(), noDogs)...), `{ dog { meows } name }`)
	want := []string{
		`Cannot query field "meows" on type "Dog".`,
		"Dogs are not allowed here.",
	}
	if diff := cmp.Diff(want, messages(errs)); diff != "" {
		t.Errorf("violations mismatch (-want +got):\n%s", diff)
	}
}

func TestRules(t *testing.T) {
	v := Default()
	rules := v.Rules()
	require.Len(t, rules, 23)
	require.Equal(t, "LoneAnonymousOperation", rules[0].Name)
	require.Equal(t, "SingleFieldSubscriptions", rules[len(rules)-1].Name)

	rules[0].Name = "mutated"
	require.Equal(t, "LoneAnonymousOperation", v.Rules()[0].Name, "Rules returns a copy")
}

func TestVariableUsagesFollowFragments(t *testing.T) {
	doc, perr := language.ParseQuery(`query Q($a: Int!, $b: String) { count(n: $a) ...F } fragment F on Query { greet(name: $b) }`)
	require.Nil(t, perr)

	var names []string
	rule := Rule{Name: "Collect", Check: func(c *Context) {
		for _, u := range c.VariableUsages(c.Document.Operations[0]) {
			names = append(names, u.Name+":"+u.Expected.String())
		}
	}}
	require.Empty(t, New(rule).Validate(mustSchema(t), doc))
	if diff := cmp.Diff([]string{"a:Int!", "b:String"}, names); diff != "" {
		t.Errorf("usages mismatch (-want +got):\n%s", diff)
	}
}
