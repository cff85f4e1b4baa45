package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	config "github.com/hanpama/gqlexec/internal/config"
	schema "github.com/hanpama/gqlexec/internal/schema"
)

const (
	petsSchema = "testdata/pets.graphql"
	petsRoot   = "testdata/pets.json"
	testConfig = "testdata/config.yaml"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExec(t *testing.T) {
	out, err := run(t, "", "exec", "-c", testConfig, "-s", petsSchema, "--root", petsRoot, "-f", "testdata/pets_query.graphql")
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "exec_pets", []byte(out))
}

func TestExecFromStdin(t *testing.T) {
	cases := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{
			name:  "variables",
			stdin: `query Q($withAge: Boolean!) { owner { name age @include(if: $withAge) } }`,
			args:  []string{"--variables", `{"withAge":true}`},
			want:  `{"data":{"owner":{"name":"Ada","age":36}}}`,
		},
		{
			name:  "operation name",
			stdin: `query A { owner { name } } query B { pets { name } }`,
			args:  []string{"-o", "B"},
			want:  `{"data":{"pets":[{"name":"Rex"},{"name":"Tom"}]}}`,
		},
		{
			name:  "validation error",
			stdin: `{ owner { nope } }`,
			want:  `{"errors":[{"message":"Cannot query field \"nope\" on type \"Person\".","locations":[{"line":1,"column":11}],"extensions":{"code":"VALIDATION_ERROR"}}]}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"exec", "-c", testConfig, "-s", petsSchema, "--root", petsRoot}, tc.args...)
			out, err := run(t, tc.stdin, args...)
			require.NoError(t, err)
			require.JSONEq(t, tc.want, out)
		})
	}
}

func TestExecTrace(t *testing.T) {
	out, err := run(t, "", "exec", "-c", testConfig, "-s", petsSchema, "--root", petsRoot, "-q", "{ owner { name } }", "--trace")
	require.NoError(t, err)

	var res struct {
		Extensions struct {
			Tracing struct {
				Version   int `json:"version"`
				Execution struct {
					Resolvers []json.RawMessage `json:"resolvers"`
				} `json:"execution"`
			} `json:"tracing"`
		} `json:"extensions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, 1, res.Extensions.Tracing.Version)
	require.Len(t, res.Extensions.Tracing.Execution.Resolvers, 2)
}

func TestExecRequiresSchema(t *testing.T) {
	_, err := run(t, "{ a }", "exec", "-c", testConfig)
	require.EqualError(t, err, "--schema is required")
}

func TestValidate(t *testing.T) {
	out, err := run(t, "", "validate", "-c", testConfig, "-s", petsSchema, "testdata/pets_query.graphql")
	require.NoError(t, err)
	require.Empty(t, out)

	out, err = run(t, "", "validate", "-c", testConfig, "-s", petsSchema, "testdata/pets_query.graphql", "testdata/bad.graphql")
	require.EqualError(t, err, "1 invalid document(s)")
	// Pattern: Result comparison
	want := "testdata/bad.graphql:1:10: Cannot query field \"nam\" on type \"Pet\".\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateStdin(t *testing.T) {
	out, err := run(t, "{ owner { name", "validate", "-c", testConfig, "-s", petsSchema)
	require.Error(t, err)
	require.True(t, strings.HasPrefix(out, "<stdin>:1:"), out)
}

func TestPrintSchema(t *testing.T) {
	out, err := run(t, "", "print-schema", "-s", petsSchema)
	require.NoError(t, err)
	require.Contains(t, out, "interface Pet {")

	rebuilt, err := schema.BuildFromSDL(out)
	require.NoError(t, err)
	if diff := cmp.Diff(out, schema.Render(rebuilt)); diff != "" {
		t.Errorf("render is not stable (-want +got):\n%s", diff)
	}
}

func TestApp(t *testing.T) {
	cfg, err := config.Load(testConfig)
	require.NoError(t, err)
	o := &globalOptions{schemaPaths: []string{petsSchema}, rootPath: petsRoot}
	a, err := newApp(context.Background(), o, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close(context.Background())) })

	srv := httptest.NewServer(a.handler)
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/graphql", "application/json", strings.NewReader(`{"query":"{ owner { name } }"}`))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"data":{"owner":{"name":"Ada"}}}`, string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(body), `gqlexec_requests_total{operation_type="query",outcome="ok"} 1`)
	require.Contains(t, string(body), "gqlexec_document_cache_misses_total 1")
}

func TestReloadSchema(t *testing.T) {
	cfg := config.Default()
	o := &globalOptions{schemaPaths: []string{petsSchema}, rootPath: petsRoot}
	a, err := newApp(context.Background(), o, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	before := a.engine.Schema()
	reloadSchema(o, a.engine, zap.NewNop())
	require.NotSame(t, before, a.engine.Schema())

	o.schemaPaths = []string{"testdata/missing.graphql"}
	current := a.engine.Schema()
	reloadSchema(o, a.engine, zap.NewNop())
	require.Same(t, current, a.engine.Schema())
}
