package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/exocortex/exoql/pkg/errors"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeData(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const people = `<http://example.org/alice> <http://example.org/name> "Alice" .
<http://example.org/bob> <http://example.org/name> "Bob" .
`

func TestRootCommand_Help(t *testing.T) {
	out, err := run(t, "", "--help")
	require.NoError(t, err)
	for _, sub := range []string{"query", "analyze", "load", "serve", "demo", "--config", "--log-level", "--data"} {
		assert.Contains(t, out, sub)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "exoql dev")
}

func TestQueryCommand_Table(t *testing.T) {
	data := writeData(t, "people.nt", people)
	out, err := run(t, "", "--data", data, "query",
		`SELECT ?n WHERE { ?p <http://example.org/name> ?n } ORDER BY ?n`)
	require.NoError(t, err)
	assert.Equal(t, "?n\nAlice\nBob\n\n2 result(s)\n", out)
}

func TestQueryCommand_FormatsAndStdin(t *testing.T) {
	data := writeData(t, "people.nt", people)
	out, err := run(t, `ASK { <http://example.org/bob> ?p ?o }`, "-d", data, "query", "-", "--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, "result\r\ntrue\r\n", out)

	out, err = run(t, "", "-d", data, "query", "--format", "table",
		`CONSTRUCT { ?p <http://example.org/label> ?n } WHERE { ?p <http://example.org/name> "Alice" . ?p <http://example.org/name> ?n }`)
	require.NoError(t, err)
	assert.Equal(t, "<http://example.org/alice> <http://example.org/label> \"Alice\" .\n", out)
}

func TestQueryCommand_Denied(t *testing.T) {
	_, err := run(t, "", "query", `SELECT * WHERE { ?a <http://e/p> ?b . ?c <http://e/q> ?d }`)
	require.Error(t, err)
	assert.True(t, errors.IsDenied(err))
}

func TestQueryCommand_AdmissionFromEnv(t *testing.T) {
	t.Setenv("EXOQL_QUERY_ADMISSION", "false")
	out, err := run(t, "", "query", `SELECT * WHERE { ?a <http://e/p> ?b . ?c <http://e/q> ?d }`)
	require.NoError(t, err)
	assert.Contains(t, out, "0 result(s)")
}

func TestAnalyzeCommand(t *testing.T) {
	out, err := run(t, "", "analyze", `SELECT * WHERE { ?s <http://e/p> ?o }`)
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, true, report["allowed"])
	assert.Equal(t, "O(n)", report["time_class"])

	out, err = run(t, "", "analyze", "-o", "json", `SELECT * WHERE { ?s <http://e/p> ?o }`)
	require.NoError(t, err)
	assert.Contains(t, out, `"time_class": "O(n)"`)

	_, err = run(t, "", "analyze", "--strict", `SELECT * WHERE { ?a <http://e/p> ?b . ?c <http://e/q> ?d }`)
	assert.True(t, errors.IsDenied(err))

	_, err = run(t, "", "analyze", "-o", "xml", `ASK {}`)
	assert.Error(t, err)
}

func TestLoadCommand(t *testing.T) {
	nt := writeData(t, "people.nt", people)
	nq := writeData(t, "archive.nq", `<http://example.org/carol> <http://example.org/name> "Carol" <http://example.org/g> .
`)
	out, err := run(t, "", "load", nt, nq)
	require.NoError(t, err)
	assert.Contains(t, out, "people.nt: 2 statements")
	assert.Contains(t, out, "default graph: 2 triples, 2 subjects, 1 predicates, 2 objects")
	assert.Contains(t, out, "graph <http://example.org/g>: 1 triples")
}

func TestLoadCommand_BadFile(t *testing.T) {
	bad := writeData(t, "bad.nt", "not a triple\n")
	_, err := run(t, "", "load", bad)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeNTriplesParseInvalidSyntax))
}

func TestDemoCommand(t *testing.T) {
	out, err := run(t, "", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "Morning Shower")
	assert.Contains(t, out, "22.5")
	assert.Contains(t, out, "Evening Walk")
	assert.Contains(t, out, "35")
	assert.Contains(t, out, "true")
	assert.Contains(t, out, "denied:")
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := run(t, "", "--log-level", "loud", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}
