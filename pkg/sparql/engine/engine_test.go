package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exocortex/exoql/pkg/errors"
	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/sparql/complexity"
	"github.com/exocortex/exoql/pkg/sparql/executor"
	"github.com/exocortex/exoql/pkg/store"
)

const data = `
<http://example.org/alice> <http://example.org/name> "Alice" .
<http://example.org/bob> <http://example.org/name> "Bob" .
<http://example.org/alice> <http://example.org/knows> <http://example.org/bob> .
`

const cartesian = `PREFIX ex: <http://example.org/>
SELECT * WHERE { ?a ex:name ?n . ?b ex:knows ?c }`

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	triples, err := rdf.ParseNTriplesString(data, nil)
	require.NoError(t, err)
	s := store.New()
	require.NoError(t, s.AddAll(triples))
	return New(s, opts...)
}

func TestEngine_Query(t *testing.T) {
	e := newEngine(t)
	resp, err := e.Query(context.Background(),
		`SELECT ?n WHERE { ?p <http://example.org/name> ?n } ORDER BY ?n`)
	require.NoError(t, err)

	assert.NotEqual(t, [16]byte{}, [16]byte(resp.ID))
	require.NotNil(t, resp.Report)
	assert.True(t, resp.Report.Allowed)

	res, ok := resp.Result.(*executor.SelectResult)
	require.True(t, ok)
	require.Len(t, res.Bindings, 2)
	assert.Equal(t, "Alice", res.Bindings[0].Get("n").(*rdf.Literal).Value)
	assert.Equal(t, "Bob", res.Bindings[1].Get("n").(*rdf.Literal).Value)
}

func TestEngine_AdmissionDenied(t *testing.T) {
	e := newEngine(t)
	resp, err := e.Query(context.Background(), cartesian)
	require.Error(t, err)
	assert.True(t, errors.IsDenied(err))
	assert.Equal(t, errors.CodeSPARQLAdmissionDenied, errors.CodeOf(err))

	require.NotNil(t, resp)
	require.NotNil(t, resp.Report)
	assert.False(t, resp.Report.Allowed)
	assert.NotEmpty(t, resp.Report.Violations)
	assert.Nil(t, resp.Result)
}

func TestEngine_AdmissionDisabled(t *testing.T) {
	e := newEngine(t, WithAdmission(false))
	resp, err := e.Query(context.Background(), cartesian)
	require.NoError(t, err)
	assert.Nil(t, resp.Report)

	res := resp.Result.(*executor.SelectResult)
	assert.Len(t, res.Bindings, 2)
}

func TestEngine_CustomThresholds(t *testing.T) {
	th := complexity.DefaultThresholds()
	th.MaxTriplePatterns = 1
	e := newEngine(t, WithThresholds(th))

	_, err := e.Query(context.Background(),
		`SELECT * WHERE { ?a <http://example.org/knows> ?b . ?b <http://example.org/name> ?n }`)
	assert.True(t, errors.IsDenied(err))
	assert.Equal(t, 1, e.Analyze(`ASK { ?s ?p ?o }`).Metrics.TriplePatterns)
}

func TestEngine_ParseError(t *testing.T) {
	e := newEngine(t)
	resp, err := e.Query(context.Background(), `SELECT ?x WHERE { ?x`)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, errors.HasCode(err, errors.CodeSPARQLParseInvalidSyntax))
	assert.True(t, errors.IsInvalidInput(err))
}

func TestEngine_Canceled(t *testing.T) {
	e := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Query(ctx, `SELECT * WHERE { ?s ?p ?o }`)
	require.Error(t, err)
	assert.True(t, errors.IsCanceled(err))
}

func TestEngine_Ask(t *testing.T) {
	e := newEngine(t)
	resp, err := e.Query(context.Background(),
		`ASK { <http://example.org/alice> <http://example.org/knows> ?x }`)
	require.NoError(t, err)
	assert.True(t, resp.Result.(*executor.AskResult).Result)
	assert.Same(t, e.Store(), e.Store())
}

func TestEngine_ConcurrentConstructMintsUniqueBlankNodes(t *testing.T) {
	e := newEngine(t)
	const workers, rounds = 8, 50

	var (
		mu  sync.Mutex
		ids = make(map[string]struct{})
		wg  sync.WaitGroup
	)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				resp, err := e.Query(context.Background(), `PREFIX ex: <http://example.org/>
CONSTRUCT { ?p ex:tag _:t } WHERE { ?p ex:name ?n }`)
				if err != nil {
					errs <- err
					return
				}
				mu.Lock()
				for _, tr := range resp.Result.(*executor.GraphResult).Triples {
					ids[tr.Object.(*rdf.BlankNode).ID] = struct{}{}
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, ids, workers*rounds*2)
}
