package server

import (
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/exocortex/exoql/pkg/errors"
	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/server/results"
	"github.com/exocortex/exoql/pkg/sparql/complexity"
)

const queryIDHeader = "X-Query-Id"

var rootPage = template.Must(template.New("root").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>exoql SPARQL endpoint</title>
    <link href="https://unpkg.com/@zazuko/yasgui@4.5.0/build/yasgui.min.css" rel="stylesheet" type="text/css" />
    <script src="https://unpkg.com/@zazuko/yasgui@4.5.0/build/yasgui.min.js"></script>
    <style>
        body { margin: 0; font-family: Arial, sans-serif; display: flex; flex-direction: column; height: 100vh; }
        .header { background: #2c3e50; color: white; padding: 15px 20px; }
        .header h1 { margin: 0; font-size: 24px; font-weight: 500; }
        .header .info { margin-top: 5px; font-size: 14px; opacity: 0.9; }
        #yasgui { flex: 1; overflow: hidden; }
    </style>
</head>
<body>
    <div class="header">
        <h1>exoql SPARQL endpoint</h1>
        <div class="info">
            Endpoint: <code>{{.Endpoint}}</code> |
            Triples: <strong>{{.Stats.Triples}}</strong> |
            Named graphs: <strong>{{.Stats.NamedGraphs}}</strong>
        </div>
    </div>
    <div id="yasgui"></div>
    <script>
        new Yasgui(document.getElementById("yasgui"), {
            requestConfig: { endpoint: "{{.Endpoint}}", method: "POST" },
            copyEndpointOnNewTab: false
        });
    </script>
</body>
</html>`))

// handleRoot serves a query UI pointed at this endpoint.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := rootPage.Execute(w, struct {
		Endpoint string
		Stats    Stats
	}{
		Endpoint: fmt.Sprintf("%s://%s/api/sparql", scheme, r.Host),
		Stats:    s.Stats(),
	})
	if err != nil {
		s.logger.WithError(err).Warn("server: render root page")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.Stats()
	s.writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		Stats
	}{Status: "ok", Stats: stats})
}

type deniedBody struct {
	Error  errorDetail        `json:"error"`
	Report *complexity.Report `json:"report"`
}

// handleSPARQL handles SPARQL query requests according to SPARQL 1.1 Protocol
// https://www.w3.org/TR/sparql11-protocol/
func (s *Server) handleSPARQL(w http.ResponseWriter, r *http.Request) {
	query, err := extractQuery(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	format := results.Negotiate(r.Header.Get("Accept"))
	if name := r.URL.Query().Get("format"); name != "" {
		if format, err = results.ParseFormat(name); err != nil {
			s.writeError(w, err)
			return
		}
	}

	s.mu.RLock()
	resp, err := s.engine.Query(r.Context(), query)
	s.mu.RUnlock()

	if resp != nil {
		w.Header().Set(queryIDHeader, resp.ID.String())
	}
	if err != nil {
		if errors.IsDenied(err) && resp != nil && resp.Report != nil {
			s.logger.WithField("query_id", resp.ID.String()).Info("server: query denied")
			s.writeJSON(w, http.StatusUnprocessableEntity, deniedBody{
				Error: errorDetail{
					Code:    string(errors.CodeOf(err)),
					Status:  http.StatusUnprocessableEntity,
					Message: "query denied by complexity analysis",
				},
				Report: resp.Report,
			})
			return
		}
		s.writeError(w, err)
		return
	}

	data, contentType, err := results.Encode(resp.Result, format)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.WithError(err).Warn("server: write response")
	}
}

// handleAnalyze returns the complexity report without running the query.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	query, err := extractQuery(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.Analyze(query))
}

type uploadStats struct {
	TriplesInserted  int     `json:"triplesInserted"`
	DurationMs       int64   `json:"durationMs"`
	TriplesPerSecond float64 `json:"triplesPerSecond"`
}

// handleDataUpload loads N-Triples or N-Quads. A graph query parameter sends
// every statement to that named graph.
func (s *Server) handleDataUpload(w http.ResponseWriter, r *http.Request) {
	reader, err := rdf.NewReader(r.Header.Get("Content-Type"), nil)
	if err != nil {
		s.writeJSON(w, http.StatusUnsupportedMediaType, errorBody{Error: errorDetail{
			Code:    string(errors.CodeOf(err)),
			Status:  http.StatusUnsupportedMediaType,
			Message: err.Error(),
			Details: errors.FieldsOf(err),
		}})
		return
	}

	start := time.Now()
	quads, err := reader.Read(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if graph := r.URL.Query().Get("graph"); graph != "" {
		for _, q := range quads {
			q.Graph = graph
		}
	}

	s.mu.Lock()
	err = s.store.AddQuads(quads)
	s.mu.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}

	elapsed := time.Since(start)
	stats := uploadStats{TriplesInserted: len(quads), DurationMs: elapsed.Milliseconds()}
	if secs := elapsed.Seconds(); secs > 0 {
		stats.TriplesPerSecond = float64(len(quads)) / secs
	}
	s.logger.WithField("triples", len(quads)).Info("server: data loaded")
	s.writeJSON(w, http.StatusOK, struct {
		Success    bool        `json:"success"`
		Statistics uploadStats `json:"statistics"`
	}{Success: true, Statistics: stats})
}
