package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/exocortex/exoql/pkg/errors"
)

// maxBodyBytes bounds query and upload bodies.
const maxBodyBytes = 64 << 20

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string         `json:"code"`
	Status  int            `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeError maps err onto a status through its code and writes a JSON body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	code := string(errors.CodeOf(err))
	if code == "" {
		code = string(errors.CodeServerInternalFailure)
	}

	entry := s.logger.WithError(err).WithField("code", code)
	if status >= http.StatusInternalServerError {
		entry.Error("server: request failed")
	} else {
		entry.Debug("server: request rejected")
	}

	s.writeJSON(w, status, errorBody{Error: errorDetail{
		Code:    code,
		Status:  status,
		Message: err.Error(),
		Details: errors.FieldsOf(err),
	}})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Warn("server: write response")
	}
}

func badRequest(msg string) error {
	return errors.New(errors.CodeServerRequestInvalid, msg)
}

// extractQuery reads the query text the way the SPARQL protocol allows: a
// query parameter on GET, and on POST either a form field or the raw body.
func extractQuery(r *http.Request) (string, error) {
	var query string

	switch r.Method {
	case http.MethodGet:
		query = r.URL.Query().Get("query")
	case http.MethodPost:
		contentType := r.Header.Get("Content-Type")
		if strings.Contains(contentType, "application/x-www-form-urlencoded") {
			r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
			if err := r.ParseForm(); err != nil {
				return "", errors.Wrap(err, errors.CodeServerRequestInvalid, "failed to parse form")
			}
			query = r.FormValue("query")
		} else {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				return "", errors.Wrap(err, errors.CodeServerRequestInvalid, "failed to read request body")
			}
			query = string(body)
		}
	}

	if strings.TrimSpace(query) == "" {
		return "", badRequest("missing 'query' parameter")
	}
	return query, nil
}
