package rdf

import (
	"io"
	"strings"

	"github.com/exocortex/exoql/pkg/errors"
)

// Reader parses an RDF document into quads.
type Reader interface {
	Read(r io.Reader) ([]*Quad, error)

	// ContentType returns the MIME type this reader handles
	ContentType() string
}

// NewReader picks a reader for a Content-Type header value. Parameters such
// as charset are ignored.
func NewReader(contentType string, prefixes map[string]string) (Reader, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx != -1 {
		ct = strings.TrimSpace(ct[:idx])
	}

	switch ct {
	case "application/n-triples", "text/plain", "":
		return &nTriplesReader{prefixes: prefixes}, nil
	case "application/n-quads":
		return &nQuadsReader{prefixes: prefixes}, nil
	default:
		return nil, errors.New(errors.CodeStoreInvalidInput, "unsupported content type",
			errors.Field("content_type", contentType),
			errors.Field("supported", SupportedContentTypes()))
	}
}

// SupportedContentTypes lists the media types NewReader accepts.
func SupportedContentTypes() []string {
	return []string{
		"application/n-triples",
		"application/n-quads",
		"text/plain", // alias for N-Triples
	}
}

type nTriplesReader struct {
	prefixes map[string]string
}

func (r *nTriplesReader) ContentType() string {
	return "application/n-triples"
}

func (r *nTriplesReader) Read(in io.Reader) ([]*Quad, error) {
	triples, err := ParseNTriples(in, r.prefixes)
	if err != nil {
		return nil, err
	}
	quads := make([]*Quad, len(triples))
	for i, t := range triples {
		quads[i] = &Quad{Triple: t}
	}
	return quads, nil
}

type nQuadsReader struct {
	prefixes map[string]string
}

func (r *nQuadsReader) ContentType() string {
	return "application/n-quads"
}

func (r *nQuadsReader) Read(in io.Reader) ([]*Quad, error) {
	return ParseNQuads(in, r.prefixes)
}
