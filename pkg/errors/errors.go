package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeSPARQLParseInvalidSyntax   Code = "sparql.parse.invalid_syntax"
	CodeSPARQLTranslateUnsupported Code = "sparql.translate.unsupported"
	CodeSPARQLExecuteFailure       Code = "sparql.execute.failure"
	CodeSPARQLExecuteCanceled      Code = "sparql.execute.canceled"
	CodeSPARQLAdmissionDenied      Code = "sparql.admission.denied"

	CodeNTriplesParseInvalidSyntax Code = "rdf.ntriples.invalid_syntax"
	CodeTermInvalidPosition        Code = "rdf.term.invalid_position"

	CodeStoreTransactionClosed Code = "store.transaction.closed"
	CodeStoreInvalidInput      Code = "store.invalid_input"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerStartFailure    Code = "server.start.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// CodeOf returns the innermost code attached to err, or "" for foreign errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	switch code := oopsErr.Code().(type) {
	case Code:
		return code
	case string:
		return Code(code)
	case nil:
		return ""
	default:
		return Code(fmt.Sprintf("%v", code))
	}
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_syntax"
}

func IsDenied(err error) bool {
	return reason(CodeOf(err)) == "denied"
}

func IsCanceled(err error) bool {
	return reason(CodeOf(err)) == "canceled"
}

// HTTPStatus maps an error code onto the status the SPARQL endpoint replies with.
func HTTPStatus(err error) int {
	switch {
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case HasCode(err, CodeSPARQLTranslateUnsupported):
		return http.StatusNotImplemented
	case IsDenied(err):
		return http.StatusUnprocessableEntity
	case IsCanceled(err):
		return http.StatusServiceUnavailable
	case HasCode(err, CodeStoreTransactionClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	joined := stderrors.Join(errs...)
	if joined == nil {
		return nil
	}
	return oops.Code(CodeServerInternalFailure).Wrap(joined)
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
