package errors

import (
	"context"
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CarriesCodeAndFields(t *testing.T) {
	err := New(CodeStoreInvalidInput, "bad triple", Field("position", "subject"), Field("", "ignored"))
	require.Error(t, err)

	assert.Equal(t, CodeStoreInvalidInput, CodeOf(err))
	assert.Equal(t, "subject", FieldsOf(err)["position"])
	assert.NotContains(t, FieldsOf(err), "")
	assert.Contains(t, err.Error(), "bad triple")
}

func TestWrap_KeepsInnermostCode(t *testing.T) {
	inner := New(CodeSPARQLParseInvalidSyntax, "unexpected token")
	outer := Wrap(inner, CodeSPARQLExecuteFailure, "query failed")

	assert.Equal(t, CodeSPARQLParseInvalidSyntax, CodeOf(outer))
	assert.True(t, HasCode(outer, CodeSPARQLParseInvalidSyntax))
	assert.Nil(t, Wrap(nil, CodeSPARQLExecuteFailure, "noop"))
	assert.Nil(t, Wrapf(nil, CodeSPARQLExecuteFailure, "noop %d", 1))
}

func TestCodeOf_ForeignErrors(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.Equal(t, Code(""), CodeOf(stderrors.New("plain")))
	assert.Nil(t, FieldsOf(stderrors.New("plain")))
	assert.False(t, HasCode(nil, CodeStoreInvalidInput))
}

func TestClassifiers(t *testing.T) {
	assert.True(t, IsInvalidInput(New(CodeSPARQLParseInvalidSyntax, "x")))
	assert.True(t, IsInvalidInput(New(CodeConfigValidateInvalidValue, "x")))
	assert.True(t, IsInvalidInput(New(CodeStoreInvalidInput, "x")))
	assert.True(t, IsDenied(New(CodeSPARQLAdmissionDenied, "x")))
	assert.True(t, IsCanceled(Wrap(context.Canceled, CodeSPARQLExecuteCanceled, "x")))
	assert.False(t, IsCanceled(New(CodeSPARQLExecuteFailure, "x")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeSPARQLParseInvalidSyntax, http.StatusBadRequest},
		{CodeServerRequestInvalid, http.StatusBadRequest},
		{CodeSPARQLTranslateUnsupported, http.StatusNotImplemented},
		{CodeSPARQLAdmissionDenied, http.StatusUnprocessableEntity},
		{CodeSPARQLExecuteCanceled, http.StatusServiceUnavailable},
		{CodeStoreTransactionClosed, http.StatusConflict},
		{CodeSPARQLExecuteFailure, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(New(tt.code, "x")))
		})
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(stderrors.New("plain")))
}

func TestJoin(t *testing.T) {
	assert.Nil(t, Join(nil, nil))

	err := Join(stderrors.New("a"), stderrors.New("b"))
	require.Error(t, err)
	assert.Equal(t, CodeServerInternalFailure, CodeOf(err))
	assert.Contains(t, err.Error(), "a")
	assert.Contains(t, err.Error(), "b")
}
