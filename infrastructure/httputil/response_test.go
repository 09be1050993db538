package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	svcerrors "github.com/r3e-network/culture-arena/infrastructure/errors"
)

func TestWriteJSONSetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteJSON(rec, http.StatusCreated, map[string]string{"ok": "yes"})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"ok":"yes"}`, rec.Body.String())
}

func TestWriteErrorMapsServiceErrorStatus(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteError(rec, svcerrors.RoundNotFound("round-1"))

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "round not found")
}

func TestWriteErrorDefaultsToInternalErrorForPlainErrors(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteError(rec, plainError{})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

type plainError struct{}

func (plainError) Error() string { return "something went wrong" }
