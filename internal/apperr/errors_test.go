package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapAndIs(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeUpstreamTransient, "fetching activity")

	assert.Equal(t, "fetching activity: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, errors.Is(err, New(CodeUpstreamTransient, "")))
	assert.False(t, errors.Is(err, New(CodeUpstreamAuth, "")))
	assert.Nil(t, Wrap(nil, CodeInternal, "nothing"))
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", New(CodeNotFound, "user not found"))

	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
	assert.True(t, IsCode(wrapped, CodeNotFound))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	tests := map[Code]int{
		CodeValidation:        http.StatusBadRequest,
		CodeNotFound:          http.StatusNotFound,
		CodeConflict:          http.StatusConflict,
		CodeUpstreamAuth:      http.StatusUnauthorized,
		CodeUpstreamTransient: http.StatusBadGateway,
		CodeInternal:          http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, New(code, "x").HTTPStatus(), string(code))
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, New(CodeValidation, "distance must be positive").WithDetails("distance"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Equal(t, "distance must be positive", body.Error.Message)
	assert.Equal(t, "distance", body.Error.Details)
}

func TestWriteJSON_HidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, errors.New("database is locked"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "locked")
}
