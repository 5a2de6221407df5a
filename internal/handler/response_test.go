package handler

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/kernel-server/internal/apperror"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		status    int
		errorType string
		message   string
	}{
		{
			name:      "validation",
			err:       apperror.ValidationFailed("command", "Command is required"),
			status:    400,
			errorType: "validation_error",
			message:   "Command is required",
		},
		{
			name:      "not found",
			err:       apperror.NotFound("cell", "c-missing"),
			status:    404,
			errorType: "not_found",
			message:   "cell not found with id c-missing",
		},
		{
			name:      "context lost",
			err:       apperror.ContextLost("ctx-1", errors.New("container gone")),
			status:    503,
			errorType: "context_lost",
			message:   "execution context ctx-1 no longer resolves: container gone",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			resp := decodeError(t, rec)
			assert.Equal(t, tc.errorType, resp.Error)
			assert.Equal(t, tc.message, resp.Message)
		})
	}
}

func TestWriteErrorHidesUntypedMessages(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, errors.New("dial tcp 10.0.0.3: connection refused"))

	assert.Equal(t, 500, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "internal_error", resp.Error)
	assert.Equal(t, "An internal error occurred", resp.Message)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
}
