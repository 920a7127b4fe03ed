package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/scribe-api/internal/api/shared"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/service"
	"github.com/phrazzld/scribe-api/internal/service/auth"
	"github.com/phrazzld/scribe-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized, "Authentication required"},
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized, "Invalid token"},
		{"not owned", service.ErrNotOwned, http.StatusForbidden, "You do not own this project"},
		{"project not found", service.ErrProjectNotFound, http.StatusNotFound, "Project not found"},
		{"store not found", store.ErrProjectNotFound, http.StatusNotFound, "Project not found"},
		{"run in progress", service.ErrRunInProgress, http.StatusConflict, "A writing run is already in progress"},
		{
			"invalid transition",
			&service.WritingServiceError{Operation: "pause", Err: fmt.Errorf("%w: idle", domain.ErrInvalidTransition)},
			http.StatusConflict,
			"The run cannot do that in its current state",
		},
		{"concurrent update", fmt.Errorf("%w: deadlock", store.ErrConflict), http.StatusConflict, "The project changed concurrently, please retry"},
		{"nothing to write", service.ErrNothingToWrite, http.StatusBadRequest, "Nothing left to write"},
		{"bad path", fmt.Errorf("%w: projectID", ErrInvalidPathParam), http.StatusBadRequest, "Invalid project ID"},
		{"credits", domain.ErrInsufficientCredits, http.StatusPaymentRequired, "Insufficient credits"},
		{"unknown", errors.New("connection refused"), http.StatusInternalServerError, "An unexpected error occurred"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.status, MapErrorToStatusCode(tc.err))
			assert.Equal(t, tc.message, GetSafeErrorMessage(tc.err))
		})
	}

	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
}

func TestHandleAPIError(t *testing.T) {
	t.Parallel()

	t.Run("default message replaces generic 500 text", func(t *testing.T) {
		t.Parallel()
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		HandleAPIError(w, r, errors.New("pq: relation \"projects\" does not exist"), "Failed to start writing run")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		var body shared.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "Failed to start writing run", body.Error)
		assert.NotContains(t, w.Body.String(), "relation")
	})

	t.Run("known errors keep their message", func(t *testing.T) {
		t.Parallel()
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		HandleAPIError(w, r, service.ErrNotOwned, "Failed to start writing run")

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "You do not own this project")
	})
}
