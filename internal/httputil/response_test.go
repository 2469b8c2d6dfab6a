package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cardvault/locker/internal/errors"
)

func performError(t *testing.T, err error) (*httptest.ResponseRecorder, ErrorResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodPost, "/data/add", nil)

	HandleErrorGin(c, err, nil)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return recorder, body
}

func TestHandleErrorGin(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		statusCode int
		code       string
	}{
		{"not found", apperrors.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"validation", apperrors.Wrap(apperrors.ErrInvalidInput, "invalid card"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unauthorized", apperrors.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"locked", apperrors.ErrLocked, http.StatusForbidden, "CUSTODIAN_LOCKED"},
		{"rate limited", apperrors.ErrTooManyRequests, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"opaque internal", apperrors.New("pq: connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder, body := performError(t, tc.err)
			assert.Equal(t, tc.statusCode, recorder.Code)
			assert.Equal(t, tc.code, body.Code)
		})
	}

	t.Run("internal errors never leak details", func(t *testing.T) {
		_, body := performError(t, apperrors.New("pq: duplicate key value violates unique constraint"))
		assert.NotContains(t, body.Message, "pq:")
	})
}
