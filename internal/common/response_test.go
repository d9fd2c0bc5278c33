package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/ai-roleplay/internal/apperr"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestFailErr_MapsKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err    error
		status int
		code   float64
		kind   string
	}{
		{apperr.Validation("password too short"), http.StatusBadRequest, CodeValidation, "VALIDATION"},
		{apperr.NotFound("role not found"), http.StatusNotFound, CodeNotFound, "NOT_FOUND"},
		{apperr.Conflict("username taken"), http.StatusConflict, CodeConflict, "CONFLICT"},
		{apperr.Wrap(apperr.KindLLMUnavailable, "upstream", errors.New("status 502")), http.StatusServiceUnavailable, CodeLLMUnavailable, "LLM_UNAVAILABLE"},
		{errors.New("db exploded"), http.StatusInternalServerError, CodeInternal, "INTERNAL"},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		FailErr(c, tc.err)

		assert.Equal(t, tc.status, w.Code)
		body := decode(t, w)
		assert.Equal(t, tc.code, body["code"])
		assert.Equal(t, tc.kind, body["error"])
		assert.Equal(t, tc.status, StatusFor(tc.err))
	}
}

func TestFailErr_HidesProviderDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	FailErr(c, apperr.Wrap(apperr.KindLLMUnavailable, "openrouter: invalid api key sk-123", errors.New("401")))

	body := decode(t, w)
	assert.NotContains(t, body["message"], "sk-123")
}

func TestNewULID_Length(t *testing.T) {
	id, err := NewULID()
	require.NoError(t, err)
	assert.Len(t, id, 26)
}
