package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osservatorio-istat/platform/internal/apperr"
)

func TestWriteErrorMapsValidationTo400(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/datasets/bad%20id", nil)

	writeError(rec, req, validationError("dataset_id has an invalid format", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperr.KindValidation), resp.ErrorCode)
	assert.Equal(t, "dataset_id has an invalid format", resp.Detail)
	assert.Equal(t, "/datasets/bad id", resp.Instance)
}

func TestWriteErrorMapsPaginationTo422(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/datasets?page=0", nil)

	writeError(rec, req, validationErr("page must be an integer >= 1", "0"))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperr.KindValidation), resp.ErrorCode)
}

func TestWriteErrorCollapsesUnknownErrorsToInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/datasets", nil)

	writeError(rec, req, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(apperr.KindInternal), resp.ErrorCode)
	assert.NotContains(t, resp.Detail, "assert.AnError")
}

func TestProcessTimeHeaderEmittedBeforeBody(t *testing.T) {
	handler := processTimeMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Process-Time"))
}
