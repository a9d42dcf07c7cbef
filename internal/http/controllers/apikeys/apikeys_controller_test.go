package apikeys

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/posgate/internal/apikey"
	"github.com/dropDatabas3/posgate/internal/store/memory"
)

func setup(t *testing.T) (http.Handler, *apikey.Registry) {
	t.Helper()
	reg, err := apikey.New(memory.NewAPIKeyStore(), []byte("pepper"), apikey.Options{})
	require.NoError(t, err)
	c := NewController(reg)

	r := chi.NewRouter()
	r.Post("/", c.Create)
	r.Get("/", c.List)
	r.Delete("/{id}", c.Revoke)
	return r, reg
}

func TestCreate_ReturnsSecretOnce(t *testing.T) {
	h, reg := setup(t)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"voice-agent","scopes":["credentials:read"]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	secret, _ := created["secret"].(string)
	require.NotEmpty(t, secret)
	assert.Equal(t, apikey.Notice, created["notice"])

	k, err := reg.Verify(context.Background(), secret)
	require.NoError(t, err)
	assert.Equal(t, []string{"credentials:read"}, k.Scopes)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), secret)
	assert.Contains(t, rec.Body.String(), "voice-agent")
}

func TestCreate_Validation(t *testing.T) {
	h, _ := setup(t)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":""}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"x"}`))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_JSON")
}

func TestRevoke(t *testing.T) {
	h, reg := setup(t)
	created, err := reg.Generate(context.Background(), "ops", nil, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/"+created.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err = reg.Verify(context.Background(), created.Secret)
	require.ErrorIs(t, err, apikey.ErrInvalidKey)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
