package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/posgate/internal/apikey"
	"github.com/dropDatabas3/posgate/internal/oauthflow"
	"github.com/dropDatabas3/posgate/internal/session"
	"github.com/dropDatabas3/posgate/internal/vault"
	"github.com/dropDatabas3/posgate/internal/webhook"
)

func TestFromError_DomainMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&oauthflow.AuthorizationDeniedError{Reason: "access_denied"}, 400, "AUTHORIZATION_DENIED"},
		{oauthflow.ErrInvalidState, 400, "INVALID_STATE"},
		{oauthflow.ErrMissingCode, 400, "MISSING_FIELDS"},
		{&oauthflow.ExchangeFailedError{Status: 401, Code: "UNAUTHORIZED"}, 500, "EXCHANGE_FAILED"},
		{fmt.Errorf("wrap: %w", vault.ErrNotFound), 404, "CREDENTIAL_NOT_FOUND"},
		{vault.ErrRefreshFailed, 502, "REFRESH_FAILED"},
		{webhook.ErrInvalidSignature, 401, "INVALID_SIGNATURE"},
		{webhook.ErrMalformedPayload, 400, "MALFORMED_PAYLOAD"},
		{fmt.Errorf("%w: %w", webhook.ErrDispatchUnavailable, webhook.ErrQueueFull), 503, "WEBHOOK_UNAVAILABLE"},
		{session.ErrExpiredToken, 401, "TOKEN_EXPIRED"},
		{session.ErrRevokedToken, 401, "TOKEN_REVOKED"},
		{session.ErrInvalidToken, 401, "TOKEN_INVALID"},
		{apikey.ErrInvalidKey, 401, "INVALID_API_KEY"},
		{apikey.ErrNotFound, 404, "NOT_FOUND"},
		{apikey.ErrInvalidInput, 400, "BAD_REQUEST"},
		{stderrors.New("boom"), 500, "INTERNAL_SERVER_ERROR"},
	}
	for _, tc := range cases {
		got := FromError(tc.err)
		assert.Equal(t, tc.status, got.HTTPStatus, tc.err.Error())
		assert.Equal(t, tc.code, got.Code, tc.err.Error())
	}
}

func TestFromError_DetailsAndCause(t *testing.T) {
	got := FromError(&oauthflow.AuthorizationDeniedError{Reason: "access_denied"})
	assert.Equal(t, "access_denied", got.Detail)

	got = FromError(&oauthflow.ExchangeFailedError{Status: 401, Code: "UNAUTHORIZED"})
	assert.Equal(t, "status 401: UNAUTHORIZED", got.Detail)

	cause := stderrors.New("db down")
	got = FromError(cause)
	assert.ErrorIs(t, got, cause)

	// los predefinidos no se mutan
	assert.Empty(t, ErrAuthorizationDenied.Detail)
	assert.Nil(t, ErrInternalServerError.Err)
}

func TestWriteError_Body(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-ID", "rid-1")
	WriteError(rec, stderrors.New("secret internals"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL_SERVER_ERROR", body["code"])
	assert.Equal(t, "rid-1", body["request_id"])
	assert.NotContains(t, rec.Body.String(), "secret internals")
}
