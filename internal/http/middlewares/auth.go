package middlewares

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/posgate/internal/apikey"
	"github.com/dropDatabas3/posgate/internal/http/errors"
	"github.com/dropDatabas3/posgate/internal/observability/logger"
	"github.com/dropDatabas3/posgate/internal/session"
)

// =================================================================================
// AUTHENTICATION MIDDLEWARES
// =================================================================================

// AccessVerifier valida access tokens de sesión.
type AccessVerifier interface {
	VerifyAccess(token string) (*session.Claims, error)
}

// KeyVerifier valida API keys.
type KeyVerifier interface {
	Verify(ctx context.Context, secret string) (*apikey.Key, error)
	Authorize(requiredScope string, k *apikey.Key) bool
}

// APIKeyHeader header por donde llegan las API keys.
const APIKeyHeader = "X-API-Key"

// BearerToken extrae el token de Authorization: Bearer <token>.
func BearerToken(r *http.Request) string {
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(ah) < 7 || !strings.EqualFold(ah[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(ah[7:])
}

// RequireAccess valida un access token y guarda las claims en el contexto.
func RequireAccess(v AccessVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="missing bearer token"`)
				errors.WriteError(w, errors.ErrTokenMissing)
				return
			}
			claims, err := v.VerifyAccess(raw)
			if err != nil {
				desc := "invalid token"
				if stderrors.Is(err, session.ErrExpiredToken) {
					desc = "token expired"
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="`+desc+`"`)
				errors.WriteError(w, err)
				return
			}
			ctx := WithClaims(r.Context(), claims)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.Subject(claims.Subject)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAPIKey valida X-API-Key y exige scope. scope vacío sólo exige una
// key válida.
func RequireAPIKey(v KeyVerifier, scope string) Middleware {
	scope = strings.TrimSpace(scope)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(APIKeyHeader))
			if raw == "" {
				errors.WriteError(w, errors.ErrUnauthorized.WithDetail("missing "+APIKeyHeader))
				return
			}
			k, err := v.Verify(r.Context(), raw)
			if err != nil {
				errors.WriteErrorCtx(w, r, err)
				return
			}
			if scope != "" && !v.Authorize(scope, k) {
				logger.From(r.Context()).Warn("api_key_scope_denied", logger.KeyID(k.ID), logger.String("scope", scope))
				errors.WriteError(w, errors.ErrInsufficientScopes.WithDetail("required scope: "+scope))
				return
			}
			ctx := WithAPIKey(r.Context(), k)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.KeyID(k.ID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
