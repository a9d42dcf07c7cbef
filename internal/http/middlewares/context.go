package middlewares

import (
	"context"

	"github.com/dropDatabas3/posgate/internal/apikey"
	"github.com/dropDatabas3/posgate/internal/session"
)

// =================================================================================
// CONTEXT KEYS
// =================================================================================

type ctxKey string

const (
	ctxClaimsKey    ctxKey = "claims"
	ctxAPIKeyKey    ctxKey = "api_key"
	ctxRequestIDKey ctxKey = "request_id"
)

// WithClaims inyecta las claims de sesión verificadas.
func WithClaims(ctx context.Context, c *session.Claims) context.Context {
	return context.WithValue(ctx, ctxClaimsKey, c)
}

// WithAPIKey inyecta la API key verificada.
func WithAPIKey(ctx context.Context, k *apikey.Key) context.Context {
	return context.WithValue(ctx, ctxAPIKeyKey, k)
}

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetClaims retorna nil si RequireAccess no corrió.
func GetClaims(ctx context.Context) *session.Claims {
	c, _ := ctx.Value(ctxClaimsKey).(*session.Claims)
	return c
}

// GetAPIKey retorna nil si RequireAPIKey no corrió.
func GetAPIKey(ctx context.Context) *apikey.Key {
	k, _ := ctx.Value(ctxAPIKeyKey).(*apikey.Key)
	return k
}

// GetSubject devuelve el sujeto de la sesión o "".
func GetSubject(ctx context.Context) string {
	if c := GetClaims(ctx); c != nil {
		return c.Subject
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxRequestIDKey).(string)
	return s
}
