// Package session expone refresh y logout sobre el emisor de tokens de sesión.
// El login/registro vive en la API de autenticación externa, que emite los
// tokens con session.Issuer directamente.
package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	dto "github.com/dropDatabas3/posgate/internal/http/dto"
	"github.com/dropDatabas3/posgate/internal/http/errors"
	"github.com/dropDatabas3/posgate/internal/http/helpers"
	mw "github.com/dropDatabas3/posgate/internal/http/middlewares"
	"github.com/dropDatabas3/posgate/internal/observability/logger"
)

// Issuer subconjunto de session.Issuer usado por estos endpoints.
type Issuer interface {
	RefreshAccess(ctx context.Context, refreshToken string) (string, time.Time, error)
	Revoke(ctx context.Context, refreshToken string) error
	RevokeAll(ctx context.Context, subjectID string) (int, error)
}

type Controller struct {
	issuer Issuer
	now    func() time.Time
}

func NewController(iss Issuer) *Controller {
	return &Controller{issuer: iss, now: time.Now}
}

func readRefresh(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req dto.RefreshRequest
	if !helpers.ReadJSON(w, r, &req) {
		return "", false
	}
	rt := strings.TrimSpace(req.RefreshToken)
	if rt == "" {
		errors.WriteError(w, errors.ErrMissingFields.WithDetail("refresh_token"))
		return "", false
	}
	return rt, true
}

// Refresh maneja POST /v1/session/refresh.
func (c *Controller) Refresh(w http.ResponseWriter, r *http.Request) {
	rt, ok := readRefresh(w, r)
	if !ok {
		return
	}
	at, exp, err := c.issuer.RefreshAccess(r.Context(), rt)
	if err != nil {
		errors.WriteErrorCtx(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.AccessTokenResponse{
		AccessToken: at,
		TokenType:   "Bearer",
		ExpiresAt:   exp,
		ExpiresIn:   int64(exp.Sub(c.now()).Seconds()),
	})
}

// Logout maneja POST /v1/session/logout. Idempotente.
func (c *Controller) Logout(w http.ResponseWriter, r *http.Request) {
	rt, ok := readRefresh(w, r)
	if !ok {
		return
	}
	if err := c.issuer.Revoke(r.Context(), rt); err != nil {
		errors.WriteErrorCtx(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll maneja POST /v1/session/logout-all. Requiere RequireAccess.
func (c *Controller) LogoutAll(w http.ResponseWriter, r *http.Request) {
	sub := mw.GetSubject(r.Context())
	if sub == "" {
		errors.WriteError(w, errors.ErrUnauthorized)
		return
	}
	n, err := c.issuer.RevokeAll(r.Context(), sub)
	if err != nil {
		errors.WriteErrorCtx(w, r, err)
		return
	}
	logger.From(r.Context()).Info("logout_all", logger.Count(n))
	helpers.WriteJSON(w, http.StatusOK, dto.LogoutAllResponse{Revoked: n})
}
