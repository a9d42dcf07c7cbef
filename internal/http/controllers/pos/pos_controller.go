// Package pos contiene los controllers de conexión con plataformas POS:
// autorización OAuth, callback y desconexión de comercios.
package pos

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/posgate/internal/domain/repository"
	dto "github.com/dropDatabas3/posgate/internal/http/dto"
	"github.com/dropDatabas3/posgate/internal/http/errors"
	"github.com/dropDatabas3/posgate/internal/http/helpers"
	"github.com/dropDatabas3/posgate/internal/oauthflow"
	"github.com/dropDatabas3/posgate/internal/observability/logger"
	tokens "github.com/dropDatabas3/posgate/internal/security/token"
)

// Flow es el handshake OAuth de una plataforma.
type Flow interface {
	Platform() string
	Authorize(ctx context.Context, restaurantID string) (string, error)
	Callback(ctx context.Context, p oauthflow.CallbackParams) (*oauthflow.Result, error)
}

// Vault es el subconjunto del vault que usan estos endpoints.
type Vault interface {
	GetAccessToken(ctx context.Context, platform, merchantID string) (string, error)
	Remove(ctx context.Context, platform, merchantID string) error
	List(ctx context.Context, platform string) ([]repository.CredentialKey, error)
}

// Revoker revoca el access token en la plataforma (best effort).
type Revoker interface {
	Revoke(ctx context.Context, accessToken string) error
}

// Controller maneja /v1/pos/*.
type Controller struct {
	vault    Vault
	flows    map[string]Flow
	revokers map[string]Revoker
}

func NewController(v Vault) *Controller {
	return &Controller{
		vault:    v,
		flows:    make(map[string]Flow),
		revokers: make(map[string]Revoker),
	}
}

// AddPlatform registra el flow de una plataforma. revoker puede ser nil.
// Se llama durante el wiring, antes de servir.
func (c *Controller) AddPlatform(flow Flow, revoker Revoker) {
	p := flow.Platform()
	c.flows[p] = flow
	if revoker != nil {
		c.revokers[p] = revoker
	}
}

// Platforms lista las plataformas con flow registrado.
func (c *Controller) Platforms() []string {
	out := make([]string, 0, len(c.flows))
	for p := range c.flows {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (c *Controller) flow(w http.ResponseWriter, r *http.Request) (Flow, bool) {
	platform := strings.ToLower(chi.URLParam(r, "platform"))
	f, ok := c.flows[platform]
	if !ok {
		errors.WriteError(w, errors.ErrPlatformNotFound.WithDetail(platform))
		return nil, false
	}
	return f, true
}

// Authorize maneja GET /v1/pos/{platform}/authorize?restaurant_id=...
func (c *Controller) Authorize(w http.ResponseWriter, r *http.Request) {
	f, ok := c.flow(w, r)
	if !ok {
		return
	}
	restaurantID := strings.TrimSpace(r.URL.Query().Get("restaurant_id"))

	url, err := f.Authorize(r.Context(), restaurantID)
	if err != nil {
		errors.WriteErrorCtx(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// Callback maneja GET /v1/pos/{platform}/callback?code=&state=&error=
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) {
	f, ok := c.flow(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	res, err := f.Callback(r.Context(), oauthflow.CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})
	if err != nil {
		logger.From(r.Context()).Warn("oauth_callback_failed",
			logger.Platform(f.Platform()),
			logger.Fingerprint(tokens.Fingerprint(q.Get("state"))),
			logger.Err(err),
		)
		errors.WriteErrorCtx(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.CallbackResponse{
		Success:      true,
		Platform:     res.Platform,
		MerchantID:   res.MerchantID,
		RestaurantID: res.RestaurantID,
	})
}

// Disconnect maneja DELETE /v1/pos/{platform}/merchants/{merchantID}.
// Revoca upstream si la plataforma lo soporta y borra la credencial local
// aunque la revocación falle.
func (c *Controller) Disconnect(w http.ResponseWriter, r *http.Request) {
	platform := strings.ToLower(chi.URLParam(r, "platform"))
	merchantID := chi.URLParam(r, "merchantID")
	if merchantID == "" {
		errors.WriteError(w, errors.ErrInvalidParameter.WithDetail("merchantID"))
		return
	}
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Platform(platform), logger.MerchantID(merchantID))

	revoked := false
	if rv, ok := c.revokers[platform]; ok {
		tok, err := c.vault.GetAccessToken(ctx, platform, merchantID)
		switch {
		case err != nil:
			log.Warn("disconnect_token_unavailable", logger.Err(err))
		default:
			if err := rv.Revoke(ctx, tok); err != nil {
				log.Warn("upstream_revoke_failed", logger.Err(err))
			} else {
				revoked = true
			}
		}
	}

	if err := c.vault.Remove(ctx, platform, merchantID); err != nil {
		errors.WriteErrorCtx(w, r, err)
		return
	}
	log.Info("merchant_disconnected", logger.Bool("upstream_revoked", revoked))
	helpers.WriteJSON(w, http.StatusOK, dto.DisconnectResponse{
		Success:    true,
		Platform:   platform,
		MerchantID: merchantID,
		Revoked:    revoked,
	})
}

// ListMerchants maneja GET /v1/pos/merchants?platform=
func (c *Controller) ListMerchants(w http.ResponseWriter, r *http.Request) {
	platform := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("platform")))
	keys, err := c.vault.List(r.Context(), platform)
	if err != nil {
		errors.WriteErrorCtx(w, r, err)
		return
	}
	out := dto.MerchantListResponse{Merchants: make([]dto.MerchantItem, 0, len(keys))}
	for _, k := range keys {
		out.Merchants = append(out.Merchants, dto.MerchantItem{Platform: k.Platform, MerchantID: k.MerchantID})
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}
