// Package apikeys expone la administración de API keys.
package apikeys

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/posgate/internal/apikey"
	dto "github.com/dropDatabas3/posgate/internal/http/dto"
	"github.com/dropDatabas3/posgate/internal/http/errors"
	"github.com/dropDatabas3/posgate/internal/http/helpers"
)

// Registry subconjunto de apikey.Registry.
type Registry interface {
	Generate(ctx context.Context, name string, scopes []string, expiresAt *time.Time) (*apikey.Created, error)
	Revoke(ctx context.Context, id string) error
	List(ctx context.Context) ([]apikey.Key, error)
}

type Controller struct {
	registry Registry
}

func NewController(reg Registry) *Controller {
	return &Controller{registry: reg}
}

// Create maneja POST /v1/admin/api-keys. El secreto sólo viaja en esta respuesta.
func (c *Controller) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateAPIKeyRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	created, err := c.registry.Generate(r.Context(), req.Name, req.Scopes, req.ExpiresAt)
	if err != nil {
		errors.WriteErrorCtx(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, created)
}

// List maneja GET /v1/admin/api-keys.
func (c *Controller) List(w http.ResponseWriter, r *http.Request) {
	keys, err := c.registry.List(r.Context())
	if err != nil {
		errors.WriteErrorCtx(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// Revoke maneja DELETE /v1/admin/api-keys/{id}.
func (c *Controller) Revoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		errors.WriteError(w, errors.ErrInvalidParameter.WithDetail("id"))
		return
	}
	if err := c.registry.Revoke(r.Context(), id); err != nil {
		errors.WriteErrorCtx(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
