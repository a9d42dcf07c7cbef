// Package router arma el árbol de rutas HTTP (chi).
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/posgate/internal/apikey"
	"github.com/dropDatabas3/posgate/internal/http/controllers/apikeys"
	"github.com/dropDatabas3/posgate/internal/http/controllers/health"
	"github.com/dropDatabas3/posgate/internal/http/controllers/pos"
	sessionctrl "github.com/dropDatabas3/posgate/internal/http/controllers/session"
	webhookctrl "github.com/dropDatabas3/posgate/internal/http/controllers/webhook"
	"github.com/dropDatabas3/posgate/internal/http/errors"
	mw "github.com/dropDatabas3/posgate/internal/http/middlewares"
	"github.com/dropDatabas3/posgate/internal/metrics"
	"github.com/dropDatabas3/posgate/internal/rate"
)

// Deps contiene controllers y verificadores. Un controller nil deja sus
// rutas sin registrar.
type Deps struct {
	POS     *pos.Controller
	Webhook *webhookctrl.Controller
	Session *sessionctrl.Controller
	APIKeys *apikeys.Controller
	Health  *health.Controller

	// Metrics handler de /metrics (nil => no se expone).
	Metrics http.Handler

	Access mw.AccessVerifier
	Keys   mw.KeyVerifier

	// RateLimiter opcional para OAuth y session.
	RateLimiter rate.Limiter
}

// New devuelve el handler raíz.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(mw.WithRecover(), mw.WithRequestID())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		errors.WriteError(w, errors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		errors.WriteError(w, errors.ErrMethodNotAllowed)
	})

	// Infra: sin logging por request (muy frecuentes)
	if d.Health != nil {
		r.Get("/healthz", d.Health.Healthz)
		r.Get("/readyz", d.Health.Readyz)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(mw.Group(metrics.WithMetrics, mw.WithSecurityHeaders(), mw.WithNoStore(), mw.WithLogging()))

		limited := mw.WithRateLimit(mw.RateLimitConfig{Limiter: d.RateLimiter, KeyFunc: mw.IPPathRateKey})

		if d.POS != nil {
			r.Route("/v1/pos", func(r chi.Router) {
				r.With(limited).Get("/{platform}/authorize", d.POS.Authorize)
				r.With(limited).Get("/{platform}/callback", d.POS.Callback)

				if d.Keys != nil {
					r.With(mw.RequireAPIKey(d.Keys, apikey.ScopeCredentialsRead)).Get("/merchants", d.POS.ListMerchants)
					r.With(mw.RequireAPIKey(d.Keys, apikey.ScopeCredentialsWrite)).Delete("/{platform}/merchants/{merchantID}", d.POS.Disconnect)
				}
			})
		}

		if d.Webhook != nil {
			r.Post("/v1/webhooks/square", d.Webhook.Receive)
		}

		if d.Session != nil {
			r.Route("/v1/session", func(r chi.Router) {
				r.Use(limited)
				r.Post("/refresh", d.Session.Refresh)
				r.Post("/logout", d.Session.Logout)
				if d.Access != nil {
					r.With(mw.RequireAccess(d.Access)).Post("/logout-all", d.Session.LogoutAll)
				}
			})
		}

		if d.APIKeys != nil && d.Keys != nil {
			r.Route("/v1/admin/api-keys", func(r chi.Router) {
				r.Use(mw.RequireAPIKey(d.Keys, apikey.ScopeAdmin))
				r.Post("/", d.APIKeys.Create)
				r.Get("/", d.APIKeys.List)
				r.Delete("/{id}", d.APIKeys.Revoke)
			})
		}
	})

	return r
}
