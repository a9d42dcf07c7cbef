// Package oauthflow conduce el handshake authorize -> callback contra una
// plataforma POS y guarda las credenciales resultantes en el vault.
//
// Estados: Idle -> AuthorizationRequested -> (Authorized | Denied | Expired).
// El state CSRF se valida y consume antes de cualquier llamada de red.
package oauthflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/posgate/internal/metrics"
	"github.com/dropDatabas3/posgate/internal/observability/logger"
	tokens "github.com/dropDatabas3/posgate/internal/security/token"
	"github.com/dropDatabas3/posgate/internal/vault"
)

const (
	DefaultStateTTL        = 10 * time.Minute
	DefaultExchangeTimeout = 30 * time.Second

	stateBytes = 32
)

var errTimeout = errors.New("exchange timeout")

// Provider es el cliente OAuth de una plataforma.
type Provider interface {
	Platform() string
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*vault.TokenSet, error)
}

// CredentialStore es la parte del vault que usa el flujo.
type CredentialStore interface {
	Store(ctx context.Context, rec vault.Record) error
}

type Options struct {
	StateTTL        time.Duration
	ExchangeTimeout time.Duration
	Now             func() time.Time
}

type Controller struct {
	provider Provider
	pending  PendingStore
	creds    CredentialStore
	opts     Options
}

func New(provider Provider, pending PendingStore, creds CredentialStore, opts Options) *Controller {
	if opts.StateTTL <= 0 {
		opts.StateTTL = DefaultStateTTL
	}
	if opts.ExchangeTimeout <= 0 {
		opts.ExchangeTimeout = DefaultExchangeTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{provider: provider, pending: pending, creds: creds, opts: opts}
}

func (c *Controller) Platform() string { return c.provider.Platform() }

// Authorize registra un state nuevo y devuelve la URL de autorización.
func (c *Controller) Authorize(ctx context.Context, restaurantID string) (string, error) {
	log := logger.FromWithFields(ctx, logger.Component("oauthflow"), logger.Platform(c.provider.Platform()))

	state, err := tokens.GenerateOpaqueToken(stateBytes)
	if err != nil {
		return "", fmt.Errorf("oauthflow: generate state: %w", err)
	}
	p := Pending{RestaurantID: restaurantID, CreatedAt: c.opts.Now()}
	if err := c.pending.Put(ctx, state, p, c.opts.StateTTL); err != nil {
		return "", fmt.Errorf("oauthflow: save state: %w", err)
	}

	if n, err := c.Sweep(ctx); err != nil {
		log.Warn("pending_sweep_failed", logger.Err(err))
	} else if n > 0 {
		log.Debug("pending_swept", logger.Count(n))
	}

	log.Info("authorization_requested", logger.RestaurantID(restaurantID))
	return c.provider.AuthURL(state), nil
}

// CallbackParams son los parámetros de query del redirect de la plataforma.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Result identidad del comercio autorizado.
type Result struct {
	Platform     string `json:"platform"`
	MerchantID   string `json:"merchantId"`
	RestaurantID string `json:"restaurantId,omitempty"`
}

// Callback completa el handshake. Orden: error de plataforma, state, code,
// intercambio, persistencia.
func (c *Controller) Callback(ctx context.Context, p CallbackParams) (*Result, error) {
	platform := c.provider.Platform()
	log := logger.FromWithFields(ctx, logger.Component("oauthflow"), logger.Platform(platform))

	if p.Error != "" {
		metrics.RecordOAuthCallback(platform, "denied")
		log.Info("authorization_denied", logger.String("reason", p.Error))
		return nil, &AuthorizationDeniedError{Reason: p.Error}
	}

	if p.State == "" {
		metrics.RecordOAuthCallback(platform, "invalid_state")
		return nil, ErrInvalidState
	}
	pend, ok, err := c.pending.Take(ctx, p.State)
	if err != nil {
		metrics.RecordOAuthCallback(platform, "error")
		return nil, fmt.Errorf("oauthflow: load state: %w", err)
	}
	if !ok || c.opts.Now().Sub(pend.CreatedAt) > c.opts.StateTTL {
		metrics.RecordOAuthCallback(platform, "invalid_state")
		log.Warn("callback_invalid_state", logger.Fingerprint(tokens.Fingerprint(p.State)))
		return nil, ErrInvalidState
	}

	if p.Code == "" {
		metrics.RecordOAuthCallback(platform, "error")
		return nil, ErrMissingCode
	}

	ts, err := c.exchange(ctx, p.Code)
	if err != nil {
		ef := exchangeFailed(err)
		metrics.RecordOAuthCallback(platform, "exchange_failed")
		log.Warn("token_exchange_failed", logger.Status(ef.Status), logger.String("code", ef.Code))
		return nil, ef
	}
	if ts.MerchantID == "" {
		metrics.RecordOAuthCallback(platform, "exchange_failed")
		return nil, &ExchangeFailedError{Code: "missing_merchant_id"}
	}

	rec := vault.Record{
		Platform:     platform,
		MerchantID:   ts.MerchantID,
		RestaurantID: pend.RestaurantID,
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		ExpiresAt:    ts.ExpiresAt,
	}
	if err := c.creds.Store(ctx, rec); err != nil {
		metrics.RecordOAuthCallback(platform, "error")
		return nil, fmt.Errorf("oauthflow: store credential: %w", err)
	}

	metrics.RecordOAuthCallback(platform, "ok")
	log.Info("merchant_authorized",
		logger.MerchantID(ts.MerchantID),
		logger.RestaurantID(pend.RestaurantID),
		logger.Fingerprint(tokens.Fingerprint(ts.AccessToken)),
	)
	return &Result{Platform: platform, MerchantID: ts.MerchantID, RestaurantID: pend.RestaurantID}, nil
}

func (c *Controller) exchange(ctx context.Context, code string) (*vault.TokenSet, error) {
	cctx, cancel := context.WithTimeout(ctx, c.opts.ExchangeTimeout)
	defer cancel()

	ts, err := c.provider.Exchange(cctx, code)
	if err != nil {
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return nil, errTimeout
		}
		return nil, err
	}
	if ts == nil || ts.AccessToken == "" {
		return nil, errors.New("empty token response")
	}
	return ts, nil
}

// Sweep elimina los pendientes con más de StateTTL de antigüedad.
func (c *Controller) Sweep(ctx context.Context) (int, error) {
	return c.pending.Sweep(ctx, c.opts.Now().Add(-c.opts.StateTTL))
}
