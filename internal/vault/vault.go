// Package vault guarda las credenciales OAuth de cada comercio cifradas con
// AES-256-GCM y las refresca de forma transparente cuando están por expirar.
//
// Exclusión por clave (platform, merchantID): llamadas concurrentes sobre la
// misma clave comparten un único refresh en vuelo; claves distintas avanzan
// en paralelo.
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/posgate/internal/domain/repository"
	"github.com/dropDatabas3/posgate/internal/metrics"
	"github.com/dropDatabas3/posgate/internal/observability/logger"
	"github.com/dropDatabas3/posgate/internal/security/secretbox"
	tokens "github.com/dropDatabas3/posgate/internal/security/token"
)

const (
	DefaultRefreshAhead   = 24 * time.Hour
	DefaultRefreshTimeout = 30 * time.Second
)

// Record es una credencial en claro, tal como la entrega el intercambio OAuth.
type Record struct {
	Platform     string
	MerchantID   string
	RestaurantID string
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

type Options struct {
	RefreshAhead   time.Duration
	RefreshTimeout time.Duration
	Now            func() time.Time
}

type Vault struct {
	repo     repository.CredentialRepository
	box      *secretbox.Box
	registry *RefresherRegistry
	opts     Options

	sf    singleflight.Group
	locks *keyLocks
}

func New(repo repository.CredentialRepository, box *secretbox.Box, registry *RefresherRegistry, opts Options) *Vault {
	if opts.RefreshAhead <= 0 {
		opts.RefreshAhead = DefaultRefreshAhead
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if registry == nil {
		registry = NewRefresherRegistry()
	}
	return &Vault{repo: repo, box: box, registry: registry, opts: opts, locks: newKeyLocks()}
}

// Registry expone el registro de refreshers (lo usa el scheduler).
func (v *Vault) Registry() *RefresherRegistry { return v.registry }

// Store cifra y sobrescribe la credencial completa de (platform, merchantID).
func (v *Vault) Store(ctx context.Context, rec Record) error {
	if rec.Platform == "" || rec.MerchantID == "" {
		return fmt.Errorf("vault: store: %w", repository.ErrInvalidInput)
	}
	unlock := v.locks.lock(keyOf(rec.Platform, rec.MerchantID))
	defer unlock()
	return v.storeLocked(ctx, rec)
}

func (v *Vault) storeLocked(ctx context.Context, rec Record) error {
	encAccess, err := v.box.Encrypt(rec.AccessToken)
	if err != nil {
		return fmt.Errorf("vault: encrypt access token: %w", err)
	}
	var encRefresh string
	if rec.RefreshToken != "" {
		if encRefresh, err = v.box.Encrypt(rec.RefreshToken); err != nil {
			return fmt.Errorf("vault: encrypt refresh token: %w", err)
		}
	}
	c := repository.Credential{
		Platform:              rec.Platform,
		MerchantID:            rec.MerchantID,
		RestaurantID:          rec.RestaurantID,
		EncryptedAccessToken:  encAccess,
		EncryptedRefreshToken: encRefresh,
		ExpiresAt:             rec.ExpiresAt,
		UpdatedAt:             v.opts.Now().UTC(),
	}
	if err := v.repo.Put(ctx, c); err != nil {
		return fmt.Errorf("vault: put: %w", err)
	}
	return nil
}

// GetAccessToken devuelve el access token vigente. Si la plataforma expira
// tokens y expiresAt cae dentro de la ventana de refresh-ahead, refresca
// sincrónicamente (un solo intento) antes de responder.
func (v *Vault) GetAccessToken(ctx context.Context, platform, merchantID string) (string, error) {
	c, err := v.get(ctx, platform, merchantID)
	if err != nil {
		return "", err
	}
	if !v.needsRefresh(c) {
		return v.box.Decrypt(c.EncryptedAccessToken)
	}

	key := keyOf(platform, merchantID)
	// DoChan + select: el caller puede abandonar por su propio ctx sin
	// cancelar el refresh compartido con otros.
	ch := v.sf.DoChan(key, func() (any, error) {
		rctx := context.WithoutCancel(ctx)
		return v.refresh(rctx, platform, merchantID)
	})
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (v *Vault) refresh(ctx context.Context, platform, merchantID string) (string, error) {
	unlock := v.locks.lock(keyOf(platform, merchantID))
	defer unlock()

	log := logger.FromWithFields(ctx, logger.Component("vault"), logger.Platform(platform), logger.MerchantID(merchantID))

	// Releer bajo lock: otro proceso o un Store pudo haber renovado ya.
	c, err := v.get(ctx, platform, merchantID)
	if err != nil {
		return "", err
	}
	if !v.needsRefresh(c) {
		return v.box.Decrypt(c.EncryptedAccessToken)
	}

	fn, _ := v.registry.Lookup(platform)
	if c.EncryptedRefreshToken == "" {
		log.Warn("credential_refresh_skipped_no_refresh_token")
		metrics.RecordRefresh(platform, "failed", 0)
		return "", fmt.Errorf("%w: no refresh token stored", ErrRefreshFailed)
	}
	refreshToken, err := v.box.Decrypt(c.EncryptedRefreshToken)
	if err != nil {
		log.Error("credential_refresh_token_undecryptable", logger.Err(err))
		metrics.RecordRefresh(platform, "failed", 0)
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, v.opts.RefreshTimeout)
	ts, err := fn(cctx, refreshToken)
	cancel()
	elapsed := time.Since(start)
	if err != nil {
		log.Warn("credential_refresh_failed", logger.Err(err), logger.Elapsed(elapsed))
		metrics.RecordRefresh(platform, "failed", elapsed)
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if ts == nil || ts.AccessToken == "" {
		metrics.RecordRefresh(platform, "failed", elapsed)
		return "", fmt.Errorf("%w: empty token response", ErrRefreshFailed)
	}

	next := Record{
		Platform:     platform,
		MerchantID:   merchantID,
		RestaurantID: c.RestaurantID,
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		ExpiresAt:    ts.ExpiresAt,
	}
	// Algunas plataformas no rotan el refresh token.
	if next.RefreshToken == "" {
		next.RefreshToken = refreshToken
	}
	if err := v.storeLocked(ctx, next); err != nil {
		metrics.RecordRefresh(platform, "failed", elapsed)
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	metrics.RecordRefresh(platform, "ok", elapsed)
	log.Info("credential_refreshed",
		logger.Fingerprint(tokens.Fingerprint(ts.AccessToken)),
		logger.Elapsed(elapsed),
	)
	return ts.AccessToken, nil
}

// Remove borra la credencial. Idempotente.
func (v *Vault) Remove(ctx context.Context, platform, merchantID string) error {
	unlock := v.locks.lock(keyOf(platform, merchantID))
	defer unlock()
	if err := v.repo.Delete(ctx, platform, merchantID); err != nil {
		return fmt.Errorf("vault: delete: %w", err)
	}
	return nil
}

// List devuelve las claves almacenadas (sin secretos). platform "" = todas.
func (v *Vault) List(ctx context.Context, platform string) ([]repository.CredentialKey, error) {
	return v.repo.List(ctx, platform)
}

func (v *Vault) get(ctx context.Context, platform, merchantID string) (*repository.Credential, error) {
	c, err := v.repo.Get(ctx, platform, merchantID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vault: get: %w", err)
	}
	return c, nil
}

func (v *Vault) needsRefresh(c *repository.Credential) bool {
	if c.ExpiresAt == nil || !v.registry.Refreshable(c.Platform) {
		return false
	}
	return c.ExpiresAt.Sub(v.opts.Now()) <= v.opts.RefreshAhead
}

func keyOf(platform, merchantID string) string {
	return repository.CredentialKey{Platform: platform, MerchantID: merchantID}.String()
}
