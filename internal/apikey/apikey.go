// Package apikey emite y verifica API keys de larga duración para clientes
// máquina a máquina. Sólo se persiste HMAC-SHA256(pepper, secreto); el
// secreto en claro existe únicamente en la respuesta de Generate.
package apikey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/posgate/internal/domain/repository"
	"github.com/dropDatabas3/posgate/internal/metrics"
	"github.com/dropDatabas3/posgate/internal/observability/logger"
	tokens "github.com/dropDatabas3/posgate/internal/security/token"
	"github.com/dropDatabas3/posgate/internal/validation"
)

const (
	// Formato: pgk_<secreto base64url>
	keyPrefix  = "pgk_"
	secretSize = 32

	// ScopeWildcard autoriza cualquier scope.
	ScopeWildcard = validation.Wildcard

	ScopeAdmin            = "admin"
	ScopeCredentialsRead  = "credentials:read"
	ScopeCredentialsWrite = "credentials:write"

	// Notice acompaña al secreto en la respuesta de creación.
	Notice = "Store this key now: it cannot be retrieved again."
)

var (
	ErrInvalidKey   = errors.New("apikey: invalid key")
	ErrScopeDenied  = errors.New("apikey: scope denied")
	ErrNotFound     = errors.New("apikey: not found")
	ErrInvalidInput = errors.New("apikey: invalid input")
)

// Key es la vista pública de un registro (sin hash).
type Key struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Scopes     []string   `json:"scopes"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// Created es la respuesta de Generate; Secret no se puede volver a obtener.
type Created struct {
	Key
	Secret string `json:"secret"`
	Notice string `json:"notice"`
}

type Options struct {
	Now func() time.Time
}

type Registry struct {
	repo   repository.APIKeyRepository
	pepper []byte
	now    func() time.Time
}

func New(repo repository.APIKeyRepository, pepper []byte, opts Options) (*Registry, error) {
	if len(pepper) == 0 {
		return nil, errors.New("apikey: missing pepper")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{repo: repo, pepper: append([]byte(nil), pepper...), now: opts.Now}, nil
}

func (r *Registry) hash(secret string) string {
	return tokens.HMACSHA256Hex(r.pepper, secret)
}

// Generate crea una key nueva. expiresAt nil => no expira.
func (r *Registry) Generate(ctx context.Context, name string, scopes []string, expiresAt *time.Time) (*Created, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	scopes, err := validation.NormalizeScopes(scopes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	raw, err := tokens.GenerateOpaqueToken(secretSize)
	if err != nil {
		return nil, fmt.Errorf("apikey: generate secret: %w", err)
	}
	secret := keyPrefix + raw

	rec := repository.APIKey{
		ID:         uuid.NewString(),
		Name:       name,
		SecretHash: r.hash(secret),
		Scopes:     scopes,
		Active:     true,
		CreatedAt:  r.now().UTC(),
		ExpiresAt:  expiresAt,
	}
	if err := r.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("apikey: create: %w", err)
	}

	logger.From(ctx).Info("api_key_created",
		logger.Component("apikey"),
		logger.KeyID(rec.ID),
		logger.Any("scopes", scopes),
	)
	return &Created{Key: toKey(rec), Secret: secret, Notice: Notice}, nil
}

// Verify resuelve el secreto a su registro. Falla con ErrInvalidKey si no
// existe, está inactiva o expiró. Actualiza lastUsedAt.
func (r *Registry) Verify(ctx context.Context, secret string) (*Key, error) {
	secret = strings.TrimSpace(secret)
	if !strings.HasPrefix(secret, keyPrefix) || len(secret) == len(keyPrefix) {
		metrics.RecordAPIKeyVerification("malformed")
		return nil, ErrInvalidKey
	}
	h := r.hash(secret)
	rec, err := r.repo.GetByHash(ctx, h)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.RecordAPIKeyVerification("unknown")
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("apikey: lookup: %w", err)
	}
	if !tokens.EqualHex(rec.SecretHash, h) {
		metrics.RecordAPIKeyVerification("unknown")
		return nil, ErrInvalidKey
	}

	now := r.now().UTC()
	if !rec.Active || rec.RevokedAt != nil {
		metrics.RecordAPIKeyVerification("revoked")
		return nil, ErrInvalidKey
	}
	if rec.ExpiresAt != nil && !now.Before(*rec.ExpiresAt) {
		metrics.RecordAPIKeyVerification("expired")
		return nil, ErrInvalidKey
	}

	if err := r.repo.TouchLastUsed(ctx, rec.ID, now); err != nil {
		logger.From(ctx).Warn("api_key_touch_failed", logger.Component("apikey"), logger.KeyID(rec.ID), logger.Err(err))
	} else {
		rec.LastUsedAt = &now
	}
	metrics.RecordAPIKeyVerification("ok")
	k := toKey(*rec)
	return &k, nil
}

// Authorize true si k tiene requiredScope o el comodín.
func (r *Registry) Authorize(requiredScope string, k *Key) bool {
	if k == nil {
		return false
	}
	return HasScope(k.Scopes, requiredScope)
}

// HasScope true si scopes contiene required o el comodín.
func HasScope(scopes []string, required string) bool {
	for _, s := range scopes {
		if s == ScopeWildcard || s == required {
			return true
		}
	}
	return false
}

// Revoke desactiva la key y conserva el registro para auditoría.
func (r *Registry) Revoke(ctx context.Context, id string) error {
	err := r.repo.Revoke(ctx, id, r.now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("apikey: revoke: %w", err)
	}
	logger.From(ctx).Info("api_key_revoked", logger.Component("apikey"), logger.KeyID(id))
	return nil
}

func (r *Registry) List(ctx context.Context) ([]Key, error) {
	recs, err := r.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("apikey: list: %w", err)
	}
	out := make([]Key, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toKey(rec))
	}
	return out, nil
}

func toKey(rec repository.APIKey) Key {
	return Key{
		ID:         rec.ID,
		Name:       rec.Name,
		Scopes:     append([]string(nil), rec.Scopes...),
		Active:     rec.Active,
		CreatedAt:  rec.CreatedAt,
		ExpiresAt:  rec.ExpiresAt,
		LastUsedAt: rec.LastUsedAt,
		RevokedAt:  rec.RevokedAt,
	}
}
