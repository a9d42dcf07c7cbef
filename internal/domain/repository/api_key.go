package repository

import (
	"context"
	"time"
)

// APIKey es una credencial machine-to-machine.
// Sólo se persiste el hash del secreto; el secreto crudo existe únicamente
// en la respuesta de creación.
type APIKey struct {
	ID         string
	Name       string
	SecretHash string
	Scopes     []string
	Active     bool
	CreatedAt  time.Time
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// APIKeyRepository define operaciones sobre API keys.
type APIKeyRepository interface {
	// Create inserta una key nueva. Retorna ErrConflict si el ID o el hash ya existen.
	Create(ctx context.Context, k APIKey) error

	// Get busca por ID. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, id string) (*APIKey, error)

	// GetByHash busca por hash del secreto. Retorna ErrNotFound si no existe.
	GetByHash(ctx context.Context, secretHash string) (*APIKey, error)

	// List devuelve todas las keys (activas y revocadas), más nuevas primero.
	List(ctx context.Context) ([]APIKey, error)

	// TouchLastUsed actualiza LastUsedAt.
	TouchLastUsed(ctx context.Context, id string, at time.Time) error

	// Revoke marca la key inactiva y sella RevokedAt. No la elimina.
	// Retorna ErrNotFound si no existe.
	Revoke(ctx context.Context, id string, at time.Time) error
}
