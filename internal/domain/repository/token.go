package repository

import (
	"context"
	"time"
)

// RefreshToken es la entrada de registro de un refresh token de sesión.
// El token firmado no se guarda: sólo su jti.
type RefreshToken struct {
	ID        string // jti
	SubjectID string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// Usable indica si la entrada sigue vigente en el instante now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t != nil && !t.Revoked && now.Before(t.ExpiresAt)
}

// RefreshTokenRepository define operaciones sobre el registro de refresh tokens.
type RefreshTokenRepository interface {
	// Create registra un token nuevo. Retorna ErrConflict si el jti ya existe.
	Create(ctx context.Context, t RefreshToken) error

	// Get busca por jti. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, id string) (*RefreshToken, error)

	// Delete elimina por jti. Idempotente.
	Delete(ctx context.Context, id string) error

	// DeleteBySubject elimina todos los tokens de un sujeto.
	// Retorna el número de entradas eliminadas.
	DeleteBySubject(ctx context.Context, subjectID string) (int, error)

	// DeleteExpired elimina entradas con ExpiresAt <= now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
