package repository

import (
	"context"
	"time"
)

// Credential es el registro OAuth de un merchant en una plataforma POS.
// Los tokens viajan siempre cifrados (secretbox); el repositorio no los descifra.
type Credential struct {
	Platform              string
	MerchantID            string
	RestaurantID          string
	EncryptedAccessToken  string
	EncryptedRefreshToken string
	ExpiresAt             *time.Time // nil => el token no expira
	UpdatedAt             time.Time
}

// CredentialKey identifica un registro sin exponer sus tokens.
type CredentialKey struct {
	Platform   string
	MerchantID string
}

// String devuelve "platform/merchant" (útil como clave de locks y logs).
func (k CredentialKey) String() string {
	return k.Platform + "/" + k.MerchantID
}

// CredentialRepository define operaciones sobre credenciales de merchants.
type CredentialRepository interface {
	// Get busca por (platform, merchantID). Retorna ErrNotFound si no existe.
	Get(ctx context.Context, platform, merchantID string) (*Credential, error)

	// Put crea o reemplaza el registro completo (sin updates parciales).
	Put(ctx context.Context, c Credential) error

	// Delete elimina el registro. Idempotente: no falla si no existe.
	Delete(ctx context.Context, platform, merchantID string) error

	// List devuelve las claves almacenadas. platform vacío => todas.
	List(ctx context.Context, platform string) ([]CredentialKey, error)
}
