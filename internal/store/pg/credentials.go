package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/posgate/internal/domain/repository"
)

// CredentialRepo implementa repository.CredentialRepository.
type CredentialRepo struct{ pool *pgxpool.Pool }

var _ repository.CredentialRepository = (*CredentialRepo)(nil)

func (r *CredentialRepo) Get(ctx context.Context, platform, merchantID string) (*repository.Credential, error) {
	const query = `
		SELECT platform, merchant_id, restaurant_id, encrypted_access_token,
		       encrypted_refresh_token, expires_at, updated_at
		FROM pos_credential WHERE platform = $1 AND merchant_id = $2
	`
	var c repository.Credential
	err := r.pool.QueryRow(ctx, query, platform, merchantID).Scan(
		&c.Platform, &c.MerchantID, &c.RestaurantID, &c.EncryptedAccessToken,
		&c.EncryptedRefreshToken, &c.ExpiresAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *CredentialRepo) Put(ctx context.Context, c repository.Credential) error {
	if c.Platform == "" || c.MerchantID == "" {
		return repository.ErrInvalidInput
	}
	const query = `
		INSERT INTO pos_credential (platform, merchant_id, restaurant_id, encrypted_access_token,
		                            encrypted_refresh_token, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		ON CONFLICT (platform, merchant_id) DO UPDATE SET
			restaurant_id = EXCLUDED.restaurant_id,
			encrypted_access_token = EXCLUDED.encrypted_access_token,
			encrypted_refresh_token = EXCLUDED.encrypted_refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`
	var updated any
	if !c.UpdatedAt.IsZero() {
		updated = c.UpdatedAt
	}
	_, err := r.pool.Exec(ctx, query, c.Platform, c.MerchantID, c.RestaurantID,
		c.EncryptedAccessToken, c.EncryptedRefreshToken, c.ExpiresAt, updated)
	return mapErr(err)
}

func (r *CredentialRepo) Delete(ctx context.Context, platform, merchantID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM pos_credential WHERE platform = $1 AND merchant_id = $2`, platform, merchantID)
	return err
}

func (r *CredentialRepo) List(ctx context.Context, platform string) ([]repository.CredentialKey, error) {
	const query = `
		SELECT platform, merchant_id FROM pos_credential
		WHERE $1 = '' OR platform = $1
		ORDER BY platform, merchant_id
	`
	rows, err := r.pool.Query(ctx, query, platform)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.CredentialKey
	for rows.Next() {
		var k repository.CredentialKey
		if err := rows.Scan(&k.Platform, &k.MerchantID); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
