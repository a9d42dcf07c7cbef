package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/posgate/internal/domain/repository"
)

// APIKeyRepo implementa repository.APIKeyRepository.
type APIKeyRepo struct{ pool *pgxpool.Pool }

var _ repository.APIKeyRepository = (*APIKeyRepo)(nil)

const apiKeyColumns = `id, name, secret_hash, scopes, active, created_at, expires_at, last_used_at, revoked_at`

func scanAPIKey(row pgx.Row) (*repository.APIKey, error) {
	var k repository.APIKey
	err := row.Scan(&k.ID, &k.Name, &k.SecretHash, &k.Scopes, &k.Active,
		&k.CreatedAt, &k.ExpiresAt, &k.LastUsedAt, &k.RevokedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &k, nil
}

func (r *APIKeyRepo) Create(ctx context.Context, k repository.APIKey) error {
	if k.ID == "" || k.SecretHash == "" {
		return repository.ErrInvalidInput
	}
	if k.Scopes == nil {
		k.Scopes = []string{}
	}
	const query = `
		INSERT INTO api_key (id, name, secret_hash, scopes, active, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query, k.ID, k.Name, k.SecretHash, k.Scopes, k.Active, k.CreatedAt, k.ExpiresAt)
	return mapErr(err)
}

func (r *APIKeyRepo) Get(ctx context.Context, id string) (*repository.APIKey, error) {
	return scanAPIKey(r.pool.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_key WHERE id = $1`, id))
}

func (r *APIKeyRepo) GetByHash(ctx context.Context, secretHash string) (*repository.APIKey, error) {
	return scanAPIKey(r.pool.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_key WHERE secret_hash = $1`, secretHash))
}

func (r *APIKeyRepo) List(ctx context.Context) ([]repository.APIKey, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+apiKeyColumns+` FROM api_key ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

func (r *APIKeyRepo) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	ct, err := r.pool.Exec(ctx, `UPDATE api_key SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *APIKeyRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE api_key SET active = FALSE, revoked_at = COALESCE(revoked_at, $2)
		WHERE id = $1
	`
	ct, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
