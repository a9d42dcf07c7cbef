package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/posgate/internal/domain/repository"
)

// RefreshTokenRepo implementa repository.RefreshTokenRepository.
type RefreshTokenRepo struct{ pool *pgxpool.Pool }

var _ repository.RefreshTokenRepository = (*RefreshTokenRepo)(nil)

func (r *RefreshTokenRepo) Create(ctx context.Context, t repository.RefreshToken) error {
	if t.ID == "" || t.SubjectID == "" {
		return repository.ErrInvalidInput
	}
	const query = `
		INSERT INTO session_refresh_token (id, subject_id, issued_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, t.ID, t.SubjectID, t.IssuedAt, t.ExpiresAt, t.Revoked)
	return mapErr(err)
}

func (r *RefreshTokenRepo) Get(ctx context.Context, id string) (*repository.RefreshToken, error) {
	const query = `SELECT id, subject_id, issued_at, expires_at, revoked FROM session_refresh_token WHERE id = $1`
	var t repository.RefreshToken
	if err := r.pool.QueryRow(ctx, query, id).Scan(&t.ID, &t.SubjectID, &t.IssuedAt, &t.ExpiresAt, &t.Revoked); err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r *RefreshTokenRepo) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM session_refresh_token WHERE id = $1`, id)
	return err
}

func (r *RefreshTokenRepo) DeleteBySubject(ctx context.Context, subjectID string) (int, error) {
	ct, err := r.pool.Exec(ctx, `DELETE FROM session_refresh_token WHERE subject_id = $1`, subjectID)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	ct, err := r.pool.Exec(ctx, `DELETE FROM session_refresh_token WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}
