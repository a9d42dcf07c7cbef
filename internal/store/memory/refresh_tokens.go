package memory

import (
	"context"
	"time"

	"github.com/dropDatabas3/posgate/internal/domain/repository"
)

// RefreshTokenStore implementa repository.RefreshTokenRepository.
type RefreshTokenStore struct {
	m *shardedMap[repository.RefreshToken]
}

var _ repository.RefreshTokenRepository = (*RefreshTokenStore)(nil)

func NewRefreshTokenStore() *RefreshTokenStore {
	return &RefreshTokenStore{m: newShardedMap[repository.RefreshToken]()}
}

func (s *RefreshTokenStore) Create(ctx context.Context, t repository.RefreshToken) error {
	if t.ID == "" || t.SubjectID == "" {
		return repository.ErrInvalidInput
	}
	var err error
	s.m.update(t.ID, func(cur repository.RefreshToken, ok bool) (repository.RefreshToken, bool) {
		if ok {
			err = repository.ErrConflict
			return cur, true
		}
		return t, true
	})
	return err
}

func (s *RefreshTokenStore) Get(ctx context.Context, id string) (*repository.RefreshToken, error) {
	t, ok := s.m.load(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (s *RefreshTokenStore) Delete(ctx context.Context, id string) error {
	s.m.delete(id)
	return nil
}

func (s *RefreshTokenStore) DeleteBySubject(ctx context.Context, subjectID string) (int, error) {
	return s.m.deleteWhere(func(_ string, t repository.RefreshToken) bool {
		return t.SubjectID == subjectID
	}), nil
}

func (s *RefreshTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return s.m.deleteWhere(func(_ string, t repository.RefreshToken) bool {
		return !now.Before(t.ExpiresAt)
	}), nil
}
