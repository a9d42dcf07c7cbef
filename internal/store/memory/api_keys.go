package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dropDatabas3/posgate/internal/domain/repository"
)

// APIKeyStore implementa repository.APIKeyRepository.
// byHash es un índice secundario hash -> id.
type APIKeyStore struct {
	byID   *shardedMap[repository.APIKey]
	byHash *shardedMap[string]

	// createMu serializa sólo las altas (chequeo de unicidad en dos índices);
	// lecturas y touch no lo usan.
	createMu sync.Mutex
}

var _ repository.APIKeyRepository = (*APIKeyStore)(nil)

func NewAPIKeyStore() *APIKeyStore {
	return &APIKeyStore{
		byID:   newShardedMap[repository.APIKey](),
		byHash: newShardedMap[string](),
	}
}

func (s *APIKeyStore) Create(ctx context.Context, k repository.APIKey) error {
	if k.ID == "" || k.SecretHash == "" {
		return repository.ErrInvalidInput
	}
	s.createMu.Lock()
	defer s.createMu.Unlock()

	if _, ok := s.byID.load(k.ID); ok {
		return repository.ErrConflict
	}
	if _, ok := s.byHash.load(k.SecretHash); ok {
		return repository.ErrConflict
	}
	s.byID.store(k.ID, cloneAPIKey(k))
	s.byHash.store(k.SecretHash, k.ID)
	return nil
}

func (s *APIKeyStore) Get(ctx context.Context, id string) (*repository.APIKey, error) {
	k, ok := s.byID.load(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := cloneAPIKey(k)
	return &cp, nil
}

func (s *APIKeyStore) GetByHash(ctx context.Context, secretHash string) (*repository.APIKey, error) {
	id, ok := s.byHash.load(secretHash)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *APIKeyStore) List(ctx context.Context) ([]repository.APIKey, error) {
	var out []repository.APIKey
	s.byID.rangeAll(func(_ string, k repository.APIKey) {
		out = append(out, cloneAPIKey(k))
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *APIKeyStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	found := false
	s.byID.update(id, func(cur repository.APIKey, ok bool) (repository.APIKey, bool) {
		if !ok {
			return cur, false
		}
		found = true
		t := at
		cur.LastUsedAt = &t
		return cur, true
	})
	if !found {
		return repository.ErrNotFound
	}
	return nil
}

func (s *APIKeyStore) Revoke(ctx context.Context, id string, at time.Time) error {
	found := false
	s.byID.update(id, func(cur repository.APIKey, ok bool) (repository.APIKey, bool) {
		if !ok {
			return cur, false
		}
		found = true
		if cur.Active {
			cur.Active = false
			t := at
			cur.RevokedAt = &t
		}
		return cur, true
	})
	if !found {
		return repository.ErrNotFound
	}
	return nil
}

func cloneAPIKey(k repository.APIKey) repository.APIKey {
	cp := k
	cp.Scopes = append([]string(nil), k.Scopes...)
	if k.ExpiresAt != nil {
		t := *k.ExpiresAt
		cp.ExpiresAt = &t
	}
	if k.LastUsedAt != nil {
		t := *k.LastUsedAt
		cp.LastUsedAt = &t
	}
	if k.RevokedAt != nil {
		t := *k.RevokedAt
		cp.RevokedAt = &t
	}
	return cp
}
