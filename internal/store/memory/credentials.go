package memory

import (
	"context"
	"sort"

	"github.com/dropDatabas3/posgate/internal/domain/repository"
)

// CredentialStore implementa repository.CredentialRepository.
type CredentialStore struct {
	m *shardedMap[repository.Credential]
}

var _ repository.CredentialRepository = (*CredentialStore)(nil)

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{m: newShardedMap[repository.Credential]()}
}

func credKey(platform, merchantID string) string {
	return repository.CredentialKey{Platform: platform, MerchantID: merchantID}.String()
}

func (s *CredentialStore) Get(ctx context.Context, platform, merchantID string) (*repository.Credential, error) {
	c, ok := s.m.load(credKey(platform, merchantID))
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneCredential(c), nil
}

func (s *CredentialStore) Put(ctx context.Context, c repository.Credential) error {
	if c.Platform == "" || c.MerchantID == "" {
		return repository.ErrInvalidInput
	}
	s.m.store(credKey(c.Platform, c.MerchantID), *cloneCredential(c))
	return nil
}

func (s *CredentialStore) Delete(ctx context.Context, platform, merchantID string) error {
	s.m.delete(credKey(platform, merchantID))
	return nil
}

func (s *CredentialStore) List(ctx context.Context, platform string) ([]repository.CredentialKey, error) {
	var out []repository.CredentialKey
	s.m.rangeAll(func(_ string, c repository.Credential) {
		if platform == "" || c.Platform == platform {
			out = append(out, repository.CredentialKey{Platform: c.Platform, MerchantID: c.MerchantID})
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func cloneCredential(c repository.Credential) *repository.Credential {
	cp := c
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}
