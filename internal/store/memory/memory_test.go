package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/posgate/internal/domain/repository"
	"github.com/stretchr/testify/require"
)

func TestCredentialStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewCredentialStore()

	_, err := s.Get(ctx, "square", "m1")
	require.ErrorIs(t, err, repository.ErrNotFound)

	exp := time.Now().Add(time.Hour)
	require.NoError(t, s.Put(ctx, repository.Credential{
		Platform: "square", MerchantID: "m1", RestaurantID: "r1",
		EncryptedAccessToken: "a", EncryptedRefreshToken: "b", ExpiresAt: &exp,
	}))

	got, err := s.Get(ctx, "square", "m1")
	require.NoError(t, err)
	require.Equal(t, "r1", got.RestaurantID)

	// la copia devuelta no comparte memoria con el store
	*got.ExpiresAt = time.Time{}
	again, _ := s.Get(ctx, "square", "m1")
	require.True(t, again.ExpiresAt.Equal(exp))

	require.NoError(t, s.Delete(ctx, "square", "m1"))
	require.NoError(t, s.Delete(ctx, "square", "m1"))
	_, err = s.Get(ctx, "square", "m1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCredentialStore_PutRejectsEmptyKey(t *testing.T) {
	s := NewCredentialStore()
	err := s.Put(context.Background(), repository.Credential{Platform: "square"})
	require.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestCredentialStore_ListFiltersByPlatform(t *testing.T) {
	ctx := context.Background()
	s := NewCredentialStore()
	for _, k := range []repository.CredentialKey{
		{Platform: "square", MerchantID: "b"},
		{Platform: "square", MerchantID: "a"},
		{Platform: "toast", MerchantID: "c"},
	} {
		require.NoError(t, s.Put(ctx, repository.Credential{Platform: k.Platform, MerchantID: k.MerchantID}))
	}

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	sq, err := s.List(ctx, "square")
	require.NoError(t, err)
	require.Equal(t, []repository.CredentialKey{
		{Platform: "square", MerchantID: "a"},
		{Platform: "square", MerchantID: "b"},
	}, sq)
}

func TestCredentialStore_ConcurrentDistinctKeys(t *testing.T) {
	ctx := context.Background()
	s := NewCredentialStore()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := fmt.Sprintf("m%d", i)
			_ = s.Put(ctx, repository.Credential{Platform: "square", MerchantID: m})
			_, _ = s.Get(ctx, "square", m)
		}(i)
	}
	wg.Wait()
	keys, _ := s.List(ctx, "square")
	require.Len(t, keys, 64)
}

func TestRefreshTokenStore(t *testing.T) {
	ctx := context.Background()
	s := NewRefreshTokenStore()
	now := time.Now()

	require.NoError(t, s.Create(ctx, repository.RefreshToken{ID: "j1", SubjectID: "u1", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.Create(ctx, repository.RefreshToken{ID: "j2", SubjectID: "u1", IssuedAt: now, ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, s.Create(ctx, repository.RefreshToken{ID: "j3", SubjectID: "u2", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}))
	require.ErrorIs(t, s.Create(ctx, repository.RefreshToken{ID: "j1", SubjectID: "u9"}), repository.ErrConflict)

	got, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	require.True(t, got.Usable(now))

	n, err := s.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.DeleteBySubject(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = s.Get(ctx, "j1")
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "j3"))
	_, err = s.Get(ctx, "j3")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAPIKeyStore(t *testing.T) {
	ctx := context.Background()
	s := NewAPIKeyStore()
	now := time.Now()

	k := repository.APIKey{ID: "k1", Name: "pos", SecretHash: "h1", Scopes: []string{"credentials:read"}, Active: true, CreatedAt: now}
	require.NoError(t, s.Create(ctx, k))
	require.ErrorIs(t, s.Create(ctx, k), repository.ErrConflict)
	require.ErrorIs(t, s.Create(ctx, repository.APIKey{ID: "k2", SecretHash: "h1"}), repository.ErrConflict)

	got, err := s.GetByHash(ctx, "h1")
	require.NoError(t, err)
	require.Equal(t, "k1", got.ID)
	got.Scopes[0] = "mutated"

	require.NoError(t, s.TouchLastUsed(ctx, "k1", now))
	got, err = s.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, "credentials:read", got.Scopes[0])
	require.NotNil(t, got.LastUsedAt)

	require.NoError(t, s.Revoke(ctx, "k1", now))
	got, _ = s.Get(ctx, "k1")
	require.False(t, got.Active)
	require.NotNil(t, got.RevokedAt)

	require.ErrorIs(t, s.Revoke(ctx, "nope", now), repository.ErrNotFound)
	require.ErrorIs(t, s.TouchLastUsed(ctx, "nope", now), repository.ErrNotFound)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
