package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/posgate/internal/store/memory"
	"github.com/dropDatabas3/posgate/internal/security/secretbox"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newBox(t *testing.T) *secretbox.Box {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 11)
	}
	b, err := secretbox.New(key)
	require.NoError(t, err)
	return b
}

func at(d time.Duration) *time.Time {
	x := t0.Add(d)
	return &x
}

type fixture struct {
	v    *Vault
	repo *memory.CredentialStore
	reg  *RefresherRegistry
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return t0 }
	}
	repo := memory.NewCredentialStore()
	reg := NewRefresherRegistry()
	return &fixture{v: New(repo, newBox(t), reg, opts), repo: repo, reg: reg}
}

func TestStoreThenGet_ReturnsOriginalToken(t *testing.T) {
	f := newFixture(t, Options{})
	f.reg.Register("square", func(ctx context.Context, rt string) (*TokenSet, error) {
		t.Fatal("refresh must not run outside the window")
		return nil, nil
	})
	ctx := context.Background()

	for i, exp := range []*time.Time{nil, at(30 * 24 * time.Hour), at(25 * time.Hour)} {
		m := fmt.Sprintf("m%d", i)
		require.NoError(t, f.v.Store(ctx, Record{
			Platform: "square", MerchantID: m, AccessToken: "EAAA-" + m, RefreshToken: "r-" + m, ExpiresAt: exp,
		}))
		got, err := f.v.GetAccessToken(ctx, "square", m)
		require.NoError(t, err)
		require.Equal(t, "EAAA-"+m, got)
	}
}

func TestStore_NeverPersistsPlaintext(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, f.v.Store(ctx, Record{Platform: "square", MerchantID: "m", AccessToken: "plain-access", RefreshToken: "plain-refresh"}))

	c, err := f.repo.Get(ctx, "square", "m")
	require.NoError(t, err)
	require.NotContains(t, c.EncryptedAccessToken, "plain-access")
	require.NotContains(t, c.EncryptedRefreshToken, "plain-refresh")
	require.Equal(t, t0, c.UpdatedAt)
}

func TestGetAccessToken_NotFound(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.v.GetAccessToken(context.Background(), "square", "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetAccessToken_RefreshesInsideWindow(t *testing.T) {
	f := newFixture(t, Options{})
	var calls int32
	var gotRT string
	f.reg.Register("square", func(ctx context.Context, rt string) (*TokenSet, error) {
		atomic.AddInt32(&calls, 1)
		gotRT = rt
		return &TokenSet{AccessToken: "new-access", RefreshToken: "new-refresh", ExpiresAt: at(30 * 24 * time.Hour)}, nil
	})
	ctx := context.Background()
	require.NoError(t, f.v.Store(ctx, Record{
		Platform: "square", MerchantID: "m", RestaurantID: "rest_1",
		AccessToken: "old-access", RefreshToken: "old-refresh", ExpiresAt: at(2 * time.Hour),
	}))

	got, err := f.v.GetAccessToken(ctx, "square", "m")
	require.NoError(t, err)
	require.Equal(t, "new-access", got)
	require.Equal(t, "old-refresh", gotRT)

	// ya fuera de la ventana: no vuelve a refrescar
	got, err = f.v.GetAccessToken(ctx, "square", "m")
	require.NoError(t, err)
	require.Equal(t, "new-access", got)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	c, _ := f.repo.Get(ctx, "square", "m")
	require.Equal(t, "rest_1", c.RestaurantID)
	require.True(t, c.ExpiresAt.Equal(*at(30 * 24 * time.Hour)))
}

func TestGetAccessToken_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	f := newFixture(t, Options{})
	var seen []string
	f.reg.Register("square", func(ctx context.Context, rt string) (*TokenSet, error) {
		seen = append(seen, rt)
		return &TokenSet{AccessToken: "a" + fmt.Sprint(len(seen)), ExpiresAt: at(time.Hour)}, nil
	})
	ctx := context.Background()
	require.NoError(t, f.v.Store(ctx, Record{Platform: "square", MerchantID: "m", AccessToken: "a0", RefreshToken: "keep-me", ExpiresAt: at(time.Hour)}))

	_, err := f.v.GetAccessToken(ctx, "square", "m")
	require.NoError(t, err)
	_, err = f.v.GetAccessToken(ctx, "square", "m")
	require.NoError(t, err)
	require.Equal(t, []string{"keep-me", "keep-me"}, seen)
}

func TestGetAccessToken_RefreshFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.reg.Register("square", func(ctx context.Context, rt string) (*TokenSet, error) {
		return nil, errors.New("upstream 401")
	})
	ctx := context.Background()
	require.NoError(t, f.v.Store(ctx, Record{Platform: "square", MerchantID: "m", AccessToken: "old", RefreshToken: "r", ExpiresAt: at(time.Hour)}))

	_, err := f.v.GetAccessToken(ctx, "square", "m")
	require.ErrorIs(t, err, ErrRefreshFailed)

	before, _ := f.repo.Get(ctx, "square", "m")
	plain, err := f.v.box.Decrypt(before.EncryptedAccessToken)
	require.NoError(t, err)
	require.Equal(t, "old", plain)
}

func TestGetAccessToken_NoRefreshTokenFails(t *testing.T) {
	f := newFixture(t, Options{})
	f.reg.Register("square", func(ctx context.Context, rt string) (*TokenSet, error) {
		t.Fatal("must not be called")
		return nil, nil
	})
	ctx := context.Background()
	require.NoError(t, f.v.Store(ctx, Record{Platform: "square", MerchantID: "m", AccessToken: "a", ExpiresAt: at(-time.Hour)}))
	_, err := f.v.GetAccessToken(ctx, "square", "m")
	require.ErrorIs(t, err, ErrRefreshFailed)
}

func TestGetAccessToken_RefreshTimeout(t *testing.T) {
	f := newFixture(t, Options{RefreshTimeout: 50 * time.Millisecond})
	f.reg.Register("square", func(ctx context.Context, rt string) (*TokenSet, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ctx := context.Background()
	require.NoError(t, f.v.Store(ctx, Record{Platform: "square", MerchantID: "m", AccessToken: "a", RefreshToken: "r", ExpiresAt: at(time.Hour)}))

	start := time.Now()
	_, err := f.v.GetAccessToken(ctx, "square", "m")
	require.ErrorIs(t, err, ErrRefreshFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestGetAccessToken_CallerContextCancelled(t *testing.T) {
	f := newFixture(t, Options{})
	release := make(chan struct{})
	f.reg.Register("square", func(ctx context.Context, rt string) (*TokenSet, error) {
		<-release
		return &TokenSet{AccessToken: "late", ExpiresAt: at(30 * 24 * time.Hour)}, nil
	})
	require.NoError(t, f.v.Store(context.Background(), Record{Platform: "square", MerchantID: "m", AccessToken: "a", RefreshToken: "r", ExpiresAt: at(time.Hour)}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := f.v.GetAccessToken(ctx, "square", "m")
	require.ErrorIs(t, err, ErrRefreshFailed)
	close(release)

	// el refresh compartido termina igual y persiste el resultado
	require.Eventually(t, func() bool {
		got, err := f.v.GetAccessToken(context.Background(), "square", "m")
		return err == nil && got == "late"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGetAccessToken_NonRefreshablePlatformReturnsStored(t *testing.T) {
	f := newFixture(t, Options{})
	f.reg.Register("toast", nil)
	ctx := context.Background()
	require.NoError(t, f.v.Store(ctx, Record{Platform: "toast", MerchantID: "m", AccessToken: "static", ExpiresAt: at(-time.Hour)}))

	got, err := f.v.GetAccessToken(ctx, "toast", "m")
	require.NoError(t, err)
	require.Equal(t, "static", got)
}

func TestGetAccessToken_SameKeySingleRefresh(t *testing.T) {
	f := newFixture(t, Options{})
	var calls int32
	gate := make(chan struct{})
	f.reg.Register("square", func(ctx context.Context, rt string) (*TokenSet, error) {
		atomic.AddInt32(&calls, 1)
		<-gate
		return &TokenSet{AccessToken: "fresh", RefreshToken: "r2", ExpiresAt: at(30 * 24 * time.Hour)}, nil
	})
	ctx := context.Background()
	require.NoError(t, f.v.Store(ctx, Record{Platform: "square", MerchantID: "m", AccessToken: "stale", RefreshToken: "r1", ExpiresAt: at(time.Minute)}))

	const n = 32
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.v.GetAccessToken(ctx, "square", "m")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "fresh", results[i])
	}
}

func TestGetAccessToken_DifferentKeysIndependent(t *testing.T) {
	f := newFixture(t, Options{})
	bDone := make(chan struct{})
	f.reg.Register("square", func(ctx context.Context, rt string) (*TokenSet, error) {
		if rt == "rA" {
			// A sólo termina si B pudo refrescar mientras A está en vuelo
			select {
			case <-bDone:
			case <-time.After(2 * time.Second):
				return nil, errors.New("blocked by another key")
			}
		}
		return &TokenSet{AccessToken: "new-" + rt, ExpiresAt: at(30 * 24 * time.Hour)}, nil
	})
	ctx := context.Background()
	require.NoError(t, f.v.Store(ctx, Record{Platform: "square", MerchantID: "A", AccessToken: "a", RefreshToken: "rA", ExpiresAt: at(time.Minute)}))
	require.NoError(t, f.v.Store(ctx, Record{Platform: "square", MerchantID: "B", AccessToken: "b", RefreshToken: "rB", ExpiresAt: at(time.Minute)}))

	var wg sync.WaitGroup
	var errA error
	var gotA string
	wg.Add(1)
	go func() {
		defer wg.Done()
		gotA, errA = f.v.GetAccessToken(ctx, "square", "A")
	}()
	time.Sleep(20 * time.Millisecond)

	gotB, err := f.v.GetAccessToken(ctx, "square", "B")
	require.NoError(t, err)
	require.Equal(t, "new-rB", gotB)
	close(bDone)

	wg.Wait()
	require.NoError(t, errA)
	require.Equal(t, "new-rA", gotA)
}

func TestRemove_Idempotent(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, f.v.Store(ctx, Record{Platform: "square", MerchantID: "m", AccessToken: "a"}))
	require.NoError(t, f.v.Remove(ctx, "square", "m"))
	require.NoError(t, f.v.Remove(ctx, "square", "m"))
	_, err := f.v.GetAccessToken(ctx, "square", "m")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, f.v.Store(ctx, Record{Platform: "square", MerchantID: "m1", AccessToken: "a"}))
	require.NoError(t, f.v.Store(ctx, Record{Platform: "toast", MerchantID: "m2", AccessToken: "a"}))
	keys, err := f.v.List(ctx, "square")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, "m1", keys[0].MerchantID)
}

func TestRegistry(t *testing.T) {
	r := NewRefresherRegistry()
	r.Register("toast", nil)
	r.Register("square", func(context.Context, string) (*TokenSet, error) { return nil, nil })
	r.Register("clover", func(context.Context, string) (*TokenSet, error) { return nil, nil })

	require.True(t, r.Refreshable("square"))
	require.False(t, r.Refreshable("toast"))
	require.False(t, r.Refreshable("unknown"))
	require.Equal(t, []string{"clover", "square"}, r.Platforms())
}

func TestKeyLocks_ReleasesEntries(t *testing.T) {
	k := newKeyLocks()
	u1 := k.lock("a")
	u2 := k.lock("b")
	u1()
	u2()
	require.Empty(t, k.m)
}
