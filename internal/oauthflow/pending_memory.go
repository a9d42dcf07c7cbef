package oauthflow

import (
	"context"
	"hash/maphash"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const takeStripes = 32

// MemoryPendingStore guarda los states en go-cache. Take se serializa por
// franja de hash del state para que get+delete sea atómico.
type MemoryPendingStore struct {
	c       *gocache.Cache
	seed    maphash.Seed
	stripes [takeStripes]sync.Mutex
}

var _ PendingStore = (*MemoryPendingStore)(nil)

// NewMemoryPendingStore janitor=0 desactiva la limpieza en background de go-cache.
func NewMemoryPendingStore(defaultTTL, janitor time.Duration) *MemoryPendingStore {
	return &MemoryPendingStore{c: gocache.New(defaultTTL, janitor), seed: maphash.MakeSeed()}
}

func (s *MemoryPendingStore) stripe(state string) *sync.Mutex {
	return &s.stripes[maphash.String(s.seed, state)%takeStripes]
}

func (s *MemoryPendingStore) Put(ctx context.Context, state string, p Pending, ttl time.Duration) error {
	s.c.Set(state, p, ttl)
	return nil
}

func (s *MemoryPendingStore) Take(ctx context.Context, state string) (*Pending, bool, error) {
	mu := s.stripe(state)
	mu.Lock()
	defer mu.Unlock()

	v, ok := s.c.Get(state)
	if !ok {
		return nil, false, nil
	}
	s.c.Delete(state)
	p := v.(Pending)
	return &p, true, nil
}

func (s *MemoryPendingStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	s.c.DeleteExpired()
	n := 0
	for k, it := range s.c.Items() {
		if p, ok := it.Object.(Pending); ok && p.CreatedAt.Before(cutoff) {
			s.c.Delete(k)
			n++
		}
	}
	return n, nil
}

// Len cantidad de pendientes no expirados.
func (s *MemoryPendingStore) Len() int { return s.c.ItemCount() }
