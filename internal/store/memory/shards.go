// Package memory implementa los repositorios de dominio en memoria del proceso.
//
// Cada mapa está particionado en shards con su propio RWMutex: operaciones sobre
// claves distintas no compiten por un lock global.
package memory

import (
	"hash/maphash"
	"sync"
)

const shardCount = 32

type shard[V any] struct {
	mu sync.RWMutex
	m  map[string]V
}

type shardedMap[V any] struct {
	seed   maphash.Seed
	shards [shardCount]*shard[V]
}

func newShardedMap[V any]() *shardedMap[V] {
	s := &shardedMap[V]{seed: maphash.MakeSeed()}
	for i := range s.shards {
		s.shards[i] = &shard[V]{m: make(map[string]V)}
	}
	return s
}

func (s *shardedMap[V]) shardFor(key string) *shard[V] {
	return s.shards[maphash.String(s.seed, key)%shardCount]
}

func (s *shardedMap[V]) load(key string) (V, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	v, ok := sh.m[key]
	sh.mu.RUnlock()
	return v, ok
}

func (s *shardedMap[V]) store(key string, v V) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.m[key] = v
	sh.mu.Unlock()
}

func (s *shardedMap[V]) delete(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	_, ok := sh.m[key]
	delete(sh.m, key)
	sh.mu.Unlock()
	return ok
}

// update aplica fn bajo el lock de escritura del shard de key.
func (s *shardedMap[V]) update(key string, fn func(v V, ok bool) (V, bool)) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur, ok := sh.m[key]
	if next, keep := fn(cur, ok); keep {
		sh.m[key] = next
	} else if ok {
		delete(sh.m, key)
	}
}

// rangeAll recorre shard por shard; nunca bloquea más de un shard a la vez.
func (s *shardedMap[V]) rangeAll(fn func(key string, v V)) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, v := range sh.m {
			fn(k, v)
		}
		sh.mu.RUnlock()
	}
}

// deleteWhere elimina las entradas que cumplan pred y devuelve cuántas borró.
func (s *shardedMap[V]) deleteWhere(pred func(key string, v V) bool) int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, v := range sh.m {
			if pred(k, v) {
				delete(sh.m, k)
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}
