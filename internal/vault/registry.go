package vault

import (
	"context"
	"sort"
	"sync"
	"time"
)

// TokenSet es el resultado de un intercambio o refresh contra la plataforma.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	MerchantID   string
}

// RefreshFunc intercambia un refresh token por un TokenSet nuevo.
// Recibe un ctx con deadline; debe respetarlo.
type RefreshFunc func(ctx context.Context, refreshToken string) (*TokenSet, error)

// RefresherRegistry mapea plataforma -> RefreshFunc. Se inyecta en el Vault al
// arrancar, así el vault no importa los clientes OAuth.
type RefresherRegistry struct {
	mu sync.RWMutex
	m  map[string]RefreshFunc
}

func NewRefresherRegistry() *RefresherRegistry {
	return &RefresherRegistry{m: make(map[string]RefreshFunc)}
}

// Register asocia fn a platform. fn nil declara una plataforma cuyos tokens
// no expiran: conocida, pero no refrescable.
func (r *RefresherRegistry) Register(platform string, fn RefreshFunc) {
	r.mu.Lock()
	r.m[platform] = fn
	r.mu.Unlock()
}

func (r *RefresherRegistry) Lookup(platform string) (RefreshFunc, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	fn, ok := r.m[platform]
	r.mu.RUnlock()
	return fn, ok && fn != nil
}

// Refreshable indica si los tokens de la plataforma expiran y hay refresher.
func (r *RefresherRegistry) Refreshable(platform string) bool {
	_, ok := r.Lookup(platform)
	return ok
}

// Platforms devuelve las plataformas refrescables, ordenadas.
func (r *RefresherRegistry) Platforms() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m))
	for p, fn := range r.m {
		if fn != nil {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
