package oauthflow

import (
	"context"
	"time"
)

// Pending es una autorización en curso, indexada por su state CSRF.
type Pending struct {
	RestaurantID string    `json:"restaurant_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// PendingStore persiste los states pendientes.
type PendingStore interface {
	Put(ctx context.Context, state string, p Pending, ttl time.Duration) error
	// Take devuelve y elimina atómicamente el pendiente. ok=false si no existe.
	Take(ctx context.Context, state string) (p *Pending, ok bool, err error)
	// Sweep elimina los pendientes creados antes de cutoff.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}
