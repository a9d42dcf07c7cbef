// Package store elige la implementación de repositorios según configuración.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/posgate/internal/domain/repository"
	"github.com/dropDatabas3/posgate/internal/observability/logger"
	"github.com/dropDatabas3/posgate/internal/store/memory"
	"github.com/dropDatabas3/posgate/internal/store/pg"
	migrations "github.com/dropDatabas3/posgate/migrations/postgres"
)

type Config struct {
	Driver   string // memory | postgres
	DSN      string
	Postgres struct {
		MaxConns        int32
		MinConns        int32
		ConnMaxLifetime time.Duration
		// Migrate aplica migraciones embebidas al abrir.
		Migrate bool
	}
}

// Stores expone un repositorio por entidad más el ciclo de vida del backend.
type Stores struct {
	Driver        string
	Credentials   repository.CredentialRepository
	RefreshTokens repository.RefreshTokenRepository
	APIKeys       repository.APIKeyRepository

	ping  func(ctx context.Context) error
	close func()
	pool  *pgxpool.Pool
}

// Pool devuelve el pgxpool del driver postgres; nil en memory.
func (s *Stores) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Ping verifica el backend (readiness). Memory siempre responde nil.
func (s *Stores) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close libera conexiones (idempotente).
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// Open abre los repositorios del driver configurado.
func Open(ctx context.Context, cfg Config) (*Stores, error) {
	d := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch d {
	case "", "memory", "mem":
		return &Stores{
			Driver:        "memory",
			Credentials:   memory.NewCredentialStore(),
			RefreshTokens: memory.NewRefreshTokenStore(),
			APIKeys:       memory.NewAPIKeyStore(),
		}, nil

	case "postgres", "pg", "postgresql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("store: postgres driver requires a DSN")
		}
		db, err := pg.New(ctx, pg.Config{
			DSN:             cfg.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("store: open postgres: %w", err)
		}
		if cfg.Postgres.Migrate {
			res, err := db.Migrate(ctx, migrations.PostgresFS, migrations.PostgresDir)
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("store: migrate: %w", err)
			}
			logger.From(ctx).Info("store_migrated",
				logger.Component("store"),
				logger.Any("applied", res.Applied),
				logger.Elapsed(res.Duration),
			)
		}
		return &Stores{
			Driver:        "postgres",
			Credentials:   db.Credentials,
			RefreshTokens: db.RefreshTokens,
			APIKeys:       db.APIKeys,
			ping:          db.Ping,
			close:         db.Close,
			pool:          db.Pool(),
		}, nil

	default:
		return nil, fmt.Errorf("store: unsupported driver: %s", cfg.Driver)
	}
}
