// Package app arma el grafo de dependencias del servicio a partir de la
// config y controla su ciclo de vida.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	rdb "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dropDatabas3/posgate/internal/apikey"
	"github.com/dropDatabas3/posgate/internal/config"
	"github.com/dropDatabas3/posgate/internal/http/controllers/apikeys"
	"github.com/dropDatabas3/posgate/internal/http/controllers/health"
	"github.com/dropDatabas3/posgate/internal/http/controllers/pos"
	sessionctrl "github.com/dropDatabas3/posgate/internal/http/controllers/session"
	webhookctrl "github.com/dropDatabas3/posgate/internal/http/controllers/webhook"
	"github.com/dropDatabas3/posgate/internal/http/router"
	"github.com/dropDatabas3/posgate/internal/metrics"
	"github.com/dropDatabas3/posgate/internal/oauth/square"
	"github.com/dropDatabas3/posgate/internal/oauthflow"
	"github.com/dropDatabas3/posgate/internal/observability/logger"
	"github.com/dropDatabas3/posgate/internal/rate"
	"github.com/dropDatabas3/posgate/internal/scheduler"
	"github.com/dropDatabas3/posgate/internal/security/keyring"
	"github.com/dropDatabas3/posgate/internal/security/secretbox"
	"github.com/dropDatabas3/posgate/internal/session"
	"github.com/dropDatabas3/posgate/internal/store"
	"github.com/dropDatabas3/posgate/internal/vault"
	"github.com/dropDatabas3/posgate/internal/webhook"
)

// HousekeepingPeriod cada cuánto se purgan states vencidos y refresh tokens expirados.
const HousekeepingPeriod = time.Hour

// App contiene los componentes ya cableados.
type App struct {
	Config *config.Config

	Stores     *store.Stores
	Redis      rdb.UniversalClient
	Vault      *vault.Vault
	Sessions   *session.Issuer
	APIKeys    *apikey.Registry
	Flows      map[string]*oauthflow.Controller
	Scheduler  *scheduler.RefreshScheduler
	Dispatcher *webhook.Dispatcher
	Limiter    rate.Limiter

	Handler http.Handler
	Server  *http.Server

	closeOnce sync.Once
	stopBg    context.CancelFunc
	bgDone    chan struct{}
}

// Build construye todo sin arrancar nada en background. Ante error libera lo
// que ya se había abierto.
func Build(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	log := logger.FromWithFields(ctx, logger.Component("app"))
	a := &App{Config: cfg, Flows: map[string]*oauthflow.Controller{}}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	// ─── Claves ───
	kr, err := keyring.Parse(cfg.Security.SecretBoxMasterKey)
	if err != nil {
		return nil, err
	}
	box, err := secretbox.New(kr.EncryptionKey())
	if err != nil {
		return nil, fmt.Errorf("app: secretbox: %w", err)
	}

	// ─── Storage ───
	scfg := store.Config{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN}
	scfg.Postgres.MaxConns = cfg.Storage.Postgres.MaxConns
	scfg.Postgres.MinConns = cfg.Storage.Postgres.MinConns
	scfg.Postgres.ConnMaxLifetime = cfg.Storage.Postgres.ConnMaxLifetime
	scfg.Postgres.Migrate = cfg.Storage.Migrate
	if a.Stores, err = store.Open(ctx, scfg); err != nil {
		return nil, err
	}
	log.Info("store_opened", zap.String("driver", a.Stores.Driver))

	if cfg.Redis.Addr != "" {
		a.Redis = rdb.NewUniversalClient(&rdb.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if perr := a.Redis.Ping(ctx).Err(); perr != nil {
			// no fatal: /readyz lo reporta
			log.Warn("redis_startup_ping_failed", logger.Err(perr))
		}
	}

	// ─── Vault + plataformas ───
	registry := vault.NewRefresherRegistry()
	a.Vault = vault.New(a.Stores.Credentials, box, registry, vault.Options{
		RefreshAhead:   cfg.Vault.RefreshAhead,
		RefreshTimeout: cfg.Vault.RefreshTimeout,
	})

	var pending oauthflow.PendingStore
	if a.Redis != nil {
		pending = oauthflow.NewRedisPendingStore(a.Redis, cfg.Redis.Prefix+"oauth:")
	} else {
		pending = oauthflow.NewMemoryPendingStore(cfg.OAuth.StateTTL, time.Minute)
	}

	posCtrl := pos.NewController(a.Vault)
	if cfg.Square.Enabled {
		sq := square.New(square.Config{
			ClientID:     cfg.Square.ClientID,
			ClientSecret: cfg.Square.ClientSecret,
			RedirectURL:  cfg.Square.RedirectURL,
			Scopes:       cfg.Square.Scopes,
			Sandbox:      cfg.Square.Sandbox,
			BaseURL:      cfg.Square.BaseURL,
			HTTPClient:   &http.Client{Timeout: cfg.OAuth.HTTPTimeout},
		})
		registry.Register(sq.Platform(), sq.RefreshTokens)
		flow := oauthflow.New(sq, pending, a.Vault, oauthflow.Options{
			StateTTL:        cfg.OAuth.StateTTL,
			ExchangeTimeout: cfg.OAuth.ExchangeTimeout,
		})
		a.Flows[sq.Platform()] = flow
		posCtrl.AddPlatform(flow, sq)
		log.Info("platform_registered", logger.Platform(sq.Platform()), zap.Bool("sandbox", cfg.Square.Sandbox))
	}

	a.Scheduler = scheduler.New(a.Vault, registry.Platforms, scheduler.Options{
		Period:      cfg.Scheduler.Period,
		Concurrency: cfg.Scheduler.Concurrency,
		CallTimeout: cfg.Vault.RefreshTimeout,
		RunOnStart:  cfg.Scheduler.RunOnStart,
	})

	// ─── Webhooks ───
	auth, err := webhook.NewAuthenticator(cfg.WebhookMode(), cfg.Webhook.SignatureKey, logger.Named("webhook"))
	if err != nil {
		return nil, err
	}
	a.Dispatcher = webhook.NewDispatcher(webhook.RevocationProcessor{
		Platform: square.Platform,
		Vault:    a.Vault,
		Next:     webhook.LoggingProcessor{},
	}, webhook.DispatcherOptions{
		Workers:        cfg.Webhook.Workers,
		QueueSize:      cfg.Webhook.QueueSize,
		ProcessTimeout: cfg.Webhook.ProcessTimeout,
		Logger:         logger.Named("webhook.dispatcher"),
	})
	receiver := &webhook.Receiver{
		Auth:       auth,
		Dedupe:     webhook.NewDeduper(cfg.Webhook.DedupeMax, cfg.Webhook.DedupeEvict),
		Dispatcher: a.Dispatcher,
	}

	// ─── Sesiones + API keys ───
	if a.Sessions, err = session.New(kr.SessionSeed(), a.Stores.RefreshTokens, session.Options{
		Issuer:     cfg.Session.Issuer,
		AccessTTL:  cfg.Session.AccessTTL,
		RefreshTTL: cfg.Session.RefreshTTL,
	}); err != nil {
		return nil, fmt.Errorf("app: session issuer: %w", err)
	}
	if a.APIKeys, err = apikey.New(a.Stores.APIKeys, kr.APIKeyPepper(), apikey.Options{}); err != nil {
		return nil, fmt.Errorf("app: api keys: %w", err)
	}

	// ─── HTTP ───
	if cfg.Rate.Enabled {
		if a.Redis != nil {
			a.Limiter = rate.NewRedisLimiter(a.Redis, cfg.Redis.Prefix+"rl:", cfg.Rate.MaxRequests, cfg.Rate.Window)
		} else {
			a.Limiter = rate.NewMemoryLimiter(cfg.Rate.MaxRequests, cfg.Rate.Window)
		}
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		if metricsHandler, err = metrics.Register(metrics.Config{Pool: a.Stores.Pool}); err != nil {
			return nil, fmt.Errorf("app: metrics: %w", err)
		}
	}

	checks := map[string]health.Check{"store": a.Stores.Ping}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}

	a.Handler = router.New(router.Deps{
		POS:         posCtrl,
		Webhook:     webhookctrl.NewController(receiver, cfg.Webhook.NotificationURL),
		Session:     sessionctrl.NewController(a.Sessions),
		APIKeys:     apikeys.NewController(a.APIKeys),
		Health:      health.NewController(cfg.App.Version, checks),
		Metrics:     metricsHandler,
		Access:      a.Sessions,
		Keys:        a.APIKeys,
		RateLimiter: a.Limiter,
	})
	a.Server = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.Handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	return a, nil
}

// Start arranca el scheduler y la limpieza periódica. No bloquea.
func (a *App) Start(ctx context.Context) error {
	if a.Config.Scheduler.Enabled {
		if err := a.Scheduler.Start(ctx); err != nil {
			return err
		}
	}
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.stopBg = cancel
	a.bgDone = make(chan struct{})
	go a.housekeeping(bg, a.bgDone)
	return nil
}

func (a *App) housekeeping(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(HousekeepingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.Sweep(ctx)
		}
	}
}

// Sweep purga states OAuth vencidos y refresh tokens expirados.
func (a *App) Sweep(ctx context.Context) {
	log := logger.FromWithFields(ctx, logger.Component("housekeeping"))
	for platform, f := range a.Flows {
		n, err := f.Sweep(ctx)
		if err != nil {
			log.Warn("pending_sweep_failed", logger.Platform(platform), logger.Err(err))
			continue
		}
		if n > 0 {
			log.Debug("pending_swept", logger.Platform(platform), logger.Count(n))
		}
	}
	n, err := a.Sessions.Sweep(ctx)
	if err != nil {
		log.Warn("refresh_token_sweep_failed", logger.Err(err))
		return
	}
	if n > 0 {
		log.Info("refresh_tokens_swept", logger.Count(n))
	}
}

// Run sirve HTTP hasta que ctx se cancele y luego hace shutdown ordenado.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	log := logger.FromWithFields(ctx, logger.Component("app"))

	errCh := make(chan error, 1)
	go func() {
		log.Info("http_listening", zap.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Server.Shutdown(sctx); err != nil {
		log.Warn("http_shutdown_error", logger.Err(err))
	}
	if err := a.Close(sctx); err != nil {
		log.Warn("app_close_error", logger.Err(err))
	}
	log.Info("app_stopped")
	return serveErr
}

// Close detiene los procesos de fondo, drena webhooks pendientes y cierra
// conexiones. Idempotente.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	a.closeOnce.Do(func() {
		if a.Scheduler != nil && a.Scheduler.Running() {
			if err := a.Scheduler.Stop(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if a.stopBg != nil {
			a.stopBg()
			<-a.bgDone
		}
		if a.Dispatcher != nil {
			if err := a.Dispatcher.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if a.Redis != nil {
			if err := a.Redis.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if a.Stores != nil {
			a.Stores.Close()
		}
	})
	return errors.Join(errs...)
}
