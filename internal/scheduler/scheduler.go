// Package scheduler ejecuta el barrido periódico que fuerza el chequeo de
// refresh de todas las credenciales almacenadas.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/posgate/internal/domain/repository"
	"github.com/dropDatabas3/posgate/internal/metrics"
	"github.com/dropDatabas3/posgate/internal/observability/logger"
)

const (
	DefaultPeriod      = 7 * 24 * time.Hour
	DefaultConcurrency = 4
	DefaultCallTimeout = 30 * time.Second
)

var ErrAlreadyRunning = errors.New("scheduler: already running")

// Vault es lo que el barrido necesita del vault de credenciales.
type Vault interface {
	List(ctx context.Context, platform string) ([]repository.CredentialKey, error)
	GetAccessToken(ctx context.Context, platform, merchantID string) (string, error)
}

type Options struct {
	Period      time.Duration
	Concurrency int
	// CallTimeout acota cada GetAccessToken del barrido.
	CallTimeout time.Duration
	// RunOnStart ejecuta un barrido inmediato al arrancar.
	RunOnStart bool
}

// Report resumen de un barrido.
type Report struct {
	Total     int
	Refreshed int
	Failed    int
	Elapsed   time.Duration
}

type RefreshScheduler struct {
	vault     Vault
	platforms func() []string
	opts      Options

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New platforms devuelve las plataformas refrescables en cada barrido.
func New(v Vault, platforms func() []string, opts Options) *RefreshScheduler {
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	return &RefreshScheduler{vault: v, platforms: platforms, opts: opts}
}

// Start lanza el loop en background. El ctx recibido sólo aporta valores
// (logger); la cancelación se controla con Stop.
func (s *RefreshScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, s.done)

	logger.From(ctx).Info("refresh_scheduler_started",
		logger.Component("scheduler"),
		logger.String("period", s.opts.Period.String()),
	)
	return nil
}

// Stop cancela el loop y espera a que termine el barrido en curso, o a que
// ctx venza. Idempotente.
func (s *RefreshScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running indica si el loop está activo.
func (s *RefreshScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *RefreshScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	log := logger.FromWithFields(ctx, logger.Component("scheduler"))

	if s.opts.RunOnStart {
		s.RunOnce(ctx)
	}

	ticker := time.NewTicker(s.opts.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("refresh_scheduler_stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce recorre todas las credenciales de plataformas refrescables. Un
// fallo en un comercio se loguea y el barrido sigue con el siguiente.
func (s *RefreshScheduler) RunOnce(ctx context.Context) Report {
	start := time.Now()
	log := logger.FromWithFields(ctx, logger.Component("scheduler"), logger.Op("sweep"))

	var total, ok, failed atomic.Int64
	for _, platform := range s.platforms() {
		if ctx.Err() != nil {
			break
		}
		keys, err := s.vault.List(ctx, platform)
		if err != nil {
			log.Warn("sweep_list_failed", logger.Platform(platform), logger.Err(err))
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.Concurrency)
		for _, k := range keys {
			k := k
			total.Add(1)
			g.Go(func() error {
				cctx, cancel := context.WithTimeout(gctx, s.opts.CallTimeout)
				defer cancel()
				if _, err := s.vault.GetAccessToken(cctx, k.Platform, k.MerchantID); err != nil {
					failed.Add(1)
					metrics.RecordSweep("failed")
					log.Warn("sweep_refresh_failed",
						logger.Platform(k.Platform),
						logger.MerchantID(k.MerchantID),
						logger.Err(err),
					)
					return nil
				}
				ok.Add(1)
				metrics.RecordSweep("ok")
				return nil
			})
		}
		_ = g.Wait()
	}

	rep := Report{
		Total:     int(total.Load()),
		Refreshed: int(ok.Load()),
		Failed:    int(failed.Load()),
		Elapsed:   time.Since(start),
	}
	log.Info("sweep_complete",
		logger.Int("total", rep.Total),
		logger.Int("ok", rep.Refreshed),
		logger.Int("failed", rep.Failed),
		logger.Elapsed(rep.Elapsed),
	)
	return rep
}
