package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/posgate/internal/metrics"
	"github.com/dropDatabas3/posgate/internal/observability/logger"
)

const (
	DefaultWorkers        = 4
	DefaultQueueSize      = 256
	DefaultProcessTimeout = 30 * time.Second
)

var (
	ErrQueueFull        = errors.New("webhook: dispatch queue full")
	ErrDispatcherClosed = errors.New("webhook: dispatcher closed")
)

type DispatcherOptions struct {
	Workers        int
	QueueSize      int
	ProcessTimeout time.Duration
	Logger         *zap.Logger
}

// Dispatcher procesa eventos en un pool acotado de workers, desacoplado del
// request que los recibió.
type Dispatcher struct {
	proc    Processor
	opts    DispatcherOptions
	log     *zap.Logger
	queue   chan Event
	baseCtx context.Context

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(proc Processor, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.ProcessTimeout <= 0 {
		opts.ProcessTimeout = DefaultProcessTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("webhook")
	}
	d := &Dispatcher{
		proc:  proc,
		opts:  opts,
		log:   log.With(logger.Component("webhook_dispatcher")),
		queue: make(chan Event, opts.QueueSize),
	}
	d.baseCtx = logger.ToContext(context.Background(), d.log)
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Submit encola sin bloquear.
func (d *Dispatcher) Submit(ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- ev:
		metrics.RecordWebhookEvent("dispatched")
		return nil
	default:
		metrics.RecordWebhookEvent("dropped")
		d.log.Error("webhook_queue_full", logger.EventID(ev.EventID), logger.Int("queue_size", d.opts.QueueSize))
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for ev := range d.queue {
		d.process(ev)
	}
}

func (d *Dispatcher) process(ev Event) {
	ctx, cancel := context.WithTimeout(d.baseCtx, d.opts.ProcessTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordWebhookEvent("failed")
			d.log.Error("webhook_processor_panic", logger.EventID(ev.EventID), logger.String("panic", fmt.Sprint(r)))
		}
	}()

	if err := d.proc.Process(ctx, ev); err != nil {
		metrics.RecordWebhookEvent("failed")
		d.log.Warn("webhook_processing_failed", logger.EventID(ev.EventID), logger.EventType(ev.Type), logger.Err(err))
		return
	}
	metrics.RecordWebhookEvent("processed")
}

// Close deja de aceptar eventos y espera a que se drene la cola, o a que ctx
// venza. Idempotente.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
