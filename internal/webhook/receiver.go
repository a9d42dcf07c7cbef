package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/posgate/internal/metrics"
	"github.com/dropDatabas3/posgate/internal/observability/logger"
)

// ErrDispatchUnavailable el evento no pudo encolarse; la plataforma debe
// reintentar la entrega.
var ErrDispatchUnavailable = errors.New("webhook: dispatch unavailable")

// Receiver encadena verificación, parseo, dedupe y despacho.
type Receiver struct {
	Auth       *Authenticator
	Dedupe     *Deduper
	Dispatcher *Dispatcher
}

// Outcome resultado de recibir una entrega.
type Outcome struct {
	EventID string
	// Duplicate true si el evento ya había sido despachado.
	Duplicate bool
}

// Receive corre la fase sincrónica. La firma se verifica sobre los bytes
// crudos antes de parsear.
func (r *Receiver) Receive(ctx context.Context, rawBody []byte, signature, canonicalURL string) (*Outcome, error) {
	if !r.Auth.Verify(rawBody, signature, canonicalURL) {
		return nil, ErrInvalidSignature
	}
	ev, err := ParseEvent(rawBody)
	if err != nil {
		return nil, err
	}

	log := logger.FromWithFields(ctx, logger.Component("webhook"), logger.EventID(ev.EventID), logger.EventType(ev.Type))
	if !r.Dedupe.ShouldProcess(ev.EventID) {
		metrics.RecordWebhookEvent("duplicate")
		log.Info("webhook_duplicate_skipped")
		return &Outcome{EventID: ev.EventID, Duplicate: true}, nil
	}
	if err := r.Dispatcher.Submit(*ev); err != nil {
		// sin encolar no cuenta como visto: la reentrega tiene que despacharse
		r.Dedupe.Forget(ev.EventID)
		log.Warn("webhook_dispatch_failed", logger.Err(err))
		return nil, fmt.Errorf("%w: %w", ErrDispatchUnavailable, err)
	}
	return &Outcome{EventID: ev.EventID}, nil
}
