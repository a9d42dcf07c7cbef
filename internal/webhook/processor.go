package webhook

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/posgate/internal/observability/logger"
)

// Processor consume un evento ya autenticado y deduplicado.
type Processor interface {
	Process(ctx context.Context, ev Event) error
}

type ProcessorFunc func(ctx context.Context, ev Event) error

func (f ProcessorFunc) Process(ctx context.Context, ev Event) error { return f(ctx, ev) }

// LoggingProcessor sólo registra el evento; punto de enganche del
// procesamiento de órdenes.
type LoggingProcessor struct{}

func (LoggingProcessor) Process(ctx context.Context, ev Event) error {
	logger.From(ctx).Info("webhook_event_processed",
		logger.Component("webhook"),
		logger.EventID(ev.EventID),
		logger.EventType(ev.Type),
		logger.MerchantID(ev.MerchantID),
	)
	return nil
}

// CredentialRemover es la parte del vault que usa RevocationProcessor.
type CredentialRemover interface {
	Remove(ctx context.Context, platform, merchantID string) error
}

// RevocationProcessor borra la credencial del comercio ante un aviso de
// revocación y luego delega en Next.
type RevocationProcessor struct {
	Platform string
	Vault    CredentialRemover
	Next     Processor
}

func (p RevocationProcessor) Process(ctx context.Context, ev Event) error {
	if ev.Type == EventTypeAuthorizationRevoked && ev.MerchantID != "" {
		if err := p.Vault.Remove(ctx, p.Platform, ev.MerchantID); err != nil {
			return fmt.Errorf("webhook: remove revoked credential: %w", err)
		}
		logger.From(ctx).Info("credential_removed_on_revocation",
			logger.Component("webhook"),
			logger.Platform(p.Platform),
			logger.MerchantID(ev.MerchantID),
			logger.EventID(ev.EventID),
		)
	}
	if p.Next != nil {
		return p.Next.Process(ctx, ev)
	}
	return nil
}
