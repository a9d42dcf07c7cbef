// Package webhook contiene el endpoint receptor de webhooks de plataformas POS.
package webhook

import (
	"context"
	"net/http"
	"strings"

	dto "github.com/dropDatabas3/posgate/internal/http/dto"
	"github.com/dropDatabas3/posgate/internal/http/errors"
	"github.com/dropDatabas3/posgate/internal/http/helpers"
	"github.com/dropDatabas3/posgate/internal/observability/logger"
	"github.com/dropDatabas3/posgate/internal/webhook"
)

const (
	// SignatureHeader header de firma de Square.
	SignatureHeader = "X-Square-Hmacsha256-Signature"
	// MaxBody límite del cuerpo crudo.
	MaxBody = 1 << 20
)

// Receiver es la fase sincrónica (verificar, parsear, dedupe, encolar).
type Receiver interface {
	Receive(ctx context.Context, rawBody []byte, signature, canonicalURL string) (*webhook.Outcome, error)
}

type Controller struct {
	receiver Receiver
	// notificationURL es la URL registrada en la plataforma; es parte del
	// mensaje firmado. Vacía => se reconstruye desde el request.
	notificationURL string
}

func NewController(rcv Receiver, notificationURL string) *Controller {
	return &Controller{receiver: rcv, notificationURL: strings.TrimSpace(notificationURL)}
}

// Receive maneja POST /v1/webhooks/square. Responde antes de que termine el
// procesamiento del evento.
func (c *Controller) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := helpers.ReadRaw(w, r, MaxBody)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	out, err := c.receiver.Receive(r.Context(), body, r.Header.Get(SignatureHeader), c.canonicalURL(r))
	if err != nil {
		logger.From(r.Context()).Warn("webhook_rejected", logger.Component("webhook"), logger.Err(err))
		errors.WriteErrorCtx(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.WebhookAckResponse{
		Received:  true,
		EventID:   out.EventID,
		Duplicate: out.Duplicate,
	})
}

func (c *Controller) canonicalURL(r *http.Request) string {
	if c.notificationURL != "" {
		return c.notificationURL
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	host := r.Host
	if fh := r.Header.Get("X-Forwarded-Host"); fh != "" {
		host = fh
	}
	return scheme + "://" + host + r.URL.RequestURI()
}
