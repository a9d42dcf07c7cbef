package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dropDatabas3/posgate/internal/metrics"
	"github.com/dropDatabas3/posgate/internal/observability/logger"
)

// Mode se resuelve una sola vez al arrancar.
type Mode int

const (
	// Secure exige firma HMAC válida en cada entrega.
	Secure Mode = iota
	// InsecureExplicit acepta todo sin verificar. Sólo para desarrollo y
	// siempre con warning.
	InsecureExplicit
)

func (m Mode) String() string {
	switch m {
	case Secure:
		return "secure"
	case InsecureExplicit:
		return "insecure_explicit"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode acepta "secure" e "insecure_explicit".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "secure":
		return Secure, nil
	case "insecure_explicit", "insecure-explicit":
		return InsecureExplicit, nil
	default:
		return Secure, fmt.Errorf("webhook: unknown mode %q", s)
	}
}

var (
	ErrInvalidSignature = errors.New("webhook: invalid signature")
	ErrMissingSecret    = errors.New("webhook: secure mode requires a signature key")
	ErrUnexpectedSecret = errors.New("webhook: insecure_explicit mode must not configure a signature key")
)

// Authenticator verifica HMAC-SHA256(secret, canonicalURL || body). No
// guarda estado mutable: Verify es seguro para uso concurrente.
type Authenticator struct {
	mode   Mode
	secret []byte
	log    *zap.Logger
}

// NewAuthenticator valida la combinación modo/secreto. log nil usa el logger global.
func NewAuthenticator(mode Mode, secret string, log *zap.Logger) (*Authenticator, error) {
	if log == nil {
		log = logger.Named("webhook")
	}
	log = log.With(logger.Component("webhook"))

	switch mode {
	case Secure:
		if secret == "" {
			return nil, ErrMissingSecret
		}
	case InsecureExplicit:
		if secret != "" {
			return nil, ErrUnexpectedSecret
		}
		log.Warn("WEBHOOK SIGNATURE VERIFICATION DISABLED: insecure_explicit mode accepts unsigned requests; never use in production",
			logger.String("mode", mode.String()))
	default:
		return nil, fmt.Errorf("webhook: unknown mode %d", int(mode))
	}
	return &Authenticator{mode: mode, secret: []byte(secret), log: log}, nil
}

func (a *Authenticator) Mode() Mode { return a.mode }

// Verify compara en tiempo constante la firma base64 recibida contra la
// esperada. Errores de decode o longitud cuentan como firma inválida.
func (a *Authenticator) Verify(rawBody []byte, providedSignature, canonicalURL string) bool {
	if a.mode == InsecureExplicit {
		metrics.RecordWebhookVerification("bypassed")
		a.log.Warn("webhook_signature_bypassed", logger.String("mode", a.mode.String()), logger.Int("body_bytes", len(rawBody)))
		return true
	}

	ok := a.verify(rawBody, providedSignature, canonicalURL)
	if ok {
		metrics.RecordWebhookVerification("valid")
	} else {
		metrics.RecordWebhookVerification("invalid")
	}
	return ok
}

func (a *Authenticator) verify(rawBody []byte, providedSignature, canonicalURL string) bool {
	provided, err := base64.StdEncoding.DecodeString(strings.TrimSpace(providedSignature))
	if err != nil {
		return false
	}
	expected := Sign(a.secret, canonicalURL, rawBody)
	if len(provided) != len(expected) {
		return false
	}
	return hmac.Equal(provided, expected)
}

// Sign calcula HMAC-SHA256(secret, canonicalURL || body).
func Sign(secret []byte, canonicalURL string, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(canonicalURL))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

// SignBase64 es Sign codificado como lo envía la plataforma en el header.
func SignBase64(secret []byte, canonicalURL string, body []byte) string {
	return base64.StdEncoding.EncodeToString(Sign(secret, canonicalURL, body))
}
