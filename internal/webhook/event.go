package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedPayload = errors.New("webhook: malformed payload")

// EventTypeAuthorizationRevoked lo emite la plataforma cuando el comercio
// revoca el acceso de la aplicación.
const EventTypeAuthorizationRevoked = "oauth.authorization.revoked"

type Event struct {
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	MerchantID string          `json:"merchant_id"`
	CreatedAt  string          `json:"created_at,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// ParseEvent decodifica el body ya autenticado.
func ParseEvent(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedPayload)
	}
	ev.EventID = strings.TrimSpace(ev.EventID)
	if ev.EventID == "" {
		return nil, fmt.Errorf("%w: missing event_id", ErrMalformedPayload)
	}
	return &ev, nil
}
