// Package dto contiene los cuerpos de request/response de la API HTTP.
package dto

import "time"

// ─── POS OAuth ───

// CallbackResponse respuesta de GET /v1/pos/{platform}/callback.
type CallbackResponse struct {
	Success      bool   `json:"success"`
	Platform     string `json:"platform"`
	MerchantID   string `json:"merchantId"`
	RestaurantID string `json:"restaurantId,omitempty"`
}

// DisconnectResponse respuesta de DELETE /v1/pos/{platform}/merchants/{merchantID}.
type DisconnectResponse struct {
	Success    bool   `json:"success"`
	Platform   string `json:"platform"`
	MerchantID string `json:"merchantId"`
	// Revoked indica si la plataforma confirmó la revocación upstream.
	Revoked bool `json:"revoked"`
}

// MerchantItem entrada del listado de comercios conectados.
type MerchantItem struct {
	Platform   string `json:"platform"`
	MerchantID string `json:"merchantId"`
}

type MerchantListResponse struct {
	Merchants []MerchantItem `json:"merchants"`
}

// ─── Webhooks ───

type WebhookAckResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"eventId"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// ─── Session ───

// RefreshRequest body de /v1/session/refresh y /v1/session/logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type AccessTokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExpiresIn   int64     `json:"expires_in"`
}

type LogoutAllResponse struct {
	Revoked int `json:"revoked"`
}

// ─── API keys ───

type CreateAPIKeyRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ─── Health ───

type ComponentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentStatus `json:"components,omitempty"`
}
