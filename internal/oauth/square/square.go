// Package square implements the Square OAuth 2.0 code flow: authorization URL,
// code exchange, refresh and revocation.
package square

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/posgate/internal/vault"
)

// Platform is the key under which Square credentials are stored.
const Platform = "square"

const (
	ProductionBaseURL = "https://connect.squareup.com"
	SandboxBaseURL    = "https://connect.squareupsandbox.com"

	authPath   = "/oauth2/authorize"
	tokenPath  = "/oauth2/token"
	revokePath = "/oauth2/revoke"
)

// DefaultScopes cubre menú, órdenes y pagos.
var DefaultScopes = []string{
	"MERCHANT_PROFILE_READ",
	"ITEMS_READ",
	"ORDERS_READ",
	"ORDERS_WRITE",
	"PAYMENTS_READ",
	"PAYMENTS_WRITE",
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// BaseURL por defecto es producción; Sandbox lo cambia a sandbox.
	BaseURL    string
	Sandbox    bool
	HTTPClient *http.Client
}

// Client is the Square OAuth client.
type Client struct {
	clientID     string
	clientSecret string
	redirectURL  string
	scopes       []string
	baseURL      string

	http *http.Client
}

// New creates a new Square OAuth client.
func New(cfg Config) *Client {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	base := cfg.BaseURL
	if base == "" {
		base = ProductionBaseURL
		if cfg.Sandbox {
			base = SandboxBaseURL
		}
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURL:  cfg.RedirectURL,
		scopes:       scopes,
		baseURL:      strings.TrimRight(base, "/"),
		http:         hc,
	}
}

func (c *Client) Platform() string { return Platform }

// AuthURL builds the authorization URL. No network call.
func (c *Client) AuthURL(state string) string {
	u, _ := url.Parse(c.baseURL + authPath)
	q := u.Query()
	q.Set("client_id", c.clientID)
	q.Set("scope", strings.Join(c.scopes, " "))
	q.Set("session", "false")
	q.Set("state", state)
	if c.redirectURL != "" {
		q.Set("redirect_uri", c.redirectURL)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// TokenResponse is the response from Square's token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresAt    string `json:"expires_at"`
	MerchantID   string `json:"merchant_id"`
	RefreshToken string `json:"refresh_token"`
}

// Expiry parsea expires_at (RFC 3339). Vacío => sin expiración.
func (t *TokenResponse) Expiry() (*time.Time, error) {
	if t.ExpiresAt == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, t.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("square: invalid expires_at: %w", err)
	}
	ts = ts.UTC()
	return &ts, nil
}

// APIError es una respuesta no exitosa de Square. Sólo conserva el status y
// el código de error; nunca el cuerpo ni credenciales.
type APIError struct {
	Status int
	Code   string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("square api error: status %d", e.Status)
	}
	return fmt.Sprintf("square api error: status %d code %s", e.Status, e.Code)
}

func (e *APIError) UpstreamStatus() int   { return e.Status }
func (e *APIError) UpstreamCode() string { return e.Code }

type errorBody struct {
	Errors []struct {
		Category string `json:"category"`
		Code     string `json:"code"`
	} `json:"errors"`
	Type string `json:"type"`
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
	Code         string `json:"code,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
}

// ExchangeCode exchanges an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	return c.token(ctx, tokenRequest{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  c.redirectURL,
	})
}

// Refresh exchanges a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.token(ctx, tokenRequest{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
	})
}

func (c *Client) token(ctx context.Context, body tokenRequest) (*TokenResponse, error) {
	resp, err := c.post(ctx, tokenPath, body, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var tr TokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&tr); err != nil {
		return nil, fmt.Errorf("square: failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("square: no access_token in response")
	}
	return &tr, nil
}

// Revoke revoca el access token del comercio en Square.
func (c *Client) Revoke(ctx context.Context, accessToken string) error {
	body := map[string]string{"client_id": c.clientID, "access_token": accessToken}
	hdr := http.Header{"Authorization": []string{"Client " + c.clientSecret}}
	resp, err := c.post(ctx, revokePath, body, hdr)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, hdr http.Header) (*http.Response, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range hdr {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// *url.Error incluye la URL, que no lleva secretos; el body nunca se loguea.
		return nil, fmt.Errorf("square: %s: %w", path, err)
	}
	return resp, nil
}

func apiError(resp *http.Response) error {
	var eb errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&eb)
	code := eb.Type
	if len(eb.Errors) > 0 {
		code = eb.Errors[0].Code
	}
	return &APIError{Status: resp.StatusCode, Code: code}
}

// Exchange adapta ExchangeCode al TokenSet del vault.
func (c *Client) Exchange(ctx context.Context, code string) (*vault.TokenSet, error) {
	tr, err := c.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return toTokenSet(tr)
}

// RefreshTokens satisface vault.RefreshFunc.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (*vault.TokenSet, error) {
	tr, err := c.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return toTokenSet(tr)
}

func toTokenSet(tr *TokenResponse) (*vault.TokenSet, error) {
	exp, err := tr.Expiry()
	if err != nil {
		return nil, err
	}
	return &vault.TokenSet{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    exp,
		MerchantID:   tr.MerchantID,
	}, nil
}
