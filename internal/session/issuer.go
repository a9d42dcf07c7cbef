// Package session emite y verifica los tokens de sesión propios de la
// plataforma: access (corto, sin estado) y refresh (largo, con jti
// registrado para poder revocarlo individualmente).
package session

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dropDatabas3/posgate/internal/domain/repository"
	"github.com/dropDatabas3/posgate/internal/metrics"
	"github.com/dropDatabas3/posgate/internal/observability/logger"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultIssuer     = "posgate"

	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Identity es el usuario autenticado por la API externa de login.
type Identity struct {
	SubjectID string
	Email     string
	Role      string
}

// Claims es la vista verificada de un token.
type Claims struct {
	Subject   string
	Email     string
	Role      string
	Type      string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Options struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

// Issuer firma con EdDSA. Es seguro para uso concurrente.
type Issuer struct {
	key    *signingKey
	repo   repository.RefreshTokenRepository
	opts   Options
	parser *jwtv5.Parser
}

// New seed son los 32 bytes de semilla Ed25519 (ver keyring.SessionSeed).
func New(seed []byte, repo repository.RefreshTokenRepository, opts Options) (*Issuer, error) {
	key, err := newSigningKey(seed)
	if err != nil {
		return nil, err
	}
	if opts.Issuer == "" {
		opts.Issuer = DefaultIssuer
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = DefaultAccessTTL
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = DefaultRefreshTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	parser := jwtv5.NewParser(
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodEdDSA.Alg()}),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithIssuer(opts.Issuer),
		jwtv5.WithTimeFunc(opts.Now),
	)
	return &Issuer{key: key, repo: repo, opts: opts, parser: parser}, nil
}

// KeyID kid del header de los tokens emitidos.
func (i *Issuer) KeyID() string { return i.key.kid }

func (i *Issuer) PublicKey() ed25519.PublicKey { return i.key.pub }

func (i *Issuer) sign(id Identity, typ, jti string, ttl time.Duration) (string, time.Time, error) {
	if id.SubjectID == "" {
		return "", time.Time{}, fmt.Errorf("session: empty subject")
	}
	now := i.opts.Now().UTC()
	exp := now.Add(ttl)
	claims := jwtv5.MapClaims{
		"iss":  i.opts.Issuer,
		"sub":  id.SubjectID,
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"exp":  exp.Unix(),
		"type": typ,
	}
	if id.Email != "" {
		claims["email"] = id.Email
	}
	if id.Role != "" {
		claims["role"] = id.Role
	}
	if jti != "" {
		claims["jti"] = jti
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = i.key.kid
	tk.Header["typ"] = "JWT"
	signed, err := tk.SignedString(i.key.priv)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueAccessToken emite un access token (TTL por defecto 15m).
func (i *Issuer) IssueAccessToken(ctx context.Context, id Identity) (string, time.Time, error) {
	tok, exp, err := i.sign(id, TypeAccess, "", i.opts.AccessTTL)
	if err == nil {
		metrics.RecordSessionToken(TypeAccess, "issued")
	}
	return tok, exp, err
}

// IssueRefreshToken emite un refresh token con jti único y lo registra.
// Aprovecha para barrer entradas vencidas.
func (i *Issuer) IssueRefreshToken(ctx context.Context, id Identity) (string, time.Time, error) {
	jti := uuid.NewString()
	tok, exp, err := i.sign(id, TypeRefresh, jti, i.opts.RefreshTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	entry := repository.RefreshToken{
		ID:        jti,
		SubjectID: id.SubjectID,
		IssuedAt:  i.opts.Now().UTC(),
		ExpiresAt: exp,
	}
	if err := i.repo.Create(ctx, entry); err != nil {
		return "", time.Time{}, fmt.Errorf("session: register refresh token: %w", err)
	}
	metrics.RecordSessionToken(TypeRefresh, "issued")

	if n, err := i.Sweep(ctx); err != nil {
		logger.From(ctx).Warn("refresh_token_sweep_failed", logger.Component("session"), logger.Err(err))
	} else if n > 0 {
		logger.From(ctx).Debug("refresh_tokens_swept", logger.Component("session"), logger.Count(n))
	}
	return tok, exp, nil
}

// Verify valida firma, issuer y expiración. No mira el tipo.
func (i *Issuer) Verify(token string) (*Claims, error) {
	tk, err := i.parser.Parse(token, i.keyfunc)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	return claimsFrom(tk)
}

// VerifyAccess como Verify pero exige type=access.
func (i *Issuer) VerifyAccess(token string) (*Claims, error) {
	c, err := i.Verify(token)
	if err != nil {
		return nil, err
	}
	if c.Type != TypeAccess {
		return nil, ErrInvalidToken
	}
	return c, nil
}

// VerifyRefresh exige type=refresh y jti; no consulta el registro.
func (i *Issuer) VerifyRefresh(token string) (*Claims, error) {
	c, err := i.Verify(token)
	if err != nil {
		return nil, err
	}
	if c.Type != TypeRefresh || c.TokenID == "" {
		return nil, ErrInvalidToken
	}
	return c, nil
}

// RefreshAccess emite un access token nuevo a partir de un refresh token
// vigente y registrado. El refresh token no rota.
func (i *Issuer) RefreshAccess(ctx context.Context, refreshToken string) (string, time.Time, error) {
	c, err := i.VerifyRefresh(refreshToken)
	if err != nil {
		return "", time.Time{}, err
	}
	entry, err := i.repo.Get(ctx, c.TokenID)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.RecordSessionToken(TypeRefresh, "rejected_revoked")
		return "", time.Time{}, ErrRevokedToken
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session: load refresh token: %w", err)
	}
	if !entry.Usable(i.opts.Now()) || entry.SubjectID != c.Subject {
		metrics.RecordSessionToken(TypeRefresh, "rejected_revoked")
		return "", time.Time{}, ErrRevokedToken
	}
	return i.IssueAccessToken(ctx, Identity{SubjectID: c.Subject, Email: c.Email, Role: c.Role})
}

// Revoke elimina el jti del registro. Idempotente; acepta tokens ya
// expirados siempre que la firma sea válida.
func (i *Issuer) Revoke(ctx context.Context, refreshToken string) error {
	tk, err := jwtv5.NewParser(
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodEdDSA.Alg()}),
		jwtv5.WithoutClaimsValidation(),
	).Parse(refreshToken, i.keyfunc)
	if err != nil {
		return ErrInvalidToken
	}
	c, err := claimsFrom(tk)
	if err != nil {
		return err
	}
	if c.Type != TypeRefresh || c.TokenID == "" {
		return ErrInvalidToken
	}
	if err := i.repo.Delete(ctx, c.TokenID); err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}
	metrics.RecordSessionToken(TypeRefresh, "revoked")
	logger.From(ctx).Info("refresh_token_revoked", logger.Component("session"), logger.Subject(c.Subject), logger.TokenID(c.TokenID))
	return nil
}

// RevokeAll elimina todos los refresh tokens del sujeto (logout global,
// cambio de contraseña). Idempotente.
func (i *Issuer) RevokeAll(ctx context.Context, subjectID string) (int, error) {
	n, err := i.repo.DeleteBySubject(ctx, subjectID)
	if err != nil {
		return 0, fmt.Errorf("session: revoke all: %w", err)
	}
	logger.From(ctx).Info("refresh_tokens_revoked_all", logger.Component("session"), logger.Subject(subjectID), logger.Count(n))
	return n, nil
}

// Sweep elimina del registro las entradas vencidas.
func (i *Issuer) Sweep(ctx context.Context) (int, error) {
	return i.repo.DeleteExpired(ctx, i.opts.Now())
}

func (i *Issuer) keyfunc(t *jwtv5.Token) (any, error) {
	if kid, _ := t.Header["kid"].(string); kid != "" && kid != i.key.kid {
		return nil, errors.New("unknown kid")
	}
	return i.key.pub, nil
}

func claimsFrom(tk *jwtv5.Token) (*Claims, error) {
	mc, ok := tk.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	c := &Claims{}
	c.Subject, _ = mc["sub"].(string)
	c.Email, _ = mc["email"].(string)
	c.Role, _ = mc["role"].(string)
	c.Type, _ = mc["type"].(string)
	c.TokenID, _ = mc["jti"].(string)
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if c.Subject == "" || c.Type == "" {
		return nil, ErrInvalidToken
	}
	return c, nil
}
