package oauthflow

import (
	"errors"
	"fmt"
)

var (
	ErrAuthorizationDenied = errors.New("oauthflow: authorization denied")
	// ErrInvalidState state desconocido, ya consumido o expirado (CSRF).
	ErrInvalidState   = errors.New("oauthflow: invalid state")
	ErrExchangeFailed = errors.New("oauthflow: token exchange failed")
	ErrMissingCode    = errors.New("oauthflow: missing authorization code")
)

// AuthorizationDeniedError el usuario o la plataforma rechazaron la autorización.
// Reason es el código "error" del callback (p.ej. access_denied).
type AuthorizationDeniedError struct {
	Reason string
}

func (e *AuthorizationDeniedError) Error() string {
	if e.Reason == "" {
		return ErrAuthorizationDenied.Error()
	}
	return fmt.Sprintf("%s: %s", ErrAuthorizationDenied, e.Reason)
}

func (e *AuthorizationDeniedError) Is(target error) bool { return target == ErrAuthorizationDenied }

// ExchangeFailedError sólo transporta el status HTTP y el código de error de
// la plataforma. No envuelve el error original.
type ExchangeFailedError struct {
	Status int
	Code   string
}

func (e *ExchangeFailedError) Error() string {
	return fmt.Sprintf("%s (status %d, code %q)", ErrExchangeFailed, e.Status, e.Code)
}

func (e *ExchangeFailedError) Is(target error) bool { return target == ErrExchangeFailed }

// upstreamError lo implementan los errores de API de cada plataforma.
type upstreamError interface {
	UpstreamStatus() int
	UpstreamCode() string
}

func exchangeFailed(err error) *ExchangeFailedError {
	var ue upstreamError
	if errors.As(err, &ue) {
		return &ExchangeFailedError{Status: ue.UpstreamStatus(), Code: ue.UpstreamCode()}
	}
	if errors.Is(err, errTimeout) {
		return &ExchangeFailedError{Code: "timeout"}
	}
	return &ExchangeFailedError{Code: "upstream_unavailable"}
}
