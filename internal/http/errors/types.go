// Package errors define el error estándar de la capa HTTP y su traducción
// desde los errores de dominio.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/posgate/internal/apikey"
	"github.com/dropDatabas3/posgate/internal/oauthflow"
	"github.com/dropDatabas3/posgate/internal/session"
	"github.com/dropDatabas3/posgate/internal/vault"
	"github.com/dropDatabas3/posgate/internal/webhook"
)

// AppError define la estructura estándar para errores de la API.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // causa; nunca se expone
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(status int, code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
	}
}

func Wrap(err error, status int, code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
		Err:        err,
	}
}

// WithDetail devuelve una COPIA con Detail.
func (e *AppError) WithDetail(detail string) *AppError {
	newErr := *e
	newErr.Detail = detail
	return &newErr
}

// WithCause devuelve una COPIA con la causa.
func (e *AppError) WithCause(err error) *AppError {
	newErr := *e
	newErr.Err = err
	return &newErr
}

// FromError traduce errores de dominio a su AppError. Lo desconocido es 500
// conservando la causa para logs.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var denied *oauthflow.AuthorizationDeniedError
	var exch *oauthflow.ExchangeFailedError
	switch {
	case stderrors.As(err, &denied):
		return ErrAuthorizationDenied.WithDetail(denied.Reason).WithCause(err)
	case stderrors.Is(err, oauthflow.ErrInvalidState):
		return ErrInvalidState.WithCause(err)
	case stderrors.Is(err, oauthflow.ErrMissingCode):
		return ErrMissingFields.WithDetail("code").WithCause(err)
	case stderrors.As(err, &exch):
		detail := exch.Code
		if exch.Status != 0 {
			detail = fmt.Sprintf("status %d: %s", exch.Status, exch.Code)
		}
		return ErrExchangeFailed.WithDetail(detail).WithCause(err)

	case stderrors.Is(err, vault.ErrNotFound):
		return ErrCredentialNotFound.WithCause(err)
	case stderrors.Is(err, vault.ErrRefreshFailed):
		return ErrRefreshFailed.WithCause(err)

	case stderrors.Is(err, webhook.ErrInvalidSignature):
		return ErrInvalidSignature.WithCause(err)
	case stderrors.Is(err, webhook.ErrMalformedPayload):
		return ErrMalformedPayload.WithCause(err)
	case stderrors.Is(err, webhook.ErrDispatchUnavailable):
		return ErrWebhookUnavailable.WithCause(err)

	case stderrors.Is(err, session.ErrExpiredToken):
		return ErrTokenExpired.WithCause(err)
	case stderrors.Is(err, session.ErrRevokedToken):
		return ErrTokenRevoked.WithCause(err)
	case stderrors.Is(err, session.ErrInvalidToken):
		return ErrTokenInvalid.WithCause(err)

	case stderrors.Is(err, apikey.ErrInvalidKey):
		return ErrInvalidAPIKey.WithCause(err)
	case stderrors.Is(err, apikey.ErrScopeDenied):
		return ErrInsufficientScopes.WithCause(err)
	case stderrors.Is(err, apikey.ErrNotFound):
		return ErrNotFound.WithCause(err)
	case stderrors.Is(err, apikey.ErrInvalidInput):
		return ErrBadRequest.WithCause(err)
	}
	return ErrInternalServerError.WithCause(err)
}

// =================================================================================
// ERRORES PREDEFINIDOS
// =================================================================================

// 400

var (
	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "La solicitud contiene sintaxis inválida o parámetros faltantes.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidJSON = &AppError{
		Code:       "INVALID_JSON",
		Message:    "El cuerpo de la solicitud no es un JSON válido.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMissingFields = &AppError{
		Code:       "MISSING_FIELDS",
		Message:    "Faltan campos requeridos en la solicitud.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidParameter = &AppError{
		Code:       "INVALID_PARAMETER",
		Message:    "Uno de los parámetros de la URL o Query String es inválido.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrBodyTooLarge = &AppError{
		Code:       "BODY_TOO_LARGE",
		Message:    "El cuerpo de la solicitud excede el tamaño máximo permitido.",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}

	ErrInvalidState = &AppError{
		Code:       "INVALID_STATE",
		Message:    "El parámetro state es desconocido, ya fue usado o expiró.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrAuthorizationDenied = &AppError{
		Code:       "AUTHORIZATION_DENIED",
		Message:    "La autorización fue rechazada.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMalformedPayload = &AppError{
		Code:       "MALFORMED_PAYLOAD",
		Message:    "El payload del webhook no tiene el formato esperado.",
		HTTPStatus: http.StatusBadRequest,
	}
)

// 401

var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "No autorizado. Se requiere autenticación.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenExpired = &AppError{
		Code:       "TOKEN_EXPIRED",
		Message:    "El token ha expirado.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenInvalid = &AppError{
		Code:       "TOKEN_INVALID",
		Message:    "El token es inválido o está malformado.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenRevoked = &AppError{
		Code:       "TOKEN_REVOKED",
		Message:    "El token fue revocado.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenMissing = &AppError{
		Code:       "TOKEN_MISSING",
		Message:    "No se proporcionó token de autenticación.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidAPIKey = &AppError{
		Code:       "INVALID_API_KEY",
		Message:    "La API key es inválida, fue revocada o expiró.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidSignature = &AppError{
		Code:       "INVALID_SIGNATURE",
		Message:    "La firma del webhook no es válida.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrWebhookUnavailable = &AppError{
		Code:       "WEBHOOK_UNAVAILABLE",
		Message:    "El evento no pudo encolarse; reintentar la entrega.",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)

// 403

var (
	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "No tiene permisos para realizar esta acción.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrInsufficientScopes = &AppError{
		Code:       "INSUFFICIENT_SCOPES",
		Message:    "La credencial no tiene los scopes necesarios para este recurso.",
		HTTPStatus: http.StatusForbidden,
	}
)

// 404 / 405

var (
	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "El recurso solicitado no fue encontrado.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrCredentialNotFound = &AppError{
		Code:       "CREDENTIAL_NOT_FOUND",
		Message:    "No hay credenciales para ese comercio.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrPlatformNotFound = &AppError{
		Code:       "PLATFORM_NOT_FOUND",
		Message:    "La plataforma POS no está configurada.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrRouteNotFound = &AppError{
		Code:       "ROUTE_NOT_FOUND",
		Message:    "La ruta solicitada no existe.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrMethodNotAllowed = &AppError{
		Code:       "METHOD_NOT_ALLOWED",
		Message:    "El método HTTP no está permitido para este recurso.",
		HTTPStatus: http.StatusMethodNotAllowed,
	}
)

// 429

var (
	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Ha excedido el límite de solicitudes. Intente más tarde.",
		HTTPStatus: http.StatusTooManyRequests,
	}
)

// 5xx

var (
	ErrInternalServerError = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Ocurrió un error interno en el servidor.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrExchangeFailed = &AppError{
		Code:       "EXCHANGE_FAILED",
		Message:    "No se pudo intercambiar el código con la plataforma POS.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrRefreshFailed = &AppError{
		Code:       "REFRESH_FAILED",
		Message:    "No se pudo renovar el token con la plataforma POS.",
		HTTPStatus: http.StatusBadGateway,
	}

	ErrServiceUnavailable = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "El servicio no está disponible temporalmente.",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)
