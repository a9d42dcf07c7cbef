package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// DurationMs crea un campo para la duración en milisegundos.
func DurationMs(v int64) zap.Field {
	return zap.Int64("duration_ms", v)
}

// Bytes crea un campo para los bytes de respuesta.
func Bytes(v int) zap.Field {
	return zap.Int("bytes", v)
}

// ClientIP crea un campo para la IP del cliente.
func ClientIP(v string) zap.Field {
	return zap.String("client_ip", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - NEGOCIO
// =================================================================================

// Platform crea un campo para la plataforma POS (square, ...).
func Platform(v string) zap.Field {
	return zap.String("platform", v)
}

// MerchantID crea un campo para el merchant en la plataforma POS.
func MerchantID(v string) zap.Field {
	return zap.String("merchant_id", v)
}

// RestaurantID crea un campo para el restaurante interno.
func RestaurantID(v string) zap.Field {
	return zap.String("restaurant_id", v)
}

// EventID crea un campo para el ID de un evento de webhook.
func EventID(v string) zap.Field {
	return zap.String("event_id", v)
}

// EventType crea un campo para el tipo de evento de webhook.
func EventType(v string) zap.Field {
	return zap.String("event_type", v)
}

// KeyID crea un campo para el ID (público) de una API key.
func KeyID(v string) zap.Field {
	return zap.String("key_id", v)
}

// Subject crea un campo para el sujeto de un token de sesión.
func Subject(v string) zap.Field {
	return zap.String("sub", v)
}

// TokenID crea un campo para el jti de un refresh token.
func TokenID(v string) zap.Field {
	return zap.String("jti", v)
}

// Fingerprint crea un campo con la huella (no reversible) de un secreto.
// Nunca pasar el secreto crudo a un log.
func Fingerprint(v string) zap.Field {
	return zap.String("fp", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Layer crea un campo para la capa (controller, service, repository).
func Layer(v string) zap.Field {
	return zap.String("layer", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Count crea un campo para un conteo.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// Elapsed crea un campo para la duración de una operación interna.
func Elapsed(v time.Duration) zap.Field {
	return zap.Duration("elapsed", v)
}

// Any crea un campo genérico para cualquier tipo.
func Any(key string, v any) zap.Field {
	return zap.Any(key, v)
}

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}
