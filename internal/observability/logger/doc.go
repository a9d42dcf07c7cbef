// Package logger provee un logger Zap singleton con scoping por contexto.
//
// # Design Decisions
//
//   - Singleton: una sola instancia global inicializada con Init().
//   - Context Scoping: cada request lleva su propio logger con request_id,
//     method y path, inyectado por el middleware de logging.
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//   - Secretos: tokens, códigos OAuth, claves y shared secrets nunca se loguean.
//     Para correlación usar Fingerprint(tokens.Fingerprint(x)).
//
// # Usage
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{
//	    Env:   cfg.App.Env,   // "dev" o "prod"
//	    Level: cfg.Log.Level, // "debug", "info", "warn", "error"
//	})
//	defer logger.Sync()
//
// En controllers/services:
//
//	log := logger.From(ctx).With(logger.Component("vault"))
//	log.Info("credential refreshed", logger.Platform(p), logger.MerchantID(m))
package logger
