package middlewares

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/dropDatabas3/posgate/internal/http/errors"
	"github.com/dropDatabas3/posgate/internal/observability/logger"
)

// WithRecover convierte un panic del handler en un 500 JSON. Los aborts
// explícitos (http.ErrAbortHandler) se relanzan para que net/http corte la
// conexión.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.From(r.Context()).Error("handler_panic",
					logger.Layer("http"),
					logger.RequestID(GetRequestID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.Any("panic", rec),
					zap.Stack("stack"),
				)
				errors.WriteError(w, errors.ErrInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
