package middlewares

import "net/http"

// Middleware decora un http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain envuelve h de modo que el primer middleware de la lista sea el
// más externo: Chain(h, A, B) atiende A -> B -> h.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

// Group compone varios middlewares en uno solo, en el mismo orden que Chain.
// Sirve para registrar una pila completa con chi.Router.Use.
func Group(mws ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		return Chain(next, mws...)
	}
}
