package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
)

// NewRouter assembles the authority API, the session gateway and the health
// check behind a permissive CORS policy. Either handler may be nil.
func NewRouter(rpc *RPCHandler, ws *WSHandler) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	if rpc != nil {
		rpc.Routes(r)
	}
	if ws != nil {
		r.Get("/ws", ws.ServeWS)
	}

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}
