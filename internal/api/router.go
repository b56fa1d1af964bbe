package api

import (
	"net/http"

	"github.com/rbxmod/banlist/internal/server"
)

// NewHandler builds the complete API handler. Known routes with the right
// method pass through the gate; everything else is a JSON 404.
func NewHandler(srv server.Server) http.Handler {
	routes := []struct {
		method  string
		path    string
		handler http.Handler
	}{
		{"POST", "/ban-player", BanPlayerHandler(srv)},
		{"POST", "/unban-player", UnbanPlayerHandler(srv)},
		{"GET", "/ban-list", BanListHandler(srv)},
		{"POST", "/check-ban", CheckBanHandler(srv)},
	}

	mux := http.NewServeMux()
	for _, route := range routes {
		h := route.handler
		if srv.Config != nil {
			h = TimeoutMiddleware(srv.Config.RequestTimeout(), h)
		}
		if srv.Gate != nil {
			h = srv.Gate.Middleware(h)
		}
		mux.Handle(route.path, methodHandler(route.method, h))
	}
	mux.Handle("/", NotFoundHandler())

	return RequestIDMiddleware(mux)
}
