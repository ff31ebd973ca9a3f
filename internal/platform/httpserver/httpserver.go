package httpserver

import (
	"net/http"

	"achievements/internal/platform/config"
)

// New builds the HTTP server for the projection and ingress endpoints.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
