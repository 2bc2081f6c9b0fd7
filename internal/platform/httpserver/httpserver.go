// Package httpserver builds the process's http.Server with the timeout
// profile the API needs.
package httpserver

import (
	"net/http"
	"time"
)

// New returns the configured server. ReadHeaderTimeout bounds slow clients;
// there is deliberately no WriteTimeout, because the change-feed WebSocket
// holds its connection open for the lifetime of a subscriber.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
