// Package server provides HTTP server construction: the OAuth redirect
// and callback endpoints, token maintenance, status reporting, and the
// MCP endpoint.
package server

import (
	"log/slog"
	"net/http"

	"github.com/chy168/google-chat-mcp-server/internal/auth"
)

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Coordinator *auth.Coordinator
	Manager     *auth.CredentialManager
	RedirectURI string
	MCPHandler  http.Handler
	Logger      *slog.Logger
}

// NewMux builds the HTTP mux with the authorization, callback, refresh,
// and status endpoints, plus the MCP endpoint when a handler is given.
func NewMux(cfg MuxConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", HandleAuth(cfg.Coordinator, cfg.Manager, cfg.RedirectURI, cfg.Logger))
	mux.HandleFunc("/auth/callback", HandleCallback(cfg.Coordinator, cfg.Logger))
	mux.HandleFunc("/auth/refresh", HandleRefresh(cfg.Manager, cfg.Logger))
	mux.HandleFunc("/status", HandleStatus(cfg.Manager.Store(), cfg.Logger))

	if cfg.MCPHandler != nil {
		mux.Handle("/mcp", cfg.MCPHandler)
	}

	return mux
}
