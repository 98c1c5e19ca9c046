// Package adapthttp implements the HTTP adapter for the application.
package adapthttp

import (
	"log/slog"
	"net/http"

	"family6/internal/app"
)

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	auth  *app.AuthService
	chat  *app.ChatHistoryService
	relay *app.RelayService

	oidcConfig *OIDCConfig

	// confirmPageURL is where the confirm-link handler redirects the browser.
	confirmPageURL string
	webDir         string
	log            *slog.Logger
}

// New creates a Server wired to the given application services.
func New(auth *app.AuthService, chat *app.ChatHistoryService, relay *app.RelayService, oidcCfg *OIDCConfig, confirmPageURL, webDir string, log *slog.Logger) *Server {
	if oidcCfg == nil {
		oidcCfg = &OIDCConfig{}
	}
	return &Server{
		auth:           auth,
		chat:           chat,
		relay:          relay,
		oidcConfig:     oidcCfg,
		confirmPageURL: confirmPageURL,
		webDir:         webDir,
		log:            log,
	}
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	api.HandleFunc("/exec", s.handleExec)
	api.HandleFunc("/config", s.handleConfig)
	api.HandleFunc("/auth/sso/login", s.handleSSOLogin)
	api.HandleFunc("/auth/sso/callback", s.handleSSOCallback)

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))
	root.Handle("/", spaFromDisk(s.webDir))

	return s.loggingMiddleware(withNoCache(root))
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sso_enabled": s.oidcConfig.Enabled,
	})
}
