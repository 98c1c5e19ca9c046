package adapthttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"

	"family6/internal/app"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits the flat single-field error contract.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

// statusFor maps service errors onto HTTP status codes. The error string
// itself is always surfaced verbatim.
func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrSessionNotFound),
		errors.Is(err, app.ErrSessionExpired),
		errors.Is(err, app.ErrInvalidCredentials),
		errors.Is(err, app.ErrUnverifiedEmail):
		return http.StatusUnauthorized
	case errors.Is(err, app.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrEmailTaken),
		errors.Is(err, app.ErrMissingFields),
		errors.Is(err, app.ErrPasswordTooShort),
		errors.Is(err, app.ErrResetTokenInvalid),
		errors.Is(err, app.ErrEmptyMessage),
		errors.Is(err, app.ErrChatSessionRequired),
		errors.Is(err, app.ErrBadMessageType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func withNoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func spaFromDisk(dir string) http.Handler {
	fileServer := http.FileServer(http.Dir(dir))
	indexPath := path.Join(dir, "index.html")
	confirmPath := path.Join(dir, "confirm.html")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqPath := path.Clean(r.URL.Path)
		if reqPath == "/" {
			http.ServeFile(w, r, indexPath)
			return
		}
		if reqPath == "/confirm" {
			http.ServeFile(w, r, confirmPath)
			return
		}

		staticPath := path.Join(dir, reqPath)
		if _, err := os.Stat(staticPath); err == nil {
			fileServer.ServeHTTP(w, r)
			return
		}

		http.ServeFile(w, r, indexPath)
	})
}
