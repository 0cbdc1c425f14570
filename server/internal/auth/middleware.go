package auth

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// ModeAPIKey enables key checking.
const ModeAPIKey = "apikey"

// Settings is one snapshot of the auth configuration.
type Settings struct {
	Mode   string
	Header string
	Key    string
}

func (s Settings) enforced() bool { return s.Mode == ModeAPIKey && s.Key != "" }

// Guard enforces API key authentication on HTTP requests.
type Guard struct {
	cur atomic.Pointer[Settings]
}

// NewGuard returns a Guard using s.
func NewGuard(s Settings) *Guard {
	g := &Guard{}
	g.Set(s)
	return g
}

// Set replaces the active settings.
func (g *Guard) Set(s Settings) {
	if s.Header == "" {
		s.Header = "x-api-key"
	}
	g.cur.Store(&s)
}

// Settings returns the active settings.
func (g *Guard) Settings() Settings { return *g.cur.Load() }

// Allow reports whether r carries an acceptable key.
func (g *Guard) Allow(r *http.Request) bool {
	s := g.cur.Load()
	if !s.enforced() {
		return true
	}
	got := r.Header.Get(s.Header)
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(s.Key)) == 1
}

// Middleware rejects unauthenticated requests before they reach next.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Allow(r) {
			slog.Warn("auth: rejected request", "path", r.URL.Path, "remote", r.RemoteAddr)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid api key"}) //nolint:errcheck
			return
		}
		next.ServeHTTP(w, r)
	})
}
