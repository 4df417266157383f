package identity

import (
	"log/slog"
	"net/http"
	"strings"
)

// Middleware resolves the bearer token into the ambient principal. It
// never rejects a request: unauthenticated callers continue with the
// anonymous principal and are denied at the authorization gate instead.
type Middleware struct {
	Tokens *TokenStore
	Logger *slog.Logger
}

// Handler wraps next with principal resolution.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.Tokens.Resolve(r.Context(), bearerToken(r))
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("resolve identity token", slog.Any("error", err))
			}
			principal = Anonymous()
		}
		ctx := ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
