package permission

import (
	"log/slog"
	"net/http"

	"github.com/gatewarden/gatewarden/internal/observability"
	"github.com/gatewarden/gatewarden/internal/origin"
)

// Gate is the request-boundary adapter around the manager: it forwards
// the ambient identity into Authorize and owns no policy of its own.
// Any failure resolves to denial.
type Gate struct {
	Manager *Manager
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Option adjusts the check performed by Require.
type Option func(*CheckOptions)

// WithDescription records a description on the lazily created permission.
func WithDescription(description string) Option {
	return func(o *CheckOptions) { o.Description = description }
}

// WithGlobal evaluates the permission without regard to origin.
func WithGlobal() Option {
	return func(o *CheckOptions) { o.Global = true }
}

// WithRoute supplies the call-site triple used for origin hashing.
func WithRoute(area, controller, action string) Option {
	return func(o *CheckOptions) {
		o.Route = &origin.Route{Area: area, Controller: controller, Action: action}
	}
}

// Require guards a route behind the named permission.
func (g Gate) Require(name string, opts ...Option) func(http.Handler) http.Handler {
	options := CheckOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			granted, err := g.Manager.Authorize(r.Context(), name, options)
			if err != nil {
				if g.Logger != nil {
					g.Logger.Error("authorize permission",
						slog.String("permission", name), slog.Any("error", err))
				}
				granted = false
			}
			g.Metrics.AuthzDecision(granted)
			if !granted {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
