package httpapi

import (
	"context"
	"net/http"
	"strings"

	"hospitalops/queue-service/internal/models"
)

type identityContextKey struct{}

// Identity is the caller identity supplied by the authenticating gateway.
// Authentication itself happens upstream; this layer only carries the
// resulting role and department binding through to the engine.
type Identity struct {
	Operator     string
	Role         string
	DepartmentID string
}

func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		identity := Identity{
			Operator:     strings.TrimSpace(r.Header.Get("X-Operator")),
			Role:         strings.TrimSpace(r.Header.Get("X-Role")),
			DepartmentID: strings.TrimSpace(r.Header.Get("X-Department-ID")),
		}
		if identity.Operator == "" || identity.Role == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing caller identity")
			return
		}
		if !models.ValidRole(identity.Role) {
			writeError(w, http.StatusBadRequest, "invalid_request", "unknown role")
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFromContext(ctx context.Context) (Identity, bool) {
	value := ctx.Value(identityContextKey{})
	if value == nil {
		return Identity{}, false
	}
	identity, ok := value.(Identity)
	return identity, ok
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	default:
		return r.Method == http.MethodOptions
	}
}
