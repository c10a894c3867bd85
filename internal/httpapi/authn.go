package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"elaqe.org/internal/audit"
	"elaqe.org/internal/auth"
	"elaqe.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
}

// withAuth resolves the bearer token into an actor for every non-public path.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if a.resolver == nil {
			writeError(w, r, http.StatusServiceUnavailable, "authentication is not configured")
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		actor, err := a.resolver.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnauthorized):
				_ = audit.LogEvent(r.Context(), "auth.rejected", map[string]any{"path": r.URL.Path})
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			default:
				obs.LoggerFrom(r.Context()).Error("authentication failed", zap.Error(err))
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithActor(r.Context(), actor)
		ctx = obs.WithLogger(ctx, obs.LoggerFrom(ctx).With(zap.String("user_id", actor.UserID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actor returns the authenticated actor, writing 401 when there is none.
func actor(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	a, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	}
	return a, ok
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
