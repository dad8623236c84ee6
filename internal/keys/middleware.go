package keys

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/holdgate/holdgate/internal/api"
	"github.com/holdgate/holdgate/internal/auth"
)

// Middleware requires a valid credential and stores its owner as the request principal.
func Middleware(m *Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r)
			if !ok {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			key, err := m.Lookup(r.Context(), token)
			if err != nil {
				if errors.Is(err, ErrInvalidFormat) || errors.Is(err, ErrInvalidKey) {
					api.HandleError(w, api.ErrInvalidAPIKey)
					return
				}
				slog.Error("api key lookup failed", "error", err)
				api.HandleError(w, api.ErrInternalServer)
				return
			}

			p := &auth.Principal{UserID: key.UserID, KeyID: key.ID}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}
