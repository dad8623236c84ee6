package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/holdgate/holdgate/internal/api"
)

// credentialTag is the plaintext prefix of issued API keys.
const credentialTag = "sk-"

var errCredentialOnSessionRoute = api.ErrInvalidToken.WithDetails(map[string]any{
	"hint": "api keys authenticate /chat/completions only; use the session token from /auth/connect",
})

// Middleware requires a valid session token and stores its holder as the request principal.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}
			if strings.HasPrefix(token, credentialTag) {
				api.HandleError(w, errCredentialOnSessionRoute)
				return
			}

			p, err := svc.Authenticate(token)
			if err != nil {
				slog.Debug("session rejected", "error", err, "path", r.URL.Path)
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
