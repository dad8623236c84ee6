// Package router assembles the HTTP surface: global middleware, operational
// endpoints, and the session, credential and public route groups.
package router

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/holdgate/holdgate/internal/api"
	mw "github.com/holdgate/holdgate/internal/middleware"
)

const readinessTimeout = 3 * time.Second

// HandlerSet holds handler functions injected from main.go.
type HandlerSet struct {
	// Auth
	Nonce   http.HandlerFunc
	Connect http.HandlerFunc

	// Session routes
	GetCredits http.HandlerFunc
	ListUsage  http.HandlerFunc
	GetKey     http.HandlerFunc
	CreateKey  http.HandlerFunc
	DeleteKey  http.HandlerFunc

	// Proxy
	ChatCompletions http.HandlerFunc
	Models          http.HandlerFunc

	SessionMiddleware    func(http.Handler) http.Handler
	CredentialMiddleware func(http.Handler) http.Handler
}

// Check is a named readiness probe. A nil Func reports "not configured".
type Check struct {
	Name string
	Func func(ctx context.Context) error
}

// Config holds configuration for the router.
type Config struct {
	TrustedProxies     []netip.Prefix
	CORSAllowedOrigins []string
	AuthRateLimiter    func(http.Handler) http.Handler
	APIRateLimiter     func(http.Handler) http.Handler
	Readiness          []Check
}

func New(cfg Config, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RealIP(cfg.TrustedProxies))
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		api.JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	ready := readinessHandler(cfg.Readiness)
	r.Get("/health/ready", ready)
	r.Get("/health", ready)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		use(r, cfg.AuthRateLimiter)
		r.Post("/nonce", h.Nonce)
		r.Post("/connect", h.Connect)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.SessionMiddleware)
		use(r, cfg.APIRateLimiter)

		r.Get("/credits", h.GetCredits)
		r.Get("/usage", h.ListUsage)

		r.Route("/keys", func(r chi.Router) {
			r.Get("/", h.GetKey)
			r.Post("/", h.CreateKey)
			r.Delete("/", h.DeleteKey)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(h.CredentialMiddleware)
		use(r, cfg.APIRateLimiter)

		r.Post("/chat/completions", h.ChatCompletions)
		r.Post("/v1/chat/completions", h.ChatCompletions)
	})

	r.Get("/models", h.Models)
	r.Get("/v1/models", h.Models)

	return r
}

func use(r chi.Router, m func(http.Handler) http.Handler) {
	if m != nil {
		r.Use(m)
	}
}

func readinessHandler(checks []Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		health := map[string]string{"status": "healthy"}
		status := http.StatusOK

		for _, c := range checks {
			if c.Func == nil {
				health[c.Name] = "not configured"
				continue
			}
			if err := c.Func(ctx); err != nil {
				health[c.Name] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			health[c.Name] = "healthy"
		}

		api.JSON(w, status, health)
	}
}
