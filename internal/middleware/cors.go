package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// corsHeaders are the request headers browser clients send to the gateway, including the
// attribution headers OpenAI-compatible SDKs forward.
var corsHeaders = []string{
	"Accept",
	"Authorization",
	"Content-Type",
	"X-Request-ID",
	"HTTP-Referer",
	"X-Title",
}

// CORS returns cors.Options for the allowed dashboard origins.
// Every route authenticates with a bearer header, so cookies are never allowed cross-origin.
func CORS(allowedOrigins []string) cors.Options {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}

	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   corsHeaders,
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           600,
	}
}
