package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/michaelasereoo/daiyet-app-sub003/internal/types"
)

// defaultRequestTimeout is the soft timeout applied to request contexts.
// A dispatch cycle must finish comfortably inside it; in Lambda deployments
// it should stay below the function timeout.
const defaultRequestTimeout = 55 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in request
// logs. The Authorization header carries the dispatch shared secret.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
}

// MountRoutes registers the global middleware chain and the dispatch routes.
//
// Middleware ordering:
//  1. Recoverer       - catches panics; outermost to catch all failures.
//  2. ContextTimeout  - soft deadline on the request context.
//  3. RequestID       - generates/propagates the correlation ID.
//  4. SecurityHeaders - present on every response, including errors.
//  5. RequestLogger   - structured logging with redacted headers.
//  6. CORS            - answers OPTIONS preflight, sets Access-Control headers.
//
// SharedSecretAuth applies to the run endpoint only; the health endpoint and
// OPTIONS preflight stay public.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(CORSMiddleware)

	if !s.Config.Dispatch.SharedSecret.IsSet() {
		s.Logger.Warn("DISPATCH_SHARED_SECRET is not set; the run endpoint accepts unauthenticated requests")
	}

	s.router.With(s.SharedSecretAuth).Post("/run", s.HandleRun)
	// Explicit OPTIONS registration so chi routes preflight requests into the
	// middleware chain instead of answering 405.
	s.router.Options("/run", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	s.router.Get("/health", s.HandleHealth)
}

// ContextTimeoutMiddleware sets a deadline on the request context. Downstream
// handlers receive a cancelled context when it expires.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware generates or propagates a unique request ID for
// correlation across logs. If the incoming request carries an X-Request-Id
// header, that value is reused; otherwise a new random ID is generated. The
// ID is stored in the context via types.WithRequestID and echoed back as the
// X-Request-Id response header.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// generateRequestID produces a random hex string suitable for use as a
// request correlation ID.
func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is effectively fatal elsewhere; still return a
		// non-empty ID for correlation.
		return "fallback-" + hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(b)
}
