package core

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/michaelasereoo/daiyet-app-sub003/internal/types"
)

// SharedSecretAuth guards the dispatch endpoint with a static bearer secret.
//
// If no secret is configured, authentication is disabled and every request is
// allowed through; MountRoutes logs a warning for that condition at startup.
// Otherwise the Authorization header must carry "Bearer <secret>" exactly; a
// missing header, a malformed header, or a mismatched secret all produce
// 401 Unauthorized with nothing processed.
func (s *Server) SharedSecretAuth(next http.Handler) http.Handler {
	secret := s.Config.Dispatch.SharedSecret

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !secret.IsSet() {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearerToken(r.Header.Get("Authorization"))
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret.Unmask())) != 1 {
			s.Logger.WarnContext(r.Context(), "dispatch request rejected: invalid shared secret",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("request_id", types.GetRequestID(r.Context())))
			Unauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractBearerToken parses the Authorization header value and returns the
// token string. It expects the format "Bearer <token>" (case-insensitive
// scheme per RFC 7235). Returns empty string if the format is invalid.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}
