package middleware

import (
	"context"
	"net/http"
	"strings"

	"media-publisher/internal/logging"
	"media-publisher/internal/metrics"
)

// TokenVerifier checks API tokens. database.Database implements it.
type TokenVerifier interface {
	APITokenConfigured(ctx context.Context) (bool, error)
	VerifyAPIToken(ctx context.Context, token string) bool
}

// BearerAuth protects /api/ routes with an Authorization: Bearer token once
// a token has been configured. Until then the API is open, matching a fresh
// install that has not run publishtoken yet. If the token state cannot be
// read the request is refused with 503.
func BearerAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			configured, err := verifier.APITokenConfigured(ctx)
			if err != nil {
				metrics.AuthAttemptsTotal.WithLabelValues("error").Inc()
				logging.Error("Refusing %s: token state unavailable: %v", sanitizeLogField(r.URL.Path), err)
				authUnavailable(w)
				return
			}
			if !configured {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				metrics.AuthAttemptsTotal.WithLabelValues("missing").Inc()
				unauthorized(w)
				return
			}
			if !verifier.VerifyAPIToken(ctx, token) {
				metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
				logging.Warn("Rejected API token from %s for %s", sanitizeLogField(getClientIP(r)), sanitizeLogField(r.URL.Path))
				unauthorized(w)
				return
			}

			metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="media-publisher"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
}

func authUnavailable(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "5")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte(`{"error":"authentication unavailable"}` + "\n"))
}
