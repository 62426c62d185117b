package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
)

type ctxKey int

const clientNameKey ctxKey = 0

// ClientName returns the authenticated client's name from the request
// context, or "" for unauthenticated requests.
func ClientName(ctx context.Context) string {
	name, _ := ctx.Value(clientNameKey).(string)
	return name
}

// Middleware wraps next with rate limiting and API-key authentication.
//
// Behaviour:
//   - If mode != "apikey", all requests pass through untouched.
//   - Requests over the rate limit get 429. Attempts are counted before the
//     key check, so failed auth attempts also count toward the limit.
//   - An empty keyring denies everything with 500: an unconfigured key
//     system must fail closed, not open.
//   - A missing or unknown key gets 401. Valid requests proceed with the
//     client name attached to the context for logging.
func Middleware(mode, header string, kr *Keyring, limiter *Limiter, next http.Handler) http.Handler {
	if mode != "apikey" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if !limiter.Allow(ip) {
			slog.Warn("auth: rate limit exceeded", "ip", ip)
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if kr.Count() == 0 {
			slog.Error("auth: no API keys configured, denying request", "ip", ip)
			jsonError(w, http.StatusInternalServerError, "API key system not configured")
			return
		}

		key := r.Header.Get(header)
		name, ok := kr.Lookup(key)
		if !ok {
			slog.Warn("auth: unauthorized request",
				"ip", ip,
				"key_len", len(key),
			)
			jsonError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}

		ctx := context.WithValue(r.Context(), clientNameKey, name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP strips the port from RemoteAddr, falling back to the raw value
// when it has no port (e.g. in tests).
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func jsonError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg}) //nolint:errcheck
}
