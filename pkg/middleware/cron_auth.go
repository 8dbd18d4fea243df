package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"bookery/pkg/logger"
)

// CronAuth guards the periodic trigger endpoints with a bearer token read
// from the environment. An empty configured token disables the endpoints
// entirely rather than leaving them open.
func CronAuth(token string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				logAndReject(w, log, r, "Cron auth token not configured")
				return
			}

			presented, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !found || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				logAndReject(w, log, r, "Invalid cron credential")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
