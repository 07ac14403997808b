package middleware

import (
	"log"
	"net/http"

	"github.com/kidsafegpt/backend/internal/ratelimit"
	"github.com/kidsafegpt/backend/pkg/utils"
)

// RateLimit guards a route with the shared sliding-window limiter. Rejected
// requests get an explicit 429, never a silent drop.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ratelimit.ClientID(r)
			if !limiter.Admit(clientID) {
				log.Printf("[ratelimit] rejected client=%s", clientID)
				utils.RespondError(w, http.StatusTooManyRequests, "Too many requests. Please slow down and try again in a minute.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
