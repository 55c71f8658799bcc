package api

import "net/http"

const apiKeyHeader = "X-API-Key"

// RequireKey wraps next with static API-key authentication. An empty key
// disables the check entirely, which is the default for local deployments.
func RequireKey(key string, next http.Handler) http.Handler {
	if key == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(apiKeyHeader) != key {
			jsonErr(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
