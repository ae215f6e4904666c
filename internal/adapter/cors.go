package adapter

import (
	"net/http"
	"os"
)

// CORS handles Cross-Origin Resource Sharing. Credentials are allowed so the
// browser sends the session cookie on cross-origin API calls.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if isOriginAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isOriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}

	// Always allow localhost for development
	if origin == "http://localhost:3000" {
		return true
	}

	frontendURL := os.Getenv("FRONTEND_URL")
	if frontendURL != "" && origin == frontendURL {
		return true
	}

	return false
}
