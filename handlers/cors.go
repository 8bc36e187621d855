package handlers

import "net/http"

// CORSMiddleware adds the CORS headers to every response so a browser dashboard on
// another origin can poll provisioning progress and cancel runs.
// allowedOrigin should be the dashboard origin in production, "*" is fine locally.
func CORSMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
			headers := responseWriter.Header()
			headers.Set("Access-Control-Allow-Origin", allowedOrigin)
			headers.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			headers.Set("Access-Control-Allow-Headers", "Content-Type")
			if allowedOrigin != "*" {
				headers.Add("Vary", "Origin")
			}

			// preflight requests get an immediate 204 with no body
			if request.Method == http.MethodOptions {
				responseWriter.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(responseWriter, request)
		})
	}
}
