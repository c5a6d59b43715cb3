package httpapi

import (
	"net/http"
	"time"
)

// metricsMiddleware records request_duration_seconds and
// requests_total for every route except /health and /metrics.
func metricsMiddleware(metrics *Metrics, routeLabel string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			metrics.RequestDuration.WithLabelValues(routeLabel).Observe(time.Since(start).Seconds())
			metrics.RequestsTotal.WithLabelValues(routeLabel, statusToLabel(wrapped.status)).Inc()
		})
	}
}

// statusRecorder wraps http.ResponseWriter to capture the status code
// the handler wrote, so metricsMiddleware can label it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func statusToLabel(code int) string {
	if code >= 200 && code < 400 {
		return "ok"
	}
	return "error"
}

// requireAdminAuth wraps next with the admin bearer-auth check;
// missing or invalid credentials short-circuit with 401.
func requireAdminAuth(auth *Authenticator, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := auth.Authenticate(r.Header.Get("Authorization")); err != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}
