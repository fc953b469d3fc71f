package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"meridian-hq/oagw/pkg/telemetry/logging"
)

// RequestIDHeader is the HTTP header for request id propagation.
const RequestIDHeader = "X-Request-Id"

// RequestID assigns every request an id, honoring one the caller
// already set, and reflects it in the response headers and the request
// context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := logging.WithRequestID(r.Context(), requestID)
		w.Header().Set(RequestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
