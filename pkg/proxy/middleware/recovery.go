package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"meridian-hq/oagw/pkg/problem"
	"meridian-hq/oagw/pkg/telemetry/logging"
)

// Recovery converts downstream panics into internal.v1 problems so one
// bad request cannot take the process down.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic in request handler",
					"request_id", logging.GetRequestID(r.Context()),
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				problem.Write(w, problem.Internal("unexpected failure"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
