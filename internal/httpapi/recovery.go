package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"docgate/internal/logging"
)

// recoveryMiddleware turns a handler panic into a 500 response.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.ErrorWithContext(logger, "panic recovered", "http_panic",
					logging.String("error", fmt.Sprint(rec)),
					logging.String("path", r.URL.Path),
					logging.String("method", r.Method),
					logging.String("stack", string(debug.Stack())),
				)
				writeJSON(logger, w, http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
