package middleware

import (
	"fmt"
	"net/http"

	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
)

// Recover turns a handler panic into a 500 instead of tearing the process down.
func (app *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				ctx := wrap.WithAction(r.Context(), "panic_recovered")
				err := fmt.Errorf("%s", rec)
				app.log.Error(ctx, "recovered from panic", err, "method", r.Method, "path", r.URL.Path)

				w.Header().Set("Connection", "close")
				errorResponse(w, http.StatusInternalServerError, err.Error())
			}
		}()

		next.ServeHTTP(w, r)
	})
}
