package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"clip-splitter/internal/logging"
)

// Recover turns a panic in any handler into a logged 500 so a single bad
// request never takes the process down. http.ErrAbortHandler is passed
// through untouched.
func Recover() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := newResponseWriter(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				logging.Error("Panic serving %s %s: %v\n%s",
					sanitizeLogField(r.Method), sanitizeLogField(r.URL.Path), rec, debug.Stack())

				if rw.wroteHeader || r.Context().Err() != nil {
					return
				}
				rw.Header().Set("Content-Type", "application/json")
				rw.WriteHeader(http.StatusInternalServerError)
				_, _ = rw.Write([]byte(`{"error":"Internal server error"}` + "\n"))
			}()

			next.ServeHTTP(rw, r)
		})
	}
}
