package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/shopfront/accounts/internal/metrics"
)

// Recover turns a handler panic into a 500 page and a counted, logged event.
// http.ErrAbortHandler is re-raised so the server aborts the response.
func (m *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			metrics.RecordPanic(r.Method)
			m.log.Error().
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Str("path", r.URL.Path).
				Str("method", r.Method).
				Str("request_id", w.Header().Get("X-Request-ID")).
				Msg("panic recovered")

			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(serverErrorPage))
		}()

		next.ServeHTTP(w, r)
	})
}

const serverErrorPage = `<!DOCTYPE html>
<html lang="en"><head><meta charset="utf-8"><title>Server error</title></head>
<body><h1>Server error</h1><p>A server error occurred. Please try again later.</p></body></html>
`
