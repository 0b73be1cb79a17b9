package treebeard

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Middleware is the explicit interception hook for HTTP servers: each
// request runs inside its own trace scope, with a TraceRecord opened at
// dispatch and completed with the response status. Nothing is patched
// behind the server's back; wrap your handler and you are instrumented.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := GetInstance()
		if c == nil {
			next.ServeHTTP(w, r)
			return
		}

		tc := NewTraceContext(r.Method + " " + r.URL.Path)
		ctx := WithTraceContext(r.Context(), tc)
		r = r.WithContext(ctx)

		start := time.Now()
		c.StartTrace(ctx, tc.TraceID, tc.SpanID, tc.Name, Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote_addr": r.RemoteAddr,
			"request_id":  tc.RequestID,
		})

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		defer func() {
			if rec := recover(); rec != nil {
				if c.cfg.CapturePanics {
					c.LogError(ctx, "panic while handling request", panicError(rec), Fields{
						"method": r.Method,
						"path":   r.URL.Path,
					})
				}
				c.CompleteTrace(tc.TraceID, tc.SpanID, false)
				panic(rec)
			}

			duration := time.Since(start)
			c.Log(ctx, LevelInfo, "request completed", Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.statusCode,
				"duration_ms": duration.Milliseconds(),
			})
			c.CompleteTrace(tc.TraceID, tc.SpanID, wrapped.statusCode < http.StatusInternalServerError)
		}()

		next.ServeHTTP(wrapped, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack keeps WebSocket upgrades working through the wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hijacker.Hijack()
}

func panicError(rec interface{}) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", rec)
}
