// Package middleware provides the hooks and net/http middleware shipped with
// SDispatch.
//
// Hooks (Timing, Auth, RateLimit, Throttle) implement common.Hook and run
// inside the dispatch pipeline, where a pre hook error rejects the request.
// The net/http middleware (Recovery, Logging, Timeout, MaxBodySize, CORS,
// TraceMiddleware, ClientIPMiddleware) wraps the handler the router builds
// for every route.
package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"go.uber.org/zap"
)

// Middleware is an alias for common.Middleware.
type Middleware = common.Middleware

// Chain composes middlewares so that the first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		return common.NewMiddlewareChain(middlewares...).Then(next)
	}
}

// Recovery turns a panic in next into a 500 Internal Server Error and logs
// it with its stack.
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("Panic recovered",
						zap.Any("panic", rec),
						zap.String("stack", string(debug.Stack())),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.String("trace_id", GetTraceID(r)),
					)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Logging logs one line per request. 5xx responses are logged at Error,
// 4xx and requests slower than a second at Warn, the rest at Debug.
func Logging(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.statusCode),
				zap.Duration("duration", duration),
				zap.Int64("bytes", rw.bytesWritten),
			}
			if traceID := GetTraceID(r); traceID != "" {
				fields = append(fields, zap.String("trace_id", traceID))
			}

			switch {
			case rw.statusCode >= 500:
				logger.Error("Server error", append(fields, zap.String("remote_addr", r.RemoteAddr))...)
			case rw.statusCode >= 400:
				logger.Warn("Client error", fields...)
			case duration > time.Second:
				logger.Warn("Slow request", fields...)
			default:
				logger.Debug("Request", fields...)
			}
		})
	}
}

// MaxBodySize limits the request body to maxSize bytes. Reading past the
// limit fails with *http.MaxBytesError. A non-positive size disables the
// limit.
func MaxBodySize(maxSize int64) Middleware {
	return func(next http.Handler) http.Handler {
		if maxSize <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxSize)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Timeout races next against a deadline. When the deadline passes first the
// client gets 408 Request Timeout and anything next writes afterwards is
// discarded, headers included. next works on its own header map, copied to w
// when it first writes. A non-positive timeout disables the middleware.
func Timeout(timeout time.Duration, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			r = r.WithContext(ctx)

			wrapped := newMutexResponseWriter(w)
			done := make(chan struct{})
			panicked := make(chan any, 1)
			go func() {
				defer func() {
					if rec := recover(); rec != nil {
						panicked <- rec
					}
					close(done)
				}()
				next.ServeHTTP(wrapped, r)
			}()

			select {
			case <-done:
				select {
				case rec := <-panicked:
					panic(rec)
				default:
				}
				wrapped.finish()
			case <-ctx.Done():
				if wrapped.timeout() {
					logger.Warn("Request timed out",
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.Duration("timeout", timeout),
						zap.String("trace_id", GetTraceID(r)),
					)
					http.Error(w, "Request Timeout", http.StatusRequestTimeout)
				}
			}
		})
	}
}

// CORS adds the Access-Control headers and answers preflight requests.
func CORS(origins, methods, headers []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(origins) > 0 {
				w.Header().Set("Access-Control-Allow-Origin", strings.Join(origins, ", "))
			}
			if len(methods) > 0 {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
			}
			if len(headers) > 0 {
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(headers, ", "))
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter records the status code and body size of a response.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// mutexResponseWriter serializes writes from a handler goroutine with the
// timeout path. The handler sees a private header map that reaches the real
// writer only when the response starts. Once timed out, handler writes and
// headers are dropped.
type mutexResponseWriter struct {
	http.ResponseWriter
	header   http.Header
	mu       sync.Mutex
	written  bool
	timedOut bool
}

func newMutexResponseWriter(w http.ResponseWriter) *mutexResponseWriter {
	return &mutexResponseWriter{ResponseWriter: w, header: w.Header().Clone()}
}

func (rw *mutexResponseWriter) Header() http.Header {
	return rw.header
}

// commitLocked copies the handler's headers to the real writer. rw.mu must
// be held.
func (rw *mutexResponseWriter) commitLocked() {
	if rw.written {
		return
	}
	rw.written = true
	dst := rw.ResponseWriter.Header()
	for k := range dst {
		if _, ok := rw.header[k]; !ok {
			delete(dst, k)
		}
	}
	for k, vv := range rw.header {
		dst[k] = append([]string(nil), vv...)
	}
}

func (rw *mutexResponseWriter) WriteHeader(statusCode int) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.timedOut {
		return
	}
	rw.commitLocked()
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *mutexResponseWriter) Write(b []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	rw.commitLocked()
	return rw.ResponseWriter.Write(b)
}

func (rw *mutexResponseWriter) Flush() {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.timedOut {
		return
	}
	rw.commitLocked()
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// finish publishes the headers of a handler that returned without writing.
func (rw *mutexResponseWriter) finish() {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if !rw.timedOut {
		rw.commitLocked()
	}
}

// timeout marks the writer as timed out. It reports false when the handler
// already started the response, in which case no error can be sent.
func (rw *mutexResponseWriter) timeout() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.timedOut = true
	return !rw.written
}
