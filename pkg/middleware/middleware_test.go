package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestChain tests that the first middleware passed to Chain is the outermost
func TestChain(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name+" before")
				next.ServeHTTP(w, r)
				order = append(order, name+" after")
			})
		}
	}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	})

	Chain(mw("m1"), mw("m2"))(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/test", nil))

	expected := []string{"m1 before", "m2 before", "handler", "m2 after", "m1 after"}
	if len(order) != len(expected) {
		t.Fatalf("Expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i := range expected {
		if order[i] != expected[i] {
			t.Errorf("Expected %q at position %d, got %q", expected[i], i, order[i])
		}
	}
}

// TestRecovery tests that a panic becomes a logged 500
func TestRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	handler := Recovery(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/panic", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, rr.Code)
	}
	if logs.Len() != 1 {
		t.Fatalf("Expected 1 log entry, got %d", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "Panic recovered" {
		t.Errorf("Expected message %q, got %q", "Panic recovered", entry.Message)
	}
	if entry.ContextMap()["path"] != "/panic" {
		t.Errorf("Expected path field %q, got %v", "/panic", entry.ContextMap()["path"])
	}
}

// TestLoggingLevels tests that the log level follows the response status
func TestLoggingLevels(t *testing.T) {
	tests := []struct {
		status  int
		level   zapcore.Level
		message string
	}{
		{http.StatusOK, zapcore.DebugLevel, "Request"},
		{http.StatusNotFound, zapcore.WarnLevel, "Client error"},
		{http.StatusBadGateway, zapcore.ErrorLevel, "Server error"},
	}

	for _, tt := range tests {
		core, logs := observer.New(zapcore.DebugLevel)
		handler := Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte("hello"))
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/log", nil))

		if logs.Len() != 1 {
			t.Fatalf("status %d: expected 1 log entry, got %d", tt.status, logs.Len())
		}
		entry := logs.All()[0]
		if entry.Level != tt.level || entry.Message != tt.message {
			t.Errorf("status %d: expected %s %q, got %s %q", tt.status, tt.level, tt.message, entry.Level, entry.Message)
		}
		if entry.ContextMap()["bytes"] != int64(5) {
			t.Errorf("status %d: expected bytes 5, got %v", tt.status, entry.ContextMap()["bytes"])
		}
	}
}

// TestLoggingIncludesTraceID tests that the trace ID is logged when present
func TestLoggingIncludesTraceID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := TraceMiddleware()(Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if got := logs.All()[0].ContextMap()["trace_id"]; got != rr.Header().Get(TraceIDHeader) {
		t.Errorf("Expected trace_id %q, got %v", rr.Header().Get(TraceIDHeader), got)
	}
}

// TestMaxBodySize tests that reading past the limit fails with MaxBytesError
func TestMaxBodySize(t *testing.T) {
	var readErr error
	handler := MaxBodySize(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", strings.NewReader("too long")))

	var maxErr *http.MaxBytesError
	if !errors.As(readErr, &maxErr) {
		t.Fatalf("Expected *http.MaxBytesError, got %v", readErr)
	}
	if maxErr.Limit != 4 {
		t.Errorf("Expected limit 4, got %d", maxErr.Limit)
	}

	handler = MaxBodySize(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", strings.NewReader("too long")))
	if readErr != nil {
		t.Errorf("Expected no limit for size 0, got %v", readErr)
	}
}

// TestTimeout tests that a slow handler is answered with 408
func TestTimeout(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	release := make(chan struct{})
	handler := Timeout(20*time.Millisecond, zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/slow", nil))
	close(release)

	if rr.Code != http.StatusRequestTimeout {
		t.Errorf("Expected status %d, got %d", http.StatusRequestTimeout, rr.Code)
	}
	if strings.Contains(rr.Body.String(), "late") {
		t.Errorf("Expected late write to be dropped, got body %q", rr.Body.String())
	}
	if logs.FilterMessage("Request timed out").Len() != 1 {
		t.Errorf("Expected a timeout log entry")
	}
}

// TestTimeoutFastHandler tests that a fast handler is untouched
func TestTimeoutFastHandler(t *testing.T) {
	handler := Timeout(time.Second, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Code != http.StatusCreated {
		t.Errorf("Expected status %d, got %d", http.StatusCreated, rr.Code)
	}
}

// TestTimeoutHeaders tests that handler headers reach the client only when
// the handler answers in time
func TestTimeoutHeaders(t *testing.T) {
	fast := Timeout(time.Second, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Handler", "yes")
		w.Header().Del("X-Outer-Drop")
		_, _ = w.Write([]byte("ok"))
	}))
	rr := httptest.NewRecorder()
	rr.Header().Set("X-Outer", "kept")
	rr.Header().Set("X-Outer-Drop", "gone")
	fast.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Header().Get("X-Handler") != "yes" {
		t.Errorf("Expected handler header to be copied, got %q", rr.Header().Get("X-Handler"))
	}
	if rr.Header().Get("X-Outer") != "kept" {
		t.Errorf("Expected outer header to survive, got %q", rr.Header().Get("X-Outer"))
	}
	if rr.Header().Get("X-Outer-Drop") != "" {
		t.Errorf("Expected deleted header to stay deleted, got %q", rr.Header().Get("X-Outer-Drop"))
	}

	silent := Timeout(time.Second, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Silent", "yes")
	}))
	rr = httptest.NewRecorder()
	silent.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Header().Get("X-Silent") != "yes" {
		t.Errorf("Expected header of a handler that never wrote, got %q", rr.Header().Get("X-Silent"))
	}

	finished := make(chan struct{})
	slow := Timeout(10*time.Millisecond, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(finished)
		time.Sleep(30 * time.Millisecond)
		w.Header().Set("X-Late", "1")
	}))
	rr = httptest.NewRecorder()
	slow.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	<-finished
	if rr.Code != http.StatusRequestTimeout {
		t.Errorf("Expected status %d, got %d", http.StatusRequestTimeout, rr.Code)
	}
	if rr.Header().Get("X-Late") != "" {
		t.Errorf("Expected late header to be dropped, got %q", rr.Header().Get("X-Late"))
	}
}

// TestTimeoutPropagatesPanic tests that a panic in the handler reaches Recovery
func TestTimeoutPropagatesPanic(t *testing.T) {
	handler := Recovery(zap.NewNop())(Timeout(time.Second, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, rr.Code)
	}
}

// TestCORS tests the CORS headers and preflight handling
func TestCORS(t *testing.T) {
	called := false
	handler := CORS([]string{"https://example.com"}, []string{"GET", "POST"}, []string{"Content-Type"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/", nil))
	if called {
		t.Error("Expected preflight request not to reach the handler")
	}
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status %d, got %d", http.StatusNoContent, rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST" {
		t.Errorf("Expected methods %q, got %q", "GET, POST", got)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("Expected GET request to reach the handler")
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Errorf("Expected origin %q, got %q", "https://example.com", got)
	}
}
