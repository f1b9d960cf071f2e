package server

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/giygas/ndc-unii/config"
	"github.com/giygas/ndc-unii/logging"
)

func TestRateLimiterRemoveIdle(t *testing.T) {
	rl := NewRateLimiter()

	// Untouched bucket is full and goes away, a drained one stays
	rl.getBucket("198.51.100.1")
	rl.getBucket("198.51.100.2").TakeAvailable(500)

	if remaining := rl.removeIdle(); remaining != 1 {
		t.Fatalf("Expected 1 remaining client, got %d", remaining)
	}

	rl.mu.RLock()
	_, kept := rl.clients["198.51.100.2"]
	rl.mu.RUnlock()
	if !kept {
		t.Error("Expected the drained client to be kept")
	}
}

func TestRateLimiterConcurrentClients(t *testing.T) {
	rl := NewRateLimiter()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rl.getBucket("198.51.100.50")
		}()
	}
	wg.Wait()

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if len(rl.clients) != 1 {
		t.Errorf("Expected one bucket for one client, got %d", len(rl.clients))
	}
}

func TestRateLimiterRejectsWhenShort(t *testing.T) {
	rl := NewRateLimiter()
	bucket := rl.getBucket("198.51.100.60")
	bucket.TakeAvailable(rateLimitCapacity - 10)

	req := httptest.NewRequest("GET", "/v1/search?q=x", nil)
	req.RemoteAddr = "198.51.100.60"
	w := httptest.NewRecorder()
	rl.Middleware(okHandler()).ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "60" {
		t.Errorf("Expected Retry-After 60, got %q", w.Header().Get("Retry-After"))
	}
}

func TestRequestSizeMiddlewareBoundaries(t *testing.T) {
	logging.InitLogger("")
	cfg := &config.Config{MaxRequestBody: 10, MaxHeaderSize: 1024}
	handler := RequestSizeMiddleware(cfg)(okHandler())

	tests := []struct {
		name          string
		contentLength int64
		expected      int
	}{
		{"unknown length", -1, http.StatusOK},
		{"exactly the limit", 10, http.StatusOK},
		{"one over the limit", 11, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/health", nil)
			req.ContentLength = tt.contentLength
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, w.Code)
			}
		})
	}
}

func TestBlockDirectAccessUnparseableRemoteAddr(t *testing.T) {
	logging.InitLogger("")

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "localhost"
	w := httptest.NewRecorder()
	BlockDirectAccessMiddleware(okHandler()).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected bare localhost to pass, got %d", w.Code)
	}
}
