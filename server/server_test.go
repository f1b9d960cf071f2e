package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/giygas/ndc-unii/chunks"
	"github.com/giygas/ndc-unii/config"
	"github.com/giygas/ndc-unii/data"
	"github.com/giygas/ndc-unii/logging"
	"github.com/giygas/ndc-unii/rxnorm/entities"
)

func strPtr(s string) *string { return &s }

func testConfig(webDataDir string) *config.Config {
	return &config.Config{
		Port:           "0",
		Address:        "127.0.0.1",
		Env:            config.EnvTest,
		LogLevel:       "error",
		WebDataDir:     webDataDir,
		MaxRequestBody: 1048576,
		MaxHeaderSize:  1048576,
		RefreshCron:    "0 6 * * 1",
	}
}

// newTestServer builds chunks for two NDCs under <tmp>/web/data and serves them
func newTestServer(t *testing.T) (*Server, *config.Config) {
	t.Helper()
	logging.InitLogger("")

	webRoot := filepath.Join(t.TempDir(), "web")
	dataDir := filepath.Join(webRoot, "data")
	records := map[string]entities.Record{
		"00002-7715-01": {Ndc: "00002-7715-01", Rxcui: "861007", Str: "Metformin 500 MG Oral Tablet", Tty: "SCD",
			Ingredients: []entities.Ingredient{{Rxcui: "6809", Str: "Metformin", Tty: "IN", Unii: strPtr("9100L32L2N"), ActiveIngredient: true}}},
		"12345-0000-01": {Ndc: "12345-0000-01", Rxcui: "308135", Str: "Amlodipine 5 MG Oral Tablet", Tty: "SCD",
			Ingredients: []entities.Ingredient{{Rxcui: "17767", Str: "Amlodipine", Tty: "IN", Unii: strPtr("1J444QC288")}}},
	}
	if _, err := chunks.NewBuilder(dataDir, 3).BuildRecords(records); err != nil {
		t.Fatalf("Failed to build chunks: %v", err)
	}
	if err := os.WriteFile(filepath.Join(webRoot, "index.html"), []byte("<html>viewer</html>"), 0644); err != nil {
		t.Fatalf("Failed to write index.html: %v", err)
	}

	ds, err := chunks.Load(dataDir)
	if err != nil {
		t.Fatalf("Failed to load chunks: %v", err)
	}
	dc := data.NewDataContainer()
	dc.UpdateData(ds, nil)

	cfg := testConfig(dataDir)
	return NewServer(cfg, dc), cfg
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	req.RemoteAddr = "127.0.0.1:40000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNewServer(t *testing.T) {
	s, cfg := newTestServer(t)

	if s.server.Addr != cfg.Address+":"+cfg.Port {
		t.Errorf("Expected addr %s:%s, got %s", cfg.Address, cfg.Port, s.server.Addr)
	}
	if s.server.ReadTimeout != 15*time.Second || s.server.WriteTimeout != 15*time.Second {
		t.Errorf("Unexpected timeouts: read %v write %v", s.server.ReadTimeout, s.server.WriteTimeout)
	}
	if s.handler == nil || s.limiter == nil {
		t.Fatal("Expected handler and rate limiter to be set")
	}
}

func TestRoutes(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	tests := []struct {
		name     string
		path     string
		status   int
		contains string
	}{
		{"bucket index", "/data/index.json", http.StatusOK, `"bucket_size": 3`},
		{"bucket file", "/data/ndc_000.json", http.StatusOK, "00002-7715-01"},
		{"search file", "/data/search.json", http.StatusOK, "Amlodipine"},
		{"missing bucket", "/data/ndc_999.json", http.StatusNotFound, ""},
		{"ndc lookup", "/v1/ndc/00002-7715-01", http.StatusOK, "9100L32L2N"},
		{"ndc prefix", "/v1/ndc/123", http.StatusOK, "308135"},
		{"ndc unknown", "/v1/ndc/99999", http.StatusNotFound, ""},
		{"ndc invalid", "/v1/ndc/ab", http.StatusBadRequest, ""},
		{"search", "/v1/search?q=metformin", http.StatusOK, `"count":1`},
		{"report before any run", "/v1/report", http.StatusNotFound, ""},
		{"health", "/health", http.StatusOK, `"records":2`},
		{"metrics", "/metrics", http.StatusOK, "http_request_total"},
		{"front end", "/", http.StatusOK, "viewer"},
		{"unknown", "/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, h, tt.path)
			if w.Code != tt.status {
				t.Fatalf("Expected %d for %s, got %d: %s", tt.status, tt.path, w.Code, w.Body.String())
			}
			if tt.contains != "" && !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("Expected body of %s to contain %q, got %s", tt.path, tt.contains, w.Body.String())
			}
		})
	}
}

func TestStaticFilesHaveCacheHeaders(t *testing.T) {
	s, _ := newTestServer(t)

	w := get(t, s.Handler(), "/data/ndc_123.json")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Cache-Control"); got != "public, max-age=3600" {
		t.Errorf("Expected Cache-Control on bucket files, got %q", got)
	}

	var bucket []entities.Record
	if err := json.Unmarshal(w.Body.Bytes(), &bucket); err != nil {
		t.Fatalf("Bucket file is not a JSON array: %v", err)
	}
	if len(bucket) != 1 || bucket[0].Rxcui != "308135" {
		t.Errorf("Unexpected bucket content: %+v", bucket)
	}
}

func TestMiddlewareChain(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	t.Run("rate limit headers", func(t *testing.T) {
		w := get(t, h, "/v1/search?q=metformin")
		if w.Header().Get("X-RateLimit-Limit") != "1000" {
			t.Errorf("Expected rate limit headers, got %v", w.Header())
		}
	})

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/v1/search", nil)
		req.Header.Set("Origin", "https://viewer.example.org")
		req.Header.Set("Access-Control-Request-Method", "GET")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Expected Access-Control-Allow-Origin *, got %q", got)
		}
	})

	t.Run("gzip for json", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/data/search.json", nil)
		req.RemoteAddr = "127.0.0.1:40000"
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if got := w.Header().Get("Content-Encoding"); got != "gzip" {
			t.Errorf("Expected gzip encoding, got %q", got)
		}
	})

	t.Run("trailing slash redirect", func(t *testing.T) {
		w := get(t, h, "/health/")
		if w.Code != http.StatusMovedPermanently {
			t.Errorf("Expected 301, got %d", w.Code)
		}
	})

	t.Run("direct access allowed outside production", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "203.0.113.5:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code == http.StatusForbidden {
			t.Error("Direct access should only be blocked in production")
		}
	})
}

func TestProductionBlocksDirectAccess(t *testing.T) {
	logging.InitLogger("")
	cfg := testConfig(t.TempDir())
	cfg.Env = config.EnvProduction
	s := NewServer(cfg, data.NewDataContainer())

	req := httptest.NewRequest("GET", "/health", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 without proxy headers, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/health", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.5")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code == http.StatusForbidden {
		t.Error("Expected proxied request to pass")
	}
}

func TestHealthWithoutData(t *testing.T) {
	logging.InitLogger("")
	s := NewServer(testConfig(t.TempDir()), data.NewDataContainer())

	w := get(t, s.Handler(), "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 before any data, got %d", w.Code)
	}
	w = get(t, s.Handler(), "/v1/ndc/000")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 lookup before any data, got %d", w.Code)
	}
}

func TestServerLifecycle(t *testing.T) {
	logging.InitLogger("")
	cfg := testConfig(t.TempDir())
	dc := data.NewDataContainer()
	s := NewServer(cfg, dc)

	ts := httptest.NewServer(s.Handler())
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	ts.Close()

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Start()
	}()
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown should not error: %v", err)
	}

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Server should have stopped after shutdown")
	}

	if dc.GetServerStartTime().IsZero() {
		t.Error("Expected Start to record the server start time")
	}
}
